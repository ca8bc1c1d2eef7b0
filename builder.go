// builder.go -- bucketed construction of static functions
//
// The builder signs every key, shards the signatures into buckets by
// the leading bits, and constructs every bucket independently: peeling
// for the minimal perfect hash, the F(2) solver for the static
// functions. A bucket whose random structure does not cooperate is
// retried under a fresh local seed; a build where some bucket exhausts
// its seeds is restarted under a fresh global seed.
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package csf

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
)

// MPHBuilder constructs a minimal perfect hash over a set of keys.
type MPHBuilder struct {
	bb bucketedBuilder
}

// NewMPHBuilder creates a builder for a minimal perfect hash function:
// the frozen Func maps each added key to a distinct index in [0, n).
func NewMPHBuilder(opt *Options) (*MPHBuilder, error) {
	b := &MPHBuilder{}
	b.bb.init(_VarMPH, 0, opt)
	return b, nil
}

// Add adds a key; the key bytes are copied.
func (b *MPHBuilder) Add(key []byte) error {
	return b.bb.add(key, 0)
}

// Freeze builds the MPH. The context is checked between buckets; a
// cancelled context aborts the build.
func (b *MPHBuilder) Freeze(ctx context.Context) (Func, error) {
	return b.bb.freeze(ctx)
}

// SFBuilder constructs a static function mapping keys to fixed-width
// values.
type SFBuilder struct {
	bb bucketedBuilder
}

// NewSFBuilder creates a builder for a static function with 'width'-bit
// values, 1 <= width <= 64.
func NewSFBuilder(width int, opt *Options) (*SFBuilder, error) {
	if width < 1 || width > 64 {
		return nil, fmt.Errorf("csf: invalid value width %d", width)
	}

	b := &SFBuilder{}
	b.bb.init(_VarSF, width, opt)
	return b, nil
}

// Add adds a key and its value; the key bytes are copied. The value
// must fit the builder's bit width.
func (b *SFBuilder) Add(key []byte, val uint64) error {
	if w := b.bb.w; w < 64 && val >= 1<<uint(w) {
		return fmt.Errorf("csf: value %#x wider than %d bits", val, w)
	}
	return b.bb.add(key, val)
}

// Freeze builds the static function.
func (b *SFBuilder) Freeze(ctx context.Context) (Func, error) {
	return b.bb.freeze(ctx)
}

// CSFBuilder constructs a compressed static function: values are
// entropy-coded, so the per-key cost approaches the empirical entropy
// of the value distribution.
type CSFBuilder struct {
	bb bucketedBuilder
}

// NewCSFBuilder creates a builder for a compressed static function.
func NewCSFBuilder(opt *Options) (*CSFBuilder, error) {
	b := &CSFBuilder{}
	b.bb.init(_VarCSF, 0, opt)
	return b, nil
}

// Add adds a key and its value; the key bytes are copied.
func (b *CSFBuilder) Add(key []byte, val uint64) error {
	if val == escapeSym {
		return ErrValueReserved
	}
	return b.bb.add(key, val)
}

// Freeze builds the compressed static function.
func (b *CSFBuilder) Freeze(ctx context.Context) (Func, error) {
	return b.bb.freeze(ctx)
}

// one signed key; everything after signing works off this record
type sigRec struct {
	sig sigma
	bkt uint64
	val uint64

	// CSF payload: codeword and escape flag
	code uint64
	clen uint8
	escp bool
}

type bucketedBuilder struct {
	variant uint8
	w       int // SF value width
	opt     Options

	keys   [][]byte
	vals   []uint64
	frozen bool
}

func (b *bucketedBuilder) init(variant uint8, width int, opt *Options) {
	b.variant = variant
	b.w = width
	if opt != nil {
		b.opt = *opt
	}
	b.opt.setDefaults()
}

func (b *bucketedBuilder) add(key []byte, val uint64) error {
	if b.frozen {
		return ErrFrozen
	}

	k := make([]byte, len(key))
	copy(k, key)
	b.keys = append(b.keys, k)
	b.vals = append(b.vals, val)
	return nil
}

func (b *bucketedBuilder) offsetBits() uint {
	if b.variant == _VarCSF {
		return _OffsetBitsCS
	}
	return _OffsetBits
}

func (b *bucketedBuilder) freeze(ctx context.Context) (Func, error) {
	if b.frozen {
		return nil, ErrFrozen
	}
	b.frozen = true

	if ctx == nil {
		ctx = context.Background()
	}

	var cdc *codec
	var err error
	if b.variant == _VarCSF {
		if cdc, err = buildCodec(b.vals, b.opt.MaxCodeLength); err != nil {
			return nil, err
		}
	}

	base := b.opt.GlobalSeed
	if base == 0 {
		base = rand64()
	}

	var lastErr error
	for g := 0; g < b.opt.MaxGlobalAttempts; g++ {
		seed := base
		if g > 0 {
			seed = mix(base + uint64(g)*_SC)
		}

		fn, err := b.tryBuild(ctx, seed, cdc)
		if err == nil {
			return fn, nil
		}

		var be *BuildError
		if !errors.As(err, &be) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("csf: %w (last: %v)", ErrBuildFailed, lastErr)
}

// tryBuild runs one full construction under the given global seed.
func (b *bucketedBuilder) tryBuild(ctx context.Context, seed uint64, cdc *codec) (Func, error) {
	n := len(b.keys)

	var escW, slack uint64
	if cdc != nil {
		escW = uint64(cdc.escW)
		slack = uint64(cdc.w) + escW
	}

	// sign every key; for CSF, attach codewords while we are at it
	recs := make([]sigRec, n)
	var payloadBits uint64
	for i, k := range b.keys {
		r := &recs[i]
		r.sig = spookyShort(k, seed)
		r.val = b.vals[i]
		if cdc != nil {
			cw, esc := cdc.encode(r.val)
			r.code, r.clen, r.escp = cw.code, cw.len, esc
			payloadBits += uint64(cw.len)
			if esc {
				payloadBits += escW
			}
		}
	}

	// bucket count: keys per bucket for MPH/SF, equations per bucket
	// for CSF
	load := uint64(n)
	if cdc != nil {
		load = payloadBits
	}
	bsz := uint64(b.opt.BucketSizeHint)
	m := (load + bsz - 1) / bsz
	if m == 0 {
		m = 1
	}
	multiplier := 2 * m

	for i := range recs {
		recs[i].bkt = bucketOf(recs[i].sig[0], multiplier)
	}

	sort.Slice(recs, func(i, j int) bool {
		a, c := &recs[i], &recs[j]
		if a.bkt != c.bkt {
			return a.bkt < c.bkt
		}
		for k := 0; k < 4; k++ {
			if a.sig[k] != c.sig[k] {
				return a.sig[k] < c.sig[k]
			}
		}
		return false
	})

	if !b.opt.SkipDuplicateCheck {
		for i := 1; i < n; i++ {
			if recs[i].sig == recs[i-1].sig {
				return nil, fmt.Errorf("csf: %w", ErrDuplicateKey)
			}
		}
	}

	// bucket boundaries and vertex spans
	starts := make([]int, m+1)
	for i := range recs {
		starts[recs[i].bkt+1]++
	}
	for i := uint64(0); i < m; i++ {
		starts[i+1] += starts[i]
	}

	offs := make([]uint64, m+1)
	vsz := make([]uint64, m)
	offBits := b.offsetBits()
	offMask := uint64(1)<<offBits - 1

	for i := uint64(0); i < m; i++ {
		k := starts[i+1] - starts[i]
		vsz[i] = b.vertexSpan(recs[starts[i]:starts[i+1]], k, escW)
		offs[i+1] = offs[i] + vsz[i] + slack
		if vsz[i]+slack >= 1<<31 {
			return nil, ErrTooBig
		}
	}
	if offs[m] > offMask {
		return nil, ErrTooBig
	}

	// global output array
	var totalBits uint64
	switch b.variant {
	case _VarMPH:
		totalBits = 2 * offs[m]
	case _VarSF:
		totalBits = uint64(b.w) * offs[m]
	case _VarCSF:
		totalBits = offs[m]
	}
	array := make([]uint64, words64(totalBits))

	maxAtt := b.opt.MaxBucketAttempts
	if seedCap := 1 << (64 - offBits); maxAtt > seedCap {
		maxAtt = seedCap
	}

	// per-bucket construction, possibly on a worker pool; results are
	// stitched serially so the image is identical either way
	locals := make([][]uint64, m)
	atts := make([]int, m)

	runBucket := func(i uint64) error {
		recsI := recs[starts[i]:starts[i+1]]
		local, att, ok := b.buildBucket(recsI, vsz[i], maxAtt, cdc)
		if !ok {
			return &BuildError{Bucket: i, Attempts: maxAtt}
		}
		locals[i] = local
		atts[i] = att
		return nil
	}

	if err := b.forEachBucket(ctx, m, n, runBucket); err != nil {
		return nil, err
	}

	offSeed := make([]uint64, m+1)
	tries := 0
	maxTry := 0
	for i := uint64(0); i < m; i++ {
		offSeed[i] = toLEUint64(offs[i] | uint64(atts[i])<<offBits)
		tries += atts[i]
		if atts[i] > maxTry {
			maxTry = atts[i]
		}

		if locals[i] == nil {
			continue
		}
		var base, nbits uint64
		switch b.variant {
		case _VarMPH:
			base, nbits = 2*offs[i], 2*vsz[i]
		case _VarSF:
			base, nbits = uint64(b.w)*offs[i], uint64(b.w)*vsz[i]
		case _VarCSF:
			base, nbits = offs[i], vsz[i]+slack
		}
		bitCopy(array, base, locals[i], nbits)
		locals[i] = nil
	}
	offSeed[m] = toLEUint64(offs[m])

	return b.makeFunc(n, seed, multiplier, offSeed, array, starts, cdc, tries, maxTry), nil
}

// vertexSpan returns the vertex count for one bucket: slots for MPH,
// value fields for SF, payload bits for CSF.
func (b *bucketedBuilder) vertexSpan(recs []sigRec, k int, escW uint64) uint64 {
	if k == 0 {
		return 0
	}

	switch b.variant {
	case _VarMPH:
		// the k+2 floor keeps tiny buckets peelable: with only
		// ceil(1.23k) vertices a 2-key bucket has no degree-1 vertex
		// under any seed
		v := uint64(float64(k)*_GammaMPH) + 1
		if min := uint64(k) + 2; v < min {
			v = min
		}
		return v

	case _VarSF:
		g := _GammaSF3
		if b.opt.Order == 4 {
			g = _GammaSF4
		}
		return uint64(float64(k)*g) + 1

	default:
		var bits uint64
		for i := range recs {
			bits += uint64(recs[i].clen)
			if recs[i].escp {
				bits += escW
			}
		}
		return uint64(float64(bits)*_GammaCSF) + 1
	}
}

// forEachBucket drives fn over all buckets, serially for small inputs
// and on a NumCPU worker pool for large ones.
func (b *bucketedBuilder) forEachBucket(ctx context.Context, m uint64, nkeys int, fn func(uint64) error) error {
	if nkeys <= MinParallelKeys || m < 2 {
		for i := uint64(0); i < m; i++ {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("csf: build cancelled: %w", err)
			}
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	ncpu := uint64(runtime.NumCPU())
	if ncpu > m {
		ncpu = m
	}
	z := m / ncpu
	r := m % ncpu

	var wg sync.WaitGroup
	var stop atomic.Bool
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		stop.Store(true)
	}

	wg.Add(int(ncpu))
	for c := uint64(0); c < ncpu; c++ {
		x := z * c
		y := x + z
		if c == ncpu-1 {
			y += r
		}
		go func(x, y uint64) {
			defer wg.Done()
			for i := x; i < y && !stop.Load(); i++ {
				if err := ctx.Err(); err != nil {
					fail(fmt.Errorf("csf: build cancelled: %w", err))
					return
				}
				if err := fn(i); err != nil {
					fail(err)
					return
				}
			}
		}(x, y)
	}
	wg.Wait()

	return firstErr
}

// buildBucket retries one bucket with fresh local seeds until it
// constructs or the attempt budget runs out.
func (b *bucketedBuilder) buildBucket(recs []sigRec, v uint64, maxAtt int, cdc *codec) ([]uint64, int, bool) {
	if len(recs) == 0 {
		return nil, 0, true
	}

	offBits := b.offsetBits()
	for att := 0; att < maxAtt; att++ {
		seed := uint64(att) << offBits

		var local []uint64
		var ok bool
		switch b.variant {
		case _VarMPH:
			local, ok = b.attemptMPH(recs, v, seed)
		case _VarSF:
			local, ok = b.attemptSF(recs, v, seed)
		default:
			local, ok = b.attemptCSF(recs, v, seed, cdc)
		}
		if ok {
			return local, att, true
		}
	}
	return nil, maxAtt, false
}

func (b *bucketedBuilder) attemptMPH(recs []sigRec, v uint64, seed uint64) ([]uint64, bool) {
	var e [4]uint32

	edges := make([][3]uint32, len(recs))
	for i := range recs {
		edgeOf(recs[i].sig, seed, v, 3, &e)
		if e[0] == e[1] || e[1] == e[2] || e[0] == e[2] {
			return nil, false
		}
		edges[i] = [3]uint32{e[0], e[1], e[2]}
	}

	p := newPeeler(int(v))
	if !p.peel(edges, int(v)) {
		return nil, false
	}

	local := make([]uint64, words64(2*v))
	p.assign(edges, local)
	return local, true
}

func (b *bucketedBuilder) attemptSF(recs []sigRec, v uint64, seed uint64) ([]uint64, bool) {
	var e [4]uint32

	order := b.opt.Order
	sys := newF2System(int(v))
	for i := range recs {
		edgeOf(recs[i].sig, seed, v, order, &e)
		vs := make([]uint32, order)
		copy(vs, e[:order])
		sys.add(vs, recs[i].val)
	}

	x, ok := sys.solve()
	if !ok {
		return nil, false
	}

	w := uint64(b.w)
	local := make([]uint64, words64(w*v))
	for i, xv := range x {
		bitSet(local, uint64(i)*w, w, xv)
	}
	return local, true
}

func (b *bucketedBuilder) attemptCSF(recs []sigRec, v uint64, seed uint64, cdc *codec) ([]uint64, bool) {
	var e [4]uint32

	w := uint64(cdc.w)
	escW := uint64(cdc.escW)
	nv := v + w + escW
	sys := newF2System(int(nv))

	for i := range recs {
		r := &recs[i]
		edgeOf(r.sig, seed, v, 3, &e)

		// the codeword occupies the leading bits of the w-wide
		// window at each vertex
		clen := uint64(r.clen)
		for j := uint64(0); j < clen; j++ {
			bit := (r.code >> (clen - 1 - j)) & 1
			pos := uint32(w - 1 - j)
			sys.add([]uint32{e[0] + pos, e[1] + pos, e[2] + pos}, bit)
		}

		// escaped values ride verbatim just past the window
		if r.escp {
			for t := uint64(0); t < escW; t++ {
				pos := uint32(w + t)
				sys.add([]uint32{e[0] + pos, e[1] + pos, e[2] + pos}, (r.val>>t)&1)
			}
		}
	}

	x, ok := sys.solve()
	if !ok {
		return nil, false
	}

	local := make([]uint64, words64(nv))
	for i, xv := range x {
		if xv != 0 {
			bitSet(local, uint64(i), 1, 1)
		}
	}
	return local, true
}

// makeFunc assembles the frozen function value.
func (b *bucketedBuilder) makeFunc(n int, seed, multiplier uint64, offSeed, array []uint64, starts []int, cdc *codec, tries, maxTry int) Func {
	switch b.variant {
	case _VarMPH:
		keyOff := make([]uint64, len(starts))
		for i, s := range starts {
			keyOff[i] = toLEUint64(uint64(s))
		}
		return &mphFunc{
			n:          uint64(n),
			seed:       seed,
			multiplier: multiplier,
			offSeed:    offSeed,
			array:      array,
			keyOff:     keyOff,
			tries:      tries,
			maxTry:     maxTry,
		}

	case _VarSF:
		return &sfFunc{
			n:          uint64(n),
			w:          uint64(b.w),
			order:      b.opt.Order,
			seed:       seed,
			multiplier: multiplier,
			offSeed:    offSeed,
			array:      array,
			bytes:      u64sToByteSlice(array),
			tries:      tries,
			maxTry:     maxTry,
		}

	default:
		return &csfFunc{
			n:          uint64(n),
			w:          uint64(cdc.w),
			escW:       uint64(cdc.escW),
			seed:       seed,
			multiplier: multiplier,
			offSeed:    offSeed,
			array:      array,
			dec:        cdc.dec,
			tries:      tries,
			maxTry:     maxTry,
		}
	}
}
