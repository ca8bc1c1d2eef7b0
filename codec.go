// codec.go -- canonical length-limited prefix code over observed values
//
// Builds the variable-length codec behind the compressed static
// function: ordinary Huffman when the natural code fits the length
// limit, package-merge when it does not. Values whose natural codeword
// would blow the limit are routed through a reserved escape codeword
// and stored verbatim in a parallel fixed-width slot.
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
	"errors"
	"math/bits"
	"sort"
)

// escapeSym is the sentinel stored in the symbol table for the escape
// codeword. CSF values must therefore stay below 2^64-1.
const escapeSym = ^uint64(0)

type codeword struct {
	code uint64
	len  uint8
}

type codec struct {
	w    int // max codeword length in use
	escW int // escape slot width; 0 when nothing escapes

	enc map[uint64]codeword
	esc codeword // valid when escW > 0
	dec *decoder
}

// decoder is the table-driven decode side; also reconstructed verbatim
// from a serialized image.
type decoder struct {
	w       int
	lastCW  []uint64 // w+1 entries; MSB-aligned block boundaries
	howmany []uint32 // symbols up to and including each block
	shift   []uint32
	syms    []uint64
}

// decode maps an MSB-aligned w-bit window to its symbol. For windows
// that decode to no codeword (possible only for keys outside the build
// set) the last symbol is returned.
func (d *decoder) decode(x uint64) uint64 {
	for l := 1; l <= d.w; l++ {
		if x < d.lastCW[l] {
			i := uint64(d.howmany[l]) + (x >> d.shift[l]) - (d.lastCW[l] >> d.shift[l])
			return d.syms[i]
		}
	}
	return d.syms[len(d.syms)-1]
}

// encode returns the codeword for v plus whether v is escaped. Escaped
// values use the escape codeword and travel verbatim in the escape slot.
func (c *codec) encode(v uint64) (codeword, bool) {
	if cw, ok := c.enc[v]; ok {
		return cw, false
	}
	return c.esc, true
}

// buildCodec computes the code for the multiset 'vals'. maxLen caps the
// codeword length; a non-positive maxLen selects DefaultMaxCodeLength
// and values above 56 are clamped to 56.
func buildCodec(vals []uint64, maxLen int) (*codec, error) {
	if len(vals) == 0 {
		return nil, errors.New("csf: no values to code")
	}

	if maxLen <= 0 {
		maxLen = DefaultMaxCodeLength
	}
	if maxLen > 56 {
		maxLen = 56
	}

	freq := make(map[uint64]uint64, 64)
	var maxVal uint64
	for _, v := range vals {
		if v == escapeSym {
			return nil, ErrValueReserved
		}
		freq[v]++
		if v > maxVal {
			maxVal = v
		}
	}

	all := make([]symFreq, 0, len(freq))
	for v, f := range freq {
		all = append(all, symFreq{v, f})
	}
	// weight-ascending; ties by value for determinism
	sort.Slice(all, func(i, j int) bool {
		if all[i].freq != all[j].freq {
			return all[i].freq < all[j].freq
		}
		return all[i].val < all[j].val
	})

	// natural Huffman pass to find symbols that cannot be coded
	// within maxLen bits
	natural := huffmanLengths(symWeights(all))

	kept := all[:0:0]
	var escFreq uint64
	var nesc int
	for i, s := range all {
		if natural[i] > maxLen {
			escFreq += s.freq
			nesc++
			continue
		}
		kept = append(kept, s)
	}

	// a prefix code of max length L holds at most 2^L codewords;
	// anything beyond the budget is escaped as well
	budget := (uint64(1) << maxLen) - 1
	for uint64(len(kept)) > budget {
		escFreq += kept[0].freq
		nesc++
		kept = kept[1:]
	}

	// rebuild over the kept alphabet, with the escape as one more
	// pseudo-symbol when needed
	alpha := kept
	if nesc > 0 {
		if escFreq == 0 {
			escFreq = 1
		}
		alpha = append([]symFreq{}, kept...)
		alpha = append(alpha, symFreq{escapeSym, escFreq})
		sort.Slice(alpha, func(i, j int) bool {
			if alpha[i].freq != alpha[j].freq {
				return alpha[i].freq < alpha[j].freq
			}
			return alpha[i].val < alpha[j].val
		})
	}

	lens := huffmanLengths(symWeights(alpha))
	if maxOf(lens) > maxLen {
		lens = packageMerge(symWeights(alpha), maxLen)
	}

	// the escape codeword must sit in the longest block; lengthening
	// one codeword keeps the Kraft sum under 1
	if nesc > 0 {
		w := maxOf(lens)
		for i := range alpha {
			if alpha[i].val == escapeSym && lens[i] < w {
				lens[i] = w
			}
		}
	}

	// canonical assignment: by length, the escape first within its
	// block, then by value
	type centry struct {
		val uint64
		len int
	}
	entries := make([]centry, len(alpha))
	for i := range alpha {
		entries[i] = centry{alpha[i].val, lens[i]}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		if a.len != b.len {
			return a.len < b.len
		}
		ae, be := a.val == escapeSym, b.val == escapeSym
		if ae != be {
			return ae
		}
		return a.val < b.val
	})

	w := entries[len(entries)-1].len
	c := &codec{
		w:   w,
		enc: make(map[uint64]codeword, len(entries)),
	}
	if nesc > 0 {
		c.escW = bits.Len64(maxVal)
		if c.escW == 0 {
			c.escW = 1
		}
	}

	d := &decoder{
		w:       w,
		lastCW:  make([]uint64, w+1),
		howmany: make([]uint32, w+1),
		shift:   make([]uint32, w+1),
		syms:    make([]uint64, len(entries)),
	}

	var code uint64
	prevLen := entries[0].len
	for i, e := range entries {
		if i > 0 {
			code = (code + 1) << uint(e.len-prevLen)
			prevLen = e.len
		}
		d.syms[i] = e.val
		if e.val == escapeSym {
			c.esc = codeword{code, uint8(e.len)}
		} else {
			c.enc[e.val] = codeword{code, uint8(e.len)}
		}
		d.lastCW[e.len] = (code + 1) << uint(w-e.len)
		d.howmany[e.len] = uint32(i + 1)
	}

	for l := 1; l <= w; l++ {
		d.shift[l] = uint32(w - l)
		if d.lastCW[l] == 0 {
			d.lastCW[l] = d.lastCW[l-1]
		}
		if d.howmany[l] == 0 {
			d.howmany[l] = d.howmany[l-1]
		}
	}
	d.shift[0] = uint32(w)

	c.dec = d
	return c, nil
}

type symFreq struct {
	val  uint64
	freq uint64
}

func symWeights(syms []symFreq) []uint64 {
	w := make([]uint64, len(syms))
	for i := range syms {
		w[i] = syms[i].freq
	}
	return w
}

func maxOf(v []int) int {
	m := 0
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

// huffmanLengths computes natural Huffman code lengths for weights
// sorted in ascending order, using the two-queue construction.
func huffmanLengths(w []uint64) []int {
	n := len(w)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []int{1}
	}

	type node struct {
		w      uint64
		parent int32
	}
	nodes := make([]node, n, 2*n-1)
	for i, x := range w {
		nodes[i] = node{x, -1}
	}

	li, ii := 0, n
	pickMin := func() int {
		// prefer the leaf queue on ties: deterministic and favors
		// shallow trees
		if li < n && (ii >= len(nodes) || nodes[li].w <= nodes[ii].w) {
			li++
			return li - 1
		}
		ii++
		return ii - 1
	}

	for k := 0; k < n-1; k++ {
		a := pickMin()
		b := pickMin()
		nodes = append(nodes, node{nodes[a].w + nodes[b].w, -1})
		nodes[a].parent = int32(len(nodes) - 1)
		nodes[b].parent = int32(len(nodes) - 1)
	}

	depth := make([]int, len(nodes))
	for i := len(nodes) - 2; i >= 0; i-- {
		depth[i] = depth[nodes[i].parent] + 1
	}

	return depth[:n]
}

// packageMerge computes optimal length-limited code lengths (max L) for
// weights sorted in ascending order. Feasibility (len(w) <= 2^L) is the
// caller's problem.
func packageMerge(w []uint64, L int) []int {
	n := len(w)
	if n == 1 {
		return []int{1}
	}

	type pmItem struct {
		w      uint64
		leaves []int32
	}
	leaves := make([]pmItem, n)
	for i, x := range w {
		leaves[i] = pmItem{x, []int32{int32(i)}}
	}

	var prev []pmItem
	for level := 0; level < L; level++ {
		var packaged []pmItem
		for i := 0; i+1 < len(prev); i += 2 {
			a, b := &prev[i], &prev[i+1]
			ls := make([]int32, 0, len(a.leaves)+len(b.leaves))
			ls = append(ls, a.leaves...)
			ls = append(ls, b.leaves...)
			packaged = append(packaged, pmItem{a.w + b.w, ls})
		}

		// stable two-way merge; leaves win ties
		merged := make([]pmItem, 0, n+len(packaged))
		i, j := 0, 0
		for i < n || j < len(packaged) {
			if j >= len(packaged) || (i < n && leaves[i].w <= packaged[j].w) {
				merged = append(merged, leaves[i])
				i++
			} else {
				merged = append(merged, packaged[j])
				j++
			}
		}
		prev = merged
	}

	lens := make([]int, n)
	take := 2*n - 2
	for i := 0; i < take && i < len(prev); i++ {
		for _, l := range prev[i].leaves {
			lens[l]++
		}
	}
	return lens
}
