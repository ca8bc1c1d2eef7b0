// mphfunc.go -- frozen minimal perfect hash function
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
	"fmt"
	"io"
)

// mphFunc maps each build key to a distinct index in [0, n). The output
// array is a 2-bit slot per vertex; a key's index is the number of live
// slots before its hinge vertex, plus the count of keys in earlier
// buckets.
type mphFunc struct {
	n          uint64
	seed       uint64
	multiplier uint64

	offSeed []uint64 // m+1 packed (offset | seed), stored-LE
	array   []uint64 // 2-bit slots, stored-LE
	keyOff  []uint64 // m+1 cumulative key counts, stored-LE

	// build stats; not serialized
	tries  int
	maxTry int
}

func (f *mphFunc) Len() int {
	return int(f.n)
}

func (f *mphFunc) Lookup(key []byte) uint64 {
	sig := spookyShort(key, f.seed)
	b := bucketOf(sig[0], f.multiplier)

	os := toLEUint64(f.offSeed[b])
	off := os & _OffsetMask
	v := (toLEUint64(f.offSeed[b+1]) & _OffsetMask) - off
	if v == 0 {
		return 0
	}

	var e [4]uint32
	edgeOf(sig, os&^_OffsetMask, v, 3, &e)

	a := slot2Get(f.array, off+uint64(e[0]))
	c := slot2Get(f.array, off+uint64(e[1]))
	d := slot2Get(f.array, off+uint64(e[2]))
	hinge := uint64(e[(a+c+d)%3])

	return toLEUint64(f.keyOff[b]) + countNonzeroPairs(f.array, off, off+hinge)
}

func (f *mphFunc) SizeInBits() uint64 {
	return 64 * uint64(len(f.offSeed)+len(f.array)+len(f.keyOff))
}

func (f *mphFunc) DumpMeta(w io.Writer) {
	m := len(f.offSeed) - 1
	fmt.Fprintf(w, "csf: MPH <seed %#x> %d keys, %d buckets, %5.2f bits/key\n",
		f.seed, f.n, m, bitsPerKey(f.SizeInBits(), f.n))
	fmt.Fprintf(w, "  bucket retries: %d total, %d worst\n", f.tries, f.maxTry)
}

func bitsPerKey(bits, n uint64) float64 {
	if n == 0 {
		return 0
	}
	return float64(bits) / float64(n)
}
