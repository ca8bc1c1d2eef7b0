// sfunc.go -- frozen fixed-width static function
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

// sfFunc maps each build key to its w-bit value: the XOR of the w-bit
// fields at the key's vertices.
type sfFunc struct {
	n          uint64
	w          uint64
	order      int
	seed       uint64
	multiplier uint64

	offSeed []uint64 // m+1 packed (offset | seed), stored-LE
	array   []uint64 // w-bit fields, stored-LE
	bytes   []byte   // byte view of array; fast path for w == 8

	tries  int
	maxTry int
}

func (f *sfFunc) Len() int {
	return int(f.n)
}

func (f *sfFunc) Lookup(key []byte) uint64 {
	sig := spookyShort(key, f.seed)
	b := bucketOf(sig[0], f.multiplier)

	os := toLEUint64(f.offSeed[b])
	off := os & _OffsetMask
	v := (toLEUint64(f.offSeed[b+1]) & _OffsetMask) - off
	if v == 0 {
		return 0
	}

	var e [4]uint32
	edgeOf(sig, os&^_OffsetMask, v, f.order, &e)

	if f.w == 8 {
		x := f.bytes[off+uint64(e[0])] ^ f.bytes[off+uint64(e[1])] ^ f.bytes[off+uint64(e[2])]
		if f.order == 4 {
			x ^= f.bytes[off+uint64(e[3])]
		}
		return uint64(x)
	}

	x := bitGet(f.array, (off+uint64(e[0]))*f.w, f.w) ^
		bitGet(f.array, (off+uint64(e[1]))*f.w, f.w) ^
		bitGet(f.array, (off+uint64(e[2]))*f.w, f.w)
	if f.order == 4 {
		x ^= bitGet(f.array, (off+uint64(e[3]))*f.w, f.w)
	}
	return x
}

func (f *sfFunc) SizeInBits() uint64 {
	return 64 * uint64(len(f.offSeed)+len(f.array))
}

func (f *sfFunc) DumpMeta(w io.Writer) {
	m := len(f.offSeed) - 1
	fmt.Fprintf(w, "csf: SF%d <seed %#x> %d keys, %d-bit values, %d buckets, %5.2f bits/key\n",
		f.order, f.seed, f.n, f.w, m, bitsPerKey(f.SizeInBits(), f.n))
	fmt.Fprintf(w, "  bucket retries: %d total, %d worst\n", f.tries, f.maxTry)
}
