// csfunc.go -- frozen compressed static function
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

// csfFunc maps each build key to its value through the prefix code:
// XOR-ing the w-bit windows at the key's three (bit-granular) vertices
// yields the value's codeword in the leading bits, and a table decode
// recovers the value. Escaped values sit verbatim in the escW bits
// right after the window, reconstructed through the same vertices.
type csfFunc struct {
	n          uint64
	w          uint64 // max codeword length == window width
	escW       uint64 // escape slot width; 0 when nothing escapes
	seed       uint64
	multiplier uint64

	offSeed []uint64 // m+1 packed (offset | seed), stored-LE
	array   []uint64 // bit pool, stored-LE

	dec *decoder

	tries  int
	maxTry int
}

func (f *csfFunc) Len() int {
	return int(f.n)
}

func (f *csfFunc) slack() uint64 {
	return f.w + f.escW
}

func (f *csfFunc) Lookup(key []byte) uint64 {
	sig := spookyShort(key, f.seed)
	b := bucketOf(sig[0], f.multiplier)

	os := toLEUint64(f.offSeed[b])
	off := os & _OffsetMaskCS
	v := (toLEUint64(f.offSeed[b+1]) & _OffsetMaskCS) - off - f.slack()
	if v == 0 {
		return 0
	}

	var e [4]uint32
	edgeOf(sig, os&^_OffsetMaskCS, v, 3, &e)

	x := bitGet(f.array, off+uint64(e[0]), f.w) ^
		bitGet(f.array, off+uint64(e[1]), f.w) ^
		bitGet(f.array, off+uint64(e[2]), f.w)

	val := f.dec.decode(x)
	if val != escapeSym {
		return val
	}

	// escape: the actual value follows the codeword window
	return bitGet(f.array, off+uint64(e[0])+f.w, f.escW) ^
		bitGet(f.array, off+uint64(e[1])+f.w, f.escW) ^
		bitGet(f.array, off+uint64(e[2])+f.w, f.escW)
}

func (f *csfFunc) SizeInBits() uint64 {
	bits := 64 * uint64(len(f.offSeed)+len(f.array))
	bits += 64 * uint64(len(f.dec.lastCW)+len(f.dec.syms))
	bits += 32 * uint64(len(f.dec.howmany)+len(f.dec.shift))
	return bits
}

func (f *csfFunc) DumpMeta(w io.Writer) {
	m := len(f.offSeed) - 1
	fmt.Fprintf(w, "csf: CSF <seed %#x> %d keys, %d buckets, %d symbols, w %d, %5.2f bits/key\n",
		f.seed, f.n, m, len(f.dec.syms), f.w, bitsPerKey(f.SizeInBits(), f.n))
	if f.escW > 0 {
		fmt.Fprintf(w, "  escape slot: %d bits\n", f.escW)
	}
	fmt.Fprintf(w, "  bucket retries: %d total, %d worst\n", f.tries, f.maxTry)
}
