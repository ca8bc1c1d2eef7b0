// bitarray.go -- fixed-width bit field access over a []uint64
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

// The arrays addressed here are in stored-little-endian element order;
// each word access goes through toLEUint64 (identity on LE hosts). Bit p
// lives at bit p%64 of word p/64, so the byte view of the array is the
// same on every host.

// bitGet returns bits [p, p+w) of 'a' as an integer; w <= 64.
// Reads may touch one word past the last bit position in use; the
// allocator always pads the array by one word.
func bitGet(a []uint64, p, w uint64) uint64 {
	if w == 0 {
		return 0
	}

	i := p >> 6
	o := p & 63
	x := toLEUint64(a[i]) >> o
	if o+w > 64 {
		x |= toLEUint64(a[i+1]) << (64 - o)
	}
	if w == 64 {
		return x
	}
	return x & (1<<w - 1)
}

// bitSet writes v mod 2^w at bits [p, p+w), zeroing the field first.
func bitSet(a []uint64, p, w uint64, v uint64) {
	if w == 0 {
		return
	}

	m := ^uint64(0)
	if w < 64 {
		m = 1<<w - 1
	}
	v &= m

	i := p >> 6
	o := p & 63

	lo := toLEUint64(a[i])
	lo = (lo &^ (m << o)) | (v << o)
	a[i] = toLEUint64(lo)

	if o+w > 64 {
		rem := o + w - 64
		hm := uint64(1)<<rem - 1
		hi := toLEUint64(a[i+1])
		hi = (hi &^ hm) | (v >> (64 - o))
		a[i+1] = toLEUint64(hi)
	}
}

// bitCopy copies n bits from the start of 'src' into 'dst' at bit
// position 'off'. Used to stitch per-bucket assignments into the global
// output array.
func bitCopy(dst []uint64, off uint64, src []uint64, n uint64) {
	var i uint64
	for i = 0; i+64 <= n; i += 64 {
		bitSet(dst, off+i, 64, bitGet(src, i, 64))
	}
	if i < n {
		bitSet(dst, off+i, n-i, bitGet(src, i, n-i))
	}
}

// words64 returns the number of words needed to hold n bits, plus one
// word of padding so two-word reads never run off the end.
func words64(n uint64) uint64 {
	return (n+63)/64 + 1
}
