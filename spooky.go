// spooky.go - SpookyHash V2 short variant and the short-mix rehash
//
// Derived from Bob Jenkins' public domain reference implementation.
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
	"encoding/binary"
	"math/bits"
)

// Mixing constant; every word of the initial state that is not seeded
// starts out as this value.
const _SC = uint64(0x9e3779b97f4a7c13)

// sigma is a 256-bit key signature. It is the only fact about a key
// the rest of the pipeline ever sees.
type sigma [4]uint64

// spookyShort hashes 'key' under 'seed' and returns the full 256-bit
// final state of SpookyHash-short. Byte-exact across builder and
// lookup; multi-byte loads are little-endian regardless of host.
func spookyShort(key []byte, seed uint64) sigma {
	length := len(key)
	remainder := length & 31

	a := seed
	b := seed
	c := _SC
	d := _SC

	p := key
	if length > 15 {
		// handle all complete sets of 32 bytes
		for len(p) >= 32 {
			c += binary.LittleEndian.Uint64(p[0:8])
			d += binary.LittleEndian.Uint64(p[8:16])
			a, b, c, d = shortMix(a, b, c, d)
			a += binary.LittleEndian.Uint64(p[16:24])
			b += binary.LittleEndian.Uint64(p[24:32])
			p = p[32:]
		}

		// handle the case of 16+ remaining bytes
		if remainder >= 16 {
			c += binary.LittleEndian.Uint64(p[0:8])
			d += binary.LittleEndian.Uint64(p[8:16])
			a, b, c, d = shortMix(a, b, c, d)
			p = p[16:]
			remainder -= 16
		}
	}

	// last 0..15 bytes; stuffed into c and d along with the length
	d += uint64(length) << 56
	switch remainder {
	case 15:
		d += uint64(p[14]) << 48
		fallthrough
	case 14:
		d += uint64(p[13]) << 40
		fallthrough
	case 13:
		d += uint64(p[12]) << 32
		fallthrough
	case 12:
		d += uint64(binary.LittleEndian.Uint32(p[8:12]))
		c += binary.LittleEndian.Uint64(p[0:8])

	case 11:
		d += uint64(p[10]) << 16
		fallthrough
	case 10:
		d += uint64(p[9]) << 8
		fallthrough
	case 9:
		d += uint64(p[8])
		fallthrough
	case 8:
		c += binary.LittleEndian.Uint64(p[0:8])

	case 7:
		c += uint64(p[6]) << 48
		fallthrough
	case 6:
		c += uint64(p[5]) << 40
		fallthrough
	case 5:
		c += uint64(p[4]) << 32
		fallthrough
	case 4:
		c += uint64(binary.LittleEndian.Uint32(p[0:4]))

	case 3:
		c += uint64(p[2]) << 16
		fallthrough
	case 2:
		c += uint64(p[1]) << 8
		fallthrough
	case 1:
		c += uint64(p[0])

	case 0:
		c += _SC
		d += _SC
	}

	a, b, c, d = shortEnd(a, b, c, d)
	return sigma{a, b, c, d}
}

// spookyRehash derives a fresh 4-tuple from a stored signature and a
// bucket-local seed. The builder and the lookup path must agree on this
// bit-for-bit: the seed goes in word 0 and the first three signature
// words (offset by the mixing constant) fill the rest of the state.
func spookyRehash(sig sigma, seed uint64) (uint64, uint64, uint64, uint64) {
	return shortMix(seed, _SC+sig[0], _SC+sig[1], _SC+sig[2])
}

// shortMix is the 12-round rotate-add-xor compression of
// SpookyHash-short.
func shortMix(a, b, c, d uint64) (uint64, uint64, uint64, uint64) {
	c = bits.RotateLeft64(c, 50)
	c += d
	a ^= c
	d = bits.RotateLeft64(d, 52)
	d += a
	b ^= d
	a = bits.RotateLeft64(a, 30)
	a += b
	c ^= a
	b = bits.RotateLeft64(b, 41)
	b += c
	d ^= b
	c = bits.RotateLeft64(c, 54)
	c += d
	a ^= c
	d = bits.RotateLeft64(d, 48)
	d += a
	b ^= d
	a = bits.RotateLeft64(a, 38)
	a += b
	c ^= a
	b = bits.RotateLeft64(b, 37)
	b += c
	d ^= b
	c = bits.RotateLeft64(c, 62)
	c += d
	a ^= c
	d = bits.RotateLeft64(d, 34)
	d += a
	b ^= d
	a = bits.RotateLeft64(a, 5)
	a += b
	c ^= a
	b = bits.RotateLeft64(b, 36)
	b += c
	d ^= b
	return a, b, c, d
}

// shortEnd is the finalization schedule of SpookyHash-short.
func shortEnd(a, b, c, d uint64) (uint64, uint64, uint64, uint64) {
	d ^= c
	c = bits.RotateLeft64(c, 15)
	d += c
	a ^= d
	d = bits.RotateLeft64(d, 52)
	a += d
	b ^= a
	a = bits.RotateLeft64(a, 26)
	b += a
	c ^= b
	b = bits.RotateLeft64(b, 51)
	c += b
	d ^= c
	c = bits.RotateLeft64(c, 28)
	d += c
	a ^= d
	d = bits.RotateLeft64(d, 9)
	a += d
	b ^= a
	a = bits.RotateLeft64(a, 47)
	b += a
	c ^= b
	b = bits.RotateLeft64(b, 54)
	c += b
	d ^= c
	c = bits.RotateLeft64(c, 32)
	d += c
	a ^= d
	d = bits.RotateLeft64(d, 25)
	a += d
	b ^= a
	a = bits.RotateLeft64(a, 63)
	b += a
	return a, b, c, d
}
