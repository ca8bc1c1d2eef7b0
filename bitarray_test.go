// bitarray_test.go -- test suite for bit field access
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
	"testing"
)

func TestBitArrayRoundTrip(t *testing.T) {
	assert := newAsserter(t)

	rng := &testRng{s: 0x1234_5678_9abc_def1}
	a := make([]uint64, 64)

	for iter := 0; iter < 5000; iter++ {
		w := 1 + rng.next()%64
		p := rng.next() % (64*uint64(len(a)-1) - w)
		v := rng.next()

		bitSet(a, p, w, v)

		want := v
		if w < 64 {
			want &= 1<<w - 1
		}
		got := bitGet(a, p, w)
		assert(got == want, "iter %d: p %d w %d: exp %#x, saw %#x", iter, p, w, want, got)
	}
}

func TestBitArrayNeighbors(t *testing.T) {
	assert := newAsserter(t)

	a := make([]uint64, 8)

	// adjacent fields must not clobber each other
	const w = 13
	n := uint64(len(a)-1) * 64 / w
	for i := uint64(0); i < n; i++ {
		bitSet(a, i*w, w, i*2654435761)
	}
	for i := uint64(0); i < n; i++ {
		want := (i * 2654435761) & (1<<w - 1)
		got := bitGet(a, i*w, w)
		assert(got == want, "field %d: exp %#x, saw %#x", i, want, got)
	}
}

func TestBitArrayByteView(t *testing.T) {
	assert := newAsserter(t)

	// the 8-bit fast path: byte i of the cast view must equal the
	// w=8 field at bit position 8*i
	a := make([]uint64, 4)
	rng := &testRng{s: 99}
	for i := uint64(0); i < 24; i++ {
		bitSet(a, i*8, 8, rng.next())
	}

	bs := u64sToByteSlice(a)
	for i := uint64(0); i < 24; i++ {
		assert(uint64(bs[i]) == bitGet(a, i*8, 8),
			"byte %d: view %#x != field %#x", i, bs[i], bitGet(a, i*8, 8))
	}
}

func TestBitCopy(t *testing.T) {
	assert := newAsserter(t)

	rng := &testRng{s: 7}
	src := make([]uint64, 8)
	for i := range src {
		src[i] = rng.next()
	}

	for _, n := range []uint64{1, 7, 63, 64, 65, 129, 448} {
		for _, off := range []uint64{0, 1, 63, 64, 100} {
			dst := make([]uint64, 16)
			bitCopy(dst, off, src, n)
			for i := uint64(0); i < n; i++ {
				assert(bitGet(dst, off+i, 1) == bitGet(src, i, 1),
					"n %d off %d: bit %d differs", n, off, i)
			}
		}
	}
}
