// rank2_test.go -- test suite for 2-bit slot counting
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

func TestRank2Consistency(t *testing.T) {
	assert := newAsserter(t)

	const nslots = 300
	a := make([]uint64, words64(2*nslots))
	rng := &testRng{s: 0xfeed}

	for i := uint64(0); i < nslots; i++ {
		slot2Set(a, i, rng.next()%4)
	}

	// rank(0, i+1) - rank(0, i) == (slot != 0)
	for i := uint64(0); i < nslots; i++ {
		d := countNonzeroPairs(a, 0, i+1) - countNonzeroPairs(a, 0, i)
		var want uint64
		if slot2Get(a, i) != 0 {
			want = 1
		}
		assert(d == want, "slot %d (%d): delta %d, want %d", i, slot2Get(a, i), d, want)
	}

	// arbitrary sub-ranges against a naive count
	for iter := 0; iter < 200; iter++ {
		x := rng.next() % nslots
		y := rng.next() % nslots
		if x > y {
			x, y = y, x
		}

		var naive uint64
		for i := x; i < y; i++ {
			if slot2Get(a, i) != 0 {
				naive++
			}
		}
		got := countNonzeroPairs(a, x, y)
		assert(got == naive, "[%d,%d): exp %d, saw %d", x, y, naive, got)
	}
}

func TestRank2SlotOps(t *testing.T) {
	assert := newAsserter(t)

	a := make([]uint64, words64(2*100))
	for i := uint64(0); i < 100; i++ {
		slot2Set(a, i, i%4)
	}
	for i := uint64(0); i < 100; i++ {
		assert(slot2Get(a, i) == i%4, "slot %d: exp %d, saw %d", i, i%4, slot2Get(a, i))
	}
}
