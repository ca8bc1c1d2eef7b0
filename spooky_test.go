// spooky_test.go -- test suite for the hasher
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

func TestSpookyDeterminism(t *testing.T) {
	assert := newAsserter(t)

	for _, s := range keyw {
		a := spookyShort([]byte(s), 0xdeadbeef)
		b := spookyShort([]byte(s), 0xdeadbeef)
		assert(a == b, "%s: hash not deterministic", s)

		c := spookyShort([]byte(s), 0xdeadbef0)
		assert(a != c, "%s: seed has no effect", s)
	}
}

func TestSpookyLengths(t *testing.T) {
	assert := newAsserter(t)

	// every length 0..68 must hash distinctly; exercises all the
	// remainder branches and the 16- and 32-byte block paths
	buf := make([]byte, 68)
	for i := range buf {
		buf[i] = byte(i * 7)
	}

	seen := make(map[sigma]int)
	for n := 0; n <= len(buf); n++ {
		h := spookyShort(buf[:n], 42)
		if o, ok := seen[h]; ok {
			t.Fatalf("len %d and %d collide", o, n)
		}
		seen[h] = n
	}

	// a one-bit flip must change the signature
	h0 := spookyShort(buf, 42)
	buf[33] ^= 1
	h1 := spookyShort(buf, 42)
	assert(h0 != h1, "bit flip did not change the signature")
}

func TestSpookyRehash(t *testing.T) {
	assert := newAsserter(t)

	sig := spookyShort([]byte("a signature"), 7)

	a0, a1, a2, a3 := spookyRehash(sig, 1)
	b0, b1, b2, b3 := spookyRehash(sig, 1)
	assert(a0 == b0 && a1 == b1 && a2 == b2 && a3 == b3, "rehash not deterministic")

	c0, c1, c2, c3 := spookyRehash(sig, 2)
	assert(a0 != c0 || a1 != c1 || a2 != c2 || a3 != c3, "rehash ignores seed")
}
