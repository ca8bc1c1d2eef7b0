// codec_test.go -- test suite for the prefix codec
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

// decodeWindow builds the MSB-aligned w-bit window for a codeword with
// arbitrary junk in the don't-care bits, as lookups would see it.
func decodeWindow(cw codeword, w int, junk uint64) uint64 {
	x := cw.code << uint(w-int(cw.len))
	if int(cw.len) < w {
		x |= junk & (1<<uint(w-int(cw.len)) - 1)
	}
	return x
}

func TestCodecRoundTrip(t *testing.T) {
	assert := newAsserter(t)

	// skewed distribution, all codeable within the default limit
	var vals []uint64
	for v := uint64(0); v < 16; v++ {
		for i := uint64(0); i < 1<<(16-v); i++ {
			vals = append(vals, v)
		}
	}

	c, err := buildCodec(vals, 0)
	assert(err == nil, "codec: %s", err)
	assert(c.escW == 0, "unexpected escapes (escW %d)", c.escW)

	rng := &testRng{s: 5}
	for v := uint64(0); v < 16; v++ {
		cw, esc := c.encode(v)
		assert(!esc, "value %d escaped", v)
		assert(int(cw.len) <= c.w, "value %d: len %d > w %d", v, cw.len, c.w)

		for j := 0; j < 8; j++ {
			x := decodeWindow(cw, c.w, rng.next())
			got := c.dec.decode(x)
			assert(got == v, "value %d: decoded %d (x %#x)", v, got, x)
		}
	}
}

func TestCodecPrefixFree(t *testing.T) {
	assert := newAsserter(t)

	var vals []uint64
	for v := uint64(0); v < 40; v++ {
		for i := uint64(0); i <= v*v; i++ {
			vals = append(vals, v)
		}
	}

	c, err := buildCodec(vals, 0)
	assert(err == nil, "codec: %s", err)

	type cl struct {
		code uint64
		len  uint8
	}
	var all []cl
	for v := uint64(0); v < 40; v++ {
		cw, esc := c.encode(v)
		assert(!esc, "value %d escaped", v)
		all = append(all, cl{cw.code, cw.len})
	}

	for i := range all {
		for j := range all {
			if i == j {
				continue
			}
			a, b := all[i], all[j]
			if a.len > b.len {
				a, b = b, a
			}
			assert(a.code != b.code>>(b.len-a.len) || a.len == b.len,
				"codeword %d is a prefix of %d", i, j)
		}
	}
}

func TestCodecEscapes(t *testing.T) {
	assert := newAsserter(t)

	// geometric distribution capped at 63 with a tight length limit:
	// the tail must escape
	var vals []uint64
	for v := uint64(0); v <= 63; v++ {
		cnt := uint64(1)
		if v < 18 {
			cnt = 1 << (18 - v)
		}
		for i := uint64(0); i < cnt; i++ {
			vals = append(vals, v)
		}
	}

	c, err := buildCodec(vals, 6)
	assert(err == nil, "codec: %s", err)
	assert(c.w <= 6, "w %d over the limit", c.w)
	assert(c.escW > 0, "expected escapes")
	assert(int(c.esc.len) == c.w, "escape len %d != w %d", c.esc.len, c.w)

	// the escape codeword must be the first of its block: every
	// other codeword of the same length sorts after it
	for v := uint64(0); v <= 63; v++ {
		cw, esc := c.encode(v)
		if esc || int(cw.len) != c.w {
			continue
		}
		assert(cw.code > c.esc.code, "codeword %#x does not sort after escape %#x", cw.code, c.esc.code)
	}

	// escape windows decode to the sentinel
	x := c.esc.code << uint(c.w-int(c.esc.len))
	assert(c.dec.decode(x) == escapeSym, "escape window decoded to %#x", c.dec.decode(x))

	// frequent values still decode fine
	rng := &testRng{s: 77}
	for v := uint64(0); v < 4; v++ {
		cw, esc := c.encode(v)
		assert(!esc, "frequent value %d escaped", v)
		got := c.dec.decode(decodeWindow(cw, c.w, rng.next()))
		assert(got == v, "value %d decoded as %d", v, got)
	}
}

func TestCodecSingleSymbol(t *testing.T) {
	assert := newAsserter(t)

	c, err := buildCodec([]uint64{9, 9, 9, 9}, 0)
	assert(err == nil, "codec: %s", err)

	cw, esc := c.encode(9)
	assert(!esc, "single symbol escaped")
	assert(cw.len == 1, "single symbol len %d", cw.len)
	assert(c.dec.decode(decodeWindow(cw, c.w, ^uint64(0))) == 9, "single symbol decode")
}

func TestCodecReservedValue(t *testing.T) {
	assert := newAsserter(t)

	_, err := buildCodec([]uint64{1, ^uint64(0)}, 0)
	assert(err == ErrValueReserved, "expected ErrValueReserved, got %v", err)
}
