// marshal_test.go -- dump/load round trips for the image format
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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencoff/go-fasthash"
)

// Scenario E: dump the tiny MPH to a byte buffer, reload, and compare
// every lookup against the original.
func TestMarshalMPH(t *testing.T) {
	assert := newAsserter(t)

	keys := strKeys([]string{"a", "b", "c", "d", "e"})
	mp := makeMPH(t, keys, &Options{GlobalSeed: 1})

	var buf bytes.Buffer
	_, err := mp.MarshalBinary(&buf)
	assert(err == nil, "marshal: %s", err)

	mp2, err := Load(bytes.NewReader(buf.Bytes()))
	assert(err == nil, "load: %s", err)
	assert(mp2.Len() == mp.Len(), "len mismatch: %d vs %d", mp.Len(), mp2.Len())

	for _, k := range keys {
		assert(mp.Lookup(k) == mp2.Lookup(k), "key %s: %d vs %d", k, mp.Lookup(k), mp2.Lookup(k))
	}
}

func TestMarshalSF(t *testing.T) {
	assert := newAsserter(t)

	keys := strKeys(keyw)
	vals := make([]uint64, len(keys))
	for i, k := range keys {
		vals[i] = fasthash.Hash64(7, k) & 0xfff
	}

	sf := makeSF(t, 12, keys, vals, &Options{GlobalSeed: 3})

	var buf bytes.Buffer
	err := Dump(sf, &buf)
	assert(err == nil, "dump: %s", err)

	sf2, err := Load(bytes.NewReader(buf.Bytes()))
	assert(err == nil, "load: %s", err)

	for i, k := range keys {
		got := sf2.Lookup(k)
		assert(got == vals[i], "key %s: exp %#x, saw %#x", k, vals[i], got)
	}
	assert(sf.SizeInBits() == sf2.SizeInBits(), "size mismatch")
}

func TestMarshalCSF(t *testing.T) {
	assert := newAsserter(t)

	const n = 500
	keys := make([][]byte, n)
	vals := make([]uint64, n)
	for i := range keys {
		keys[i] = u64key(uint64(i) * 104729)
		vals[i] = uint64(i % 7)
	}

	cf := makeCSF(t, keys, vals, &Options{GlobalSeed: 6})

	var buf bytes.Buffer
	_, err := cf.MarshalBinary(&buf)
	assert(err == nil, "marshal: %s", err)

	cf2, err := Load(bytes.NewReader(buf.Bytes()))
	assert(err == nil, "load: %s", err)

	for i, k := range keys {
		got := cf2.Lookup(k)
		assert(got == vals[i], "key %d: exp %d, saw %d", i, vals[i], got)
	}
}

func TestLoadFileMapped(t *testing.T) {
	assert := newAsserter(t)

	keys := strKeys(keyw)
	vals := make([]uint64, len(keys))
	for i, k := range keys {
		vals[i] = fasthash.Hash64(13, k) & 0xff
	}

	sf := makeSF(t, 8, keys, vals, &Options{GlobalSeed: 19})

	fn := filepath.Join(t.TempDir(), "sf8.img")
	fd, err := os.Create(fn)
	assert(err == nil, "create: %s", err)
	_, err = sf.MarshalBinary(fd)
	assert(err == nil, "marshal: %s", err)
	assert(fd.Close() == nil, "close failed")

	mf, err := LoadFile(fn)
	assert(err == nil, "loadfile: %s", err)

	for i, k := range keys {
		got := mf.Lookup(k)
		assert(got == vals[i], "key %s: exp %d, saw %d", k, vals[i], got)
	}

	assert(mf.Close() == nil, "close: %s", err)
}

func TestLoadErrors(t *testing.T) {
	assert := newAsserter(t)

	_, err := UnmarshalFunc([]byte("short"))
	assert(errors.Is(err, ErrTooSmall), "short buffer: %v", err)

	bad := make([]byte, 64)
	copy(bad, "NOTMAGIC")
	_, err = UnmarshalFunc(bad)
	assert(errors.Is(err, ErrBadFormat), "bad magic: %v", err)

	// valid image, truncated mid-array
	keys := strKeys(keyw)
	mp := makeMPH(t, keys, &Options{GlobalSeed: 1})

	var buf bytes.Buffer
	_, err = mp.MarshalBinary(&buf)
	assert(err == nil, "marshal: %s", err)

	img := buf.Bytes()
	_, err = UnmarshalFunc(img[:len(img)/2])
	assert(err != nil, "truncated image loaded")
}
