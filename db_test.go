// db_test.go -- test suite for the constant DB
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
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func TestDBKeyVals(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "kv.db")
	wr, err := NewDBWriter(fn, &Options{GlobalSeed: 7})
	assert(err == nil, "writer: %s", err)

	kvmap := make(map[string]string)
	for i, w := range keyw {
		v := fmt.Sprintf("%s-%d", w, i)
		kvmap[w] = v
		err = wr.Add([]byte(w), []byte(v))
		assert(err == nil, "can't add %s: %s", w, err)
	}
	assert(wr.Len() == len(keyw), "len: exp %d, saw %d", len(keyw), wr.Len())

	// duplicate must be rejected
	err = wr.Add([]byte(keyw[0]), []byte("dup"))
	assert(err == ErrExists, "dup add: %v", err)

	err = wr.Freeze(context.Background())
	assert(err == nil, "freeze failed: %s", err)

	rd, err := NewDBReader(fn, 10)
	assert(err == nil, "read failed: %s", err)

	for k, v := range kvmap {
		s, err := rd.Find([]byte(k))
		assert(err == nil, "can't find key %s: %s", k, err)
		assert(string(s) == v, "key %s: value mismatch; exp '%s', saw '%s'", k, v, string(s))

		// again - from the cache
		s, err = rd.Find([]byte(k))
		assert(err == nil, "cached find %s: %s", k, err)
		assert(string(s) == v, "key %s: cached value mismatch", k)
	}

	// now look for keys not in the DB
	for i := 0; i < 10; i++ {
		k := u64key(rand64())
		v, err := rd.Find(k)
		assert(err != nil, "whoa: found absent key %x => %s", k, string(v))
	}

	// iterate all records
	seen := 0
	err = rd.IterFunc(func(fp uint64, v []byte) error {
		seen++
		return nil
	})
	assert(err == nil, "iter: %s", err)
	assert(seen == len(keyw), "iter: exp %d records, saw %d", len(keyw), seen)

	rd.Close()
}

func TestDBKeysOnly(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "keys.db")
	wr, err := NewDBWriter(fn, &Options{GlobalSeed: 13})
	assert(err == nil, "writer: %s", err)

	for _, w := range keyw {
		err = wr.Add([]byte(w), nil)
		assert(err == nil, "can't add %s: %s", w, err)
	}

	err = wr.Freeze(context.Background())
	assert(err == nil, "freeze failed: %s", err)

	rd, err := NewDBReader(fn, 10)
	assert(err == nil, "read failed: %s", err)

	for _, w := range keyw {
		s, err := rd.Find([]byte(w))
		assert(err == nil, "can't find key %s: %s", w, err)
		assert(s == nil, "key %s: value mismatch; exp nil, saw '%s'", w, string(s))
	}

	for i := 0; i < 10; i++ {
		k := u64key(rand64())
		_, err := rd.Find(k)
		assert(err != nil, "found absent key %x", k)
	}

	rd.Close()
}

func TestDBAbort(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "abort.db")
	wr, err := NewDBWriter(fn, nil)
	assert(err == nil, "writer: %s", err)

	wr.Add([]byte("k"), []byte("v"))
	assert(wr.Abort() == nil, "abort failed")

	err = wr.Add([]byte("x"), nil)
	assert(err == ErrFrozen, "add after abort: %v", err)
}
