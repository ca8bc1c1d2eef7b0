// dbwriter.go -- Constant DB built on top of the bucketed MPH
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
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
)

// The on-disk DB has the following general structure:
//   - 64 byte file header: big-endian encoding of all multibyte ints
//      * magic    [4]byte
//      * flags    uint32 (indicates if DB is keys-only or keys+vals)
//      * salt     [16]byte random salt for siphash record integrity
//      * nkeys    uint64  Number of keys in the DB
//      * offtbl   uint64  File offset of the lookup tables (page-aligned)
//
//   - Contiguous series of records; each record is a key/value pair:
//      * cksum    uint64  Siphash checksum of value, offset (big endian)
//      * val      []byte  value bytes
//
//   - Possibly a gap until the next page boundary (os.Getpagesize())
//   - The offset table is one of two things (exclusive-or):
//      * key fingerprints only ([]uint64)
//      * fingerprint ([]uint64), offset ([]uint64), valuelen ([]uint32)
//     Keys are arbitrary byte strings, so the table stores their xxhash
//     fingerprint rather than the key itself; a lookup compares
//     fingerprints to reject absent keys. The table is memory mapped
//     and all entries are little-endian encoded.
//   - Marshaled MPH image
//   - 32 bytes of strong checksum (SHA512_256); this checksum is done over
//     the file header, offset-table and marshaled MPH.

const (
	// Flags
	_DB_KeysOnly = 1 << iota

	_Magic_DB = "CSFD"
)

// writer state
type wstate int

const (
	_Aborted wstate = -1
	_Open    wstate = 0
	_Frozen  wstate = 1
)

// DBWriter represents an abstraction to construct a read-only,
// constant key-value database. Keys and values are arbitrary byte
// sequences ([]byte). The values are stored sequentially in the DB
// along with a checksum protecting the integrity of the data via
// siphash-2-4. We don't want one strong checksum over the entire file -
// because it would mean reading a potentially large file fully in
// NewDBReader(). By using checksums separately per record, we increase
// the overhead a bit - but speed up DBReader initialization: records
// are verified opportunistically as they are read.
//
// The DB meta-data and MPH image are protected by a strong checksum
// (SHA512-256).
type DBWriter struct {
	fd *os.File
	bb *MPHBuilder

	// key -> record; also detects duplicates
	keymap map[string]*dbvalue

	// siphash key: just binary encoded salt
	salt []byte

	// running count of current offset within fd where we are writing
	// records
	off uint64

	valSize uint64

	fntmp string // tmp file name
	fn    string // final file holding the DB
	state wstate
}

// things associated with each key/value pair
type dbvalue struct {
	off  uint64
	vlen uint32
}

// NewDBWriter prepares file 'fn' to hold a constant DB built using the
// bucketed minimal perfect hash function. Once written, the DB is
// "frozen" and readers will open it using NewDBReader() to do constant
// time lookups of key to value.
func NewDBWriter(fn string, opt *Options) (*DBWriter, error) {
	bb, err := NewMPHBuilder(opt)
	if err != nil {
		return nil, err
	}

	tmp := fmt.Sprintf("%s.tmp.%d", fn, rand32())
	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	w := &DBWriter{
		fd:     fd,
		bb:     bb,
		keymap: make(map[string]*dbvalue),
		salt:   randbytes(16),
		off:    64, // starting offset past the header
		fn:     fn,
		fntmp:  tmp,
	}

	// Leave some space for a header; we will fill this in when we
	// are done Freezing.
	var z [64]byte
	if _, err := writeAll(fd, z[:]); err != nil {
		return nil, err
	}

	return w, nil
}

// Len returns the total number of distinct keys in the DB
func (w *DBWriter) Len() int {
	return len(w.keymap)
}

// Filename returns the name of the underlying db
func (w *DBWriter) Filename() string {
	return w.fn
}

// AddKeyVals adds a series of key-value matched pairs to the db. If they are of
// unequal length, only the smaller of the lengths are used. Records with duplicate
// keys are discarded.
// Returns number of records added.
func (w *DBWriter) AddKeyVals(keys [][]byte, vals [][]byte) (int, error) {
	if w.state != _Open {
		return 0, ErrFrozen
	}

	n := len(keys)
	if len(vals) < n {
		n = len(vals)
	}

	var z int
	for i := 0; i < n; i++ {
		if ok, err := w.addRecord(keys[i], vals[i]); err == ErrExists {
			continue
		} else if err != nil {
			return z, err
		} else if ok {
			z++
		}
	}

	return z, nil
}

// Add adds a single key,value pair.
func (w *DBWriter) Add(key []byte, val []byte) error {
	if w.state != _Open {
		return ErrFrozen
	}

	if _, err := w.addRecord(key, val); err != nil {
		return err
	}
	return nil
}

// Abort a construction
func (w *DBWriter) Abort() error {
	if w.state != _Open {
		return ErrFrozen
	}

	return w.abort()
}

func (w *DBWriter) abort() error {
	if err := os.Remove(w.fd.Name()); err != nil {
		return err
	}

	if err := w.fd.Close(); err != nil {
		return err
	}
	w.state = _Aborted
	return nil
}

// Freeze builds the minimal perfect hash, writes the DB and closes it.
func (w *DBWriter) Freeze(ctx context.Context) (err error) {
	defer func(e *error) {
		// undo the tmpfile
		if *e != nil {
			w.abort()
		}
	}(&err)

	if w.state != _Open {
		return ErrFrozen
	}

	var mp Func

	mp, err = w.bb.Freeze(ctx)
	if err != nil {
		return err
	}

	// calculate strong checksum for all data from this point on.
	h := sha512.New512_256()

	tee := io.MultiWriter(w.fd, h)

	// We align the offset table to pagesize - so we can mmap it when we read it back.
	pgsz := uint64(os.Getpagesize())
	pgsz_m1 := pgsz - 1
	offtbl := w.off + pgsz_m1
	offtbl &= ^pgsz_m1

	if offtbl > w.off {
		zeroes := make([]byte, offtbl-w.off)
		if _, err = writeAll(w.fd, zeroes); err != nil {
			return err
		}
		w.off = offtbl
	}

	// Now offset is at a page boundary.

	var ehdr [64]byte

	// header is encoded in big-endian format
	// 4 byte magic
	// 4 byte flags
	// 16 byte salt
	// 8 byte nkeys
	// 8 byte offtbl
	be := binary.BigEndian
	copy(ehdr[:4], _Magic_DB)

	i := 4
	if w.valSize == 0 {
		be.PutUint32(ehdr[i:i+4], uint32(_DB_KeysOnly))
	}
	i += 4

	i += copy(ehdr[i:], w.salt)
	be.PutUint64(ehdr[i:i+8], uint64(mp.Len()))
	i += 8
	be.PutUint64(ehdr[i:i+8], offtbl)

	// add header to checksum
	h.Write(ehdr[:])

	// write to file and checksum together
	if err = w.marshalOffsets(tee, mp); err != nil {
		return err
	}

	// the offset table is a multiple of 64 bits, so the MPH image
	// starts 64-bit aligned. Encode it and write to disk.
	var nw int
	nw, err = mp.MarshalBinary(tee)
	if err != nil {
		return err
	}
	w.off += uint64(nw)

	// Trailer is the checksum of everything
	cksum := h.Sum(nil)
	if _, err = writeAll(w.fd, cksum[:]); err != nil {
		return err
	}

	// Finally, write the header at start of file
	w.fd.Seek(0, 0)
	if _, err = writeAll(w.fd, ehdr[:]); err != nil {
		return err
	}

	if err = w.fd.Sync(); err != nil {
		return err
	}

	if err = w.fd.Close(); err != nil {
		return err
	}

	if err = os.Rename(w.fntmp, w.fn); err != nil {
		return err
	}
	w.state = _Frozen
	return nil
}

// write the fingerprint table, offset table and value-len table
func (w *DBWriter) marshalOffsets(tee io.Writer, mp Func) error {
	n := uint64(mp.Len())
	fp := make([]uint64, n)

	if w.valSize == 0 {
		for k := range w.keymap {
			i := mp.Lookup([]byte(k))
			if i >= n {
				return fmt.Errorf("dbwriter: panic: key %x mapped out of range", k)
			}
			fp[i] = toLEUint64(xxhash.Sum64String(k))
		}

		if _, err := writeAll(tee, u64sToByteSlice(fp)); err != nil {
			return err
		}
		w.off += n * 8
		return nil
	}

	offset := make([]uint64, n)
	vlen := make([]uint32, n)

	for k, r := range w.keymap {
		i := mp.Lookup([]byte(k))
		if i >= n {
			return fmt.Errorf("dbwriter: panic: key %x mapped out of range", k)
		}

		fp[i] = toLEUint64(xxhash.Sum64String(k))
		offset[i] = toLEUint64(r.off)
		vlen[i] = toLEUint32(r.vlen)
	}

	if _, err := writeAll(tee, u64sToByteSlice(fp)); err != nil {
		return err
	}
	if _, err := writeAll(tee, u64sToByteSlice(offset)); err != nil {
		return err
	}
	if _, err := writeAll(tee, u32sToByteSlice(vlen)); err != nil {
		return err
	}

	// keep the region a multiple of 8 bytes so the MPH image stays
	// 64-bit aligned
	w.off += n * (8 + 8 + 4)
	if (n*4)%8 != 0 {
		var pad [4]byte
		if _, err := writeAll(tee, pad[:]); err != nil {
			return err
		}
		w.off += 4
	}
	return nil
}

// compute checksums and add a record to the file at the current offset.
func (w *DBWriter) addRecord(key []byte, val []byte) (bool, error) {
	if uint64(len(val)) > uint64(1<<32)-1 {
		return false, ErrValueTooLarge
	}

	if _, ok := w.keymap[string(key)]; ok {
		return false, ErrExists
	}

	// first add to the underlying MPH constructor
	if err := w.bb.Add(key); err != nil {
		return false, err
	}

	v := &dbvalue{
		off:  w.off,
		vlen: uint32(len(val)),
	}
	w.keymap[string(key)] = v

	// Don't write values if we don't need to
	if len(val) > 0 {
		if err := w.writeRecord(val, v.off); err != nil {
			return false, err
		}

		w.valSize += uint64(len(val))
	}

	return true, nil
}

// writeRecord writes a record and checksum at the offset, updates the
// offset in the offset table
func (w *DBWriter) writeRecord(val []byte, off uint64) error {
	var o [8]byte
	var c [8]byte

	be := binary.BigEndian
	be.PutUint64(o[:], off)

	h := siphash.New(w.salt)
	h.Write(o[:])
	h.Write(val)
	be.PutUint64(c[:], h.Sum64())

	// Checksum at the start of record
	if _, err := writeAll(w.fd, c[:]); err != nil {
		return err
	}

	if _, err := writeAll(w.fd, val); err != nil {
		return err
	}

	w.off += uint64(len(val)) + 8
	return nil
}
