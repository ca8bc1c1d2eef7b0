// dbreader.go -- query interface for the constant DB
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
	"fmt"
	"io"
	"os"
	"strings"

	"crypto/sha512"
	"crypto/subtle"

	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/opencoff/go-mmap"
)

// DBReader represents the query interface for a previously constructed
// constant database (built using NewDBWriter()). The only meaningful
// operation on such a database is Lookup().
type DBReader struct {
	mph Func

	cache *arc.ARCCache[string, []byte]

	flags uint32

	// memory mapped tables
	fp     []uint64 // key fingerprints
	offset []uint64
	vlen   []uint32

	nkeys  uint64
	salt   []byte
	offtbl uint64

	// original mmap
	mm *mmap.Mapping
	fd *os.File
	fn string
}

// NewDBReader reads a previously constructed database in file 'fn'
// and prepares it for querying. Value records are opportunistically
// cached after reading from disk. We retain upto 'cache' number
// of records in memory (default 128).
func NewDBReader(fn string, cache int) (rd *DBReader, err error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	// Number of records to cache
	if cache <= 0 {
		cache = 128
	}

	rd = &DBReader{
		salt: make([]byte, 16),
		fd:   fd,
		fn:   fn,
	}

	var st os.FileInfo

	st, err = fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: can't stat: %w", fn, err)
	}

	if st.Size() < (64 + 32) {
		return nil, fmt.Errorf("%s: file too small or corrupted", fn)
	}

	var hdrb [64]byte

	_, err = io.ReadFull(fd, hdrb[:])
	if err != nil {
		return nil, fmt.Errorf("%s: can't read header: %w", fn, err)
	}

	offtbl, err := rd.decodeHeader(hdrb[:], st.Size())
	if err != nil {
		return nil, err
	}

	err = rd.verifyChecksum(hdrb[:], offtbl, st.Size())
	if err != nil {
		return nil, err
	}

	// fingerprints, offsets, value-lengths
	tblsz := rd.tableSize()

	// All metadata is now verified.
	// sanity check - even though we have verified the strong checksum
	// 64 + 32: 64 bytes of header, 32 bytes of sha trailer
	if uint64(st.Size()) < (64 + 32 + tblsz) {
		return nil, fmt.Errorf("%s: corrupt header1", fn)
	}

	rd.cache, err = arc.NewARC[string, []byte](cache)
	if err != nil {
		return nil, err
	}

	// Now, we are certain that the header, the tables and the MPH
	// image are all valid and uncorrupted.

	// mmap the tables and the MPH image
	mmapsz := st.Size() - int64(offtbl) - 32
	mm := mmap.New(fd)

	mapping, err := mm.Map(mmapsz, int64(offtbl), mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		return nil, fmt.Errorf("%s: can't mmap %d bytes at off %d: %w",
			fn, mmapsz, offtbl, err)
	}

	bs := mapping.Bytes()
	rd.mm = mapping

	n := rd.nkeys
	rd.fp = bsToUint64Slice(bs[:n*8])
	if (rd.flags & _DB_KeysOnly) == 0 {
		rd.offset = bsToUint64Slice(bs[n*8 : n*16])
		rd.vlen = bsToUint32Slice(bs[n*16 : n*20])
	}

	// The MPH image starts here
	mph, err := UnmarshalFunc(bs[tblsz:])
	if err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal MPH index: %w", fn, err)
	}

	rd.mph = mph
	return rd, nil
}

// tableSize returns the byte size of the mapped tables; the MPH image
// begins right after (64-bit aligned).
func (rd *DBReader) tableSize() uint64 {
	n := rd.nkeys
	if (rd.flags & _DB_KeysOnly) > 0 {
		return n * 8
	}
	sz := n * (8 + 8 + 4)
	if (n*4)%8 != 0 {
		sz += 4
	}
	return sz
}

// Len returns the number of keys in the DB.
func (rd *DBReader) Len() int {
	return int(rd.nkeys)
}

// Close closes the db
func (rd *DBReader) Close() {
	rd.mm.Unmap()
	rd.fd.Close()
	rd.cache.Purge()
	rd.salt = nil
	rd.mph = nil
	rd.fd = nil
	rd.fn = ""
}

// Lookup looks up 'key' in the table and returns the corresponding value.
// If the key is not found, value is nil and returns false.
func (rd *DBReader) Lookup(key []byte) ([]byte, bool) {
	v, err := rd.Find(key)
	if err != nil {
		return nil, false
	}

	return v, true
}

// Dump the metadata to io.Writer 'w'
func (rd *DBReader) DumpMeta(w io.Writer) {
	fmt.Fprintf(w, "%s", rd.Desc())

	if (rd.flags & _DB_KeysOnly) > 0 {
		for i := uint64(0); i < rd.nkeys; i++ {
			fmt.Fprintf(w, "  %3d: %#x\n", i, toLEUint64(rd.fp[i]))
		}
	} else {
		for i := uint64(0); i < rd.nkeys; i++ {
			fmt.Fprintf(w, "  %3d: %#x, %d bytes at %#x\n", i,
				toLEUint64(rd.fp[i]), toLEUint32(rd.vlen[i]), toLEUint64(rd.offset[i]))
		}
	}
}

// Desc provides a human description of the DB
func (rd *DBReader) Desc() string {
	var w strings.Builder

	if (rd.flags & _DB_KeysOnly) > 0 {
		fmt.Fprintf(&w, "CSF DB: <KEYS> %d keys, hash-salt %#x, offtbl at %#x\n",
			rd.nkeys, rd.salt, rd.offtbl)
	} else {
		fmt.Fprintf(&w, "CSF DB: <KEYS+VALS> %d keys, hash-salt %#x, offtbl at %#x\n",
			rd.nkeys, rd.salt, rd.offtbl)
	}
	rd.mph.DumpMeta(&w)
	return w.String()
}

// Find looks up 'key' in the table and returns the corresponding value.
// It returns an error if the key is not found or the disk i/o failed or
// the record checksum failed.
func (rd *DBReader) Find(key []byte) ([]byte, error) {
	if v, ok := rd.cache.Get(string(key)); ok {
		return v, nil
	}

	// Not in cache. So, go to disk and find it. The MPH maps absent
	// keys to an arbitrary index; the fingerprint comparison rejects
	// them.
	i := rd.mph.Lookup(key)
	if i >= rd.nkeys {
		return nil, ErrNoKey
	}
	if toLEUint64(rd.fp[i]) != xxhash.Sum64(key) {
		return nil, ErrNoKey
	}

	if (rd.flags & _DB_KeysOnly) > 0 {
		rd.cache.Add(string(key), nil)
		return nil, nil
	}

	vlen := toLEUint32(rd.vlen[i])
	off := toLEUint64(rd.offset[i])
	val, err := rd.decodeRecord(off, vlen)
	if err != nil {
		return nil, err
	}

	rd.cache.Add(string(key), val)
	return val, nil
}

// IterFunc iterates through every record of the DB and calls 'fp' on
// each. If the called function returns non-nil, it stops the iteration
// and the error is propagated to the caller.
func (rd *DBReader) IterFunc(fp func(fingerprint uint64, v []byte) error) error {
	if (rd.flags & _DB_KeysOnly) > 0 {
		for i := uint64(0); i < rd.nkeys; i++ {
			if err := fp(toLEUint64(rd.fp[i]), nil); err != nil {
				return err
			}
		}
		return nil
	}

	for i := uint64(0); i < rd.nkeys; i++ {
		val, err := rd.decodeRecord(toLEUint64(rd.offset[i]), toLEUint32(rd.vlen[i]))
		if err != nil {
			return fmt.Errorf("iter: %d: read-record: %w", i, err)
		}
		if err := fp(toLEUint64(rd.fp[i]), val); err != nil {
			return err
		}
	}
	return nil
}

// read the next full record at offset 'off' - by seeking to that offset.
// calculate the record checksum, validate it and so on.
func (rd *DBReader) decodeRecord(off uint64, vlen uint32) ([]byte, error) {
	if vlen == 0 {
		return nil, nil
	}

	_, err := rd.fd.Seek(int64(off), 0)
	if err != nil {
		return nil, err
	}

	data := make([]byte, vlen+8)

	_, err = io.ReadFull(rd.fd, data)
	if err != nil {
		return nil, err
	}

	be := binary.BigEndian
	csum := be.Uint64(data[:8])

	var o [8]byte

	be.PutUint64(o[:], off)

	h := siphash.New(rd.salt)
	h.Write(o[:])
	h.Write(data[8:])
	exp := h.Sum64()

	if csum != exp {
		return nil, fmt.Errorf("%s: corrupted record at off %d (exp %#x, saw %#x)", rd.fn, off, exp, csum)
	}
	return data[8:], nil
}

// Verify checksum of all metadata: offset table, MPH image and the file
// header. We know that offtbl is within the size bounds of the file -
// see decodeHeader() below. sz is the actual file size (includes the
// header we already read).
func (rd *DBReader) verifyChecksum(hdrb []byte, offtbl uint64, sz int64) error {
	h := sha512.New512_256()
	h.Write(hdrb[:])

	// remsz is the size of the remaining metadata (which begins at
	// offset 'offtbl'): 32 bytes of SHA512_256 at the tail is excluded
	remsz := sz - int64(offtbl) - 32

	rd.fd.Seek(int64(offtbl), 0)

	nw, err := io.CopyN(h, rd.fd, remsz)
	if err != nil {
		return fmt.Errorf("%s: metadata i/o error: %w", rd.fn, err)
	}
	if nw != remsz {
		return fmt.Errorf("%s: partial read while verifying checksum, exp %d, saw %d", rd.fn, remsz, nw)
	}

	var expsum [32]byte

	// Read the trailer -- which is the expected checksum
	rd.fd.Seek(sz-32, 0)
	_, err = io.ReadFull(rd.fd, expsum[:])
	if err != nil {
		return fmt.Errorf("%s: checksum i/o error: %w", rd.fn, err)
	}

	csum := h.Sum(nil)
	if subtle.ConstantTimeCompare(csum[:], expsum[:]) != 1 {
		return fmt.Errorf("%s: checksum failure; exp %#x, saw %#x", rd.fn, expsum[:], csum[:])
	}

	rd.fd.Seek(int64(offtbl), 0)
	return nil
}

// entry condition: b is 64 bytes long.
func (rd *DBReader) decodeHeader(b []byte, sz int64) (uint64, error) {
	if string(b[:4]) != _Magic_DB {
		return 0, fmt.Errorf("%s: bad file magic <%s>", rd.fn, string(b[:4]))
	}

	be := binary.BigEndian
	i := 4

	rd.flags = be.Uint32(b[i : i+4])
	i += 4

	rd.salt = b[i : i+16]
	i += 16
	rd.nkeys = be.Uint64(b[i : i+8])
	i += 8
	rd.offtbl = be.Uint64(b[i : i+8])

	if rd.offtbl < 64 || rd.offtbl >= uint64(sz-32) {
		return 0, fmt.Errorf("%s: corrupt header0", rd.fn)
	}

	return rd.offtbl, nil
}
