// errwriter.go -- io.Writer that handles errors gracefully
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
	"io"
)

type errWriter struct {
	w   io.Writer
	err error
}

func newErrWriter(w io.Writer) *errWriter {
	e := &errWriter{
		w: w,
	}
	return e
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	n, err := e.w.Write(b)
	if err != nil {
		e.err = err
		return n, err
	}
	if n != len(b) {
		e.err = shortWrite(n, len(b))
		return n, e.err
	}

	return n, nil
}

// writeU64 writes a single little-endian uint64.
func (e *errWriter) writeU64(v uint64) int {
	var x [8]byte

	binary.LittleEndian.PutUint64(x[:], v)
	n, _ := e.Write(x[:])
	return n
}

// writeU32 writes a single little-endian uint32.
func (e *errWriter) writeU32(v uint32) int {
	var x [4]byte

	binary.LittleEndian.PutUint32(x[:], v)
	n, _ := e.Write(x[:])
	return n
}

func (e *errWriter) Error() error {
	return e.err
}
