// text.go -- read from variety of text files and populate a csf DBWriter
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

package main

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/opencoff/go-csf"
	"github.com/opencoff/go-fasthash"
)

type record struct {
	key []byte
	val []byte
}

// AddTextFile adds contents from text file 'fn' where key and value are separated
// by one of the characters in 'delim'. Duplicates, empty lines and lines starting
// with '#' are skipped; a line with no delimiter is added as a key with an empty
// value. This function just opens the file and calls AddTextStream()
// Returns number of records added.
func AddTextFile(w *csf.DBWriter, fn string, delim string) (uint64, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return 0, err
	}

	if len(delim) == 0 {
		delim = " \t"
	}

	defer fd.Close()

	return AddTextStream(w, fd, delim)
}

// AddTextStream adds contents from text stream 'fd' where key and value are separated
// by one of the characters in 'delim'. Duplicates, empty lines and lines starting
// with '#' are skipped; a line with no delimiter is added as a key with an empty
// value.
// Returns number of records added.
func AddTextStream(w *csf.DBWriter, fd io.Reader, delim string) (uint64, error) {
	rd := bufio.NewReader(fd)
	sc := bufio.NewScanner(rd)
	ch := make(chan *record, 10)

	// do I/O asynchronously; repeated lines are dropped via a cheap
	// fingerprint before the writer ever sees them
	go func(sc *bufio.Scanner, ch chan *record) {
		seen := make(map[uint64]bool)

		for sc.Scan() {
			s := strings.TrimSpace(sc.Text())
			if len(s) == 0 || s[0] == '#' {
				continue
			}

			var k, v string

			// if we have no delimiters - we treat the value as "boolean"
			i := strings.IndexAny(s, delim)
			if i > 0 {
				k = s[:i]
				v = strings.TrimSpace(s[i:])
			} else {
				k = s
			}

			// ignore items that are too large
			if len(v) >= 4294967295 {
				continue
			}

			h := fasthash.Hash64(0, []byte(k))
			if seen[h] {
				continue
			}
			seen[h] = true

			ch <- &record{[]byte(k), []byte(v)}
		}

		close(ch)
	}(sc, ch)

	return addFromChan(w, ch)
}

// AddCSVFile adds contents from CSV file 'fn'. If 'kwfield' and 'valfield' are
// non-negative, they indicate the field# of the key and value respectively; the
// default value for 'kwfield' & 'valfield' is 0 and 1 respectively.
// If 'comma' is not 0, the default CSV delimiter is ','.
// If 'comment' is not 0, then lines beginning with that rune are discarded.
// Records where the 'kwfield' and 'valfield' can't be evaluated are discarded.
// Returns number of records added.
func AddCSVFile(w *csf.DBWriter, fn string, comma, comment rune, kwfield, valfield int) (uint64, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return 0, err
	}

	defer fd.Close()

	return AddCSVStream(w, fd, comma, comment, kwfield, valfield)
}

// AddCSVStream adds contents from the CSV stream 'fd'; see AddCSVFile.
// Returns number of records added.
func AddCSVStream(w *csf.DBWriter, fd io.Reader, comma, comment rune, kwfield, valfield int) (uint64, error) {
	if kwfield < 0 {
		kwfield = 0
	}

	if valfield < 0 {
		valfield = 1
	}

	if comma == 0 {
		comma = ','
	}

	var max int = valfield
	if kwfield > valfield {
		max = kwfield
	}

	max += 1

	ch := make(chan *record, 10)
	cr := csv.NewReader(fd)
	cr.Comma = comma
	cr.Comment = comment
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	go func(cr *csv.Reader, ch chan *record) {
		for {
			v, err := cr.Read()
			if err != nil {
				break
			}

			if len(v) < max {
				continue
			}

			ch <- &record{[]byte(v[kwfield]), []byte(v[valfield])}
		}
		close(ch)
	}(cr, ch)

	return addFromChan(w, ch)
}

// read records from the chan and write them to disk. Build up the
// internal tables as we go
func addFromChan(w *csf.DBWriter, ch chan *record) (uint64, error) {
	var n uint64
	for r := range ch {
		if err := w.Add(r.key, r.val); err != nil {
			if err == csf.ErrExists {
				continue
			}
			return n, err
		}
		n++
	}

	return n, nil
}
