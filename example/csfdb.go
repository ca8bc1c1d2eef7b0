// csfdb.go -- Build a Constant DB based on the bucketed MPH
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

// csfdb.go is an example of using csf.DBWriter() and csf.DBReader.
// One can construct the on-disk constant DB using a variety of input:
//   - white space delimited text file: first field is key, second field is value
//   - Comma Separated text file (CSV): first field is key, second field is value

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opencoff/go-csf"

	flag "github.com/opencoff/pflag"
)

func main() {
	var bsize int
	var seed uint64
	var verify, dump, text bool

	usage := fmt.Sprintf(
		`%s - make a constant DB from one or more inputs

Usage: %s [options] OUTPUT [INPUT ...]
       %s -d|-V FILENAME

The first form is used to create a DB from one or more INPUTs.
OUTPUT is the output DB name.
INPUT can be a file ending in:
   .txt: a key,value per line delimited by white space or just
         keys on each line
   .csv: a CSV text file

The second form is used to dump a DB's metadata or verify its integrity.

Options:
`, os.Args[0], os.Args[0], os.Args[0])

	flag.IntVarP(&bsize, "bucket-size", "b", 0, "Use `B` as the average bucket size")
	flag.Uint64VarP(&seed, "seed", "s", 0, "Use `S` as the global hash seed (0 means random)")
	flag.BoolVarP(&verify, "verify", "V", false, "Verify a constant DB")
	flag.BoolVarP(&dump, "dump-meta", "d", false, "Dump db meta-data")
	flag.BoolVarP(&text, "text", "t", false, "Assume the input file(s) are text")
	flag.Usage = func() {
		fmt.Printf("csfdb - create a constant DB from txt or CSV files\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}

	flag.Parse()
	args := flag.Args()

	if verify || dump {
		if len(args) < 1 {
			die("No file name to dump!\nUsage: %s\n", usage)
		}

		fn := args[0]
		db, err := csf.NewDBReader(fn, 1000)
		if err != nil {
			die("Can't read %s: %s", fn, err)
		}

		if verify {
			fmt.Printf("%s: %d records\n", fn, db.Len())
		} else {
			db.DumpMeta(os.Stdout)
		}

		db.Close()
		return
	}

	if len(args) < 1 {
		die("No output file name!\nUsage: %s\n", usage)
	}

	fn := args[0]
	args = args[1:]

	opt := &csf.Options{
		GlobalSeed:     seed,
		BucketSizeHint: bsize,
	}

	db, err := csf.NewDBWriter(fn, opt)
	if err != nil {
		die("can't create DB %s: %s", fn, err)
	}

	var tot uint64
	if len(args) > 0 {
		var n uint64
		for _, f := range args {
			switch {
			case strings.HasSuffix(f, ".txt"):
				n, err = AddTextFile(db, f, " \t")

			case strings.HasSuffix(f, ".csv"):
				n, err = AddCSVFile(db, f, ',', '#', 0, 1)

			default:
				if !text {
					warn("Don't know how to add %s", f)
					continue
				}
				n, err = AddTextFile(db, f, " \t")
			}

			if err != nil {
				warn("can't add %s: %s", f, err)
				continue
			}

			fmt.Printf("+ %s: %d records\n", f, n)
			tot += n
		}
	} else {
		var n uint64

		n, err = AddTextStream(db, os.Stdin, " \t")
		if err != nil {
			db.Abort()
			die("can't add STDIN: %s", err)
		}

		fmt.Printf("+ <STDIN>: %d records\n", n)
		tot += n
	}

	start := time.Now()
	err = db.Freeze(context.Background())
	if err != nil {
		die("can't write db %s: %s", fn, err)
	}
	delta := time.Now().Sub(start)
	speed := (1.0e6 * float64(tot)) / float64(delta.Microseconds())
	fmt.Printf("%d keys, %s (%3.2f keys/sec)\n", tot, delta, speed)
}

// die with error
func die(f string, v ...interface{}) {
	warn(f, v...)
	os.Exit(1)
}

func warn(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); s[n-1] != '\n' {
		s += "\n"
	}

	os.Stderr.WriteString(s)
	os.Stderr.Sync()
}

// vim: ft=go:sw=4:ts=4:noexpandtab:tw=78:
