// csf.go - static function interfaces
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
	"io"
)

// Func is a frozen static function over the keys it was built from:
// a minimal perfect hash (MPH), a fixed-width static function (SF) or a
// compressed static function (CSF). Lookup for a key outside the build
// set returns an arbitrary (but well-formed) value. A Func is immutable
// and safe for concurrent lookups without synchronization.
type Func interface {
	// Lookup maps a previously-indexed key to its value. For an MPH
	// the value is the key's unique index in [0, Len()).
	Lookup(key []byte) uint64

	// Len returns the number of keys the function was built from.
	Len() int

	// SizeInBits returns the size of the function's payload arrays
	// and tables in bits.
	SizeInBits() uint64

	// MarshalBinary writes the function to 'w'; the writer is
	// guaranteed to start at a uint64 aligned boundary.
	MarshalBinary(w io.Writer) (int, error)

	// DumpMeta writes human-readable metadata to 'w'.
	DumpMeta(w io.Writer)
}

// image variant tags; also the variant byte of the serialized header.
const (
	_VarMPH uint8 = 1 + iota
	_VarSF
	_VarCSF
)

// Per-variant offset widths of the offset-and-seed table; the bits
// above the offset hold the bucket's local seed.
const (
	_OffsetBits   = 56 // MPH, SF
	_OffsetBitsCS = 54 // CSF: bit-granular offsets, more seed room

	_OffsetMask   = uint64(1)<<_OffsetBits - 1
	_OffsetMaskCS = uint64(1)<<_OffsetBitsCS - 1
)

// Vertex expansion factors. Plain 3-peeling needs the classic 1.23
// threshold; the XOR systems are solvable just above 1.089.
const (
	_GammaMPH = 1.23
	_GammaSF3 = 1.10
	_GammaSF4 = 1.03
	_GammaCSF = 1.10
)

// Defaults for Options.
const (
	DefaultBucketSize     = 1500
	DefaultBucketAttempts = 256
	DefaultGlobalAttempts = 3
	DefaultMaxCodeLength  = 24
)

// Minimum number of keys before the builder switches to concurrent
// per-bucket construction.
const MinParallelKeys int = 20000

// Options control construction. The zero value picks sane defaults;
// a zero GlobalSeed means a random seed (pass an explicit seed for
// reproducible images).
type Options struct {
	// Seed for the key signatures. The image records the seed that
	// finally succeeded.
	GlobalSeed uint64

	// Per-bucket seed attempts before the build is abandoned and
	// restarted under a fresh global seed. Default 256; capped by the
	// seed width of the variant.
	MaxBucketAttempts int

	// Full restarts before Freeze gives up. Default 3.
	MaxGlobalAttempts int

	// Average keys per bucket (equations per bucket for CSF).
	// Default 1500.
	BucketSizeHint int

	// Skip the duplicate-signature scan during Freeze.
	SkipDuplicateCheck bool

	// CSF only: cap on the codeword length. Default 24, clamped
	// to [1, 56].
	MaxCodeLength int

	// SF only: equation order; 3 or 4 vertices per key. Default 3.
	Order int
}

func (o *Options) setDefaults() {
	if o.MaxBucketAttempts <= 0 {
		o.MaxBucketAttempts = DefaultBucketAttempts
	}
	if o.MaxGlobalAttempts <= 0 {
		o.MaxGlobalAttempts = DefaultGlobalAttempts
	}
	if o.BucketSizeHint <= 0 {
		o.BucketSizeHint = DefaultBucketSize
	}
	if o.MaxCodeLength <= 0 {
		o.MaxCodeLength = DefaultMaxCodeLength
	}
	if o.Order != 4 {
		o.Order = 3
	}
}

var (
	_ Func = &mphFunc{}
	_ Func = &sfFunc{}
	_ Func = &csfFunc{}
)
