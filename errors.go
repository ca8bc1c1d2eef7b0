// errors.go - public errors exposed by csf
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
	"errors"
	"fmt"
)

var (
	// ErrFrozen is returned when attempting to add new keys to an already
	// frozen builder. It is also returned when trying to freeze a builder
	// that's already frozen.
	ErrFrozen = errors.New("builder already frozen")

	// ErrDuplicateKey is returned by Freeze() when two keys hash to the
	// same 256-bit signature - in practice, when the same key was added
	// twice. The check can be disabled via Options.SkipDuplicateCheck.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrBuildFailed is returned when every global attempt was exhausted
	// without finding a seed that constructs all buckets.
	ErrBuildFailed = errors.New("failed to build function after all global attempts")

	// ErrTooBig is returned when the key set is so large that bucket
	// offsets no longer fit the per-variant offset width.
	ErrTooBig = errors.New("key set too large for offset width")

	// ErrValueReserved is returned by the CSF builder when a value
	// collides with the escape sentinel (2^64-1).
	ErrValueReserved = errors.New("value 2^64-1 is reserved")

	// ErrTooSmall indicates a serialized image too short to unmarshal.
	ErrTooSmall = errors.New("not enough data to unmarshal")

	// ErrBadFormat indicates a serialized image that does not parse:
	// wrong magic, wrong variant tag, truncated arrays.
	ErrBadFormat = errors.New("malformed image")

	// ErrValueTooLarge is returned if a DB value is larger than 2^32-1 bytes.
	ErrValueTooLarge = errors.New("value is larger than 2^32-1 bytes")

	// ErrExists is returned if a duplicate key is added to the DB.
	ErrExists = errors.New("key exists in DB")

	// ErrNoKey is returned when a key cannot be found in the DB.
	ErrNoKey = errors.New("no such key")
)

// BuildError is returned when a single bucket exhausted its per-bucket
// seed attempts. The builder surfaces it to the outer loop which retries
// the whole construction under a fresh global seed.
type BuildError struct {
	Bucket   uint64
	Attempts int
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("bucket %d: no construction after %d attempts", e.Bucket, e.Attempts)
}

func shortWrite(saw, exp int) error {
	return fmt.Errorf("short write: exp %d, wrote %d", exp, saw)
}
