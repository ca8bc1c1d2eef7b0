// doc.go - top level documentation
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

// Package csf implements static succinct functions over a fixed set of
// byte-string keys:
//
//  1. MPH: a minimal perfect hash mapping n keys to distinct indices
//     in [0, n) at a few bits per key.
//  2. SF: a static function mapping each key to an arbitrary b-bit
//     value (b <= 64) at about b bits per key.
//  3. CSF: a compressed static function where values are entropy
//     coded, costing roughly the empirical entropy of the value
//     distribution per key.
//
// All three share one construction: keys are hashed to 256-bit
// signatures, sharded into buckets, and each bucket is realized as a
// small 3-uniform hypergraph (4-uniform for an order-4 SF) - peeled for
// the MPH, solved as a linear
// system over F(2) for the static functions. Construction is randomized
// with local retries; lookups are O(1) with a handful of memory
// accesses and never fail.
//
// A frozen function can be serialized to a compact image and later
// loaded back, either into memory (Load) or zero-copy via a file
// mapping (LoadFile).
//
// The package also exposes a convenient way to serialize keys and
// values OR just keys into an on-disk single-file database ('DBWriter',
// 'DBReader'). This serialized DB is useful in situations where reading
// from such a "constant" DB is much more frequent compared to updates
// to the DB.
package csf
