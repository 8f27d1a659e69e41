// Package hash computes the stable symbol hashes used to identify
// identifiers, class names, and selectors throughout compilation.
package hash

import "github.com/cespare/xxhash/v2"

// Symbol is the hash of an identifier's text. Hashing is pure, so it is
// safe to call from concurrent compile jobs without coordination.
type Symbol = uint64

// Compute returns the hash of the given text.
func Compute(text string) Symbol {
	return xxhash.Sum64String(text)
}

// ComputeBytes is Compute for a byte slice, avoiding a copy.
func ComputeBytes(text []byte) Symbol {
	return xxhash.Sum64(text)
}
