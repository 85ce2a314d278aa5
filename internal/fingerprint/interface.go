package fingerprint

import "github.com/corona10/goimagehash"

// Strategy defines how image files are reduced to fingerprints and compared.
// Implementations must be safe for concurrent use by scan workers.
type Strategy interface {
	// Kind reports which kind of fingerprint the strategy produces
	Kind() Kind

	// Fingerprint reads the file at path. Open/read failures are returned as
	// is (usually *fs.PathError); undecodable images as *DecodeError.
	Fingerprint(path string) (Fingerprint, error)

	// Difference returns the degree of difference between two fingerprints
	Difference(a, b Fingerprint) (int, error)

	// IsMatch reports whether two fingerprints belong in the same group
	IsMatch(a, b Fingerprint) bool
}

// HashMatcher is implemented by strategies whose fingerprints can be
// converted once and compared many times
type HashMatcher interface {
	Hash(fp Fingerprint) *goimagehash.ImageHash
	MatchHashes(a, b *goimagehash.ImageHash) bool
}

var (
	_ Strategy = (*Exact)(nil)
	_ Strategy = (*Perceptual)(nil)

	_ HashMatcher = (*Perceptual)(nil)
)
