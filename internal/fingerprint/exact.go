package fingerprint

import (
	"crypto/md5"
	"io"
	"math"
	"os"
)

// Unbounded is the difference reported for unequal exact fingerprints
const Unbounded = math.MaxInt

// Exact fingerprints files by an MD5 digest of their bytes
type Exact struct{}

// NewExact creates an exact (content digest) strategy
func NewExact() *Exact {
	return &Exact{}
}

// Kind returns KindExact
func (e *Exact) Kind() Kind { return KindExact }

// Fingerprint digests the file contents
func (e *Exact) Fingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, err
	}

	fp := Fingerprint{Kind: KindExact}
	copy(fp.Digest[:], h.Sum(nil))
	return fp, nil
}

// Difference is 0 for equal digests and Unbounded otherwise
func (e *Exact) Difference(a, b Fingerprint) (int, error) {
	if a.Kind != KindExact || b.Kind != KindExact {
		return 0, ErrKindMismatch
	}
	if a.Digest == b.Digest {
		return 0, nil
	}
	return Unbounded, nil
}

// IsMatch reports digest equality
func (e *Exact) IsMatch(a, b Fingerprint) bool {
	return a.Kind == KindExact && b.Kind == KindExact && a.Digest == b.Digest
}
