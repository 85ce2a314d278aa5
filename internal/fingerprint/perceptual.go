package fingerprint

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	// Formats beyond the jpeg/png/gif set imaging registers itself
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var errEmptyImage = errors.New("image has no pixels")

// Perceptual implements the difference hash: the image is reduced to a
// small grayscale grid and each pixel is compared with its right neighbour.
type Perceptual struct {
	width     int
	height    int
	threshold int
}

// NewPerceptual creates a difference-hash strategy for a width x height grid
func NewPerceptual(width, height, threshold int) (*Perceptual, error) {
	cfg := Config{Kind: KindPerceptual, GridWidth: width, GridHeight: height, Threshold: threshold}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Perceptual{width: width, height: height, threshold: threshold}, nil
}

// Kind returns KindPerceptual
func (p *Perceptual) Kind() Kind { return KindPerceptual }

// Threshold returns the maximum difference still considered a match
func (p *Perceptual) Threshold() int { return p.threshold }

// Fingerprint decodes the file and hashes the decoded image
func (p *Perceptual) Fingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return Fingerprint{}, &DecodeError{Path: path, Err: err}
	}
	if img.Bounds().Empty() {
		return Fingerprint{}, &DecodeError{Path: path, Err: errEmptyImage}
	}

	return p.FingerprintImage(img), nil
}

// FingerprintImage hashes an already decoded image. Bits are packed most
// significant first, row by row; a bit is set when the left pixel is at
// least as bright as its right neighbour.
func (p *Perceptual) FingerprintImage(img image.Image) Fingerprint {
	gray := imaging.Grayscale(img)
	small := imaging.Resize(gray, p.width, p.height, imaging.Box)

	var bits uint64
	for y := 0; y < p.height; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < p.width-1; x++ {
			bits <<= 1
			// Grayscale output has equal channels, R is enough
			if row[x*4] >= row[(x+1)*4] {
				bits |= 1
			}
		}
	}

	return Fingerprint{Kind: KindPerceptual, Bits: bits}
}

// Difference returns the Hamming distance between two perceptual fingerprints
func (p *Perceptual) Difference(a, b Fingerprint) (int, error) {
	if a.Kind != KindPerceptual || b.Kind != KindPerceptual {
		return 0, ErrKindMismatch
	}
	return hashDistance(p.Hash(a), p.Hash(b))
}

// IsMatch reports whether the difference is within the threshold
func (p *Perceptual) IsMatch(a, b Fingerprint) bool {
	if a.Kind != KindPerceptual || b.Kind != KindPerceptual {
		return false
	}
	return p.MatchHashes(p.Hash(a), p.Hash(b))
}

// Hash wraps a fingerprint's bits for repeated comparisons
func (p *Perceptual) Hash(fp Fingerprint) *goimagehash.ImageHash {
	return goimagehash.NewImageHash(fp.Bits, goimagehash.DHash)
}

// MatchHashes compares two prebuilt hashes against the threshold
func (p *Perceptual) MatchHashes(a, b *goimagehash.ImageHash) bool {
	d, err := hashDistance(a, b)
	return err == nil && d <= p.threshold
}

func hashDistance(a, b *goimagehash.ImageHash) (int, error) {
	d, err := a.Distance(b)
	if err != nil {
		return 0, fmt.Errorf("hash distance: %w", err)
	}
	return d, nil
}
