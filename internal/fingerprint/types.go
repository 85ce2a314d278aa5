package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the strategy that produced a fingerprint
type Kind int

const (
	KindExact Kind = iota + 1
	KindPerceptual
)

// String returns the configuration name of the kind
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindPerceptual:
		return "perceptual"
	default:
		return "unknown"
	}
}

// ParseKind parses a strategy name ("exact" or "perceptual", case-insensitive)
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact", "md5":
		return KindExact, nil
	case "perceptual", "dhash":
		return KindPerceptual, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want exact or perceptual)", s)
	}
}

// Fingerprint is a comparable value derived from an image file.
// Only one of Bits or Digest is meaningful, depending on Kind.
type Fingerprint struct {
	Kind   Kind
	Bits   uint64
	Digest [md5.Size]byte
}

// String returns a hex representation of the fingerprint
func (f Fingerprint) String() string {
	switch f.Kind {
	case KindExact:
		return hex.EncodeToString(f.Digest[:])
	case KindPerceptual:
		return fmt.Sprintf("%016x", f.Bits)
	default:
		return ""
	}
}

// ErrKindMismatch is returned when fingerprints of different kinds are compared
var ErrKindMismatch = errors.New("fingerprint kinds differ")

// DecodeError reports a file whose bytes are not a decodable image
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Path + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Default strategy parameters
const (
	DefaultGridWidth  = 9
	DefaultGridHeight = 8
	DefaultThreshold  = 10
)

// Config selects and parameterises a strategy
type Config struct {
	Kind       Kind
	GridWidth  int // columns of the reduced image
	GridHeight int // rows of the reduced image
	Threshold  int // max differing bits for a perceptual match
}

// DefaultConfig returns the perceptual strategy with a 9x8 grid and threshold 10
func DefaultConfig() Config {
	return Config{
		Kind:       KindPerceptual,
		GridWidth:  DefaultGridWidth,
		GridHeight: DefaultGridHeight,
		Threshold:  DefaultThreshold,
	}
}

// Validate checks that the configuration describes a usable strategy
func (c Config) Validate() error {
	switch c.Kind {
	case KindExact:
		return nil
	case KindPerceptual:
	default:
		return fmt.Errorf("invalid strategy kind %d", int(c.Kind))
	}

	if c.GridWidth < 2 || c.GridHeight < 1 {
		return fmt.Errorf("grid %dx%d too small", c.GridWidth, c.GridHeight)
	}
	if bits := (c.GridWidth - 1) * c.GridHeight; bits > 64 {
		return fmt.Errorf("grid %dx%d needs %d bits, max 64", c.GridWidth, c.GridHeight, bits)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative, got %d", c.Threshold)
	}
	return nil
}

// String describes the config for logs and history records
func (c Config) String() string {
	if c.Kind != KindPerceptual {
		return c.Kind.String()
	}
	return c.Kind.String() + " " + strconv.Itoa(c.GridWidth) + "x" + strconv.Itoa(c.GridHeight) +
		" threshold=" + strconv.Itoa(c.Threshold)
}

// New builds the strategy described by cfg
func New(cfg Config) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind == KindExact {
		return NewExact(), nil
	}
	return NewPerceptual(cfg.GridWidth, cfg.GridHeight, cfg.Threshold)
}
