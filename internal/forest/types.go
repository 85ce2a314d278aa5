package forest

import (
	"path/filepath"
	"strings"
)

// ImageRef identifies one file by name and containing directory
type ImageRef struct {
	Name string `json:"name"`
	Dir  string `json:"dir"`
}

// NewImageRef splits a path into an ImageRef
func NewImageRef(path string) ImageRef {
	dir, name := filepath.Split(filepath.Clean(path))
	return ImageRef{Name: name, Dir: filepath.Clean(dir)}
}

// Path returns the file location
func (r ImageRef) Path() string {
	return filepath.Join(r.Dir, r.Name)
}

// Same reports whether both refs resolve to the same path
func (r ImageRef) Same(other ImageRef) bool {
	return r.Path() == other.Path()
}

// HasExtension reports whether the file name ends with ext (case-sensitive)
func (r ImageRef) HasExtension(ext string) bool {
	return strings.HasSuffix(r.Name, ext)
}

// DuplicateGroup is one completed group handed from a scan to its consumer.
// Members[0] is the representative.
type DuplicateGroup struct {
	Seq         uint64 // 1-based position in the scan's output
	Fingerprint string
	Members     []ImageRef
}

// Member is an ImageRef as held by the forest, with its deletion flag
type Member struct {
	Ref    ImageRef `json:"ref"`
	Marked bool     `json:"marked"`
}

// GroupView is a read-only snapshot of one group for display
type GroupView struct {
	Index       int      `json:"index"`
	Seq         uint64   `json:"seq"`
	Fingerprint string   `json:"fingerprint"`
	Parent      Member   `json:"parent"`
	Children    []Member `json:"children"`
	DupCount    int      `json:"dup_count"`
}

// Target addresses a member independent of its current position
type Target struct {
	GroupSeq uint64
	Ref      ImageRef
}

// FilterByExtension keeps groups whose representative has the given suffix.
// An empty ext keeps everything.
func FilterByExtension(views []GroupView, ext string) []GroupView {
	if ext == "" {
		return views
	}
	filtered := make([]GroupView, 0, len(views))
	for _, v := range views {
		if v.Parent.Ref.HasExtension(ext) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
