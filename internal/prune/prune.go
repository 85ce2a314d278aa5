// Package prune deletes duplicate files and keeps the forest consistent with
// what is left on disk.
package prune

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/forest"
)

// Failure records one file that could not be removed
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return f.Path + ": " + f.Err.Error()
}

// Result summarises a prune pass
type Result struct {
	Deleted       int
	Failures      []Failure
	GroupsRemoved int
}

// RemoveFunc deletes one file
type RemoveFunc func(path string) error

// Engine applies deletions to the filesystem and the forest together.
// It must not run while a scan is draining into the same forest.
type Engine struct {
	remove RemoveFunc
}

// New creates an engine that deletes with os.Remove
func New() *Engine {
	return &Engine{remove: os.Remove}
}

// NewWithRemover creates an engine using a custom remove function
func NewWithRemover(fn RemoveFunc) *Engine {
	return &Engine{remove: fn}
}

// DeleteMarked removes every marked member. Removing a parent promotes its
// first remaining child; groups left empty are dropped. A lone survivor
// keeps its group so every entry leaving the forest is also gone from disk.
// A member whose file cannot be removed stays in the forest with its mark
// cleared.
func (e *Engine) DeleteMarked(f *forest.Forest) Result {
	before := f.Len()
	res := e.apply(f, f.Marked(), true)
	res.GroupsRemoved = before - f.Len()
	return res
}

// AutoPrune removes every member except each group's representative, then
// drops groups reduced to the representative alone. Marks are ignored.
func (e *Engine) AutoPrune(f *forest.Forest) Result {
	targets := f.Children()
	res := e.apply(f, targets, false)
	res.GroupsRemoved = dropSingletons(f, targets)
	return res
}

// dropSingletons removes the groups touched by targets that no longer hold
// a duplicate and reports how many went
func dropSingletons(f *forest.Forest, targets []forest.Target) int {
	seen := make(map[uint64]bool)
	dropped := 0
	for _, t := range targets {
		if seen[t.GroupSeq] {
			continue
		}
		seen[t.GroupSeq] = true
		if f.DropSingleton(t.GroupSeq) {
			dropped++
		}
	}
	return dropped
}

// apply works from a snapshot of targets so forest edits never invalidate
// the iteration; each removal leaves the group with exactly one parent.
func (e *Engine) apply(f *forest.Forest, targets []forest.Target, unmarkOnFailure bool) Result {
	var res Result
	for _, t := range targets {
		path := t.Ref.Path()
		if err := e.remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("prune: failed to remove file")
			res.Failures = append(res.Failures, Failure{Path: path, Err: err})
			if unmarkOnFailure {
				f.Unmark(t)
			}
			continue
		}

		f.Remove(t)
		res.Deleted++
		log.Debug().Str("path", path).Msg("prune: removed file")
	}
	return res
}
