// Package forest holds scan results as an ordered list of duplicate groups,
// each one representative (parent) followed by its duplicates (children).
package forest

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfRange is returned for group or member indexes that do not exist
var ErrOutOfRange = errors.New("index out of range")

type group struct {
	seq         uint64
	fingerprint string
	members     []Member // members[0] is the parent
}

func (g *group) indexOf(ref ImageRef) int {
	for i, m := range g.members {
		if m.Ref.Same(ref) {
			return i
		}
	}
	return -1
}

// Forest is the caller-owned result store. Groups are only appended by
// Drain/Append; removal happens through Remove and DropSingleton.
type Forest struct {
	mu     sync.RWMutex
	groups []*group
	seen   map[uint64]struct{}
}

// New creates an empty forest
func New() *Forest {
	return &Forest{seen: make(map[uint64]struct{})}
}

// Reset discards every group, ready for a new scan
func (f *Forest) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = nil
	f.seen = make(map[uint64]struct{})
}

// Drain moves all queued groups into the forest without waiting.
// It returns the number of groups appended.
func (f *Forest) Drain(q *Queue) int {
	return f.Append(q.TryDrain()...)
}

// Append adds groups as new top-level entries in order. Groups with fewer
// than two members or a sequence number already appended are skipped.
func (f *Forest) Append(groups ...DuplicateGroup) int {
	if len(groups) == 0 {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	added := 0
	for _, g := range groups {
		if len(g.Members) < 2 {
			continue
		}
		if _, ok := f.seen[g.Seq]; ok {
			continue
		}
		f.seen[g.Seq] = struct{}{}

		members := make([]Member, len(g.Members))
		for i, ref := range g.Members {
			members[i] = Member{Ref: ref}
		}
		f.groups = append(f.groups, &group{seq: g.Seq, fingerprint: g.Fingerprint, members: members})
		added++
	}
	return added
}

// Len returns the number of groups
func (f *Forest) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.groups)
}

// Groups returns a snapshot of every group in order
func (f *Forest) Groups() []GroupView {
	f.mu.RLock()
	defer f.mu.RUnlock()

	views := make([]GroupView, 0, len(f.groups))
	for i, g := range f.groups {
		children := make([]Member, len(g.members)-1)
		copy(children, g.members[1:])
		views = append(views, GroupView{
			Index:       i,
			Seq:         g.seq,
			Fingerprint: g.fingerprint,
			Parent:      g.members[0],
			Children:    children,
			DupCount:    len(children),
		})
	}
	return views
}

// Members returns the members of group g, parent first
func (f *Forest) Members(g int) ([]Member, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	grp, err := f.group(g)
	if err != nil {
		return nil, err
	}
	members := make([]Member, len(grp.members))
	copy(members, grp.members)
	return members, nil
}

// ToggleMark flips the deletion flag of member m (0 = parent) in group g
// and returns the new value
func (f *Forest) ToggleMark(g, m int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	member, err := f.member(g, m)
	if err != nil {
		return false, err
	}
	member.Marked = !member.Marked
	return member.Marked, nil
}

// SetMark sets the deletion flag of member m in group g
func (f *Forest) SetMark(g, m int, marked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	member, err := f.member(g, m)
	if err != nil {
		return err
	}
	member.Marked = marked
	return nil
}

// Representative returns the parent of group g
func (f *Forest) Representative(g int) (ImageRef, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	grp, err := f.group(g)
	if err != nil {
		return ImageRef{}, err
	}
	return grp.members[0].Ref, nil
}

// SetRepresentative swaps member m into the parent slot of group g.
// Flags stay with their members.
func (f *Forest) SetRepresentative(g, m int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	grp, err := f.group(g)
	if err != nil {
		return err
	}
	if m < 0 || m >= len(grp.members) {
		return fmt.Errorf("member %d of group %d: %w", m, g, ErrOutOfRange)
	}
	grp.members[0], grp.members[m] = grp.members[m], grp.members[0]
	return nil
}

// Marked returns every marked member, depth-first in forest order
func (f *Forest) Marked() []Target {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var targets []Target
	for _, g := range f.groups {
		for _, m := range g.members {
			if m.Marked {
				targets = append(targets, Target{GroupSeq: g.seq, Ref: m.Ref})
			}
		}
	}
	return targets
}

// Children returns every non-parent member, depth-first in forest order
func (f *Forest) Children() []Target {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var targets []Target
	for _, g := range f.groups {
		for _, m := range g.members[1:] {
			targets = append(targets, Target{GroupSeq: g.seq, Ref: m.Ref})
		}
	}
	return targets
}

// Remove deletes the member addressed by t. Removing the parent promotes
// the first remaining child; a group left without members is dropped.
// It reports whether the member was found.
func (f *Forest) Remove(t Target) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	gi := f.indexOfSeq(t.GroupSeq)
	if gi < 0 {
		return false
	}
	grp := f.groups[gi]
	mi := grp.indexOf(t.Ref)
	if mi < 0 {
		return false
	}

	// Shifting the slice moves members[1] into the parent slot when mi == 0
	grp.members = append(grp.members[:mi], grp.members[mi+1:]...)
	if len(grp.members) == 0 {
		f.groups = append(f.groups[:gi], f.groups[gi+1:]...)
	}
	return true
}

// Unmark clears the deletion flag of the member addressed by t
func (f *Forest) Unmark(t Target) {
	f.mu.Lock()
	defer f.mu.Unlock()

	gi := f.indexOfSeq(t.GroupSeq)
	if gi < 0 {
		return
	}
	if mi := f.groups[gi].indexOf(t.Ref); mi >= 0 {
		f.groups[gi].members[mi].Marked = false
	}
}

// DropSingleton removes the group with the given sequence number if only its
// representative is left. It reports whether the group was dropped.
func (f *Forest) DropSingleton(seq uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	gi := f.indexOfSeq(seq)
	if gi < 0 || len(f.groups[gi].members) > 1 {
		return false
	}
	f.groups = append(f.groups[:gi], f.groups[gi+1:]...)
	return true
}

func (f *Forest) indexOfSeq(seq uint64) int {
	for i, g := range f.groups {
		if g.seq == seq {
			return i
		}
	}
	return -1
}

func (f *Forest) group(g int) (*group, error) {
	if g < 0 || g >= len(f.groups) {
		return nil, fmt.Errorf("group %d: %w", g, ErrOutOfRange)
	}
	return f.groups[g], nil
}

func (f *Forest) member(g, m int) (*Member, error) {
	grp, err := f.group(g)
	if err != nil {
		return nil, err
	}
	if m < 0 || m >= len(grp.members) {
		return nil, fmt.Errorf("member %d of group %d: %w", m, g, ErrOutOfRange)
	}
	return &grp.members[m], nil
}
