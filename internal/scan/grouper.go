package scan

import (
	"github.com/corona10/goimagehash"

	"github.com/lyallcooper/dupdeleter/internal/fingerprint"
	"github.com/lyallcooper/dupdeleter/internal/forest"
)

type bucket struct {
	fps    []fingerprint.Fingerprint
	hashes []*goimagehash.ImageHash // built once per member when the strategy supports it
	refs   []forest.ImageRef
	order  uint64 // set when the bucket reaches two members
}

// grouper accumulates fingerprints into buckets in first-seen order.
// Exact fingerprints are bucketed by equality; perceptual ones join the
// first bucket whose every member matches.
type grouper struct {
	strategy fingerprint.Strategy
	hasher   fingerprint.HashMatcher // nil when the strategy only offers IsMatch
	byDigest map[fingerprint.Fingerprint]*bucket
	buckets  []*bucket
	ready    []*bucket // buckets in the order they reached two members
}

func newGrouper(strategy fingerprint.Strategy) *grouper {
	g := &grouper{
		strategy: strategy,
		byDigest: make(map[fingerprint.Fingerprint]*bucket),
	}
	if strategy.Kind() != fingerprint.KindExact {
		g.hasher, _ = strategy.(fingerprint.HashMatcher)
	}
	return g
}

// add places one file and reports whether it completed a new group
func (g *grouper) add(ref forest.ImageRef, fp fingerprint.Fingerprint) bool {
	var h *goimagehash.ImageHash
	if g.hasher != nil {
		h = g.hasher.Hash(fp)
	}

	b := g.find(fp, h)
	if b == nil {
		b = &bucket{}
		g.buckets = append(g.buckets, b)
		if g.strategy.Kind() == fingerprint.KindExact {
			g.byDigest[fp] = b
		}
	}

	b.fps = append(b.fps, fp)
	if h != nil {
		b.hashes = append(b.hashes, h)
	}
	b.refs = append(b.refs, ref)

	if len(b.refs) == 2 {
		b.order = uint64(len(g.ready) + 1)
		g.ready = append(g.ready, b)
		return true
	}
	return false
}

func (g *grouper) find(fp fingerprint.Fingerprint, h *goimagehash.ImageHash) *bucket {
	if g.strategy.Kind() == fingerprint.KindExact {
		return g.byDigest[fp]
	}

	for _, b := range g.buckets {
		if g.matchesAll(b, fp, h) {
			return b
		}
	}
	return nil
}

func (g *grouper) matchesAll(b *bucket, fp fingerprint.Fingerprint, h *goimagehash.ImageHash) bool {
	if h != nil {
		for _, member := range b.hashes {
			if !g.hasher.MatchHashes(member, h) {
				return false
			}
		}
		return true
	}
	for _, member := range b.fps {
		if !g.strategy.IsMatch(member, fp) {
			return false
		}
	}
	return true
}

// groups returns every bucket with at least two members as a DuplicateGroup
func (g *grouper) groups() []forest.DuplicateGroup {
	out := make([]forest.DuplicateGroup, 0, len(g.ready))
	for _, b := range g.ready {
		refs := make([]forest.ImageRef, len(b.refs))
		copy(refs, b.refs)
		out = append(out, forest.DuplicateGroup{
			Seq:         b.order,
			Fingerprint: b.fps[0].String(),
			Members:     refs,
		})
	}
	return out
}
