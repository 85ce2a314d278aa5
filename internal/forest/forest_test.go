package forest

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func ref(name string) ImageRef {
	return ImageRef{Name: name, Dir: "/photos"}
}

func dupGroup(seq uint64, names ...string) DuplicateGroup {
	g := DuplicateGroup{Seq: seq, Fingerprint: fmt.Sprintf("fp%d", seq)}
	for _, n := range names {
		g.Members = append(g.Members, ref(n))
	}
	return g
}

func TestNewImageRef(t *testing.T) {
	tests := []struct {
		path     string
		wantName string
		wantDir  string
	}{
		{"/photos/a.jpg", "a.jpg", "/photos"},
		{"/photos/2020/../b.png", "b.png", "/photos"},
		{"relative/c.gif", "c.gif", "relative"},
		{"d.tiff", "d.tiff", "."},
	}

	for _, tt := range tests {
		r := NewImageRef(tt.path)
		if r.Name != tt.wantName || r.Dir != tt.wantDir {
			t.Errorf("NewImageRef(%q) = %+v, want {%s %s}", tt.path, r, tt.wantName, tt.wantDir)
		}
	}

	a := ImageRef{Name: "a.jpg", Dir: "/photos/"}
	b := ImageRef{Name: "a.jpg", Dir: "/photos"}
	if !a.Same(b) {
		t.Error("refs resolving to the same path should be Same")
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	if got := q.TryDrain(); got != nil {
		t.Errorf("TryDrain on empty queue = %v, want nil", got)
	}

	q.Push(dupGroup(1, "a", "b"))
	q.Push(dupGroup(2, "c", "d"))
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}

	got := q.TryDrain()
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("TryDrain = %+v, want seq 1 then 2", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", q.Len())
	}
}

func TestDrainAppendsInOrder(t *testing.T) {
	q := NewQueue()
	q.Push(dupGroup(1, "a.jpg", "b.jpg", "c.jpg"))
	q.Push(dupGroup(2, "d.png", "e.png"))

	f := New()
	if n := f.Drain(q); n != 2 {
		t.Fatalf("Drain = %d, want 2", n)
	}
	if n := f.Drain(q); n != 0 {
		t.Errorf("second Drain on empty queue = %d, want 0", n)
	}

	groups := f.Groups()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Parent.Ref.Name != "a.jpg" || groups[0].DupCount != 2 {
		t.Errorf("group 0 = %+v", groups[0])
	}
	if groups[0].Children[0].Ref.Name != "b.jpg" || groups[0].Children[1].Ref.Name != "c.jpg" {
		t.Errorf("group 0 children out of order: %+v", groups[0].Children)
	}
	if groups[1].Index != 1 || groups[1].Parent.Ref.Name != "d.png" {
		t.Errorf("group 1 = %+v", groups[1])
	}
}

func TestAppendIdempotent(t *testing.T) {
	f := New()
	g := dupGroup(7, "a", "b")

	if n := f.Append(g); n != 1 {
		t.Fatalf("Append = %d, want 1", n)
	}
	if n := f.Append(g); n != 0 {
		t.Errorf("re-Append of same seq = %d, want 0", n)
	}
	if n := f.Append(dupGroup(8, "lonely")); n != 0 {
		t.Errorf("Append of single-member group = %d, want 0", n)
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}

	f.Reset()
	if f.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", f.Len())
	}
	if n := f.Append(g); n != 1 {
		t.Errorf("Append after Reset = %d, want 1", n)
	}
}

func TestDrainWhileProducing(t *testing.T) {
	q := NewQueue()
	f := New()

	const total = 500
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			q.Push(dupGroup(uint64(i), "a", "b"))
		}
	}()

	drained := 0
	for drained < total {
		drained += f.Drain(q)
	}
	wg.Wait()

	groups := f.Groups()
	if len(groups) != total {
		t.Fatalf("got %d groups, want %d", len(groups), total)
	}
	for i, g := range groups {
		if g.Seq != uint64(i+1) {
			t.Fatalf("group %d has seq %d, FIFO order broken", i, g.Seq)
		}
	}
}

func TestToggleMark(t *testing.T) {
	f := New()
	f.Append(dupGroup(1, "a", "b", "c"))

	marked, err := f.ToggleMark(0, 2)
	if err != nil {
		t.Fatalf("ToggleMark failed: %v", err)
	}
	if !marked {
		t.Error("first toggle should mark")
	}

	members, _ := f.Members(0)
	if members[0].Marked || members[1].Marked || !members[2].Marked {
		t.Errorf("unexpected flags: %+v", members)
	}

	marked, _ = f.ToggleMark(0, 2)
	if marked {
		t.Error("second toggle should unmark")
	}

	tests := []struct {
		name string
		g, m int
	}{
		{"negative group", -1, 0},
		{"group past end", 1, 0},
		{"member past end", 0, 3},
		{"negative member", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.ToggleMark(tt.g, tt.m); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("ToggleMark(%d, %d) err = %v, want ErrOutOfRange", tt.g, tt.m, err)
			}
		})
	}
}

func TestSetRepresentative(t *testing.T) {
	f := New()
	f.Append(dupGroup(1, "a", "b", "c"))
	f.SetMark(0, 2, true)

	if err := f.SetRepresentative(0, 2); err != nil {
		t.Fatalf("SetRepresentative failed: %v", err)
	}
	rep, err := f.Representative(0)
	if err != nil {
		t.Fatalf("Representative failed: %v", err)
	}
	if rep.Name != "c" {
		t.Errorf("representative = %q, want c", rep.Name)
	}

	members, _ := f.Members(0)
	if !members[0].Marked {
		t.Error("mark should travel with the member into the parent slot")
	}
	if members[2].Ref.Name != "a" || members[2].Marked {
		t.Errorf("old parent should be unmarked child at index 2, got %+v", members[2])
	}

	if err := f.SetRepresentative(0, 5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestRemovePromotesChild(t *testing.T) {
	f := New()
	f.Append(dupGroup(1, "a", "b", "c"))

	if !f.Remove(Target{GroupSeq: 1, Ref: ref("a")}) {
		t.Fatal("Remove of parent returned false")
	}
	groups := f.Groups()
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Parent.Ref.Name != "b" {
		t.Errorf("parent = %q, want b promoted", groups[0].Parent.Ref.Name)
	}
	if len(groups[0].Children) != 1 || groups[0].Children[0].Ref.Name != "c" {
		t.Errorf("children = %+v, want [c]", groups[0].Children)
	}

	if f.Remove(Target{GroupSeq: 1, Ref: ref("a")}) {
		t.Error("removing an absent member should report false")
	}
	if f.Remove(Target{GroupSeq: 9, Ref: ref("b")}) {
		t.Error("removing from an absent group should report false")
	}

	f.Remove(Target{GroupSeq: 1, Ref: ref("b")})
	if f.Len() != 1 {
		t.Errorf("group with one member left should remain, Len = %d", f.Len())
	}
	f.Remove(Target{GroupSeq: 1, Ref: ref("c")})
	if f.Len() != 0 {
		t.Errorf("empty group should be dropped, Len = %d", f.Len())
	}
}

func TestDropSingleton(t *testing.T) {
	f := New()
	f.Append(dupGroup(1, "a", "b"))
	f.Append(dupGroup(2, "c", "d"))

	if f.DropSingleton(1) {
		t.Error("group with two members must not be dropped")
	}
	f.Remove(Target{GroupSeq: 1, Ref: ref("b")})
	if !f.DropSingleton(1) {
		t.Error("group reduced to its representative should be dropped")
	}
	groups := f.Groups()
	if len(groups) != 1 || groups[0].Seq != 2 {
		t.Errorf("remaining groups = %+v, want only seq 2", groups)
	}
}

func TestMarkedAndChildrenSnapshots(t *testing.T) {
	f := New()
	f.Append(dupGroup(1, "a", "b", "c"))
	f.Append(dupGroup(2, "d", "e"))
	f.SetMark(0, 0, true)
	f.SetMark(1, 1, true)

	marked := f.Marked()
	if len(marked) != 2 || marked[0].Ref.Name != "a" || marked[1].Ref.Name != "e" {
		t.Errorf("Marked = %+v, want a then e", marked)
	}

	children := f.Children()
	var names []string
	for _, c := range children {
		names = append(names, c.Ref.Name)
	}
	if fmt.Sprint(names) != "[b c e]" {
		t.Errorf("Children = %v, want [b c e]", names)
	}

	f.Unmark(marked[0])
	if got := f.Marked(); len(got) != 1 {
		t.Errorf("Marked after Unmark = %+v, want 1 entry", got)
	}
}

func TestFilterByExtension(t *testing.T) {
	f := New()
	f.Append(dupGroup(1, "a.jpg", "b.jpg"))
	f.Append(dupGroup(2, "c.png", "d.png"))
	f.Append(dupGroup(3, "e.JPG", "f.jpg"))

	views := f.Groups()

	tests := []struct {
		ext  string
		want []uint64
	}{
		{"", []uint64{1, 2, 3}},
		{".jpg", []uint64{1}},
		{".png", []uint64{2}},
		{".gif", nil},
	}
	for _, tt := range tests {
		got := FilterByExtension(views, tt.ext)
		var seqs []uint64
		for _, v := range got {
			seqs = append(seqs, v.Seq)
		}
		if fmt.Sprint(seqs) != fmt.Sprint(tt.want) {
			t.Errorf("FilterByExtension(%q) = %v, want %v", tt.ext, seqs, tt.want)
		}
	}

	// Index still refers to the position in the forest
	if got := FilterByExtension(views, ".png"); got[0].Index != 1 {
		t.Errorf("filtered Index = %d, want 1", got[0].Index)
	}
}
