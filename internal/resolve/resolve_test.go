package resolve

import (
	"context"
	"sync"
	"testing"
	"time"

	"bugle/internal/tracker"
	"bugle/pkg/logx"
)

// fakeFinder resolves from a fixed map and records concurrency.
type fakeFinder struct {
	mu       sync.Mutex
	handles  map[string]string
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func (f *fakeFinder) FindMember(ctx context.Context, token, space, email string) string {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	h := f.handles[email]
	f.mu.Unlock()
	return h
}

func bugWith(assignees ...string) tracker.Bug {
	b := tracker.Bug{Number: 1, Title: "t", Assignees: []tracker.Assignee{}}
	for _, a := range assignees {
		b.Assignees = append(b.Assignees, tracker.Assignee{Handle: a})
	}
	return b
}

func TestAssigneesResolvesAndFallsBack(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{handles: map[string]string{
		"alice@example.com": "users/111",
		"carol@example.com": "users/333",
	}}
	r := New(finder, 2, logx.Nop())

	in := []tracker.Bug{bugWith("alice@example.com", "bob", "carol@example.com")}
	out := r.Assignees(t.Context(), "tok", "spaces/AAA", in)

	if len(out) != 1 {
		t.Fatalf("got %d bugs", len(out))
	}
	got := out[0].Assignees
	if len(got) != 3 {
		t.Fatalf("assignee count = %d, want 3", len(got))
	}
	want := []tracker.Assignee{
		{Found: true, Handle: "users/111"},
		{Found: false, Handle: "bob"},
		{Found: true, Handle: "users/333"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("assignee[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Input must be untouched.
	if in[0].Assignees[0].Found {
		t.Fatal("input bug was mutated")
	}
}

// Assignee count and order survive no matter how many lookups miss.
func TestAssigneesPreservesCountAndOrder(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{handles: map[string]string{}}
	r := New(finder, 3, logx.Nop())

	raw := []string{"a@x", "b@x", "c@x", "d@x", "e@x", "f@x", "g@x"}
	out := r.Assignees(t.Context(), "tok", "spaces/AAA", []tracker.Bug{bugWith(raw...)})

	got := out[0].Assignees
	if len(got) != len(raw) {
		t.Fatalf("count = %d, want %d", len(got), len(raw))
	}
	for i, a := range got {
		if a.Found || a.Handle != raw[i] {
			t.Fatalf("assignee[%d] = %+v, want raw %q", i, a, raw[i])
		}
	}
}

// In-flight lookups for one bug never exceed the chunk size.
func TestAssigneesBoundsConcurrency(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{handles: map[string]string{}, delay: 20 * time.Millisecond}
	const size = 2
	r := New(finder, size, logx.Nop())

	out := r.Assignees(t.Context(), "tok", "spaces/AAA",
		[]tracker.Bug{bugWith("a", "b", "c", "d", "e", "f")})

	if len(out[0].Assignees) != 6 {
		t.Fatalf("count = %d", len(out[0].Assignees))
	}
	if finder.maxSeen > size {
		t.Fatalf("max in-flight = %d, want <= %d", finder.maxSeen, size)
	}
}

func TestAssigneesEmptyInput(t *testing.T) {
	t.Parallel()
	r := New(&fakeFinder{}, 0, logx.Nop())
	out := r.Assignees(t.Context(), "tok", "spaces/AAA", nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("got %#v, want empty non-nil slice", out)
	}
}

func TestAssigneesBugWithoutAssignees(t *testing.T) {
	t.Parallel()
	r := New(&fakeFinder{}, 0, logx.Nop())
	out := r.Assignees(t.Context(), "tok", "spaces/AAA", []tracker.Bug{{Number: 9, Assignees: []tracker.Assignee{}}})
	if len(out) != 1 || len(out[0].Assignees) != 0 || out[0].Assignees == nil {
		t.Fatalf("out = %+v", out)
	}
}

func TestDefaultChunkSize(t *testing.T) {
	t.Parallel()
	r := New(&fakeFinder{}, 0, logx.Nop())
	if r.chunkSize != DefaultChunkSize {
		t.Fatalf("chunkSize = %d, want %d", r.chunkSize, DefaultChunkSize)
	}
	r = New(&fakeFinder{}, -3, logx.Nop())
	if r.chunkSize != DefaultChunkSize {
		t.Fatalf("chunkSize = %d, want %d", r.chunkSize, DefaultChunkSize)
	}
}
