// Package resolve maps bug assignees from their tracker identities (emails
// or logins) to chat user handles.
//
// Lookups fan out in fixed-size chunks: all members of a chunk resolve
// concurrently, and the next chunk does not start until the previous one has
// fully completed. The chunk boundary is the mechanism that keeps the number
// of in-flight directory requests under the upstream concurrency ceiling;
// there is no other rate limiting here.
package resolve

import (
	"context"
	"sync"

	"bugle/internal/chunk"
	"bugle/internal/tracker"
	"bugle/pkg/logx"
)

// DefaultChunkSize bounds concurrent member lookups per bug.
const DefaultChunkSize = 5

// MemberFinder resolves one email to a chat handle ("users/<id>"), or ""
// when the identity cannot be resolved. Implemented by chat.Client.
type MemberFinder interface {
	FindMember(ctx context.Context, token, space, email string) string
}

type Resolver struct {
	finder    MemberFinder
	chunkSize int
	log       logx.Logger
}

// New builds a Resolver. A non-positive chunkSize falls back to
// DefaultChunkSize, so a zero config value is always safe.
func New(finder MemberFinder, chunkSize int, log logx.Logger) *Resolver {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Resolver{finder: finder, chunkSize: chunkSize, log: log}
}

// Assignees returns a copy of bugs with every resolvable assignee replaced
// by its chat handle. Bug order, assignee order, and assignee count are
// preserved exactly; an assignee that cannot be resolved keeps its raw
// identity. Bugs resolve concurrently with each other, each one running its
// own chunked lookup pipeline.
func (r *Resolver) Assignees(ctx context.Context, token, space string, bugs []tracker.Bug) []tracker.Bug {
	if len(bugs) == 0 {
		return []tracker.Bug{}
	}

	out := make([]tracker.Bug, len(bugs))
	var wg sync.WaitGroup
	wg.Add(len(bugs))
	for i := range bugs {
		go func(i int) {
			defer wg.Done()
			out[i] = r.resolveBug(ctx, token, space, bugs[i])
		}(i)
	}
	wg.Wait()
	return out
}

func (r *Resolver) resolveBug(ctx context.Context, token, space string, bug tracker.Bug) tracker.Bug {
	resolved := bug
	resolved.Assignees = make([]tracker.Assignee, len(bug.Assignees))
	copy(resolved.Assignees, bug.Assignees)
	if len(bug.Assignees) == 0 {
		return resolved
	}

	indices := make([]int, len(bug.Assignees))
	for i := range indices {
		indices[i] = i
	}
	chunks, err := chunk.Slices(indices, r.chunkSize)
	if err != nil {
		// Unreachable with a validated chunk size; keep the raw identities.
		r.log.Error("assignee chunking failed", logx.Int("bug", bug.Number), logx.Err(err))
		return resolved
	}

	// Chunks run strictly one after another; members of a chunk race. Each
	// goroutine writes its own slot, so recombination is just index order.
	for _, c := range chunks {
		var wg sync.WaitGroup
		wg.Add(len(c))
		for _, idx := range c {
			go func(idx int) {
				defer wg.Done()
				raw := bug.Assignees[idx]
				if handle := r.finder.FindMember(ctx, token, space, raw.Handle); handle != "" {
					resolved.Assignees[idx] = tracker.Assignee{Found: true, Handle: handle}
				}
			}(idx)
		}
		wg.Wait()
	}
	return resolved
}
