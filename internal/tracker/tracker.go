// Package tracker fetches open bug issues from GitHub and normalizes them
// into the record shape the digest pipeline consumes.
package tracker

import (
	"time"
)

// Assignee is one entry of a bug's assignee list. Fresh from the tracker,
// Handle carries the raw external identity (email when the profile exposes
// one, login otherwise) and Found is false. The resolution pipeline replaces
// entries it can map to a chat handle; everything else stays as-is, so the
// list never loses an entry.
type Assignee struct {
	Found  bool
	Handle string
}

// Bug is a normalized open issue carrying the `bug` label.
type Bug struct {
	Number    int
	Title     string
	URL       string
	CreatedAt time.Time
	// Reporter is the raw issue author login; it is never resolved.
	Reporter  string
	Assignees []Assignee
}
