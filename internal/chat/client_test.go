package chat

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"bugle/pkg/logx"
)

func TestFindMember(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
	}{
		{
			name:   "resolves to user handle",
			status: http.StatusOK,
			body:   `{"name": "spaces/AAA/members/112233"}`,
			want:   "users/112233",
		},
		{
			name:   "missing name field",
			status: http.StatusOK,
			body:   `{}`,
			want:   "",
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{"error": {"code": 404}}`,
			want:   "",
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   ``,
			want:   "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer tok" {
					t.Errorf("Authorization = %q", got)
				}
				if r.URL.Path != "/v1/spaces/AAA/members/dev@example.com" {
					t.Errorf("path = %q", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := New(logx.Nop(), WithBaseURL(srv.URL))
			if got := c.FindMember(t.Context(), "tok", "spaces/AAA", "dev@example.com"); got != tt.want {
				t.Fatalf("FindMember = %q, want %q", got, tt.want)
			}
		})
	}
}

// An empty email is "nothing to resolve": no request, no log.
func TestFindMemberEmptyEmail(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(logx.Nop(), WithBaseURL(srv.URL))
	if got := c.FindMember(t.Context(), "tok", "spaces/AAA", ""); got != "" {
		t.Fatalf("FindMember = %q, want empty", got)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no HTTP call, got %d", calls.Load())
	}
}

func TestCreateMessage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/spaces/AAA/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		var msg map[string]any
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if msg["formattedText"] != "hello" {
			t.Errorf("formattedText = %v", msg["formattedText"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(logx.Nop(), WithBaseURL(srv.URL))
	err := c.CreateMessage(t.Context(), "tok", "spaces/AAA", &Message{FormattedText: "hello"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
}

func TestCreateMessageNon2xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(logx.Nop(), WithBaseURL(srv.URL))
	if err := c.CreateMessage(t.Context(), "tok", "spaces/AAA", &Message{FormattedText: "x"}); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
