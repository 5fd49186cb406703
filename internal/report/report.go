// Package report reads the spreadsheet-backed data sources: the on-call
// shift roster and the weekly stats report. Both are served by Apps Script
// endpoints speaking a {status, data|message} envelope.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Employee is one roster entry. The first entry of a day's roster is the
// bug PIC (person in charge).
type Employee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Resource wraps one sub-report of the weekly stats. Each sub-report can
// fail independently server-side; Data is nil in that case and Error says
// why.
type Resource[T any] struct {
	Data  *T      `json:"data"`
	Error *string `json:"error"`
}

type BugCounts struct {
	// Open counts open bugs by priority (P0, P1, P2). Closed adds a fourth
	// bucket for bugs closed as enhancements.
	Open   []int `json:"open"`
	Closed []int `json:"closed"`
}

type BugStats struct {
	Internal BugCounts `json:"internal"`
	External BugCounts `json:"external"`
}

type AIPStats struct {
	Model    string              `json:"model"`
	Users    int                 `json:"users"`
	Scenario map[string]Scenario `json:"scenario"`
}

// Scenario is serialized upstream as a two-element tuple: [seconds, target].
type Scenario struct {
	Seconds float64
	Target  string
}

func (s *Scenario) UnmarshalJSON(b []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return fmt.Errorf("report: scenario is not a 2-tuple: %w", err)
	}
	if err := json.Unmarshal(tuple[0], &s.Seconds); err != nil {
		return fmt.Errorf("report: scenario seconds: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &s.Target); err != nil {
		return fmt.Errorf("report: scenario target: %w", err)
	}
	return nil
}

type WeeklyReport struct {
	Bugs        Resource[BugStats] `json:"bugs"`
	Performance Resource[[]string] `json:"performance"`
	AIP         Resource[AIPStats] `json:"aip"`
}

// envelope is the Apps Script response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type Client struct {
	scriptURL string
	shiftURL  string
	http      *http.Client
}

func New(scriptURL, shiftURL string) *Client {
	return &Client{
		scriptURL: scriptURL,
		shiftURL:  shiftURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the HTTP client (tests).
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

// Schedule fetches the shift roster for the given date. The date is sent
// unpadded (e.g. "2025-6-2") because that is what the sheet script expects.
func (c *Client) Schedule(ctx context.Context, date time.Time) ([]Employee, error) {
	u, err := url.Parse(c.shiftURL)
	if err != nil {
		return nil, fmt.Errorf("report: shift url: %w", err)
	}
	q := u.Query()
	q.Set("date", fmt.Sprintf("%d-%d-%d", date.Year(), int(date.Month()), date.Day()))
	u.RawQuery = q.Encode()

	var roster []Employee
	if err := c.get(ctx, u.String(), &roster); err != nil {
		return nil, fmt.Errorf("report: fetch schedule: %w", err)
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("report: schedule data is empty")
	}
	return roster, nil
}

// Weekly fetches the weekly stats report.
func (c *Client) Weekly(ctx context.Context) (*WeeklyReport, error) {
	var rep WeeklyReport
	if err := c.get(ctx, c.scriptURL, &rep); err != nil {
		return nil, fmt.Errorf("report: fetch weekly report: %w", err)
	}
	return &rep, nil
}

// get performs a GET and unwraps the {status, data|message} envelope into out.
func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Status {
	case "success":
		if len(env.Data) == 0 {
			return fmt.Errorf("success envelope without data")
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
		return nil
	case "failed":
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = "no message"
		}
		return fmt.Errorf("script reported failure: %s", msg)
	default:
		return fmt.Errorf("unknown envelope status %q", env.Status)
	}
}
