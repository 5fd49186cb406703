package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"bugle/pkg/logx"
)

// bugLabel is matched case-sensitively by the GitHub API.
const bugLabel = "bug"

type Config struct {
	Token string
	Owner string
	Repo  string
}

// Client lists open bug issues for one repository.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
	log   logx.Logger
}

// New builds a client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with token auth)
func New(cfg Config, log logx.Logger) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(cfg.Token)

	return &Client{gh: client, owner: cfg.Owner, repo: cfg.Repo, log: log}
}

// NewWithBaseURL builds a Client against a custom API endpoint. Used by
// tests to point the client at an httptest server, and for GHE installs.
func NewWithBaseURL(httpClient *http.Client, baseURL string, cfg Config, log logx.Logger) (*Client, error) {
	client := gh.NewClient(httpClient).WithAuthToken(cfg.Token)
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("tracker: parse base URL: %w", err)
	}
	client.BaseURL = u
	return &Client{gh: client, owner: cfg.Owner, repo: cfg.Repo, log: log}, nil
}

// ActiveBugs returns every open issue labeled `bug`, normalized. Pull
// requests (which GitHub also reports as issues) are skipped. A fetch
// failure returns an empty slice and the error; callers log once and decide
// whether to degrade or abort.
//
// Assignee identities are the profile email when public, the login
// otherwise. Resolution into chat handles is a separate downstream step.
func (c *Client) ActiveBugs(ctx context.Context) ([]Bug, error) {
	opts := &gh.IssueListByRepoOptions{
		Labels:      []string{bugLabel},
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	bugs := []Bug{}
	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return []Bug{}, fmt.Errorf("tracker: listing issues for %s/%s (page %d): %w", c.owner, c.repo, opts.ListOptions.Page, err)
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			bugs = append(bugs, c.normalize(ctx, issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return bugs, nil
}

func (c *Client) normalize(ctx context.Context, issue *gh.Issue) Bug {
	b := Bug{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		URL:       issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		Reporter:  issue.GetUser().GetLogin(),
		Assignees: []Assignee{},
	}

	for _, u := range issue.Assignees {
		b.Assignees = append(b.Assignees, Assignee{Handle: c.assigneeIdentity(ctx, u)})
	}
	return b
}

// assigneeIdentity fetches the assignee's full profile for its email; the
// issue payload only carries the login. A profile without a public email
// (or a failed fetch) degrades to the login.
func (c *Client) assigneeIdentity(ctx context.Context, u *gh.User) string {
	login := u.GetLogin()
	full, _, err := c.gh.Users.Get(ctx, login)
	if err != nil {
		c.log.Warn("assignee profile fetch failed; using login",
			logx.String("login", login), logx.Err(err))
		return login
	}
	if email := full.GetEmail(); email != "" {
		return email
	}
	return login
}
