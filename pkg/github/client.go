// Package github is a thin client for the GitHub REST endpoints the
// dashboard needs, always called with the signed-in user's token.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethpandaops/actionsdash/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	apiVersion           = "2022-11-28"
	collaboratorsPerPage = 100
	maxCollaboratorPages = 50
	pageConcurrency      = 4
	runsPerPage          = 10
	maxErrorBodyBytes    = 64 << 10
)

// Client exposes the GitHub calls used by the dashboard.
type Client interface {
	// GetUser returns the user owning token.
	GetUser(ctx context.Context, token string) (*User, error)

	// GetRepository returns repository metadata including the caller's
	// permission flags.
	GetRepository(ctx context.Context, repo RepoRef, token string) (*Repository, error)

	// ListCollaborators returns every collaborator of the repository.
	ListCollaborators(ctx context.Context, repo RepoRef, token string) ([]Collaborator, error)

	// ListWorkflowRuns returns the raw JSON of the latest workflow runs.
	ListWorkflowRuns(ctx context.Context, repo RepoRef, token string) (json.RawMessage, error)

	// ListRunJobs returns the raw JSON of the jobs of one run.
	ListRunJobs(ctx context.Context, repo RepoRef, runID int64, token string) (json.RawMessage, error)

	// DispatchWorkflow triggers a workflow_dispatch event on ref.
	DispatchWorkflow(ctx context.Context, repo RepoRef, workflow, ref, token string) error
}

// Compile-time interface check.
var _ Client = (*client)(nil)

type client struct {
	log     logrus.FieldLogger
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the configured API URL. Every request is
// bounded by cfg.Timeout.
func NewClient(log logrus.FieldLogger, cfg *config.GitHubConfig) Client {
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = config.DefaultGitHubAPIURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultGitHubTimeout
	}

	return &client{
		log:     log.WithField("component", "github"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) GetUser(ctx context.Context, token string) (*User, error) {
	var user User
	if _, err := c.do(ctx, http.MethodGet, "/user", nil, token, nil, &user); err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}

	return &user, nil
}

func (c *client) GetRepository(
	ctx context.Context, repo RepoRef, token string,
) (*Repository, error) {
	var out Repository
	if _, err := c.do(
		ctx, http.MethodGet, repoPath(repo, ""), nil, token, nil, &out,
	); err != nil {
		return nil, fmt.Errorf("fetching repository %s: %w", repo, err)
	}

	return &out, nil
}

// ListCollaborators fetches the first page, reads the last page number from
// the Link header, then fetches the remaining pages concurrently.
func (c *client) ListCollaborators(
	ctx context.Context, repo RepoRef, token string,
) ([]Collaborator, error) {
	path := repoPath(repo, "/collaborators")

	var first []Collaborator

	header, err := c.do(
		ctx, http.MethodGet, path, pageQuery(1), token, nil, &first,
	)
	if err != nil {
		return nil, fmt.Errorf("listing collaborators of %s: %w", repo, err)
	}

	last := lastPage(header.Get("Link"))
	if last <= 1 {
		return first, nil
	}

	if last > maxCollaboratorPages {
		c.log.WithField("repo", repo.String()).
			WithField("pages", last).
			Warn("Collaborator listing truncated")

		last = maxCollaboratorPages
	}

	pages := make([][]Collaborator, last-1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageConcurrency)

	for page := 2; page <= last; page++ {
		g.Go(func() error {
			var batch []Collaborator
			if _, err := c.do(
				gctx, http.MethodGet, path, pageQuery(page), token, nil, &batch,
			); err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}

			pages[page-2] = batch

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("listing collaborators of %s: %w", repo, err)
	}

	out := first
	for _, batch := range pages {
		out = append(out, batch...)
	}

	return out, nil
}

func (c *client) ListWorkflowRuns(
	ctx context.Context, repo RepoRef, token string,
) (json.RawMessage, error) {
	query := url.Values{"per_page": {strconv.Itoa(runsPerPage)}}

	var out json.RawMessage
	if _, err := c.do(
		ctx, http.MethodGet, repoPath(repo, "/actions/runs"), query, token, nil, &out,
	); err != nil {
		return nil, fmt.Errorf("listing workflow runs of %s: %w", repo, err)
	}

	return out, nil
}

func (c *client) ListRunJobs(
	ctx context.Context, repo RepoRef, runID int64, token string,
) (json.RawMessage, error) {
	path := repoPath(repo, "/actions/runs/"+strconv.FormatInt(runID, 10)+"/jobs")

	var out json.RawMessage
	if _, err := c.do(ctx, http.MethodGet, path, nil, token, nil, &out); err != nil {
		return nil, fmt.Errorf("listing jobs of run %d: %w", runID, err)
	}

	return out, nil
}

func (c *client) DispatchWorkflow(
	ctx context.Context, repo RepoRef, workflow, ref, token string,
) error {
	path := repoPath(repo,
		"/actions/workflows/"+url.PathEscape(workflow)+"/dispatches")

	body := map[string]string{"ref": ref}

	if _, err := c.do(ctx, http.MethodPost, path, nil, token, body, nil); err != nil {
		return fmt.Errorf("dispatching %s on %s: %w", workflow, repo, err)
	}

	return nil
}

// do performs one API request. A non-2xx status is returned as *APIError;
// out is decoded only for responses with a body.
func (c *client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	token string,
	body any,
	out any,
) (http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("Authorization", "Bearer "+token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.Header, fmt.Errorf("decoding response: %w", err)
	}

	return resp.Header, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
	}

	if json.Unmarshal(data, &payload) == nil {
		apiErr.Message = payload.Message
	}

	return apiErr
}

func repoPath(repo RepoRef, suffix string) string {
	return "/repos/" + url.PathEscape(repo.Owner) + "/" +
		url.PathEscape(repo.Repo) + suffix
}

func pageQuery(page int) url.Values {
	return url.Values{
		"per_page": {strconv.Itoa(collaboratorsPerPage)},
		"page":     {strconv.Itoa(page)},
	}
}

// lastPage extracts the page number of the rel="last" link, or 0.
func lastPage(link string) int {
	for _, part := range strings.Split(link, ",") {
		target, params, ok := strings.Cut(part, ";")
		if !ok || !strings.Contains(params, `rel="last"`) {
			continue
		}

		target = strings.Trim(strings.TrimSpace(target), "<>")

		u, err := url.Parse(target)
		if err != nil {
			return 0
		}

		n, err := strconv.Atoi(u.Query().Get("page"))
		if err != nil {
			return 0
		}

		return n
	}

	return 0
}
