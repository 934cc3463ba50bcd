package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethpandaops/actionsdash/pkg/access"
)

// ErrNotFound is matched (via errors.Is) by an *APIError with status 404.
// GitHub also answers 404 for private repositories the token cannot see.
var ErrNotFound = errors.New("github resource not found")

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github api returned status %d", e.StatusCode)
	}

	return fmt.Sprintf("github api returned status %d: %s", e.StatusCode, e.Message)
}

// Is reports a 404 as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// RepoRef names a repository.
type RepoRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// Validate checks that both parts are present and contain no path
// separators.
func (r RepoRef) Validate() error {
	if r.Owner == "" || r.Repo == "" {
		return fmt.Errorf("owner and repo are required")
	}

	if strings.ContainsAny(r.Owner+r.Repo, "/?#") {
		return fmt.Errorf("invalid repository %q", r.String())
	}

	return nil
}

// IsZero reports whether neither part is set.
func (r RepoRef) IsZero() bool {
	return r.Owner == "" && r.Repo == ""
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Repo
}

// Repository is the subset of GET /repos/{owner}/{repo} used here.
// Permissions reflect the token that fetched it.
type Repository struct {
	FullName      string                  `json:"full_name"`
	DefaultBranch string                  `json:"default_branch"`
	Private       bool                    `json:"private"`
	Permissions   *access.PermissionFlags `json:"permissions"`
}

// Collaborator is one entry of GET /repos/{owner}/{repo}/collaborators.
type Collaborator struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// User is the authenticated GitHub user.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}
