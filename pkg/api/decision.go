package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethpandaops/actionsdash/pkg/access"
	"github.com/ethpandaops/actionsdash/pkg/api/store"
	"github.com/ethpandaops/actionsdash/pkg/github"
)

var errRepoRequired = errors.New("owner & repo required")

// repoAccess is the evaluated access of the session user on one repository.
type repoAccess struct {
	repo       github.RepoRef
	repository *github.Repository
	decision   access.Decision
}

type accessResponse struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	access.Decision
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// resolveRepo picks the repository a request is about: the owner/repo
// query parameters, then the given body values, then the session's last
// selected repository.
func resolveRepo(
	r *http.Request,
	session *store.Session,
	bodyOwner, bodyRepo string,
) (github.RepoRef, error) {
	q := r.URL.Query()

	candidates := []github.RepoRef{
		{Owner: q.Get("owner"), Repo: q.Get("repo")},
		{Owner: bodyOwner, Repo: bodyRepo},
	}

	if session != nil {
		candidates = append(candidates,
			github.RepoRef{Owner: session.LastOwner, Repo: session.LastRepo})
	}

	for _, c := range candidates {
		c.Owner = strings.TrimSpace(c.Owner)
		c.Repo = strings.TrimSpace(c.Repo)

		if c.IsZero() {
			continue
		}

		if err := c.Validate(); err != nil {
			return github.RepoRef{}, errRepoRequired
		}

		return c, nil
	}

	return github.RepoRef{}, errRepoRequired
}

// evaluate fetches the caller's repository permissions and combines them
// with the static allowlist and the current registry overrides.
func (s *server) evaluate(
	ctx context.Context,
	session *store.Session,
	repo github.RepoRef,
) (*repoAccess, error) {
	repository, err := s.github.GetRepository(ctx, repo, session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("checking repository permissions: %w", err)
	}

	role := access.DeriveRole(repository.Permissions)

	return &repoAccess{
		repo:       repo,
		repository: repository,
		decision: access.Evaluate(
			role, session.Username, s.registry.Overrides(ctx), s.allowlist,
		),
	}, nil
}

// writeGitHubError maps a gateway failure to a response. Authorization
// never fails open: anything but a missing repository is a 502.
func (s *server) writeGitHubError(w http.ResponseWriter, err error) {
	if errors.Is(err, github.ErrNotFound) {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"repository not found"})

		return
	}

	s.log.WithError(err).Warn("GitHub request failed")
	writeJSON(w, http.StatusBadGateway,
		errorResponse{"github request failed"})
}

// handleAccess returns the caller's access decision for a repository and
// remembers it as the session's selected repository.
func (s *server) handleAccess(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	q := r.URL.Query()

	repo := github.RepoRef{
		Owner: strings.TrimSpace(q.Get("owner")),
		Repo:  strings.TrimSpace(q.Get("repo")),
	}

	if err := repo.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{errRepoRequired.Error()})

		return
	}

	ra, err := s.evaluate(r.Context(), session, repo)
	if err != nil {
		s.writeGitHubError(w, err)

		return
	}

	if session.LastOwner != repo.Owner || session.LastRepo != repo.Repo {
		if err := s.store.UpdateSessionRepo(
			r.Context(), session.ID, repo.Owner, repo.Repo,
		); err != nil {
			s.log.WithError(err).Warn("Failed to remember selected repository")
		}
	}

	writeJSON(w, http.StatusOK, accessResponse{
		Owner:         repo.Owner,
		Repo:          repo.Repo,
		Decision:      ra.decision,
		DefaultBranch: ra.repository.DefaultBranch,
	})
}
