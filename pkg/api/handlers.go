package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethpandaops/actionsdash/pkg/github"
	"github.com/go-chi/chi/v5"
)

const defaultDispatchRef = "main"

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns the public configuration used by the UI.
func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"github_enabled": s.cfg.Auth.GitHub.ClientID != "",
		},
		"workflow_file": s.cfg.GitHub.WorkflowFile,
	})
}

// handleLogout destroys the current session.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.cfg.Auth.CookieName)
	if err == nil {
		_ = s.store.DeleteSession(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Authenticated handlers ---

type meResponse struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// handleMe returns the currently authenticated user.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	writeJSON(w, http.StatusOK, meResponse{
		Username: session.Username,
		Avatar:   session.Avatar,
	})
}

// handleRuns passes through the latest workflow runs of a repository.
func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	repo, err := resolveRepo(r, session, "", "")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	runs, err := s.github.ListWorkflowRuns(r.Context(), repo, session.AccessToken)
	if err != nil {
		s.writePassThroughError(w, err)

		return
	}

	writeRaw(w, runs)
}

// handleJobs passes through the jobs of one workflow run.
func (s *server) handleJobs(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	runID, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil || runID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid run id"})

		return
	}

	repo, err := resolveRepo(r, session, "", "")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	jobs, err := s.github.ListRunJobs(r.Context(), repo, runID, session.AccessToken)
	if err != nil {
		s.writePassThroughError(w, err)

		return
	}

	writeRaw(w, jobs)
}

type dispatchRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Ref   string `json:"ref"`
}

type dispatchResponse struct {
	OK       bool   `json:"ok"`
	Ref      string `json:"ref"`
	Workflow string `json:"workflow"`
}

// handleDispatch triggers the configured workflow when the caller may
// deploy. The ref defaults to the repository's default branch.
func (s *server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	repo, err := resolveRepo(r, session, req.Owner, req.Repo)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	ra, err := s.evaluate(r.Context(), session, repo)
	if err != nil {
		s.writeGitHubError(w, err)

		return
	}

	if !ra.decision.CanDeploy {
		writeJSON(w, http.StatusForbidden,
			errorResponse{ra.decision.DeployReason})

		return
	}

	ref := strings.TrimSpace(req.Ref)
	if ref == "" {
		ref = ra.repository.DefaultBranch
	}

	if ref == "" {
		ref = defaultDispatchRef
	}

	workflow := s.cfg.GitHub.WorkflowFile

	if err := s.github.DispatchWorkflow(
		r.Context(), repo, workflow, ref, session.AccessToken,
	); err != nil {
		s.writePassThroughError(w, err)

		return
	}

	s.log.WithField("user", session.Username).
		WithField("repo", repo.String()).
		WithField("ref", ref).
		Info("Workflow dispatched")

	writeJSON(w, http.StatusOK, dispatchResponse{
		OK:       true,
		Ref:      ref,
		Workflow: workflow,
	})
}

// writePassThroughError relays a GitHub API error status and message to
// the caller. Transport failures become 502.
func (s *server) writePassThroughError(w http.ResponseWriter, err error) {
	var apiErr *github.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}

		writeJSON(w, apiErr.StatusCode, errorResponse{msg})

		return
	}

	s.log.WithError(err).Warn("GitHub request failed")
	writeJSON(w, http.StatusBadGateway,
		errorResponse{"github request failed"})
}

func writeRaw(w http.ResponseWriter, data json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
