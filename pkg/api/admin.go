package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethpandaops/actionsdash/pkg/access"
	"github.com/ethpandaops/actionsdash/pkg/registry"
	"github.com/go-chi/chi/v5"
)

// --- User registry management ---

type listUsersResponse struct {
	Owner string                `json:"owner"`
	Repo  string                `json:"repo"`
	Users []registry.UserRecord `json:"users"`
}

// handleListUsers returns stored users merged with the repository's
// collaborators.
func (s *server) handleListUsers(
	w http.ResponseWriter, r *http.Request,
) {
	session := sessionFromContext(r.Context())
	ra := accessFromContext(r.Context())

	users := s.registry.ListMerged(r.Context(), ra.repo, session.AccessToken)

	writeJSON(w, http.StatusOK, listUsersResponse{
		Owner: ra.repo.Owner,
		Repo:  ra.repo.Repo,
		Users: users,
	})
}

type addUserRequest struct {
	Username      string `json:"username"`
	DeployAllowed *bool  `json:"deployAllowed"`
}

// handleAddUser creates or updates a registry record. deployAllowed is
// optional.
func (s *server) handleAddUser(
	w http.ResponseWriter, r *http.Request,
) {
	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	perm := access.DeployUnset
	if req.DeployAllowed != nil {
		perm = access.PermissionFromBool(*req.DeployAllowed)
	}

	rec, err := s.registry.AddUser(r.Context(), req.Username, perm)
	if err != nil {
		s.writeRegistryError(w, err)

		return
	}

	s.log.WithField("user", rec.Username).
		WithField("by", sessionFromContext(r.Context()).Username).
		WithField("deploy_allowed", rec.DeployAllowed.String()).
		Info("User added to registry")

	writeJSON(w, http.StatusCreated, rec)
}

type setOverrideRequest struct {
	DeployAllowed *bool `json:"deployAllowed"`
}

// handleSetOverride sets an explicit deploy override. The boolean is
// mandatory.
func (s *server) handleSetOverride(
	w http.ResponseWriter, r *http.Request,
) {
	var req setOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"deployAllowed must be a boolean"})

		return
	}

	if req.DeployAllowed == nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"deployAllowed must be a boolean"})

		return
	}

	rec, err := s.registry.SetOverride(
		r.Context(), chi.URLParam(r, "username"), *req.DeployAllowed,
	)
	if err != nil {
		s.writeRegistryError(w, err)

		return
	}

	s.log.WithField("user", rec.Username).
		WithField("by", sessionFromContext(r.Context()).Username).
		WithField("deploy_allowed", *req.DeployAllowed).
		Info("Deploy override updated")

	writeJSON(w, http.StatusOK, rec)
}

// handleRemoveUser deletes a registry record.
func (s *server) handleRemoveUser(
	w http.ResponseWriter, r *http.Request,
) {
	username := chi.URLParam(r, "username")

	if err := s.registry.RemoveOverride(r.Context(), username); err != nil {
		s.writeRegistryError(w, err)

		return
	}

	s.log.WithField("user", username).
		WithField("by", sessionFromContext(r.Context()).Username).
		Info("User removed from registry")

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrInvalidUsername):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	case errors.Is(err, registry.ErrStoreRead):
		s.log.WithError(err).Error("Failed to read user registry")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{err.Error()})
	case errors.Is(err, registry.ErrStoreWrite):
		s.log.WithError(err).Error("Failed to persist user registry")
		writeJSON(w, http.StatusInternalServerError, errorResponse{err.Error()})
	default:
		s.log.WithError(err).Error("User registry operation failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})
	}
}
