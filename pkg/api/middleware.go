package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/api/store"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	accessContextKey  contextKey = "access"
)

const lastActiveThrottle = 5 * time.Minute

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// requireAuth validates the session cookie, records the user as seen and
// injects the session into the request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cfg.Auth.CookieName)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		session, err := s.store.GetSessionByToken(r.Context(), cookie.Value)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		if time.Now().UTC().After(session.ExpiresAt) {
			_ = s.store.DeleteSession(r.Context(), cookie.Value)
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		if session.LastActiveAt == nil ||
			time.Since(*session.LastActiveAt) > lastActiveThrottle {
			go func() {
				if err := s.store.UpdateSessionLastActive(
					context.Background(), session.ID, time.Now().UTC(),
				); err != nil {
					s.log.WithError(err).
						Warn("Failed to update session last active")
				}
			}()
		}

		if err := s.registry.RecordSeen(
			r.Context(), session.Username, session.Avatar,
		); err != nil {
			s.log.WithError(err).
				WithField("user", session.Username).
				Warn("Failed to record user as seen")
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireManageUsers evaluates the caller's access to the selected
// repository and only lets repository admins through. The evaluated access
// is stored in the request context.
func (s *server) requireManageUsers(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sessionFromContext(r.Context())
		if session == nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		repo, err := resolveRepo(r, session, "", "")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}

		ra, err := s.evaluate(r.Context(), session, repo)
		if err != nil {
			s.writeGitHubError(w, err)

			return
		}

		if !ra.decision.CanManageUsers {
			writeJSON(w, http.StatusForbidden,
				errorResponse{"insufficient permissions"})

			return
		}

		ctx := context.WithValue(r.Context(), accessContextKey, ra)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromContext extracts the authenticated session from the request
// context.
func sessionFromContext(ctx context.Context) *store.Session {
	session, _ := ctx.Value(sessionContextKey).(*store.Session)

	return session
}

func accessFromContext(ctx context.Context) *repoAccess {
	ra, _ := ctx.Value(accessContextKey).(*repoAccess)

	return ra
}
