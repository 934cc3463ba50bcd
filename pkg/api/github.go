package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/api/store"
	"github.com/ethpandaops/actionsdash/pkg/config"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const (
	githubStateBytes  = 16
	githubStateCookie = "github_oauth_state"
)

func newOAuthConfig(cfg *config.GitHubAuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     githuboauth.Endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}
}

// handleGitHubAuth initiates the GitHub OAuth flow.
func (s *server) handleGitHubAuth(
	w http.ResponseWriter, r *http.Request,
) {
	state, err := generateState()
	if err != nil {
		s.log.WithError(err).Error("Failed to generate OAuth state")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     githubStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   600, // 10 minutes
	})

	http.Redirect(w, r, s.oauth.AuthCodeURL(state),
		http.StatusTemporaryRedirect)
}

// handleGitHubCallback handles the OAuth callback from GitHub.
func (s *server) handleGitHubCallback(
	w http.ResponseWriter, r *http.Request,
) {
	stateCookie, err := r.Cookie(githubStateCookie)
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"missing oauth state cookie"})

		return
	}

	if r.URL.Query().Get("state") != stateCookie.Value {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid oauth state"})

		return
	}

	// Clear state cookie.
	http.SetCookie(w, &http.Cookie{
		Name:     githubStateCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"missing authorization code"})

		return
	}

	tok, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.log.WithError(err).Error("GitHub code exchange failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"github authentication failed"})

		return
	}

	ghUser, err := s.github.GetUser(r.Context(), tok.AccessToken)
	if err != nil {
		s.log.WithError(err).Error("Failed to fetch GitHub user")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"github authentication failed"})

		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.log.WithError(err).Error("Failed to generate session token")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	ttl := s.cfg.Auth.SessionTTL

	session := &store.Session{
		Token:       token,
		Username:    ghUser.Login,
		Avatar:      ghUser.AvatarURL,
		AccessToken: tok.AccessToken,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}

	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.log.WithError(err).Error("Failed to create session")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if err := s.registry.RecordSeen(
		r.Context(), ghUser.Login, ghUser.AvatarURL,
	); err != nil {
		s.log.WithError(err).
			WithField("user", ghUser.Login).
			Warn("Failed to record user as seen")
	}

	s.log.WithField("user", ghUser.Login).Info("User logged in")

	setSessionCookie(w, r, s.cfg.Auth.CookieName, token, ttl)

	http.Redirect(w, r, appRootURL(s.cfg.Auth.GitHub.RedirectURL),
		http.StatusTemporaryRedirect)
}

// appRootURL strips the OAuth callback path from the redirect URL so the
// browser lands on the app root.
func appRootURL(redirectURL string) string {
	for _, marker := range []string{"/auth/", "/api/"} {
		if idx := strings.Index(redirectURL, marker); idx >= 0 {
			redirectURL = redirectURL[:idx]
		}
	}

	if redirectURL == "" {
		return "/"
	}

	return redirectURL
}

// generateState creates a random OAuth state parameter.
func generateState() (string, error) {
	b := make([]byte, githubStateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	return hex.EncodeToString(b), nil
}
