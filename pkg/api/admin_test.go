package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/ethpandaops/actionsdash/pkg/access"
	"github.com/ethpandaops/actionsdash/pkg/github"
	"github.com/ethpandaops/actionsdash/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUsersTestServer(t *testing.T) *testServer {
	t.Helper()

	return newTestServer(t, &fakeGitHub{
		perms: map[string]*access.PermissionFlags{
			"tok-alice": adminPerms,
			"tok-bob":   deployerPerms,
		},
		collaborators: []github.Collaborator{
			{Login: "frank", AvatarURL: "https://avatars/frank"},
			{Login: "bob", AvatarURL: "https://avatars/bob-gh"},
		},
	})
}

func TestUsers_RequireAdmin(t *testing.T) {
	ts := newUsersTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/users?owner=org&repo=app", "", ts.login(t, "bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"insufficient permissions"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/api/users/carol?owner=org&repo=app",
		`{"deployAllowed":true}`, ts.login(t, "bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// No repository context at all.
	rec = ts.do(t, http.MethodGet, "/api/users", "", ts.login(t, "alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsers_ListMerged(t *testing.T) {
	ts := newUsersTestServer(t)
	cookie := ts.login(t, "alice")

	// Selecting the repository lets /api/users resolve it from the session.
	rec := ts.do(t, http.MethodGet, "/api/access?owner=org&repo=app", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/users", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[listUsersResponse](t, rec)
	assert.Equal(t, "org", got.Owner)
	assert.Equal(t, "app", got.Repo)

	names := make([]string, 0, len(got.Users))
	for _, u := range got.Users {
		names = append(names, u.Username)
	}

	// alice was recorded as seen by the authenticated requests.
	assert.Equal(t, []string{"alice", "bob", "frank"}, names)
	assert.Equal(t, registry.SourceDB, got.Users[0].Source)
	assert.Equal(t, registry.SourceGitHub, got.Users[1].Source)
	assert.Equal(t, registry.SourceGitHub, got.Users[2].Source)
}

func TestUsers_SetOverride(t *testing.T) {
	ts := newUsersTestServer(t)
	cookie := ts.login(t, "alice")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "missing value", body: `{}`, status: http.StatusBadRequest},
		{name: "null value", body: `{"deployAllowed":null}`, status: http.StatusBadRequest},
		{name: "string value", body: `{"deployAllowed":"yes"}`, status: http.StatusBadRequest},
		{name: "invalid json", body: `{`, status: http.StatusBadRequest},
		{name: "false", body: `{"deployAllowed":false}`, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPut, "/api/users/frank?owner=org&repo=app", tt.body, cookie)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	overrides := ts.registry.Overrides(context.Background())
	assert.Equal(t, access.DeployDenied, overrides["frank"])
	assert.True(t, overrides.Managed())
}

func TestUsers_AddAndRemove(t *testing.T) {
	ts := newUsersTestServer(t)
	cookie := ts.login(t, "alice")

	rec := ts.do(t, http.MethodPost, "/api/users?owner=org&repo=app",
		`{"username":"grace"}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deployAllowed")

	rec = ts.do(t, http.MethodPost, "/api/users?owner=org&repo=app",
		`{"username":"heidi","deployAllowed":true}`, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	got := decode[registry.UserRecord](t, rec)
	assert.Equal(t, access.DeployAllowed, got.DeployAllowed)

	rec = ts.do(t, http.MethodPost, "/api/users?owner=org&repo=app",
		`{"username":"   "}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/users/heidi?owner=org&repo=app", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/users/nobody?owner=org&repo=app", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.NotContains(t, ts.registry.Overrides(context.Background()), "heidi")
}

func TestUsers_PersistFailure(t *testing.T) {
	gh := &fakeGitHub{perms: map[string]*access.PermissionFlags{"tok-alice": adminPerms}}

	ts := newTestServerWithBackend(t, gh, func(b registry.Backend) registry.Backend {
		return failingBackend{Backend: b}
	})

	rec := ts.do(t, http.MethodPut, "/api/users/eve?owner=org&repo=app",
		`{"deployAllowed":false}`, ts.login(t, "alice"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	got := decode[errorResponse](t, rec)
	assert.Contains(t, got.Error, "failed to persist user registry")
	assert.Contains(t, got.Error, "read-only file system")
}

func TestUsers_RegistryReadFailureKeepsOverrides(t *testing.T) {
	ctx := context.Background()
	gh := &fakeGitHub{perms: map[string]*access.PermissionFlags{
		"tok-alice":   adminPerms,
		"tok-mallory": deployerPerms,
	}}

	var failing atomic.Bool

	ts := newTestServerWithBackend(t, gh, func(b registry.Backend) registry.Backend {
		return flakyReadBackend{Backend: b, failing: &failing}
	})

	admin := ts.login(t, "alice")
	mallory := ts.login(t, "mallory")

	_, err := ts.registry.SetOverride(ctx, "bob", true)
	require.NoError(t, err)

	failing.Store(true)

	// The seen write is skipped; the request itself still succeeds.
	rec := ts.do(t, http.MethodGet, "/api/me", "", mallory)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/users/mallory?owner=org&repo=app",
		`{"deployAllowed":true}`, admin)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "failed to read user registry")

	failing.Store(false)

	overrides := ts.registry.Overrides(ctx)
	assert.Equal(t, access.Overrides{"bob": access.DeployAllowed}, overrides)

	rec = ts.do(t, http.MethodGet, "/api/access?owner=org&repo=app", "", mallory)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[accessResponse](t, rec).CanDeploy)
}
