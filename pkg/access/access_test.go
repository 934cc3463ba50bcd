package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveRole(t *testing.T) {
	tests := []struct {
		name     string
		flags    *PermissionFlags
		expected Role
	}{
		{name: "nil flags", flags: nil, expected: RoleViewer},
		{name: "empty flags", flags: &PermissionFlags{}, expected: RoleViewer},
		{name: "pull only", flags: &PermissionFlags{Pull: true}, expected: RoleViewer},
		{name: "push", flags: &PermissionFlags{Push: true}, expected: RoleDeployer},
		{name: "admin without push", flags: &PermissionFlags{Admin: true}, expected: RoleAdmin},
		{name: "admin with push", flags: &PermissionFlags{Admin: true, Push: true}, expected: RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveRole(tt.flags))
			// Deterministic on repeated calls.
			assert.Equal(t, tt.expected, DeriveRole(tt.flags))
		})
	}
}

func TestIsDeployAllowed(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		overrides Overrides
		allowlist Allowlist
		expected  bool
	}{
		{
			name:      "static allowlist beats explicit deny",
			username:  "alice",
			overrides: Overrides{"alice": DeployDenied},
			allowlist: Allowlist{"alice"},
			expected:  true,
		},
		{
			name:      "allowlist entry is trimmed",
			username:  "alice",
			allowlist: Allowlist{"  alice "},
			expected:  true,
		},
		{
			name:      "allowlist match is case sensitive",
			username:  "Alice",
			allowlist: Allowlist{"alice"},
			expected:  false,
		},
		{
			name:      "managed registry allows explicit true",
			username:  "bob",
			overrides: Overrides{"bob": DeployAllowed},
			expected:  true,
		},
		{
			name:      "managed registry matches trimmed username",
			username:  " bob ",
			overrides: Overrides{"bob": DeployAllowed},
			expected:  true,
		},
		{
			name:      "managed registry denies user without record",
			username:  "carol",
			overrides: Overrides{"bob": DeployAllowed},
			expected:  false,
		},
		{
			name:      "managed registry denies user with unset override",
			username:  "carol",
			overrides: Overrides{"bob": DeployAllowed, "carol": DeployUnset},
			expected:  false,
		},
		{
			name:      "managed registry honours explicit deny",
			username:  "bob",
			overrides: Overrides{"bob": DeployDenied},
			expected:  false,
		},
		{
			name:      "open default with no configuration",
			username:  "anyone",
			overrides: Overrides{"dave": DeployUnset},
			expected:  true,
		},
		{
			name:     "open default with nil snapshot",
			username: "anyone",
			expected: true,
		},
		{
			name:      "allowlist configured without user and unmanaged registry",
			username:  "mallory",
			allowlist: Allowlist{"alice"},
			expected:  false,
		},
		{
			name:      "allowlist miss falls through to managed registry",
			username:  "bob",
			overrides: Overrides{"bob": DeployAllowed},
			allowlist: Allowlist{"alice"},
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected,
				IsDeployAllowed(tt.username, tt.overrides, tt.allowlist))
		})
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("viewer is denied by role first", func(t *testing.T) {
		d := Evaluate(RoleViewer, "eve", Overrides{"bob": DeployAllowed}, nil)

		assert.False(t, d.CanDeploy)
		assert.Equal(t, ReasonRoleRequired, d.DeployReason)
		assert.False(t, d.CanManageUsers)
	})

	t.Run("deployer denied by local policy", func(t *testing.T) {
		d := Evaluate(RoleDeployer, "eve", Overrides{"bob": DeployAllowed}, nil)

		assert.False(t, d.CanDeploy)
		assert.Equal(t, ReasonLocalPolicy, d.DeployReason)
		assert.False(t, d.CanManageUsers)
	})

	t.Run("admin allowed in open mode", func(t *testing.T) {
		d := Evaluate(RoleAdmin, "root", nil, nil)

		assert.True(t, d.CanDeploy)
		assert.Empty(t, d.DeployReason)
		assert.True(t, d.CanManageUsers)
	})

	t.Run("admin can manage users even when denied deploy", func(t *testing.T) {
		d := Evaluate(RoleAdmin, "root", Overrides{"root": DeployDenied}, nil)

		assert.False(t, d.CanDeploy)
		assert.Equal(t, ReasonLocalPolicy, d.DeployReason)
		assert.True(t, d.CanManageUsers)
	})

	t.Run("deploy reason omitted from json when allowed", func(t *testing.T) {
		data, err := json.Marshal(Evaluate(RoleDeployer, "bob", nil, nil))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "deployReason")
	})
}

func TestNewAllowlist(t *testing.T) {
	assert.Equal(t, Allowlist{"alice", "bob"}, NewAllowlist([]string{" alice, ,bob,"}))
	assert.Empty(t, NewAllowlist([]string{""}))
	assert.Equal(t, Allowlist{"a", "b", "c"}, NewAllowlist([]string{"a,b", " c "}))
}

func TestDeployPermission_JSON(t *testing.T) {
	type record struct {
		DeployAllowed DeployPermission `json:"deployAllowed,omitempty"`
	}

	tests := []struct {
		name     string
		input    string
		expected DeployPermission
		encoded  string
	}{
		{name: "true", input: `{"deployAllowed":true}`, expected: DeployAllowed, encoded: `{"deployAllowed":true}`},
		{name: "false", input: `{"deployAllowed":false}`, expected: DeployDenied, encoded: `{"deployAllowed":false}`},
		{name: "null", input: `{"deployAllowed":null}`, expected: DeployUnset, encoded: `{}`},
		{name: "absent", input: `{}`, expected: DeployUnset, encoded: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r record
			require.NoError(t, json.Unmarshal([]byte(tt.input), &r))
			assert.Equal(t, tt.expected, r.DeployAllowed)

			out, err := json.Marshal(r)
			require.NoError(t, err)
			assert.JSONEq(t, tt.encoded, string(out))
		})
	}

	t.Run("rejects non-boolean", func(t *testing.T) {
		var r record
		require.Error(t, json.Unmarshal([]byte(`{"deployAllowed":"yes"}`), &r))
		require.Error(t, json.Unmarshal([]byte(`{"deployAllowed":1}`), &r))
	})
}

func TestOverrides_Managed(t *testing.T) {
	assert.False(t, Overrides(nil).Managed())
	assert.False(t, Overrides{"a": DeployUnset}.Managed())
	assert.True(t, Overrides{"a": DeployUnset, "b": DeployDenied}.Managed())
}
