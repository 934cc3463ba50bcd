// Package access derives repository roles from GitHub permission flags and
// decides whether an identity may view runs, dispatch workflows, and manage
// the local user registry.
package access

import "strings"

// Role is the coarse permission tier of an identity on a repository.
type Role string

// Known roles. No other roles exist.
const (
	RoleViewer   Role = "viewer"
	RoleDeployer Role = "deployer"
	RoleAdmin    Role = "admin"
)

// Reasons reported when a deployment is not permitted.
const (
	ReasonRoleRequired = "requires elevated repository role"
	ReasonLocalPolicy  = "not permitted to deploy by local policy"
)

// PermissionFlags mirrors the permissions object GitHub returns for a
// repository fetched with the caller's token.
type PermissionFlags struct {
	Admin bool `json:"admin"`
	Push  bool `json:"push"`
	Pull  bool `json:"pull"`
}

// Decision is the derived authorization result for one identity on one
// repository. It is recomputed for every request.
type Decision struct {
	Role           Role   `json:"role"`
	CanDeploy      bool   `json:"canDeploy"`
	DeployReason   string `json:"deployReason,omitempty"`
	CanManageUsers bool   `json:"canManageUsers"`
}

// DeriveRole maps repository permission flags to a role. A nil input
// yields RoleViewer.
func DeriveRole(p *PermissionFlags) Role {
	switch {
	case p == nil:
		return RoleViewer
	case p.Admin:
		return RoleAdmin
	case p.Push:
		return RoleDeployer
	default:
		return RoleViewer
	}
}

// CanDeploy reports whether the role carries repository deploy rights.
func (r Role) CanDeploy() bool {
	return r == RoleAdmin || r == RoleDeployer
}

// IsDeployAllowed applies the local deploy policy, in order:
//
//  1. a username in the static allowlist is always allowed;
//  2. if any registry record carries an explicit override the registry is
//     managed, and the user's own explicit value decides (unset denies);
//  3. with neither an allowlist nor any override, everyone is allowed.
//
// A configured allowlist that does not contain the user, with an unmanaged
// registry, denies.
func IsDeployAllowed(
	username string,
	overrides Overrides,
	allowlist Allowlist,
) bool {
	username = strings.TrimSpace(username)

	if allowlist.Contains(username) {
		return true
	}

	if overrides.Managed() {
		return overrides[username] == DeployAllowed
	}

	return len(allowlist) == 0
}

// Evaluate combines the repository role with the local deploy policy. The
// role check is reported first when both fail.
func Evaluate(
	role Role,
	username string,
	overrides Overrides,
	allowlist Allowlist,
) Decision {
	d := Decision{
		Role:           role,
		CanManageUsers: role == RoleAdmin,
	}

	switch {
	case !role.CanDeploy():
		d.DeployReason = ReasonRoleRequired
	case !IsDeployAllowed(username, overrides, allowlist):
		d.DeployReason = ReasonLocalPolicy
	default:
		d.CanDeploy = true
	}

	return d
}

// Allowlist is the static set of usernames always permitted to deploy.
type Allowlist []string

// NewAllowlist normalizes a list of usernames. Entries may themselves be
// comma separated; blanks are dropped.
func NewAllowlist(users []string) Allowlist {
	out := make(Allowlist, 0, len(users))

	for _, u := range users {
		for _, part := range strings.Split(u, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}

	return out
}

// Contains reports an exact (case-sensitive) match after trimming.
func (a Allowlist) Contains(username string) bool {
	username = strings.TrimSpace(username)
	if username == "" {
		return false
	}

	for _, u := range a {
		if strings.TrimSpace(u) == username {
			return true
		}
	}

	return false
}
