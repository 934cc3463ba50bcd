package registry

import (
	"sort"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/access"
)

// Source tells where a listed user record came from.
type Source string

const (
	// SourceDB marks a record that holds local data.
	SourceDB Source = "db"
	// SourceGitHub marks a collaborator that has no local record yet.
	SourceGitHub Source = "github"
)

// UserRecord is one entry of the user registry.
type UserRecord struct {
	Username      string                  `json:"username"`
	Avatar        string                  `json:"avatar,omitempty"`
	LastSeenAt    *time.Time              `json:"lastSeenAt"`
	DeployAllowed access.DeployPermission `json:"deployAllowed,omitempty"`
	Source        Source                  `json:"source"`
}

// Users is the registry keyed by username.
type Users map[string]UserRecord

// Overrides returns the explicit deploy overrides of every record.
func (u Users) Overrides() access.Overrides {
	out := make(access.Overrides, len(u))

	for name, rec := range u {
		if rec.DeployAllowed.IsSet() {
			out[name] = rec.DeployAllowed
		}
	}

	return out
}

// Sorted returns the records ordered by username.
func (u Users) Sorted() []UserRecord {
	out := make([]UserRecord, 0, len(u))
	for _, rec := range u {
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})

	return out
}
