// Package registry keeps the locally managed list of dashboard users and
// their per-user deploy overrides.
package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/access"
	"github.com/ethpandaops/actionsdash/pkg/github"
	"github.com/sirupsen/logrus"
)

// ErrInvalidUsername is returned for empty or whitespace-only usernames.
var ErrInvalidUsername = errors.New("username is required")

// CollaboratorLister lists the collaborators of a repository.
type CollaboratorLister interface {
	ListCollaborators(ctx context.Context, repo github.RepoRef, token string) ([]github.Collaborator, error)
}

// Service applies registry operations. Every mutation is a serialized
// load, modify, save cycle that persists before returning.
type Service struct {
	log           logrus.FieldLogger
	store         *Store
	collaborators CollaboratorLister
	now           func() time.Time
	mu            sync.Mutex
}

// NewService creates a Service. collaborators may be nil, in which case
// ListMerged returns stored records only.
func NewService(
	log logrus.FieldLogger,
	store *Store,
	collaborators CollaboratorLister,
) *Service {
	return &Service{
		log:           log.WithField("component", "registry"),
		store:         store,
		collaborators: collaborators,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RecordSeen creates or refreshes the record of a user who just
// authenticated. The deploy override is never touched. When the registry
// cannot be read the write is skipped and ErrStoreRead returned.
func (s *Service) RecordSeen(ctx context.Context, username, avatar string) error {
	name, err := normalizeUsername(username)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.store.loadForUpdate(ctx)
	if err != nil {
		return err
	}

	now := s.now()

	rec, ok := users[name]
	if !ok {
		rec = UserRecord{Username: name, Source: SourceDB}
	}

	if avatar != "" {
		rec.Avatar = avatar
	}

	rec.LastSeenAt = &now
	users[name] = rec

	return s.store.Save(ctx, users)
}

// ListMerged returns stored records merged with the repository's
// collaborators, sorted by username. Stored data wins; a collaborator's
// avatar only fills an empty one. A collaborator listing failure is logged
// and the stored records are returned alone. The merge is not persisted.
func (s *Service) ListMerged(
	ctx context.Context, repo github.RepoRef, token string,
) []UserRecord {
	users := s.load(ctx)

	if s.collaborators == nil {
		return users.Sorted()
	}

	collaborators, err := s.collaborators.ListCollaborators(ctx, repo, token)
	if err != nil {
		s.log.WithError(err).
			WithField("repo", repo.String()).
			Warn("Failed to list collaborators, returning stored users only")

		return users.Sorted()
	}

	for _, c := range collaborators {
		name := strings.TrimSpace(c.Login)
		if name == "" {
			continue
		}

		rec, ok := users[name]
		if !ok {
			users[name] = UserRecord{
				Username: name,
				Avatar:   c.AvatarURL,
				Source:   SourceGitHub,
			}

			continue
		}

		if rec.Avatar == "" {
			rec.Avatar = c.AvatarURL
			users[name] = rec
		}
	}

	return users.Sorted()
}

// SetOverride sets an explicit deploy override, creating the record if
// needed.
func (s *Service) SetOverride(
	ctx context.Context, username string, allowed bool,
) (UserRecord, error) {
	return s.upsert(ctx, username, access.PermissionFromBool(allowed))
}

// AddUser creates or updates a record. An unset perm leaves an existing
// override in place.
func (s *Service) AddUser(
	ctx context.Context, username string, perm access.DeployPermission,
) (UserRecord, error) {
	return s.upsert(ctx, username, perm)
}

// RemoveOverride deletes the user's record. Removing an unknown user is not
// an error.
func (s *Service) RemoveOverride(ctx context.Context, username string) error {
	name, err := normalizeUsername(username)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.store.loadForUpdate(ctx)
	if err != nil {
		return err
	}

	if _, ok := users[name]; !ok {
		return nil
	}

	delete(users, name)

	return s.store.Save(ctx, users)
}

// Overrides returns a snapshot of every explicit deploy override.
func (s *Service) Overrides(ctx context.Context) access.Overrides {
	return s.load(ctx).Overrides()
}

// List returns the stored records sorted by username.
func (s *Service) List(ctx context.Context) []UserRecord {
	return s.load(ctx).Sorted()
}

func (s *Service) upsert(
	ctx context.Context, username string, perm access.DeployPermission,
) (UserRecord, error) {
	name, err := normalizeUsername(username)
	if err != nil {
		return UserRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.store.loadForUpdate(ctx)
	if err != nil {
		return UserRecord{}, err
	}

	rec, ok := users[name]
	if !ok {
		rec = UserRecord{Username: name}
	}

	rec.Source = SourceDB

	if perm.IsSet() {
		rec.DeployAllowed = perm
	}

	users[name] = rec

	if err := s.store.Save(ctx, users); err != nil {
		return UserRecord{}, err
	}

	return rec, nil
}

func (s *Service) load(ctx context.Context) Users {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.Load(ctx)
}

func normalizeUsername(username string) (string, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return "", ErrInvalidUsername
	}

	return name, nil
}
