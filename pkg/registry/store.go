package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/access"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStoreWrite wraps every failure to persist the registry.
	ErrStoreWrite = errors.New("failed to persist user registry")

	// ErrStoreRead wraps a failure to read the registry before a mutation.
	// The stored document is left untouched.
	ErrStoreRead = errors.New("failed to read user registry")
)

// storedRecord is the persisted form of a UserRecord. The source is not
// stored: every persisted record is a local one.
type storedRecord struct {
	Username      string                  `json:"username"`
	Avatar        string                  `json:"avatar,omitempty"`
	LastSeenAt    *time.Time              `json:"lastSeenAt"`
	DeployAllowed access.DeployPermission `json:"deployAllowed,omitempty"`
}

// Store loads and saves the whole registry as a single JSON document.
type Store struct {
	log     logrus.FieldLogger
	backend Backend
	key     string
}

// NewStore creates a Store persisting to key on backend.
func NewStore(log logrus.FieldLogger, backend Backend, key string) *Store {
	return &Store{
		log:     log.WithField("component", "registry-store"),
		backend: backend,
		key:     key,
	}
}

// Load returns the stored registry. A missing, unreadable or malformed
// document yields an empty registry.
func (s *Store) Load(ctx context.Context) Users {
	users, err := s.loadForUpdate(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Using empty user registry")

		return Users{}
	}

	return users
}

// loadForUpdate is the strict load behind every read-modify-write. Only a
// missing or empty document reads as an empty registry; anything else is
// an ErrStoreRead so the caller never saves over a document it could not
// read.
func (s *Store) loadForUpdate(ctx context.Context) (Users, error) {
	data, err := s.backend.Read(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Users{}, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return Users{}, nil
	}

	var stored map[string]storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: malformed document: %w", ErrStoreRead, err)
	}

	users := make(Users, len(stored))

	for key, rec := range stored {
		name := strings.TrimSpace(key)
		if name == "" {
			continue
		}

		users[name] = UserRecord{
			Username:      name,
			Avatar:        rec.Avatar,
			LastSeenAt:    rec.LastSeenAt,
			DeployAllowed: rec.DeployAllowed,
			Source:        SourceDB,
		}
	}

	return users, nil
}

// Save replaces the stored registry with users. Failures wrap ErrStoreWrite.
func (s *Store) Save(ctx context.Context, users Users) error {
	stored := make(map[string]storedRecord, len(users))

	for name, rec := range users {
		stored[name] = storedRecord{
			Username:      name,
			Avatar:        rec.Avatar,
			LastSeenAt:    rec.LastSeenAt,
			DeployAllowed: rec.DeployAllowed,
		}
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", ErrStoreWrite, err)
	}

	if err := s.backend.WriteAtomic(ctx, s.key, data); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	return nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
