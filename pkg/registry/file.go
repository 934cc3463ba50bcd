package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/config"
	"github.com/ethpandaops/actionsdash/pkg/fsutil"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

const lockRetryDelay = 50 * time.Millisecond

// Compile-time interface check.
var _ Backend = (*fileBackend)(nil)

type fileBackend struct {
	log   logrus.FieldLogger
	dir   string
	owner *fsutil.OwnerConfig
}

// NewFileBackend stores registry documents as files under cfg.Dir, creating
// the directory if needed.
func NewFileBackend(
	log logrus.FieldLogger,
	cfg *config.RegistryFileConfig,
) (Backend, error) {
	owner, err := fsutil.ParseOwner(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("parsing registry.file.owner: %w", err)
	}

	if err := fsutil.MkdirAll(cfg.Dir, 0o750, owner); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}

	return &fileBackend{
		log:   log.WithField("component", "registry-file"),
		dir:   cfg.Dir,
		owner: owner,
	}, nil
}

func (b *fileBackend) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	return data, nil
}

// WriteAtomic holds an exclusive lock file next to the document so that
// concurrent CLI and server processes do not interleave their renames.
func (b *fileBackend) WriteAtomic(ctx context.Context, key string, data []byte) error {
	path := b.path(key)

	lock := flock.New(path + ".lock")

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking %s: %w", key, err)
	}

	if !locked {
		return fmt.Errorf("locking %s: lock not acquired", key)
	}

	defer func() {
		if err := lock.Unlock(); err != nil {
			b.log.WithError(err).Warn("Failed to release registry lock")
		}
	}()

	if err := fsutil.WriteFileAtomic(path, data, 0o600, b.owner); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	return nil
}

func (b *fileBackend) Close() error {
	return nil
}

func (b *fileBackend) path(key string) string {
	return filepath.Join(b.dir, filepath.Base(key))
}
