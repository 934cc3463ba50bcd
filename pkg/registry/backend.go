package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/actionsdash/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound is returned by a Backend when the document does not exist.
var ErrNotFound = errors.New("registry document not found")

// Backend is a durable key-value location for the registry document.
type Backend interface {
	// Read returns the stored document or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// WriteAtomic replaces the document. Readers observe either the
	// previous or the new content, never a partial write.
	WriteAtomic(ctx context.Context, key string, data []byte) error

	// Close releases backend resources.
	Close() error
}

// NewBackend creates the backend selected by cfg.Registry.Backend. The
// database backend shares db when it is non-nil and opens its own
// connection otherwise.
func NewBackend(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *config.Config,
	db *gorm.DB,
) (Backend, error) {
	switch cfg.Registry.Backend {
	case config.RegistryBackendFile, "":
		return NewFileBackend(log, &cfg.Registry.File)
	case config.RegistryBackendS3:
		return NewS3Backend(log, &cfg.Registry.S3), nil
	case config.RegistryBackendDatabase:
		if db != nil {
			return NewDatabaseBackend(ctx, log, db)
		}

		return OpenDatabaseBackend(ctx, log, &cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported registry backend %q", cfg.Registry.Backend)
	}
}
