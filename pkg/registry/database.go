package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/config"
	"github.com/ethpandaops/actionsdash/pkg/database"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one stored registry document.
type Document struct {
	Key       string `gorm:"primaryKey;column:doc_key"`
	Data      []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName overrides the default gorm table name.
func (Document) TableName() string {
	return "registry_documents"
}

// Compile-time interface check.
var _ Backend = (*databaseBackend)(nil)

type databaseBackend struct {
	log logrus.FieldLogger
	db  *gorm.DB
	// owned is set when the backend opened db itself and must close it.
	owned bool
}

// NewDatabaseBackend stores registry documents on db. The connection is
// shared and stays open when the backend is closed.
func NewDatabaseBackend(
	ctx context.Context,
	log logrus.FieldLogger,
	db *gorm.DB,
) (Backend, error) {
	return newDatabaseBackend(ctx, log, db, false)
}

// OpenDatabaseBackend opens a dedicated connection for the registry, for
// processes that have no other database user.
func OpenDatabaseBackend(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) (Backend, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	b, err := newDatabaseBackend(ctx, log, db, true)
	if err != nil {
		_ = database.Close(db)

		return nil, err
	}

	return b, nil
}

func newDatabaseBackend(
	ctx context.Context,
	log logrus.FieldLogger,
	db *gorm.DB,
	owned bool,
) (Backend, error) {
	if err := db.WithContext(ctx).AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &databaseBackend{
		log:   log.WithField("component", "registry-database"),
		db:    db,
		owned: owned,
	}, nil
}

func (b *databaseBackend) Read(ctx context.Context, key string) ([]byte, error) {
	var doc Document

	err := b.db.WithContext(ctx).Where("doc_key = ?", key).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("reading document %q: %w", key, err)
	}

	return doc.Data, nil
}

func (b *databaseBackend) WriteAtomic(ctx context.Context, key string, data []byte) error {
	doc := Document{Key: key, Data: data, UpdatedAt: time.Now().UTC()}

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "doc_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&doc).Error
	})
	if err != nil {
		return fmt.Errorf("writing document %q: %w", key, err)
	}

	return nil
}

func (b *databaseBackend) Close() error {
	if !b.owned {
		return nil
	}

	return database.Close(b.db)
}
