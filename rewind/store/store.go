// Package store persists sanitized rewind summaries in SQLite.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/theimaginaryfoundation/chat-rewind/rewind"
)

const memoryDSN = ":memory:"

// Record is one stored summary. Payload is the sanitized summary as JSON;
// the other columns are copies for listing without decoding it.
type Record struct {
	RunID         string    `gorm:"primaryKey;size:36" json:"run_id"`
	ClientID      string    `gorm:"size:128;not null;index:idx_client_generated,priority:1" json:"client_id"`
	GeneratedAt   time.Time `gorm:"index:idx_client_generated,priority:2" json:"generated_at"`
	Conversations int       `gorm:"default:0" json:"conversations"`
	Messages      int       `gorm:"default:0" json:"messages"`
	Archetype     string    `gorm:"size:32" json:"archetype"`
	Payload       string    `gorm:"type:text" json:"payload"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Record) TableName() string {
	return "rewind_summaries"
}

// Store saves and loads sanitized summaries keyed by client.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// it. ":memory:" gives a private in-process database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store.Open: path is empty")
	}
	if path != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store.Open: create data dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	if path != memoryDSN {
		if err := configureDB(db); err != nil {
			return nil, fmt.Errorf("store.Open: %w", err)
		}
	} else if sqlDB, err := db.DB(); err == nil {
		// Every pooled connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("store.New: db is nil")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("store.New: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func configureDB(db *gorm.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return nil
}

// Save stores s for clientID, replacing any earlier record with the same
// run id. Only summaries produced by rewind.Sanitize are accepted.
func (s *Store) Save(ctx context.Context, clientID string, summary rewind.RewindSummary) (Record, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return Record{}, errors.New("Store.Save: client id is empty")
	}
	if !summary.Sanitized {
		return Record{}, fmt.Errorf("Store.Save: %w", rewind.ErrNotSanitized)
	}
	if summary.RunID == "" {
		summary.RunID = uuid.NewString()
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return Record{}, fmt.Errorf("Store.Save: marshal: %w", err)
	}

	rec := Record{
		RunID:         summary.RunID,
		ClientID:      clientID,
		GeneratedAt:   summary.GeneratedAt.UTC(),
		Conversations: summary.TotalConversations,
		Messages:      summary.TotalUserMessages,
		Payload:       string(payload),
	}
	if w := summary.Wrapped; w != nil && w.Archetype != nil {
		rec.Archetype = w.Archetype.Key
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return Record{}, fmt.Errorf("Store.Save: %w", err)
	}
	return rec, nil
}

// Latest returns the most recently generated summary for clientID, or nil
// when there is none.
func (s *Store) Latest(ctx context.Context, clientID string) (*rewind.RewindSummary, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("client_id = ?", strings.TrimSpace(clientID)).
		Order("generated_at DESC").
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("Store.Latest: %w", err)
	}
	var out rewind.RewindSummary
	if err := json.Unmarshal([]byte(rec.Payload), &out); err != nil {
		return nil, fmt.Errorf("Store.Latest: decode run %s: %w", rec.RunID, err)
	}
	return &out, nil
}

// List returns up to limit records for clientID, newest first, without
// decoding payloads.
func (s *Store) List(ctx context.Context, clientID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []Record
	err := s.db.WithContext(ctx).
		Select("run_id, client_id, generated_at, conversations, messages, archetype, created_at, updated_at").
		Where("client_id = ?", strings.TrimSpace(clientID)).
		Order("generated_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("Store.List: %w", err)
	}
	return recs, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
