// Copyright 2024-2026 Aiku AI

// Package store persists channel links and room bindings.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Presence filters a Select by whether a field is set.
type Presence int

const (
	Any Presence = iota
	Present
	Absent
)

// Query selects entries by the presence of their remote and Matrix IDs.
type Query struct {
	RemoteID Presence
	MatrixID Presence
}

// RemoteData is the per-channel payload of a link descriptor.
type RemoteData struct {
	Token      string `json:"token"`
	WebhookURI string `json:"webhook_uri"`
}

// RoomEntry is a stored record. A link descriptor has only RemoteID set; a
// room binding has both RemoteID and MatrixID.
type RoomEntry struct {
	ID       string
	RemoteID string
	MatrixID string
	Remote   RemoteData
}

type roomRecord struct {
	ID        string    `gorm:"primaryKey;column:id"`
	RemoteID  *string   `gorm:"column:remote_id;index:idx_rooms_remote_id"`
	MatrixID  *string   `gorm:"column:matrix_id;index:idx_rooms_matrix_id"`
	Remote    string    `gorm:"column:remote;not null;default:'{}'"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (roomRecord) TableName() string {
	return "rooms"
}

// Store is the gorm-backed room store.
type Store struct {
	db *gorm.DB
}

// Open opens the SQLite database at dsn and runs migrations.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	return New(db)
}

// New wraps an open database and migrates its schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&roomRecord{}); err != nil {
		return nil, fmt.Errorf("store: running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Insert stores entry, replacing any entry with the same ID.
func (s *Store) Insert(ctx context.Context, entry RoomEntry) error {
	remote, err := json.Marshal(entry.Remote)
	if err != nil {
		return fmt.Errorf("store: encoding remote data: %w", err)
	}
	rec := roomRecord{
		ID:        entry.ID,
		RemoteID:  nullable(entry.RemoteID),
		MatrixID:  nullable(entry.MatrixID),
		Remote:    string(remote),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("store: inserting %s: %w", entry.ID, err)
	}
	return nil
}

// Select returns the entries matching q ordered by ID.
func (s *Store) Select(ctx context.Context, q Query) ([]RoomEntry, error) {
	tx := s.db.WithContext(ctx).Model(&roomRecord{})
	tx = wherePresence(tx, "remote_id", q.RemoteID)
	tx = wherePresence(tx, "matrix_id", q.MatrixID)

	var recs []roomRecord
	if err := tx.Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("store: selecting rooms: %w", err)
	}

	entries := make([]RoomEntry, 0, len(recs))
	for _, rec := range recs {
		entry := RoomEntry{ID: rec.ID}
		if rec.RemoteID != nil {
			entry.RemoteID = *rec.RemoteID
		}
		if rec.MatrixID != nil {
			entry.MatrixID = *rec.MatrixID
		}
		if rec.Remote != "" {
			if err := json.Unmarshal([]byte(rec.Remote), &entry.Remote); err != nil {
				return nil, fmt.Errorf("store: decoding remote data of %s: %w", rec.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes the entry with the given ID. Deleting a missing entry is
// not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&roomRecord{}).Error; err != nil {
		return fmt.Errorf("store: deleting %s: %w", id, err)
	}
	return nil
}

func wherePresence(tx *gorm.DB, column string, p Presence) *gorm.DB {
	switch p {
	case Present:
		return tx.Where(column + " IS NOT NULL")
	case Absent:
		return tx.Where(column + " IS NULL")
	default:
		return tx
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
