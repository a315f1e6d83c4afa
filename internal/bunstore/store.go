// Package bunstore persists preference documents and backups with bun over
// SQLite. Documents are stored as JSON blobs; the schema only indexes the
// lookup columns, so the document shape can evolve without migrations.
package bunstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-preference-cache/preference"
	"github.com/goliatone/go-preference-cache/prefsync"
)

type preferenceRow struct {
	bun.BaseModel `bun:"table:user_preferences,alias:up"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     string    `bun:"user_id,notnull"`
	RecordType string    `bun:"record_type,notnull"`
	Document   []byte    `bun:"document,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type backupRow struct {
	bun.BaseModel `bun:"table:preference_backups,alias:pb"`

	ID          string    `bun:"id,pk"`
	UserID      string    `bun:"user_id,notnull"`
	RecordType  string    `bun:"record_type,notnull"`
	BackupType  string    `bun:"backup_type,notnull"`
	Payload     []byte    `bun:"payload,notnull"`
	ContentHash string    `bun:"content_hash,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}

// Store implements preference.Records and prefsync.Backups over one bun.DB.
type Store struct {
	db *bun.DB
}

// Open opens a SQLite database at dsn and wraps it in a Store. Use ":memory:"
// for throwaway databases.
func Open(dsn string) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return NewStore(bun.NewDB(sqldb, sqlitedialect.New())), nil
}

// NewStore wraps an existing bun.DB. The caller keeps ownership of the
// connection unless Close is used.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// CreateTables creates the backing tables and indexes if they do not exist.
func (s *Store) CreateTables(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*preferenceRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create user_preferences: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*preferenceRow)(nil)).
		Index("ux_user_preferences_user_record").
		Unique().
		IfNotExists().
		Column("user_id", "record_type").
		Exec(ctx); err != nil {
		return fmt.Errorf("create user_preferences index: %w", err)
	}

	if _, err := s.db.NewCreateTable().
		Model((*backupRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create preference_backups: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*backupRow)(nil)).
		Index("ix_preference_backups_user").
		IfNotExists().
		Column("user_id", "created_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("create preference_backups index: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements preference.Records.
func (s *Store) Get(ctx context.Context, user, recordType string) (preference.Document, error) {
	row := new(preferenceRow)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", user).
		Where("record_type = ?", recordType).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return preference.Document{}, &preference.NotFoundError{User: user, RecordType: recordType}
	}
	if err != nil {
		return preference.Document{}, fmt.Errorf("select preferences: %w", err)
	}

	var doc preference.Document
	if err := json.Unmarshal(row.Document, &doc); err != nil {
		return preference.Document{}, fmt.Errorf("decode preferences for %s/%s: %w", user, recordType, err)
	}
	return doc, nil
}

// Upsert implements preference.Records.
func (s *Store) Upsert(ctx context.Context, doc preference.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	row := &preferenceRow{
		UserID:     doc.User,
		RecordType: doc.RecordType,
		Document:   payload,
		UpdatedAt:  doc.LastUpdated,
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id, record_type) DO UPDATE").
		Set("document = EXCLUDED.document").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// Delete implements preference.Records.
func (s *Store) Delete(ctx context.Context, user, recordType string) error {
	res, err := s.db.NewDelete().
		Model((*preferenceRow)(nil)).
		Where("user_id = ?", user).
		Where("record_type = ?", recordType).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return &preference.NotFoundError{User: user, RecordType: recordType}
	}
	return nil
}

// ListByUser implements preference.Records.
func (s *Store) ListByUser(ctx context.Context, user string) ([]preference.Document, error) {
	var rows []preferenceRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", user).
		Order("record_type ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}

	docs := make([]preference.Document, 0, len(rows))
	for _, row := range rows {
		var doc preference.Document
		if err := json.Unmarshal(row.Document, &doc); err != nil {
			return nil, fmt.Errorf("decode preferences for %s/%s: %w", row.UserID, row.RecordType, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Insert implements prefsync.Backups.
func (s *Store) Insert(ctx context.Context, b prefsync.Backup) error {
	payload, err := json.Marshal(b.Payload)
	if err != nil {
		return fmt.Errorf("encode backup payload: %w", err)
	}

	row := &backupRow{
		ID:          b.ID,
		UserID:      b.User,
		RecordType:  b.RecordType,
		BackupType:  string(b.Type),
		Payload:     payload,
		ContentHash: b.ContentHash,
		CreatedAt:   b.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

// GetBackup implements prefsync.Backups.Get. The name avoids colliding with
// the preference.Records Get on the shared receiver.
func (s *Store) GetBackup(ctx context.Context, id string) (prefsync.Backup, error) {
	row := new(backupRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return prefsync.Backup{}, &prefsync.NotFoundError{ID: id}
	}
	if err != nil {
		return prefsync.Backup{}, fmt.Errorf("select backup: %w", err)
	}
	return backupFromRow(*row)
}

// DeleteBackup implements prefsync.Backups.Delete.
func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().
		Model((*backupRow)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return &prefsync.NotFoundError{ID: id}
	}
	return nil
}

// ListBackupsByUser implements prefsync.Backups.ListByUser, newest first.
func (s *Store) ListBackupsByUser(ctx context.Context, user string) ([]prefsync.Backup, error) {
	var rows []backupRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", user).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	backups := make([]prefsync.Backup, 0, len(rows))
	for _, row := range rows {
		b, err := backupFromRow(row)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, nil
}

func backupFromRow(row backupRow) (prefsync.Backup, error) {
	var payload map[string]preference.Document
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return prefsync.Backup{}, fmt.Errorf("decode backup %s: %w", row.ID, err)
	}
	return prefsync.Backup{
		ID:          row.ID,
		User:        row.UserID,
		RecordType:  row.RecordType,
		Type:        prefsync.BackupType(row.BackupType),
		Payload:     payload,
		ContentHash: row.ContentHash,
		CreatedAt:   row.CreatedAt,
	}, nil
}

// Backups adapts the Store to the prefsync.Backups interface.
func (s *Store) Backups() prefsync.Backups {
	return backupsAdapter{store: s}
}

type backupsAdapter struct {
	store *Store
}

func (a backupsAdapter) Insert(ctx context.Context, b prefsync.Backup) error {
	return a.store.Insert(ctx, b)
}

func (a backupsAdapter) Get(ctx context.Context, id string) (prefsync.Backup, error) {
	return a.store.GetBackup(ctx, id)
}

func (a backupsAdapter) Delete(ctx context.Context, id string) error {
	return a.store.DeleteBackup(ctx, id)
}

func (a backupsAdapter) ListByUser(ctx context.Context, user string) ([]prefsync.Backup, error) {
	return a.store.ListBackupsByUser(ctx, user)
}
