package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/collab/internal/models"
)

// SQLiteStore is the room catalog for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/collab.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/collab.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		room_type TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		max_members INTEGER NOT NULL,
		key_hash TEXT,
		members TEXT NOT NULL DEFAULT '[]',
		settings TEXT,
		room_context TEXT,
		is_archived INTEGER NOT NULL DEFAULT 0,
		message_count INTEGER NOT NULL DEFAULT 0,
		average_latency_ms REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_message_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_tenant ON rooms(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_rooms_archived ON rooms(is_archived);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveRoom inserts or replaces a room.
func (s *SQLiteStore) SaveRoom(ctx context.Context, room *models.Room) error {
	defer observeCatalog(time.Now())

	row, err := encodeRoom(room)
	if err != nil {
		return err
	}

	var settings, roomContext *string
	if row.settings != nil {
		v := string(row.settings)
		settings = &v
	}
	if row.contextJSON != nil {
		v := string(row.contextJSON)
		roomContext = &v
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, tenant_id, room_type, name, description, created_by, max_members,
			key_hash, members, settings, room_context, is_archived, message_count, average_latency_ms,
			created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			max_members = excluded.max_members,
			key_hash = excluded.key_hash,
			members = excluded.members,
			settings = excluded.settings,
			room_context = excluded.room_context,
			is_archived = rooms.is_archived OR excluded.is_archived,
			message_count = excluded.message_count,
			average_latency_ms = excluded.average_latency_ms,
			last_message_at = excluded.last_message_at
	`, string(room.ID), string(room.TenantID), string(room.Type), room.Name, room.Description,
		string(room.CreatedBy), room.MaxMembers, row.keyHash, string(row.members), settings, roomContext,
		room.IsArchived, room.TotalMessagesSent, room.AverageLatencyMs, room.CreatedAt.UTC(),
		utcOrNil(room.LastMessageAt))
	return err
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id models.RoomID) (*models.Room, error) {
	defer observeCatalog(time.Now())

	room, err := scanRoom(s.db.QueryRowContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms WHERE id = ?
	`, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return room, nil
}

// ArchiveRoom flags a room as archived.
func (s *SQLiteStore) ArchiveRoom(ctx context.Context, id models.RoomID) error {
	defer observeCatalog(time.Now())

	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET is_archived = 1 WHERE id = ?
	`, string(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordActivity updates a room's message counters.
func (s *SQLiteStore) RecordActivity(ctx context.Context, id models.RoomID, messageCount int64, avgLatencyMs float64, at time.Time) error {
	defer observeCatalog(time.Now())

	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET message_count = ?, average_latency_ms = ?, last_message_at = ?
		WHERE id = ?
	`, messageCount, avgLatencyMs, at.UTC(), string(id))
	return err
}

// ActiveRooms returns every room that is not archived.
func (s *SQLiteStore) ActiveRooms(ctx context.Context) ([]*models.Room, error) {
	defer observeCatalog(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE is_archived = 0
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
