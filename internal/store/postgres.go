package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	room_type          TEXT NOT NULL,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	created_by         TEXT NOT NULL DEFAULT '',
	max_members        INTEGER NOT NULL,
	key_hash           TEXT,
	members            JSONB NOT NULL DEFAULT '[]',
	settings           JSONB,
	room_context       JSONB,
	is_archived        BOOLEAN NOT NULL DEFAULT FALSE,
	message_count      BIGINT NOT NULL DEFAULT 0,
	average_latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_message_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_rooms_tenant ON rooms(tenant_id) WHERE NOT is_archived;
`

// PostgresStore is the room catalog backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// makes sure the rooms table exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observeCatalog(start time.Time) {
	metrics.CatalogLatency.Observe(time.Since(start).Seconds())
}

// SaveRoom inserts or replaces a room.
func (s *PostgresStore) SaveRoom(ctx context.Context, room *models.Room) error {
	defer observeCatalog(time.Now())

	row, err := encodeRoom(room)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (id, tenant_id, room_type, name, description, created_by, max_members,
			key_hash, members, settings, room_context, is_archived, message_count, average_latency_ms,
			created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			max_members = EXCLUDED.max_members,
			key_hash = EXCLUDED.key_hash,
			members = EXCLUDED.members,
			settings = EXCLUDED.settings,
			room_context = EXCLUDED.room_context,
			is_archived = rooms.is_archived OR EXCLUDED.is_archived,
			message_count = EXCLUDED.message_count,
			average_latency_ms = EXCLUDED.average_latency_ms,
			last_message_at = EXCLUDED.last_message_at
	`, room.ID, room.TenantID, room.Type, room.Name, room.Description, room.CreatedBy, room.MaxMembers,
		row.keyHash, row.members, row.settings, row.contextJSON, room.IsArchived, room.TotalMessagesSent,
		room.AverageLatencyMs, room.CreatedAt, room.LastMessageAt)
	return err
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id models.RoomID) (*models.Room, error) {
	defer observeCatalog(time.Now())

	room, err := scanRoom(s.pool.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM rooms WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return room, nil
}

// ArchiveRoom flags a room as archived.
func (s *PostgresStore) ArchiveRoom(ctx context.Context, id models.RoomID) error {
	defer observeCatalog(time.Now())

	tag, err := s.pool.Exec(ctx, `
		UPDATE rooms SET is_archived = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordActivity updates a room's message counters.
func (s *PostgresStore) RecordActivity(ctx context.Context, id models.RoomID, messageCount int64, avgLatencyMs float64, at time.Time) error {
	defer observeCatalog(time.Now())

	_, err := s.pool.Exec(ctx, `
		UPDATE rooms
		SET message_count = $2, average_latency_ms = $3, last_message_at = $4
		WHERE id = $1
	`, id, messageCount, avgLatencyMs, at)
	return err
}

// ActiveRooms returns every room that is not archived.
func (s *PostgresStore) ActiveRooms(ctx context.Context) ([]*models.Room, error) {
	defer observeCatalog(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE NOT is_archived
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

const roomColumns = `id, tenant_id, room_type, name, description, created_by, max_members,
	key_hash, members, settings, room_context, is_archived, message_count, average_latency_ms,
	created_at, last_message_at`

// rowScanner is satisfied by pgx.Row, pgx.Rows and *sql.Row(s).
type rowScanner interface {
	Scan(dest ...any) error
}

// encodedRoom holds the columns stored as JSON or nullable text.
type encodedRoom struct {
	keyHash     *string
	members     []byte
	settings    []byte
	contextJSON []byte
}

func encodeRoom(room *models.Room) (encodedRoom, error) {
	var row encodedRoom
	var err error

	if room.KeyHash != "" {
		h := room.KeyHash
		row.keyHash = &h
	}
	members := room.Members
	if members == nil {
		members = []models.RoomMember{}
	}
	if row.members, err = json.Marshal(members); err != nil {
		return row, err
	}
	if room.Settings != nil {
		if row.settings, err = json.Marshal(room.Settings); err != nil {
			return row, err
		}
	}
	if room.Context != nil {
		if row.contextJSON, err = json.Marshal(room.Context); err != nil {
			return row, err
		}
	}
	return row, nil
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room                           models.Room
		keyHash                        *string
		members, settings, contextJSON []byte
		lastMessageAt                  *time.Time
	)
	err := row.Scan(
		&room.ID,
		&room.TenantID,
		&room.Type,
		&room.Name,
		&room.Description,
		&room.CreatedBy,
		&room.MaxMembers,
		&keyHash,
		&members,
		&settings,
		&contextJSON,
		&room.IsArchived,
		&room.TotalMessagesSent,
		&room.AverageLatencyMs,
		&room.CreatedAt,
		&lastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	if keyHash != nil {
		room.KeyHash = *keyHash
		room.HasKey = true
	}
	if len(members) > 0 {
		if err := json.Unmarshal(members, &room.Members); err != nil {
			return nil, err
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &room.Settings); err != nil {
			return nil, err
		}
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &room.Context); err != nil {
			return nil, err
		}
	}
	room.MessageCount = room.TotalMessagesSent
	room.IsActive = !room.IsArchived
	room.LastMessageAt = lastMessageAt
	return &room, nil
}
