package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const snapshotTimeout = 5 * time.Second

// SnapshotStore implements queue.Snapshotter on top of Postgres: one row per
// guild holding the same JSON object the file snapshotter writes. Used when
// DATABASE_URL is configured; the queue contract is unchanged (memory is
// truth, the row is crash recovery).
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a snapshot store over an open connection pool
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save upserts the guild's snapshot row
func (s *SnapshotStore) Save(guildID string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO queue_snapshots (guild_id, payload, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (guild_id) DO UPDATE SET payload = $2, updated_at = now()`,
		guildID, data)
	return err
}

// Load returns the guild's snapshot, or (nil, nil) when no row exists
func (s *SnapshotStore) Load(guildID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	var payload []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT payload FROM queue_snapshots WHERE guild_id = $1`, guildID).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return payload, err
}
