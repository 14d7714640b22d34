package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Checkpoint is one serialized workflow snapshot. thread_id identifies the
// workflow run; checkpoint_id orders snapshots within it.
type Checkpoint struct {
	ThreadID  string    `json:"thread_id"`
	ID        string    `json:"checkpoint_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Data      []byte    `json:"-"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveCheckpoint persists a snapshot. Writes are retried briefly because a
// checkpoint can race a usage-log insert on a second connection.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp.ThreadID == "" || cp.ID == "" {
		return errors.New("checkpoint requires thread_id and checkpoint_id")
	}
	if cp.Metadata == "" {
		cp.Metadata = "{}"
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	return retry.Do(
		func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO workflow_checkpoints (thread_id, checkpoint_id, parent_id, checkpoint_data, metadata, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(thread_id, checkpoint_id) DO UPDATE SET
					parent_id = excluded.parent_id,
					checkpoint_data = excluded.checkpoint_data,
					metadata = excluded.metadata,
					created_at = excluded.created_at`,
				cp.ThreadID, cp.ID, cp.ParentID, cp.Data, cp.Metadata, cp.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.RetryIf(isBusyErr),
		retry.LastErrorOnly(true),
	)
}

// LatestCheckpoint returns the most recent snapshot for a workflow run.
func (s *Store) LatestCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_id, checkpoint_data, metadata, created_at
		FROM workflow_checkpoints WHERE thread_id = ?
		ORDER BY created_at DESC, checkpoint_id DESC LIMIT 1`, threadID)
	return scanCheckpoint(row)
}

// GetCheckpoint returns one snapshot by id.
func (s *Store) GetCheckpoint(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT thread_id, checkpoint_id, parent_id, checkpoint_data, metadata, created_at
		FROM workflow_checkpoints WHERE thread_id = ? AND checkpoint_id = ?`, threadID, checkpointID)
	return scanCheckpoint(row)
}

// ListCheckpointThreads returns the distinct workflow runs that have
// checkpoints, newest first.
func (s *Store) ListCheckpointThreads(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id FROM workflow_checkpoints
		GROUP BY thread_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoint threads: %w", err)
	}
	defer rows.Close()

	var threads []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan thread id: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func scanCheckpoint(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var parent sql.NullString
	err := row.Scan(&cp.ThreadID, &cp.ID, &parent, &cp.Data, &cp.Metadata, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	cp.ParentID = parent.String
	return &cp, nil
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
