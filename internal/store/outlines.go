package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghostline-ai/ghostline/internal/book"
)

// OutlineRecord wraps a persisted outline with its approval status.
type OutlineRecord struct {
	ID         string        `json:"id"`
	ProjectID  string        `json:"project_id"`
	WorkflowID string        `json:"workflow_id"`
	Outline    *book.Outline `json:"outline"`
	Approved   bool          `json:"approved"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SaveOutline persists an outline for a project. A blank ID is assigned a UUID.
func (s *Store) SaveOutline(ctx context.Context, rec *OutlineRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(rec.Outline)
	if err != nil {
		return fmt.Errorf("failed to marshal outline: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO book_outlines (id, project_id, workflow_id, outline_json, approved, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProjectID, rec.WorkflowID, string(data), boolToInt(rec.Approved), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outline: %w", err)
	}
	return nil
}

// LatestOutline returns the most recent outline for a project.
func (s *Store) LatestOutline(ctx context.Context, projectID string) (*OutlineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, workflow_id, outline_json, approved, created_at
		FROM book_outlines WHERE project_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, projectID)
	return scanOutline(row)
}

// ApproveOutline marks an outline as approved by the user.
func (s *Store) ApproveOutline(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE book_outlines SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to approve outline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outline %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanOutline(row *sql.Row) (*OutlineRecord, error) {
	var rec OutlineRecord
	var data string
	var approved int
	err := row.Scan(&rec.ID, &rec.ProjectID, &rec.WorkflowID, &data, &approved, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outline: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan outline: %w", err)
	}
	rec.Approved = approved != 0

	var outline book.Outline
	if err := json.Unmarshal([]byte(data), &outline); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outline: %w", err)
	}
	rec.Outline = &outline
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
