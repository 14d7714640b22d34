package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghostline-ai/ghostline/internal/book"
)

// SaveChapter persists a finalized chapter. Re-running the same chapter of
// the same workflow replaces the earlier row so resumed runs stay idempotent.
func (s *Store) SaveChapter(ctx context.Context, projectID, workflowID string, ch *book.Chapter) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal chapter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chapters (id, project_id, workflow_id, number, title, chapter_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id, number) DO UPDATE SET
			title = excluded.title,
			chapter_json = excluded.chapter_json,
			created_at = excluded.created_at`,
		uuid.NewString(), projectID, workflowID, ch.Number, ch.Title, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save chapter: %w", err)
	}
	return nil
}

// ChaptersByWorkflow returns all chapters for a workflow run in chapter order.
func (s *Store) ChaptersByWorkflow(ctx context.Context, workflowID string) ([]book.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT chapter_json FROM chapters WHERE workflow_id = ? ORDER BY number`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters: %w", err)
	}
	defer rows.Close()

	var chapters []book.Chapter
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		var ch book.Chapter
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chapter: %w", err)
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// ChaptersByProject returns chapters from the most recent workflow that
// produced any, in chapter order.
func (s *Store) ChaptersByProject(ctx context.Context, projectID string) ([]book.Chapter, error) {
	s.mu.RLock()
	var workflowID string
	err := s.db.QueryRowContext(ctx, `
		SELECT workflow_id FROM chapters WHERE project_id = ?
		ORDER BY created_at DESC LIMIT 1`, projectID).Scan(&workflowID)
	s.mu.RUnlock()
	if err != nil {
		return nil, nil
	}
	return s.ChaptersByWorkflow(ctx, workflowID)
}
