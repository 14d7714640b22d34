package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Project is a book project: the container for sources, outline, and chapters.
type Project struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	Title                 string    `json:"title"`
	Description           string    `json:"description"`
	Genre                 string    `json:"genre"`
	TargetChapters        int       `json:"target_chapters"`
	TargetWordsPerChapter int       `json:"target_words_per_chapter"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// CreateProject inserts a new project. A blank ID is assigned a UUID.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.TargetChapters <= 0 {
		p.TargetChapters = 3
	}
	if p.TargetWordsPerChapter <= 0 {
		p.TargetWordsPerChapter = 2000
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, title, description, genre, target_chapters, target_words_per_chapter, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Description, p.Genre, p.TargetChapters, p.TargetWordsPerChapter, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, genre, target_chapters, target_words_per_chapter, created_at, updated_at
		FROM projects WHERE id = ?`, id)

	var p Project
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Genre, &p.TargetChapters, &p.TargetWordsPerChapter, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, description, genre, target_chapters, target_words_per_chapter, created_at, updated_at
		FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Genre, &p.TargetChapters, &p.TargetWordsPerChapter, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// TouchProject bumps a project's updated_at timestamp.
func (s *Store) TouchProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	return nil
}
