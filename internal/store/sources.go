package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceMaterial is an ingested source document with its extracted text.
type SourceMaterial struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Filename        string    `json:"filename"`
	FilePath        string    `json:"file_path"`
	DocumentType    string    `json:"document_type"`
	ExtractedText   string    `json:"extracted_text"`
	WordCount       int       `json:"word_count"`
	PageCount       int       `json:"page_count"`
	IsWritingSample bool      `json:"is_writing_sample"`
	CreatedAt       time.Time `json:"created_at"`
}

const sourceColumns = `id, project_id, filename, file_path, document_type, extracted_text, word_count, page_count, is_writing_sample, created_at`

// CreateSourceMaterial inserts a new source material. A blank ID is assigned a UUID.
func (s *Store) CreateSourceMaterial(ctx context.Context, m *SourceMaterial) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_materials (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Filename, m.FilePath, m.DocumentType, m.ExtractedText, m.WordCount, m.PageCount, m.IsWritingSample, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert source material: %w", err)
	}
	return nil
}

// GetSourceMaterial returns a source material by id.
func (s *Store) GetSourceMaterial(ctx context.Context, id string) (*SourceMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM source_materials WHERE id = ?`, id)
	m, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source material %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source material: %w", err)
	}
	return m, nil
}

// GetSourceMaterials returns the source materials with the given ids,
// preserving input order. Missing ids are skipped.
func (s *Store) GetSourceMaterials(ctx context.Context, ids []string) ([]SourceMaterial, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM source_materials WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query source materials: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]SourceMaterial, len(ids))
	for rows.Next() {
		m, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source material: %w", err)
		}
		byID[m.ID] = *m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SourceMaterial, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListSourceMaterials returns all source materials for a project in upload order.
func (s *Store) ListSourceMaterials(ctx context.Context, projectID string) ([]SourceMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sourceColumns+` FROM source_materials
		WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source materials: %w", err)
	}
	defer rows.Close()

	var materials []SourceMaterial
	for rows.Next() {
		m, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source material: %w", err)
		}
		materials = append(materials, *m)
	}
	return materials, rows.Err()
}

// ListWritingSamples returns the source materials marked as writing samples.
func (s *Store) ListWritingSamples(ctx context.Context, projectID string) ([]SourceMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sourceColumns+` FROM source_materials
		WHERE project_id = ? AND is_writing_sample = 1 ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list writing samples: %w", err)
	}
	defer rows.Close()

	var materials []SourceMaterial
	for rows.Next() {
		m, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source material: %w", err)
		}
		materials = append(materials, *m)
	}
	return materials, rows.Err()
}

// SourceTextsByFilename returns the full extracted text of every source in a
// project, keyed by lowercase filename. Used for citation verification.
func (s *Store) SourceTextsByFilename(ctx context.Context, projectID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, extracted_text FROM source_materials WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query source texts: %w", err)
	}
	defer rows.Close()

	texts := make(map[string]string)
	for rows.Next() {
		var filename, text string
		if err := rows.Scan(&filename, &text); err != nil {
			return nil, fmt.Errorf("failed to scan source text: %w", err)
		}
		texts[strings.ToLower(filename)] = text
	}
	return texts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*SourceMaterial, error) {
	var m SourceMaterial
	err := row.Scan(&m.ID, &m.ProjectID, &m.Filename, &m.FilePath, &m.DocumentType, &m.ExtractedText, &m.WordCount, &m.PageCount, &m.IsWritingSample, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
