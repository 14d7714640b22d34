package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ghostline-ai/ghostline/internal/book"
)

// SaveVoiceProfile upserts the voice profile for a project.
func (s *Store) SaveVoiceProfile(ctx context.Context, profile *book.VoiceProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal voice profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO voice_profiles (project_id, profile_json)
		VALUES (?, ?)
		ON CONFLICT(project_id) DO UPDATE SET profile_json = excluded.profile_json`,
		profile.ProjectID, string(data))
	if err != nil {
		return fmt.Errorf("failed to save voice profile: %w", err)
	}
	return nil
}

// GetVoiceProfile returns the voice profile for a project.
func (s *Store) GetVoiceProfile(ctx context.Context, projectID string) (*book.VoiceProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT profile_json FROM voice_profiles WHERE project_id = ?`, projectID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("voice profile for project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice profile: %w", err)
	}

	var profile book.VoiceProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal voice profile: %w", err)
	}
	return &profile, nil
}
