package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ghostline-ai/ghostline/internal/store"
)

// Saver persists run snapshots keyed by workflow id. Every node transition
// writes a new checkpoint, so the latest one always names the exact node a
// stopped run resumes at.
type Saver interface {
	Save(ctx context.Context, workflowID string, state *State) error
	Latest(ctx context.Context, workflowID string) (*State, error)
}

// MemorySaver keeps checkpoints in process memory. Tests and dry runs use
// it; anything that should survive a restart uses SQLiteSaver.
type MemorySaver struct {
	mu        sync.RWMutex
	snapshots map[string][][]byte
}

// NewMemorySaver returns an empty in-memory saver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{snapshots: make(map[string][][]byte)}
}

// Save appends a snapshot. States are stored serialized so callers cannot
// alias checkpointed data.
func (m *MemorySaver) Save(_ context.Context, workflowID string, state *State) error {
	if workflowID == "" || state == nil {
		return errors.New("checkpoint requires a workflow id and state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	m.mu.Lock()
	m.snapshots[workflowID] = append(m.snapshots[workflowID], data)
	m.mu.Unlock()
	return nil
}

// Latest returns the newest snapshot for a workflow.
func (m *MemorySaver) Latest(_ context.Context, workflowID string) (*State, error) {
	m.mu.RLock()
	snaps := m.snapshots[workflowID]
	m.mu.RUnlock()
	if len(snaps) == 0 {
		return nil, fmt.Errorf("checkpoint for workflow %s: %w", workflowID, store.ErrNotFound)
	}
	var state State
	if err := json.Unmarshal(snaps[len(snaps)-1], &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &state, nil
}

// Count reports how many checkpoints a workflow has written.
func (m *MemorySaver) Count(workflowID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots[workflowID])
}

// SQLiteSaver persists checkpoints through the store so runs survive
// process restarts.
type SQLiteSaver struct {
	st *store.Store
}

// NewSQLiteSaver wraps a store as a Saver.
func NewSQLiteSaver(st *store.Store) *SQLiteSaver {
	return &SQLiteSaver{st: st}
}

// Save writes one checkpoint row carrying the serialized state.
func (s *SQLiteSaver) Save(ctx context.Context, workflowID string, state *State) error {
	if workflowID == "" || state == nil {
		return errors.New("checkpoint requires a workflow id and state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	meta, err := json.Marshal(map[string]any{
		"node":     state.Node,
		"phase":    state.Phase,
		"progress": state.Progress,
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint metadata: %w", err)
	}
	return s.st.SaveCheckpoint(ctx, &store.Checkpoint{
		ThreadID: workflowID,
		ID:       uuid.NewString(),
		Data:     data,
		Metadata: string(meta),
	})
}

// Latest decodes the newest checkpoint for a workflow. Unknown workflow
// ids surface store.ErrNotFound.
func (s *SQLiteSaver) Latest(ctx context.Context, workflowID string) (*State, error) {
	cp, err := s.st.LatestCheckpoint(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(cp.Data, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", cp.ID, err)
	}
	return &state, nil
}
