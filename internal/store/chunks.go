package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Chunk is a retrievable slice of a source material. Embedding is nil until
// the embedding pass has run.
type Chunk struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	SourceMaterialID string    `json:"source_material_id"`
	Filename         string    `json:"filename"`
	Content          string    `json:"content"`
	ChunkIndex       int       `json:"chunk_index"`
	WordCount        int       `json:"word_count"`
	Embedding        []float32 `json:"-"`
}

// ChunkMatch is a chunk scored against a query vector.
type ChunkMatch struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// InsertChunks writes a batch of chunks in a single transaction. Blank IDs
// are assigned UUIDs.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO content_chunks (id, project_id, source_material_id, filename, content, chunk_index, word_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		var blob []byte
		if len(c.Embedding) > 0 {
			blob = EncodeVector(c.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.ProjectID, c.SourceMaterialID, c.Filename, c.Content, c.ChunkIndex, c.WordCount, blob); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// UpdateChunkEmbedding stores the embedding vector for a chunk.
func (s *Store) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE content_chunks SET embedding = ? WHERE id = ?`,
		EncodeVector(embedding), chunkID)
	if err != nil {
		return fmt.Errorf("failed to update chunk embedding: %w", err)
	}
	return nil
}

// ListChunks returns all chunks for a project ordered by source and position.
func (s *Store) ListChunks(ctx context.Context, projectID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, source_material_id, filename, content, chunk_index, word_count, embedding
		FROM content_chunks
		WHERE project_id = ?
		ORDER BY source_material_id, chunk_index`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.SourceMaterialID, &c.Filename, &c.Content, &c.ChunkIndex, &c.WordCount, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if len(blob) > 0 {
			c.Embedding = DecodeVector(blob)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of chunks stored for a project.
func (s *Store) CountChunks(ctx context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_chunks WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// SearchChunks returns the chunks nearest to the query vector by cosine
// distance. Requires vector search support; callers should check
// VectorSearchAvailable and fall back to keyword search when absent.
func (s *Store) SearchChunks(ctx context.Context, projectID string, query []float32, limit int) ([]ChunkMatch, error) {
	if !s.vectorOK {
		return nil, fmt.Errorf("vector search unavailable")
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, source_material_id, filename, content, chunk_index, word_count,
		       vec_distance_cosine(embedding, ?) AS distance
		FROM content_chunks
		WHERE project_id = ? AND embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT ?`, EncodeVector(query), projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		var distance float64
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SourceMaterialID, &m.Filename, &m.Content, &m.ChunkIndex, &m.WordCount, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk match: %w", err)
		}
		m.Similarity = 1.0 - distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// EncodeVector serializes a float32 vector to the little-endian blob format
// sqlite-vec expects.
func EncodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// DecodeVector deserializes a little-endian float32 blob.
func DecodeVector(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	_ = binary.Read(bytes.NewReader(blob), binary.LittleEndian, &v)
	return v
}
