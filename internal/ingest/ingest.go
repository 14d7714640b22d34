// Package ingest registers source files with a project: it extracts their
// text, keeps a copy under the home uploads directory, splits the text into
// retrieval chunks, and persists material and chunk rows. Embeddings are
// filled in later by the workflow's embed node so ingest works offline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/extract"
	"github.com/ghostline-ai/ghostline/internal/home"
	"github.com/ghostline-ai/ghostline/internal/store"
)

// Request names the files to ingest into a project. Writing samples feed
// the voice profile instead of retrieval, so they are stored unchunked.
type Request struct {
	ProjectID       string
	Paths           []string
	IsWritingSample bool
}

// FileResult reports one ingested file.
type FileResult struct {
	MaterialID   string
	Filename     string
	DocumentType string
	WordCount    int
	PageCount    int
	ChunkCount   int
	StoredPath   string
}

// Result reports a completed ingest request.
type Result struct {
	Files       []FileResult
	TotalWords  int
	TotalChunks int
}

// Service ingests source material for projects.
type Service struct {
	store  *store.Store
	home   *home.Dir
	cfg    config.IngestCfg
	logger *slog.Logger
}

// New creates an ingest service. homeDir may be nil, in which case original
// files are not copied and only extracted text is kept.
func New(st *store.Store, homeDir *home.Dir, cfg config.IngestCfg, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		home:   homeDir,
		cfg:    cfg,
		logger: logger.With("component", "ingest"),
	}
}

// Ingest processes every file in the request. All paths are validated
// before the first file is touched; a failure partway leaves the files
// already ingested in place and reports which file failed.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, errors.New("ingest: project id is required")
	}
	if len(req.Paths) == 0 {
		return nil, errors.New("ingest: no files provided")
	}
	if _, err := s.store.GetProject(ctx, req.ProjectID); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	for _, p := range req.Paths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("ingest: file not found: %s", p)
		}
		if _, err := extract.ForFile(p); err != nil {
			return nil, fmt.Errorf("ingest: %w", err)
		}
	}

	s.logger.Info("starting ingest",
		"project_id", req.ProjectID,
		"files", len(req.Paths),
		"writing_sample", req.IsWritingSample,
	)

	res := &Result{}
	for _, path := range req.Paths {
		fr, err := s.ingestFile(ctx, req.ProjectID, path, req.IsWritingSample)
		if err != nil {
			return nil, fmt.Errorf("ingest %s: %w", filepath.Base(path), err)
		}
		res.Files = append(res.Files, *fr)
		res.TotalWords += fr.WordCount
		res.TotalChunks += fr.ChunkCount
	}

	s.logger.Info("ingest complete",
		"project_id", req.ProjectID,
		"files", len(res.Files),
		"words", res.TotalWords,
		"chunks", res.TotalChunks,
	)
	return res, nil
}

func (s *Service) ingestFile(ctx context.Context, projectID, path string, sample bool) (*FileResult, error) {
	doc, err := extract.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, errors.New("no text extracted")
	}

	material := &store.SourceMaterial{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Filename:        filepath.Base(path),
		DocumentType:    doc.DocumentType,
		ExtractedText:   doc.Text,
		WordCount:       doc.WordCount,
		PageCount:       doc.PageCount,
		IsWritingSample: sample,
	}

	if s.home != nil {
		if err := s.home.EnsureUploadsDir(projectID); err != nil {
			return nil, fmt.Errorf("create uploads dir: %w", err)
		}
		stored := s.home.UploadPath(projectID, material.ID, material.Filename)
		if err := copyFile(path, stored); err != nil {
			return nil, fmt.Errorf("store upload: %w", err)
		}
		material.FilePath = stored
	}

	if err := s.store.CreateSourceMaterial(ctx, material); err != nil {
		if material.FilePath != "" {
			os.Remove(material.FilePath)
		}
		return nil, err
	}

	chunkCount := 0
	if !sample {
		pieces := extract.ChunkText(doc.Text, s.cfg.ChunkWords, s.cfg.OverlapWords)
		rows := make([]store.Chunk, 0, len(pieces))
		for _, c := range pieces {
			rows = append(rows, store.Chunk{
				ProjectID:        projectID,
				SourceMaterialID: material.ID,
				Filename:         material.Filename,
				Content:          c.Content,
				ChunkIndex:       c.Index,
				WordCount:        c.WordCount,
			})
		}
		if len(rows) > 0 {
			if err := s.store.InsertChunks(ctx, rows); err != nil {
				return nil, fmt.Errorf("insert chunks: %w", err)
			}
		}
		chunkCount = len(rows)
	}

	s.logger.Debug("ingested file",
		"filename", material.Filename,
		"type", material.DocumentType,
		"words", material.WordCount,
		"chunks", chunkCount,
	)
	return &FileResult{
		MaterialID:   material.ID,
		Filename:     material.Filename,
		DocumentType: material.DocumentType,
		WordCount:    material.WordCount,
		PageCount:    material.PageCount,
		ChunkCount:   chunkCount,
		StoredPath:   material.FilePath,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
