package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghostline-ai/ghostline/internal/config"
	"github.com/ghostline-ai/ghostline/internal/home"
	"github.com/ghostline-ai/ghostline/internal/store"
)

const sampleDoc = `# Field Notes

Consistent sleep and wake times anchor the circadian rhythm. Short naps
before mid-afternoon do not disturb it. Caffeine after noon pushes the
whole schedule later.`

func newTestService(t *testing.T, homeDir *home.Dir) (*Service, *store.Store, string) {
	t.Helper()
	st, err := store.OpenMemory(nil)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	project := &store.Project{UserID: "u1", Title: "Field Notes"}
	if err := st.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	svc := New(st, homeDir, config.DefaultConfig().Ingest, nil)
	return svc, st, project.ID
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestIngestMarkdownFile(t *testing.T) {
	svc, st, projectID := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, Request{
		ProjectID: projectID,
		Paths:     []string{writeTemp(t, "notes.md", sampleDoc)},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("Files = %d, want 1", len(res.Files))
	}

	fr := res.Files[0]
	if fr.Filename != "notes.md" || fr.DocumentType != "markdown" {
		t.Errorf("file = %q/%q, want notes.md/markdown", fr.Filename, fr.DocumentType)
	}
	if fr.WordCount == 0 || fr.ChunkCount == 0 {
		t.Errorf("counts = %d words / %d chunks, want both > 0", fr.WordCount, fr.ChunkCount)
	}
	if res.TotalWords != fr.WordCount || res.TotalChunks != fr.ChunkCount {
		t.Errorf("totals = %d/%d, want to match the single file", res.TotalWords, res.TotalChunks)
	}

	materials, err := st.ListSourceMaterials(ctx, projectID)
	if err != nil {
		t.Fatalf("ListSourceMaterials() error = %v", err)
	}
	if len(materials) != 1 || materials[0].ID != fr.MaterialID {
		t.Fatalf("materials = %+v, want the ingested row", materials)
	}
	if !strings.Contains(materials[0].ExtractedText, "circadian rhythm") {
		t.Error("extracted text missing document content")
	}

	chunks, err := st.ListChunks(ctx, projectID)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(chunks) != fr.ChunkCount {
		t.Errorf("chunks = %d, want %d", len(chunks), fr.ChunkCount)
	}
	for _, c := range chunks {
		if c.SourceMaterialID != fr.MaterialID || c.Filename != "notes.md" {
			t.Errorf("chunk %d not linked to material: %+v", c.ChunkIndex, c)
		}
		if len(c.Embedding) != 0 {
			t.Errorf("chunk %d has an embedding; ingest should leave them for the workflow", c.ChunkIndex)
		}
	}
}

func TestIngestWritingSampleSkipsChunks(t *testing.T) {
	svc, st, projectID := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, Request{
		ProjectID:       projectID,
		Paths:           []string{writeTemp(t, "style.txt", sampleDoc)},
		IsWritingSample: true,
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.TotalChunks != 0 {
		t.Errorf("TotalChunks = %d, want 0 for a writing sample", res.TotalChunks)
	}

	samples, err := st.ListWritingSamples(ctx, projectID)
	if err != nil {
		t.Fatalf("ListWritingSamples() error = %v", err)
	}
	if len(samples) != 1 || !samples[0].IsWritingSample {
		t.Fatalf("samples = %+v, want one flagged row", samples)
	}

	chunks, err := st.ListChunks(ctx, projectID)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("chunks = %d, want none", len(chunks))
	}
}

func TestIngestCopiesUploads(t *testing.T) {
	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	svc, _, projectID := newTestService(t, homeDir)

	res, err := svc.Ingest(context.Background(), Request{
		ProjectID: projectID,
		Paths:     []string{writeTemp(t, "notes.md", sampleDoc)},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	stored := res.Files[0].StoredPath
	if stored == "" {
		t.Fatal("StoredPath empty, want a copy under the uploads dir")
	}
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", stored, err)
	}
	if string(data) != sampleDoc {
		t.Error("stored copy does not match the original file")
	}
	if !strings.HasPrefix(stored, homeDir.UploadsDir(projectID)) {
		t.Errorf("StoredPath = %q, want under %q", stored, homeDir.UploadsDir(projectID))
	}
}

func TestIngestMultipleFiles(t *testing.T) {
	svc, _, projectID := newTestService(t, nil)

	res, err := svc.Ingest(context.Background(), Request{
		ProjectID: projectID,
		Paths: []string{
			writeTemp(t, "one.md", sampleDoc),
			writeTemp(t, "two.txt", "Caffeine is a drug with a six hour half life."),
		},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("Files = %d, want 2", len(res.Files))
	}
	if res.TotalWords != res.Files[0].WordCount+res.Files[1].WordCount {
		t.Errorf("TotalWords = %d, want sum of per-file counts", res.TotalWords)
	}
}

func TestIngestValidation(t *testing.T) {
	svc, _, projectID := newTestService(t, nil)
	good := writeTemp(t, "ok.md", sampleDoc)

	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{
			name:    "blank project",
			req:     Request{Paths: []string{good}},
			wantErr: "project id is required",
		},
		{
			name:    "no files",
			req:     Request{ProjectID: projectID},
			wantErr: "no files provided",
		},
		{
			name:    "missing file",
			req:     Request{ProjectID: projectID, Paths: []string{"/nonexistent/file.md"}},
			wantErr: "file not found",
		},
		{
			name:    "unsupported extension",
			req:     Request{ProjectID: projectID, Paths: []string{writeTemp(t, "image.xyz", "data")}},
			wantErr: "unsupported file type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), tt.req)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Ingest() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestIngestUnknownProject(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.Ingest(context.Background(), Request{
		ProjectID: "p-missing",
		Paths:     []string{writeTemp(t, "ok.md", sampleDoc)},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Ingest() error = %v, want store.ErrNotFound", err)
	}
}
