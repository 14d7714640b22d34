// Package home manages the ghostline home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the ghostline home directory.
	DefaultDirName = ".ghostline"

	// DataDirName is the subdirectory for the SQLite database.
	DataDirName = "data"

	// UploadsDirName is the subdirectory for ingested source files.
	UploadsDirName = "uploads"

	// LogsDirName is the subdirectory for per-run conversation logs.
	LogsDirName = "logs"

	// PromptsDirName is the subdirectory for prompt template overrides.
	PromptsDirName = "prompts"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the SQLite database file name.
	DatabaseFileName = "ghostline.db"
)

// Dir represents the ghostline home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.ghostline).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// DatabasePath returns the path to the SQLite database file.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.DataPath(), DatabaseFileName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// UploadsDir returns the directory holding ingested source files for a project.
func (d *Dir) UploadsDir(projectID string) string {
	return filepath.Join(d.path, UploadsDirName, projectID)
}

// UploadPath returns the stored path for a single ingested source file.
func (d *Dir) UploadPath(projectID, materialID, filename string) string {
	return filepath.Join(d.UploadsDir(projectID), materialID+"_"+filepath.Base(filename))
}

// LogsDir returns the directory for per-run conversation logs.
func (d *Dir) LogsDir() string {
	return filepath.Join(d.path, LogsDirName)
}

// ConversationLogPath returns the JSONL conversation log path for a workflow run.
func (d *Dir) ConversationLogPath(workflowID string) string {
	return filepath.Join(d.LogsDir(), fmt.Sprintf("run_%s.jsonl", workflowID))
}

// PromptsDir returns the directory for prompt template overrides.
func (d *Dir) PromptsDir() string {
	return filepath.Join(d.path, PromptsDirName)
}

// PromptOverridePath returns the override file path for a prompt key.
func (d *Dir) PromptOverridePath(key string) string {
	return filepath.Join(d.PromptsDir(), key+".tmpl")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DataPath(), d.LogsDir(), d.PromptsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureUploadsDir creates the uploads directory for a project.
func (d *Dir) EnsureUploadsDir(projectID string) error {
	return os.MkdirAll(d.UploadsDir(projectID), 0o755)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
