package prompts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Resolver resolves prompt keys to texts.
// Resolution order: override file in the prompts dir > embedded default.
type Resolver struct {
	overrideDir string
	embedded    map[string]EmbeddedPrompt
	mu          sync.RWMutex
	logger      *slog.Logger
}

// NewResolver creates a resolver with all embedded defaults registered.
// overrideDir may be empty to disable file overrides.
func NewResolver(overrideDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		overrideDir: overrideDir,
		embedded:    make(map[string]EmbeddedPrompt),
		logger:      logger.With("component", "prompts"),
	}
	for _, p := range Defaults() {
		r.Register(p)
	}
	return r
}

// Register registers an embedded prompt, computing its hash and variable
// list when absent.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}
	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Resolve returns the prompt for a key, preferring a <key>.tmpl file in the
// override dir. Unreadable overrides log a warning and fall through.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	if r.overrideDir != "" && validKey(key) {
		path := filepath.Join(r.overrideDir, key+".tmpl")
		if data, err := os.ReadFile(path); err == nil {
			text := strings.TrimSpace(string(data))
			if text != "" {
				return &ResolvedPrompt{
					Key:        key,
					Text:       text,
					Variables:  ExtractVariables(text),
					IsOverride: true,
				}, nil
			}
		} else if !os.IsNotExist(err) {
			r.logger.Warn("failed to read prompt override", "key", key, "error", err)
		}
	}

	r.mu.RLock()
	embedded, ok := r.embedded[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}

	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
	}, nil
}

// MustText returns the resolved prompt text, falling back to the embedded
// default on any resolution error. Panics only for unknown keys, which are
// compile-time constants.
func (r *Resolver) MustText(key string) string {
	p, err := r.Resolve(key)
	if err != nil {
		panic(err)
	}
	return p.Text
}

// GetEmbedded returns the embedded default for a key (no override resolution).
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	return result
}

// validKey rejects keys that could escape the override dir.
func validKey(key string) bool {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return false
	}
	return true
}
