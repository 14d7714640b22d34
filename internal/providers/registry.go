package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry holds references to chat clients. It supports config-driven
// instantiation and provides thread-safe access.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]ChatClient
	logger  *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]ChatClient),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register registers a chat client by name.
func (r *Registry) Register(name string, client ChatClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	if r.logger != nil {
		r.logger.Info("registered chat client", "name", name)
	}
}

// Unregister removes a chat client by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
	if r.logger != nil {
		r.logger.Info("unregistered chat client", "name", name)
	}
}

// Get returns a chat client by name.
func (r *Registry) Get(name string) (ChatClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("chat client not found: %s", name)
	}
	return client, nil
}

// Has checks if a chat client is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// List returns all registered chat client names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// ClientConfig defines one provider to instantiate from config. The API key
// must already be resolved (no ${ENV_VAR} references).
type ClientConfig struct {
	Type           string // "anthropic", "openai"
	Model          string
	APIKey         string
	MaxRetries     int
	TimeoutSeconds int
	Enabled        bool
}

// NewRegistryFromConfig creates a registry with clients based on
// configuration. Only enabled providers with API keys are registered.
func NewRegistryFromConfig(configs map[string]ClientConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(configs)
	return r
}

// Reload updates the registry from new configuration. Providers that are no
// longer configured are unregistered.
func (r *Registry) Reload(configs map[string]ClientConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, cfg := range configs {
		if !cfg.Enabled || cfg.APIKey == "" {
			continue
		}
		client := newClient(cfg)
		if client == nil {
			if r.logger != nil {
				r.logger.Warn("unknown provider type in config", "name", name, "type", cfg.Type)
			}
			continue
		}
		want[name] = true
		r.clients[name] = client
		if r.logger != nil {
			r.logger.Info("registered chat client", "name", name, "type", cfg.Type, "model", cfg.Model)
		}
	}

	for name := range r.clients {
		if !want[name] {
			delete(r.clients, name)
			if r.logger != nil {
				r.logger.Info("unregistered chat client", "name", name)
			}
		}
	}
}

func newClient(cfg ClientConfig) ChatClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Type {
	case AnthropicName:
		return NewAnthropicClient(AnthropicConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			Timeout:    timeout,
		})
	case OpenAIName:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			Timeout:    timeout,
		})
	case MockClientName:
		return NewMockClient()
	default:
		return nil
	}
}
