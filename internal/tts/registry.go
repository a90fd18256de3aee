package tts

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownProvider is returned when a provider is not registered.
	ErrUnknownProvider = errors.New("unknown tts provider")

	// ErrProviderExists is returned when registering a duplicate provider.
	ErrProviderExists = errors.New("tts provider already registered")
)

// Provider identifiers.
const (
	ProviderIndexTTS  = "index-tts"
	ProviderEdgeTTS   = "edge-tts"
	ProviderDoubaoTTS = "doubao-tts"
	ProviderFishAudio = "fish-audio"
	ProviderGeminiTTS = "gemini-tts"
	ProviderMinimax   = "minimax"
	ProviderPiper     = "piper"
)

// Settings carries service-wide knobs shared by all adapters.
type Settings struct {
	// RequestTimeout bounds one vendor call. Vendors known to be slow get twice this.
	RequestTimeout time.Duration
}

func (s Settings) client(slow bool) *http.Client {
	timeout := s.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if slow {
		timeout *= 2
	}
	return &http.Client{Timeout: timeout}
}

// Factory validates a provider's configuration and credentials and builds its adapter.
type Factory func(cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error)

// Registry maps provider identifiers to adapter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(ProviderIndexTTS, newURLTemplateFactory(ProviderIndexTTS, FormatWAV))
	_ = r.Register(ProviderEdgeTTS, newURLTemplateFactory(ProviderEdgeTTS, FormatMP3))
	_ = r.Register(ProviderDoubaoTTS, newDoubao)
	_ = r.Register(ProviderFishAudio, newFishAudio)
	_ = r.Register(ProviderGeminiTTS, newGemini)
	_ = r.Register(ProviderMinimax, newMinimax)
	_ = r.Register(ProviderPiper, newPiper)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.factories[name] = f
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the adapter for name.
func (r *Registry) New(name string, cfg *ProviderConfig, creds Credentials, s Settings) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%s: nil provider config", name)
	}
	if creds == nil {
		creds = Credentials{}
	}
	return f(cfg, creds, s)
}
