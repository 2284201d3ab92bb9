package ocr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Factory builds the engine for a language code.
type Factory func(code string) (Engine, error)

// Registry caches one engine handle per language. Engines are created on
// first use and reused for the lifetime of the registry.
type Registry struct {
	factory Factory

	mu      sync.Mutex
	engines map[string]Engine
}

// NewRegistry creates a registry backed by factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, engines: make(map[string]Engine)}
}

// Get returns the cached engine for code, creating it on first use. A failed
// construction is not cached so a later call may retry.
func (r *Registry) Get(code string) (Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[code]; ok {
		return e, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("no engine factory for language %q", code)
	}
	e, err := r.factory(code)
	if err != nil {
		return nil, fmt.Errorf("create engine for %q: %w", code, err)
	}
	r.engines[code] = e
	return e, nil
}

// Profiles returns one profile per code. Engine construction is deferred to
// the first Recognize call, so an engine that fails to initialize surfaces as
// a failed pass instead of failing the whole request.
func (r *Registry) Profiles(codes []string) []LanguageProfile {
	out := make([]LanguageProfile, 0, len(codes))
	for _, code := range codes {
		out = append(out, LanguageProfile{Code: code, Engine: lazyEngine{reg: r, code: code}})
	}
	return out
}

// Languages returns the codes with a constructed engine, sorted.
func (r *Registry) Languages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.engines))
	for code := range r.engines {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Close releases every cached engine that implements io.Closer.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for code, e := range r.engines {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close engine %q: %w", code, err)
			}
		}
		delete(r.engines, code)
	}
	return firstErr
}

type lazyEngine struct {
	reg  *Registry
	code string
}

func (l lazyEngine) Recognize(ctx context.Context, img Image) ([]Token, error) {
	e, err := l.reg.Get(l.code)
	if err != nil {
		return nil, err
	}
	return e.Recognize(ctx, img)
}
