package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pltanton/insightloop/internal/config"
	"github.com/pltanton/insightloop/internal/logger"
)

// ErrNotConfigured is returned by an engine factory when required settings
// (API key, base URL) are missing. The manager skips such engines.
var ErrNotConfigured = errors.New("search engine not configured")

// ErrNoEngine means no enabled engine is available.
var ErrNoEngine = errors.New("no available search engine")

// Search strategies.
const (
	StrategyFirst = "first"
	StrategyAll   = "all"
)

// Manager holds the configured engines and queries them in priority order.
type Manager struct {
	registry *Registry
	engines  map[string]Engine
	strategy string
	mu       sync.RWMutex
}

func NewManager(cfg config.SearchConfig, registry *Registry) (*Manager, error) {
	m := &Manager{
		registry: registry,
		engines:  make(map[string]Engine),
		strategy: StrategyFirst,
	}
	if cfg.Strategy == StrategyAll {
		m.strategy = StrategyAll
	}

	for _, engineCfg := range cfg.Engines {
		if !engineCfg.Enabled {
			continue
		}
		engine, err := registry.CreateEngine(EngineConfig{
			Name:     engineCfg.Name,
			Type:     engineCfg.Type,
			APIKey:   engineCfg.APIKey,
			BaseURL:  engineCfg.BaseURL,
			Enabled:  engineCfg.Enabled,
			Priority: engineCfg.Priority,
			Options:  engineCfg.Options,
		})
		if errors.Is(err, ErrNotConfigured) {
			logger.Debug("[SEARCH] Skipping engine %s: %v", engineCfg.Name, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		m.engines[engineCfg.Name] = engine
	}

	return m, nil
}

func (m *Manager) AddEngine(config EngineConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	engine, err := m.registry.CreateEngine(config)
	if err != nil {
		return err
	}

	m.engines[config.Name] = engine
	return nil
}

// AddEngineInstance registers an already constructed engine.
func (m *Manager) AddEngineInstance(engine Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engines[engine.Name()] = engine
}

func (m *Manager) ListEngines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.engines))
	for name := range m.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// byPriority returns enabled engines, lowest priority value first.
func (m *Manager) byPriority() []Engine {
	m.mu.RLock()
	engines := make([]Engine, 0, len(m.engines))
	for _, e := range m.engines {
		if e.IsEnabled() {
			engines = append(engines, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(engines, func(i, j int) bool {
		if engines[i].Priority() != engines[j].Priority() {
			return engines[i].Priority() < engines[j].Priority()
		}
		return engines[i].Name() < engines[j].Name()
	})
	return engines
}

// Search answers query with the configured strategy: the first non-empty
// response in priority order, or the merged hits of every engine.
func (m *Manager) Search(ctx context.Context, query string, limit int) (*Response, error) {
	if m.strategy == StrategyAll {
		combined, err := m.SearchAll(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return &Response{Query: query, Hits: combined.Combined, Engine: StrategyAll, Duration: combined.Duration}, nil
	}
	return m.searchFirst(ctx, query, limit)
}

func (m *Manager) searchFirst(ctx context.Context, query string, limit int) (*Response, error) {
	engines := m.byPriority()
	if len(engines) == 0 {
		return nil, ErrNoEngine
	}

	var lastErr error
	for _, engine := range engines {
		resp, err := engine.Search(ctx, query, limit)
		if err == nil && resp != nil && len(resp.Hits) > 0 {
			return resp, nil
		}
		if err != nil {
			logger.Warn("[SEARCH] Engine %s failed: %v", engine.Name(), err)
			lastErr = fmt.Errorf("%s: %w", engine.Name(), err)
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return &Response{Query: query}, nil
}

// SearchAll queries every enabled engine concurrently and merges the hits,
// deduplicated by URL in priority order. It fails only when every engine did.
func (m *Manager) SearchAll(ctx context.Context, query string, limit int) (*CombinedResponse, error) {
	engines := m.byPriority()
	if len(engines) == 0 {
		return nil, ErrNoEngine
	}

	started := time.Now()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		responses = make(map[string]Response)
		errs      []error
	)
	for _, engine := range engines {
		wg.Add(1)
		go func(eng Engine) {
			defer wg.Done()
			resp, err := eng.Search(ctx, query, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("[SEARCH] Engine %s failed: %v", eng.Name(), err)
				errs = append(errs, fmt.Errorf("%s: %w", eng.Name(), err))
				return
			}
			if resp != nil {
				responses[eng.Name()] = *resp
			}
		}(engine)
	}
	wg.Wait()

	if len(responses) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	seen := make(map[string]bool)
	var combined []Hit
	for _, engine := range engines {
		resp, ok := responses[engine.Name()]
		if !ok {
			continue
		}
		for _, hit := range resp.Hits {
			if !seen[hit.URL] {
				seen[hit.URL] = true
				combined = append(combined, hit)
			}
		}
	}

	return &CombinedResponse{
		Query:     query,
		Responses: responses,
		Combined:  combined,
		Duration:  time.Since(started),
	}, nil
}
