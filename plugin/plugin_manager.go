package plugin

import (
	"context"
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"guardex/llm"
	"guardex/models"
	"sync"
)

// Manager defines the Plugin Manager containing all the plugins.
type Manager struct {
	mu      sync.RWMutex
	plugins []Plugin
}

// NewManager initializes a new *Manager with the plugins enabled in settings.
// The LLM analyzer is skipped when no completer is available.
func NewManager(settings Settings, completer llm.Rotator) *Manager {
	m := &Manager{plugins: make([]Plugin, 0)}

	if settings.Plugins.LLM {
		if completer == nil {
			logrus.Warn("LLM analyzer enabled but no LLM keys are configured, skipping")
		} else {
			m.Add(NewLLMAnalyzer(completer, settings.Model))
		}
	}
	if settings.Plugins.Secrets {
		m.Add(NewSecretAnalyzer())
	}
	return m
}

// Add plugs in a new Plugin.
func (m *Manager) Add(p Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = append(m.plugins, p)
}

// Remove unplugs a Plugin.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.plugins[:0]
	for _, p := range m.plugins {
		if p.Name() != name {
			kept = append(kept, p)
		}
	}
	ok := len(kept) != len(m.plugins)
	m.plugins = kept
	return ok
}

// Count returns the number of active plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// Get retrieves the Plugin.
func (m *Manager) Get(name string) Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// RunAll runs every plugin on the chunk concurrently. Findings are returned in
// plugin order. Plugin failures are logged and joined into the returned error;
// the findings of the other plugins are still returned.
func (m *Manager) RunAll(ctx context.Context, chunk *models.Chunk) ([]models.Vulnerability, error) {
	m.mu.RLock()
	plugins := make([]Plugin, len(m.plugins))
	copy(plugins, m.plugins)
	m.mu.RUnlock()

	partials := make([][]models.Vulnerability, len(plugins))
	e := make([]error, len(plugins))

	var wg sync.WaitGroup

	for i, p := range plugins {
		wg.Add(1)
		go func(idx int, p Plugin) {
			defer wg.Done()

			vulns, err := p.Run(ctx, chunk)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"plugin": p.Name(),
					"file":   chunk.FileURL,
					"chunk":  chunk.Index,
				}).Warnf("plugin failed: %v", err)
				e[idx] = fmt.Errorf("%s: %w", p.Name(), err)
				return
			}
			partials[idx] = vulns
		}(i, p)
	}

	wg.Wait()

	ret := make([]models.Vulnerability, 0)
	for _, pr := range partials {
		ret = append(ret, pr...)
	}
	return ret, errors.Join(e...)
}
