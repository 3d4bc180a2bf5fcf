package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imaged/internal/engine"
	"imaged/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	registry     []types.Model
	budgetMB     int
	marginMB     int
	defaultModel string
	// Multi-instance fields
	instances map[string]*Instance
	usedEstMB int

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration

	// Generation runtime
	loader    Loader
	backend   string
	precision engine.Precision
	device    string
	samplers  map[string]engine.Sampler
	output    OutputConfig

	publisher EventPublisher
	log       zerolog.Logger

	lruPath string
	lruMeta map[string]lruRecord

	// Counters reported by Status; guarded by mu.
	startTime        time.Time
	evictionsTotal   uint64
	loadsTotal       uint64
	generationsTotal uint64
}

func New(reg []types.Model, budgetMB, marginMB int, defaultModel string) *Manager {
	return NewWithConfig(ManagerConfig{
		Registry:     reg,
		BudgetMB:     budgetMB,
		MarginMB:     marginMB,
		DefaultModel: defaultModel,
	})
}

func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError {
		return false
	}
	// Ready if any instance is ready
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	return false
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// Backend returns the configured backend name.
func (m *Manager) Backend() string { return m.backend }

// SetPublisher replaces the event publisher. A nil publisher drops events.
func (m *Manager) SetPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	p.Publish(e)
}

func (m *Manager) nextOpID() string { return uuid.NewString() }

// Close unloads every instance, draining in-flight work first.
func (m *Manager) Close() error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	m.saveLRUMetadata()
	var first error
	for _, id := range ids {
		if err := m.Unload(id); err != nil && first == nil && !IsModelNotFound(err) {
			first = err
		}
	}
	return first
}
