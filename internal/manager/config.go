package manager

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imaged/internal/engine"
	"imaged/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 30 * time.Second
)

// Backend names accepted in ManagerConfig.Backend.
const (
	BackendNative    = "native"
	BackendAlternate = "alternate"
)

// OutputConfig controls saving of generated images and metadata. An empty Dir
// disables saving.
type OutputConfig struct {
	Dir             string
	Format          string
	Quality         int
	MetadataFormats []string
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry      []types.Model
	BudgetMB      int
	MarginMB      int
	DefaultModel  string
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration

	// Generation runtime
	Loader    Loader
	Backend   string
	Precision engine.Precision
	Device    string
	// Samplers overrides the native sampler registry; nil uses engine.NativeSamplers.
	Samplers map[string]engine.Sampler

	Output OutputConfig
	// LRUPath persists instance recency across restarts when set.
	LRUPath   string
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateLoading,
		registry:     cfg.Registry,
		budgetMB:     cfg.BudgetMB,
		marginMB:     cfg.MarginMB,
		defaultModel: cfg.DefaultModel,
		instances:    make(map[string]*Instance),
		loader:       cfg.Loader,
		backend:      strings.ToLower(cfg.Backend),
		precision:    cfg.Precision,
		device:       cfg.Device,
		samplers:     cfg.Samplers,
		output:       cfg.Output,
		lruPath:      cfg.LRUPath,
		publisher:    cfg.Publisher,
		log:          zerolog.Nop(),
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if m.backend == "" {
		m.backend = BackendNative
	}
	if m.loader == nil {
		m.loader = stubLoader{}
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	}
	m.loadLRUMetadata()
	m.startTime = time.Now()
	return m
}
