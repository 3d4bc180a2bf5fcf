package manager

import (
	"os"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	Backend        string   `json:"backend"`
	LoaderReady    bool     `json:"loader_ready"`
	ModelsFound    int      `json:"models_found"`
	MissingModels  []string `json:"missing_models,omitempty"`
	DefaultPresent bool     `json:"default_present"`
	Error          string   `json:"error,omitempty"`
}

// SanityCheck validates that a weight loader is configured and that registry
// paths still exist. It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := SanityReport{Backend: m.backend}
	_, stub := m.loader.(stubLoader)
	r.LoaderReady = !stub
	for _, mdl := range m.registry {
		if _, err := os.Stat(mdl.Path); err != nil {
			r.MissingModels = append(r.MissingModels, mdl.ID)
			continue
		}
		r.ModelsFound++
	}
	if m.defaultModel != "" {
		_, r.DefaultPresent = m.getModelByID(m.defaultModel)
	}
	switch {
	case !r.LoaderReady:
		r.Error = "no weight loader configured"
	case m.defaultModel != "" && !r.DefaultPresent:
		r.Error = "default model not in registry: " + m.defaultModel
	}
	return r
}
