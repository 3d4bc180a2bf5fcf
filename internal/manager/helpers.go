package manager

import (
	"imaged/internal/common/fsutil"
	"imaged/pkg/types"
)

// Helper: find model in registry by id.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// resolveModelID falls back to the default model for an empty id.
func (m *Manager) resolveModelID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if m.defaultModel == "" {
		return "", ErrModelNotFound("(unspecified)")
	}
	return m.defaultModel, nil
}

// Helper: estimate VRAM from the on-disk size (MB). Diffusers directories are
// summed. Never returns less than 1 so an unknown size cannot bypass budget checks.
func (m *Manager) estimateVRAMMB(mdl types.Model) int {
	size, err := fsutil.SizeOnDisk(mdl.Path)
	if err != nil {
		return 1
	}
	mb := int(size / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}
