package manager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

type lruRecord struct {
	LastUsedUnix int64 `json:"last_used_unix"`
	EstVRAMMB    int   `json:"est_vram_mb"`
}

func (m *Manager) loadLRUMetadata() {
	if m.lruPath == "" {
		return
	}
	b, err := os.ReadFile(m.lruPath)
	if err != nil {
		return
	}
	var data map[string]lruRecord
	if err := json.Unmarshal(b, &data); err != nil {
		m.log.Warn().Str("path", m.lruPath).Err(err).Msg("ignoring unreadable lru state")
		return
	}
	m.lruMeta = data
}

// saveLRUMetadata merges live instances into the persisted records and writes
// them. Models that are no longer in the registry are dropped.
func (m *Manager) saveLRUMetadata() {
	if m.lruPath == "" {
		return
	}
	m.mu.Lock()
	if m.lruMeta == nil {
		m.lruMeta = make(map[string]lruRecord)
	}
	for id, inst := range m.instances {
		m.lruMeta[id] = lruRecord{LastUsedUnix: inst.LastUsed.Unix(), EstVRAMMB: inst.EstVRAMMB}
	}
	snap := make(map[string]lruRecord, len(m.lruMeta))
	for id, rec := range m.lruMeta {
		if _, ok := m.getModelByID(id); ok {
			snap[id] = rec
		}
	}
	m.mu.Unlock()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	if dir := filepath.Dir(m.lruPath); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := os.WriteFile(m.lruPath, b, 0o644); err != nil {
		m.log.Warn().Str("path", m.lruPath).Err(err).Msg("write lru state")
	}
}

// RecentModels returns up to n model ids from the persisted LRU state, most
// recently used first. n <= 0 returns all of them.
func (m *Manager) RecentModels(n int) []string {
	m.mu.RLock()
	type entry struct {
		id   string
		used int64
	}
	entries := make([]entry, 0, len(m.lruMeta))
	for id, rec := range m.lruMeta {
		if _, ok := m.getModelByID(id); ok {
			entries = append(entries, entry{id: id, used: rec.LastUsedUnix})
		}
	}
	m.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].used != entries[j].used {
			return entries[i].used > entries[j].used
		}
		return entries[i].id < entries[j].id
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}
