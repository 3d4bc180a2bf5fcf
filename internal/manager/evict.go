package manager

// evictUntilFits unloads LRU idle instances until requiredMB fits budget + margin.
// Instances with in-flight or queued work are never evicted.
func (m *Manager) evictUntilFits(modelID string, requiredMB int) error {
	for {
		m.mu.Lock()
		if m.usedEstMB+requiredMB+m.marginMB <= m.budgetMB {
			m.mu.Unlock()
			return nil
		}
		var lru *Instance
		for _, inst := range m.instances {
			if inst.ID == modelID || inst.State != StateReady {
				continue
			}
			if len(inst.genCh) > 0 || len(inst.queueCh) > 0 {
				continue
			}
			if lru == nil || inst.LastUsed.Before(lru.LastUsed) {
				lru = inst
			}
		}
		if lru == nil {
			m.mu.Unlock()
			return budgetExceededError{modelID: modelID, requiredMB: requiredMB + m.marginMB, budgetMB: m.budgetMB - m.usedEstMB}
		}
		delete(m.instances, lru.ID)
		m.usedEstMB -= lru.EstVRAMMB
		if m.cur != nil && m.cur.ID == lru.ID {
			m.cur = nil
		}
		m.evictionsTotal++
		model := lru.model
		m.mu.Unlock()

		if err := model.close(); err != nil {
			m.log.Warn().Str("event", "evict_close_error").Str("model", lru.ID).Err(err).Msg("evict")
		}
		m.log.Info().Str("event", "evict").Str("model", lru.ID).Int("freed_mb", lru.EstVRAMMB).Str("for", modelID).Msg("evict")
		m.publish(Event{Name: "evict", ModelID: lru.ID, Fields: map[string]any{"freed_mb": lru.EstVRAMMB, "for": modelID}})
	}
}
