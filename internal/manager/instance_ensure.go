package manager

import (
	"context"
	"time"

	"imaged/internal/engine"
)

// EnsureInstance ensures a model is loaded and bound to a coordinator,
// evicting idle instances first when a VRAM budget is configured.
func (m *Manager) EnsureInstance(ctx context.Context, modelID string) error {
	startTs := time.Now()
	modelID, err := m.resolveModelID(modelID)
	if err != nil {
		return err
	}

	for {
		m.mu.Lock()
		inst, ok := m.instances[modelID]
		switch {
		case ok && inst.State == StateReady:
			inst.LastUsed = time.Now()
			m.mu.Unlock()
			return nil
		case ok && inst.State == StateDraining:
			m.mu.Unlock()
			return tooBusyError{modelID: modelID}
		case ok && inst.State == StateLoading:
			// another caller is loading it
			m.mu.Unlock()
			select {
			case <-time.After(10 * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		break
	}

	m.log.Info().Str("event", "ensure_start").Str("model", modelID).Msg("ensure instance")
	m.publish(Event{Name: "ensure_start", ModelID: modelID})

	mdl, ok := m.getModelByID(modelID)
	if !ok {
		m.log.Warn().Str("event", "ensure_model_not_found").Str("model", modelID).Msg("ensure instance")
		m.publish(Event{Name: "ensure_model_not_found", ModelID: modelID})
		return ErrModelNotFound(modelID)
	}
	reqMB := m.estimateVRAMMB(mdl)

	if m.budgetMB > 0 {
		if err := m.evictUntilFits(modelID, reqMB); err != nil {
			m.log.Warn().Str("event", "ensure_budget_fail").Str("model", modelID).Err(err).Msg("ensure instance")
			m.publish(Event{Name: "ensure_budget_fail", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
			return err
		}
	}

	// Reserve the instance in loading state so concurrent callers wait on it.
	m.mu.Lock()
	if inst, ok := m.instances[modelID]; ok && inst.State != StateError {
		m.mu.Unlock()
		return m.EnsureInstance(ctx, modelID)
	}
	m.state = StateLoading
	m.err = ""
	inst := &Instance{
		ID:        modelID,
		State:     StateLoading,
		LastUsed:  time.Now(),
		EstVRAMMB: reqMB,
		genCh:     make(chan struct{}, 1),
		queueCh:   make(chan struct{}, m.maxQueueDepth),
		stage:     engine.StageIdle,
	}
	m.instances[modelID] = inst
	m.usedEstMB += reqMB
	m.mu.Unlock()

	lm, err := m.loader.Load(ctx, mdl, LoadOptions{Backend: m.backend, Precision: m.precision, Device: m.device})
	if err != nil {
		m.mu.Lock()
		delete(m.instances, modelID)
		m.usedEstMB -= reqMB
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		m.log.Error().Str("event", "ensure_load_error").Str("model", modelID).Err(err).Msg("ensure instance")
		m.publish(Event{Name: "ensure_load_error", ModelID: modelID, Fields: map[string]any{"error": err.Error()}})
		return err
	}

	coord := engine.NewCoordinator(m.newBackend(lm), engine.Options{
		Precision: m.precision,
		Logger:    &m.log,
		Stages:    m.stageObserver(inst),
	})

	m.mu.Lock()
	if m.instances[modelID] != inst {
		// unloaded while loading
		m.mu.Unlock()
		_ = lm.close()
		return tooBusyError{modelID: modelID}
	}
	inst.model = lm
	inst.coord = coord
	inst.State = StateReady
	inst.LastUsed = time.Now()
	m.cur = &ModelInfo{ID: modelID, Name: mdl.Name, Path: mdl.Path, Format: mdl.Format}
	m.state = StateReady
	m.err = ""
	m.loadsTotal++
	m.mu.Unlock()

	m.saveLRUMetadata()
	dur := time.Since(startTs)
	m.log.Info().Str("event", "ensure_ready").Str("model", modelID).Str("backend", m.backend).Dur("dur", dur).Msg("ensure instance")
	m.publish(Event{Name: "ensure_ready", ModelID: modelID, Fields: map[string]any{"dur_ms": int(dur / time.Millisecond), "backend": m.backend}})
	return nil
}

func (m *Manager) newBackend(lm *LoadedModel) engine.GenerationBackend {
	if m.backend == BackendAlternate {
		return engine.NewAlternateBackend(lm.Alternate)
	}
	return engine.NewNativeBackend(lm.Native, lm.Hypernetwork, m.samplers)
}

// stageObserver records the run stage on the instance and forwards it as an event.
func (m *Manager) stageObserver(inst *Instance) engine.StageObserver {
	return engine.StageFunc(func(runID string, s engine.Stage) {
		m.mu.Lock()
		inst.stage = s
		m.mu.Unlock()
		m.publish(Event{Name: "stage", ModelID: inst.ID, Fields: map[string]any{"run_id": runID, "stage": string(s)}})
	})
}
