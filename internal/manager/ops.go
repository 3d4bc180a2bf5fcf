package manager

import "context"

// Switch starts loading a model in the background and returns an operation ID.
// Unknown ids fail synchronously; load failures are reported through events
// and Status.
func (m *Manager) Switch(_ context.Context, modelID string) (string, error) {
	modelID, err := m.resolveModelID(modelID)
	if err != nil {
		return "", err
	}
	if _, ok := m.getModelByID(modelID); !ok {
		return "", ErrModelNotFound(modelID)
	}
	op := m.nextOpID()
	m.publish(Event{Name: "switch_start", ModelID: modelID, Fields: map[string]any{"op": op}})
	go func() {
		// detached: the request that triggered the switch may already be gone
		err := m.EnsureInstance(context.Background(), modelID)
		fields := map[string]any{"op": op}
		if err != nil {
			fields["error"] = err.Error()
			m.log.Warn().Str("event", "switch_error").Str("model", modelID).Str("op", op).Err(err).Msg("switch")
		}
		m.publish(Event{Name: "switch_done", ModelID: modelID, Fields: fields})
	}()
	return op, nil
}
