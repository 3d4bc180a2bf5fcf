package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Both waits share one maxWait budget. Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context, modelID string) (func(), error) {
	noop := func() {}
	m.mu.RLock()
	inst := m.instances[modelID]
	draining := inst != nil && inst.State == StateDraining
	m.mu.RUnlock()
	if inst == nil {
		return noop, modelNotFoundError{id: modelID}
	}
	// Draining instances reject new work so unload can finish.
	if draining {
		return noop, tooBusyError{modelID: modelID}
	}
	if err := ctx.Err(); err != nil {
		return noop, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	if err := acquireSlot(ctx, inst.queueCh, timer.C, modelID); err != nil {
		return noop, err
	}
	if err := acquireSlot(ctx, inst.genCh, timer.C, modelID); err != nil {
		<-inst.queueCh
		return noop, err
	}
	m.mu.Lock()
	inst.LastUsed = time.Now()
	m.mu.Unlock()
	return func() { <-inst.genCh; <-inst.queueCh }, nil
}

func acquireSlot(ctx context.Context, slot chan struct{}, timeout <-chan time.Time, modelID string) error {
	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return tooBusyError{modelID: modelID}
	}
}
