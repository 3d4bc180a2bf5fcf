package engine

import (
	"fmt"
	"sync"
)

// AdapterState records which LoRA strength is currently patched into the model.
type AdapterState struct {
	Applied bool
	Last    float64
}

// AdapterPatcher applies a LoRA to a model so that at most one strength is in
// effect at a time. Changing strength undoes the previous patch by applying its
// exact negation first; deltas never accumulate.
type AdapterPatcher struct {
	mu    sync.Mutex
	lora  LoRA
	state AdapterState
}

// NewAdapterPatcher wraps lora with an empty state.
func NewAdapterPatcher(lora LoRA) *AdapterPatcher {
	return &AdapterPatcher{lora: lora}
}

// State returns a snapshot of the patch state.
func (p *AdapterPatcher) State() AdapterState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Apply brings the model to the given strength. It is a no-op when that
// strength is already applied.
func (p *AdapterPatcher) Apply(alpha float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Applied && p.state.Last == alpha {
		return nil
	}
	if err := p.undoLocked(); err != nil {
		return err
	}
	if err := p.lora.Apply(alpha); err != nil {
		return fmt.Errorf("apply lora alpha=%g: %w", alpha, err)
	}
	p.state = AdapterState{Applied: true, Last: alpha}
	return nil
}

// Undo reverses the current patch, restoring the unpatched weights.
func (p *AdapterPatcher) Undo() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.undoLocked()
}

func (p *AdapterPatcher) undoLocked() error {
	if !p.state.Applied {
		return nil
	}
	if err := p.lora.Apply(-p.state.Last); err != nil {
		return fmt.Errorf("undo lora alpha=%g: %w", p.state.Last, err)
	}
	p.state = AdapterState{}
	return nil
}
