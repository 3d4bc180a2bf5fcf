package manager

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"imaged/internal/engine"
	"imaged/pkg/types"
)

func TestNewWithConfigDefaults(t *testing.T) {
	m := NewWithConfig(ManagerConfig{})
	if m.maxQueueDepth != defaultMaxQueueDepth {
		t.Fatalf("expected default maxQueueDepth=%d got %d", defaultMaxQueueDepth, m.maxQueueDepth)
	}
	if m.maxWait != defaultMaxWait {
		t.Fatalf("expected default maxWait=%v got %v", defaultMaxWait, m.maxWait)
	}
	if m.drainTimeout != defaultDrainTimeout {
		t.Fatalf("expected default drainTimeout=%v got %v", defaultDrainTimeout, m.drainTimeout)
	}
	if m.Backend() != BackendNative {
		t.Fatalf("expected native backend by default, got %q", m.Backend())
	}
	if _, ok := m.loader.(stubLoader); !ok {
		t.Fatalf("expected stub loader by default, got %T", m.loader)
	}
}

func TestListModelsReturnsCopy(t *testing.T) {
	reg := []types.Model{{ID: "a"}, {ID: "b"}}
	m := NewWithConfig(ManagerConfig{Registry: reg})
	out := m.ListModels()
	if len(out) != 2 {
		t.Fatalf("expected 2 got %d", len(out))
	}
	out[0].ID = "z"
	if m.ListModels()[0].ID != "a" {
		t.Fatalf("registry mutated via returned slice")
	}
}

func TestReadyReflectsInstance(t *testing.T) {
	m := NewWithConfig(ManagerConfig{Registry: registry(t, "m1"), DefaultModel: "m1", Loader: &fakeLoader{}})
	if m.Ready() {
		t.Fatalf("expected not ready initially")
	}
	if err := m.EnsureInstance(testCtx(t), ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !m.Ready() {
		t.Fatalf("expected ready after ensure")
	}
	snap := m.Snapshot()
	if snap.State != StateReady || snap.CurrentModel == nil || snap.CurrentModel.ID != "m1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestEnsureUnknownModel(t *testing.T) {
	m := NewWithConfig(ManagerConfig{Registry: registry(t, "m1"), Loader: &fakeLoader{}})
	if err := m.EnsureInstance(testCtx(t), "nope"); !IsModelNotFound(err) {
		t.Fatalf("expected model not found, got %v", err)
	}
	if err := m.EnsureInstance(testCtx(t), ""); !IsModelNotFound(err) {
		t.Fatalf("expected model not found without default, got %v", err)
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	l := &fakeLoader{}
	m := NewWithConfig(ManagerConfig{Registry: registry(t, "m1"), Loader: l, Backend: "Alternate", Precision: engine.PrecisionHalf, Device: "cuda:1"})
	for i := 0; i < 3; i++ {
		if err := m.EnsureInstance(testCtx(t), "m1"); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if loads, _ := l.counts(); loads != 1 {
		t.Fatalf("expected a single load, got %d", loads)
	}
	opts := l.options[0]
	if opts.Backend != BackendAlternate || opts.Precision != engine.PrecisionHalf || opts.Device != "cuda:1" {
		t.Fatalf("unexpected load options: %+v", opts)
	}
}

func TestConcurrentEnsureLoadsOnce(t *testing.T) {
	l := &fakeLoader{delay: 50 * time.Millisecond}
	m := NewWithConfig(ManagerConfig{Registry: registry(t, "m1"), Loader: l})
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() { errs <- m.EnsureInstance(testCtx(t), "m1") }()
	}
	for i := 0; i < 4; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if loads, _ := l.counts(); loads != 1 {
		t.Fatalf("expected a single load, got %d", loads)
	}
}

func TestStubLoaderIsDependencyUnavailable(t *testing.T) {
	m := NewWithConfig(ManagerConfig{Registry: registry(t, "m1")})
	_, err := m.Generate(testCtx(t), smallRequest("m1"), nil, nil)
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	st := m.Status()
	if st.State != string(StateError) || st.Error == "" || len(st.Instances) != 0 || st.UsedMB != 0 {
		t.Fatalf("failed load must leave no instance behind: %+v", st)
	}
	if m.Ready() {
		t.Fatalf("not ready after failed load")
	}
}

func TestLoaderErrorPropagates(t *testing.T) {
	boom := errors.New("corrupt weights")
	m := NewWithConfig(ManagerConfig{Registry: registry(t, "m1"), Loader: &fakeLoader{err: boom}})
	if err := m.EnsureInstance(testCtx(t), "m1"); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestErrorHelpersSeeThroughWrapping(t *testing.T) {
	cases := []struct {
		err   error
		check func(error) bool
	}{
		{ErrModelNotFound("x"), IsModelNotFound},
		{tooBusyError{modelID: "x"}, IsTooBusy},
		{ErrDependencyUnavailable("x"), IsDependencyUnavailable},
		{budgetExceededError{modelID: "x"}, IsBudgetExceeded},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("outer: %w", c.err)
		if !c.check(c.err) || !c.check(wrapped) {
			t.Fatalf("helper did not match %v", c.err)
		}
		if c.check(errors.New("other")) {
			t.Fatalf("helper matched unrelated error")
		}
	}
}

func TestCloseUnloadsEverything(t *testing.T) {
	l := &fakeLoader{}
	m := NewWithConfig(ManagerConfig{Registry: registry(t, "a", "b"), Loader: l})
	for _, id := range []string{"a", "b"} {
		if err := m.EnsureInstance(context.Background(), id); err != nil {
			t.Fatalf("ensure %s: %v", id, err)
		}
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, closed := l.counts(); closed != 2 {
		t.Fatalf("expected both models closed, got %d", closed)
	}
	if n := len(m.Status().Instances); n != 0 {
		t.Fatalf("expected no instances, got %d", n)
	}
}
