package e2e

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"imaged/internal/engine"
	"imaged/internal/httpapi"
	"imaged/internal/manager"
	"imaged/internal/registry"
	"imaged/internal/tensor"
	"imaged/pkg/types"
)

// createTempModelsDir creates a temporary directory populated with small
// .safetensors files and returns the directory path and the model IDs.
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir, names
}

// toyModel is a deterministic NativeModel; stepDelay slows each denoise call.
type toyModel struct {
	stepDelay time.Duration
	denoised  atomic.Int64
}

func (m *toyModel) EncodePrompt(_ context.Context, _ engine.Precision, text string) (*tensor.Tensor, error) {
	t := tensor.New(1, 2, 4)
	for i := range t.Data {
		t.Data[i] = float32(len(text)) * 0.01
	}
	return t, nil
}

func (m *toyModel) Denoise(ctx context.Context, _ engine.Precision, x *tensor.Tensor, _ float64, _ *tensor.Tensor) (*tensor.Tensor, error) {
	m.denoised.Add(1)
	if m.stepDelay > 0 {
		select {
		case <-time.After(m.stepDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return x.Scale(0.5), nil
}

func (m *toyModel) EncodeImage(_ context.Context, _ engine.Precision, img image.Image) (*tensor.Tensor, error) {
	b := img.Bounds()
	return tensor.New(1, 4, b.Dy()/8, b.Dx()/8), nil
}

func (m *toyModel) DecodeLatents(_ context.Context, _ engine.Precision, latents *tensor.Tensor) ([]image.Image, error) {
	h, w := latents.Dim(2)*8, latents.Dim(3)*8
	out := make([]image.Image, latents.Dim(0))
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = 200, 80, uint8(30*i), 255
		}
		out[i] = img
	}
	return out, nil
}

// toyLoader serves every registry entry with the same toyModel.
func toyLoader(m *toyModel) manager.Loader {
	return manager.LoaderFunc(func(ctx context.Context, _ types.Model, _ manager.LoadOptions) (*manager.LoadedModel, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &manager.LoadedModel{Native: m}, nil
	})
}

// newServerForDirWithConfig scans modelsDir into cfg.Registry and serves a
// Manager built from cfg.
func newServerForDirWithConfig(t *testing.T, modelsDir string, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	reg, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	cfg.Registry = reg
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	return do(t, http.MethodGet, url, nil)
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	return do(t, http.MethodPost, url, payload)
}

func do(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

// waitFor polls cond every 25ms until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(25 * time.Millisecond)
	}
}
