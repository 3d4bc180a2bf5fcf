package manager

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"imaged/internal/engine"
	"imaged/internal/tensor"
	"imaged/pkg/types"
)

// createModelFile creates a file of approximately sizeMB megabytes and returns its path.
func createModelFile(t *testing.T, dir, name string, sizeMB int) string {
	t.Helper()
	if sizeMB <= 0 {
		sizeMB = 1
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return p
}

// registry creates one 1MB model file per id.
func registry(t *testing.T, ids ...string) []types.Model {
	t.Helper()
	dir := t.TempDir()
	out := make([]types.Model, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.Model{ID: id, Name: id, Path: createModelFile(t, dir, id+".safetensors", 1), Format: types.FormatSafetensors})
	}
	return out
}

// fakeModel is a tiny deterministic NativeModel.
type fakeModel struct{}

func (fakeModel) EncodePrompt(_ context.Context, _ engine.Precision, text string) (*tensor.Tensor, error) {
	t := tensor.New(1, 2, 4)
	for i := range t.Data {
		t.Data[i] = float32(len(text)) * 0.01
	}
	return t, nil
}

func (fakeModel) Denoise(_ context.Context, _ engine.Precision, x *tensor.Tensor, _ float64, _ *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Scale(0.5), nil
}

func (fakeModel) EncodeImage(_ context.Context, _ engine.Precision, img image.Image) (*tensor.Tensor, error) {
	b := img.Bounds()
	return tensor.New(1, 4, b.Dy()/8, b.Dx()/8), nil
}

func (fakeModel) DecodeLatents(_ context.Context, _ engine.Precision, latents *tensor.Tensor) ([]image.Image, error) {
	h, w := latents.Dim(2)*8, latents.Dim(3)*8
	out := make([]image.Image, latents.Dim(0))
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for p := 0; p < len(img.Pix); p += 4 {
			img.Pix[p], img.Pix[p+1], img.Pix[p+2], img.Pix[p+3] = uint8(40*i), 90, 160, 255
		}
		out[i] = img
	}
	return out, nil
}

// fakePipeline is a text-to-image alternate pipeline returning solid images.
type fakePipeline struct{ scheduler engine.SchedulerSpec }

func (p *fakePipeline) Class() engine.PipelineClass { return engine.ClassTextToImage }

func (p *fakePipeline) SetScheduler(s engine.SchedulerSpec) { p.scheduler = s }

func (p *fakePipeline) Run(ctx context.Context, cmd engine.Command) ([]image.Image, error) {
	c := cmd.Params()
	for i := 0; i < c.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.Callback(i, nil); err != nil {
			return nil, err
		}
	}
	tc := cmd.(engine.TextToImageCommand)
	out := make([]image.Image, c.NumImages)
	for i := range out {
		img := image.NewRGBA(image.Rect(0, 0, tc.Width, tc.Height))
		for y := 0; y < tc.Height; y++ {
			for x := 0; x < tc.Width; x++ {
				img.Set(x, y, color.RGBA{R: 200, A: 255})
			}
		}
		out[i] = img
	}
	return out, nil
}

// fakeLoader hands out fakeModel instances and records loads and closes.
type fakeLoader struct {
	mu      sync.Mutex
	err     error
	delay   time.Duration
	loads   []string
	closed  []string
	options []LoadOptions
}

func (l *fakeLoader) Load(ctx context.Context, mdl types.Model, opts LoadOptions) (*LoadedModel, error) {
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.loads = append(l.loads, mdl.ID)
	l.options = append(l.options, opts)
	lm := &LoadedModel{
		Native: fakeModel{},
		Alternate: &engine.AlternateModel{
			Pipelines: map[engine.Operation]engine.Pipeline{engine.OpTextToImage: &fakePipeline{}},
			Encoder:   fakeModel{},
		},
	}
	id := mdl.ID
	lm.Close = func() error {
		l.mu.Lock()
		l.closed = append(l.closed, id)
		l.mu.Unlock()
		return nil
	}
	return lm, nil
}

func (l *fakeLoader) counts() (loads, closed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.loads), len(l.closed)
}

func (l *fakeLoader) closedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.closed...)
}

// smallRequest keeps generations fast: 64x64, two steps.
func smallRequest(model string) types.GenerateRequest {
	return types.GenerateRequest{Model: model, Prompt: "a red barn", Width: 64, Height: 64, NumInferenceSteps: 2}
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
