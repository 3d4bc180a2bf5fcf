package engine

import (
	"context"
	"image"
	"image/color"
	"sync"

	"imaged/internal/tensor"
)

// fakeNative is a deterministic NativeModel: denoising shrinks x, encoding an
// image yields a constant latent and decoding records what it was given.
type fakeNative struct {
	mu sync.Mutex

	seqLen    map[string]int
	initValue float32
	decodeErr error
	encodeErr error

	encodeImageCalls int
	denoiseCalls     int
	precisions       []Precision
	decoded          []*tensor.Tensor
}

func newFakeNative() *fakeNative { return &fakeNative{initValue: 0.5} }

func (f *fakeNative) EncodePrompt(_ context.Context, prec Precision, text string) (*tensor.Tensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.precisions = append(f.precisions, prec)
	n := 3
	if v, ok := f.seqLen[text]; ok {
		n = v
	}
	t := tensor.New(1, n, 4)
	for i := range t.Data {
		t.Data[i] = float32(len(text)+1) * 0.01
	}
	return t, nil
}

func (f *fakeNative) Denoise(_ context.Context, prec Precision, x *tensor.Tensor, _ float64, cond *tensor.Tensor) (*tensor.Tensor, error) {
	f.mu.Lock()
	f.denoiseCalls++
	f.mu.Unlock()
	out := x.Scale(0.8)
	bias := cond.Data[0]
	for i := range out.Data {
		out.Data[i] += bias
	}
	return out, nil
}

func (f *fakeNative) EncodeImage(_ context.Context, _ Precision, img image.Image) (*tensor.Tensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encodeImageCalls++
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	b := img.Bounds()
	t := tensor.New(1, latentChannels, b.Dy()/latentFactor, b.Dx()/latentFactor)
	for i := range t.Data {
		t.Data[i] = f.initValue
	}
	return t, nil
}

func (f *fakeNative) DecodeLatents(_ context.Context, _ Precision, latents *tensor.Tensor) ([]image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	f.decoded = append(f.decoded, latents.Clone())
	h, w := latents.Dim(2)*latentFactor, latents.Dim(3)*latentFactor
	out := make([]image.Image, latents.Dim(0))
	for i := range out {
		out[i] = solid(w, h, color.RGBA{R: uint8(40 * i), G: 128, B: 200, A: 255})
	}
	return out, nil
}

func (f *fakeNative) lastDecoded() *tensor.Tensor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.decoded) == 0 {
		return nil
	}
	return f.decoded[len(f.decoded)-1]
}

type fakeHypernetwork struct{ strengths []float64 }

func (h *fakeHypernetwork) SetStrength(s float64) { h.strengths = append(h.strengths, s) }

// fakeLoRA tracks the net weight delta it has applied.
type fakeLoRA struct {
	weight float64
	calls  []float64
	err    error
}

func (l *fakeLoRA) Apply(alpha float64) error {
	if l.err != nil {
		return l.err
	}
	l.calls = append(l.calls, alpha)
	l.weight += alpha
	return nil
}

// fakePipeline records the commands it ran and reports one callback per step.
type fakePipeline struct {
	class     PipelineClass
	scheduler SchedulerSpec
	cmds      []Command
	err       error
}

func (p *fakePipeline) Class() PipelineClass         { return p.class }
func (p *fakePipeline) SetScheduler(s SchedulerSpec) { p.scheduler = s }
func (p *fakePipeline) lastCommand() Command         { return p.cmds[len(p.cmds)-1] }

func (p *fakePipeline) Run(ctx context.Context, cmd Command) ([]image.Image, error) {
	p.cmds = append(p.cmds, cmd)
	if p.err != nil {
		return nil, p.err
	}
	c := cmd.Params()
	for i := 0; i < c.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Callback != nil {
			if err := c.Callback(i, tensor.New(c.NumImages, latentChannels, 8, 8)); err != nil {
				return nil, err
			}
		}
	}
	out := make([]image.Image, c.NumImages)
	for i := range out {
		out[i] = solid(64, 64, color.Gray{Y: uint8(i)})
	}
	return out, nil
}

// spyBackend exposes the Run a coordinator hands to its backend.
type spyBackend struct {
	GenerationBackend
	run *Run
}

func (s *spyBackend) Generate(ctx context.Context, run *Run) ([]image.Image, error) {
	s.run = run
	return s.GenerationBackend.Generate(ctx, run)
}

// stageLog records stage transitions in order.
type stageLog struct {
	mu     sync.Mutex
	stages []Stage
}

func (l *stageLog) Enter(_ string, s Stage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, s)
}

func (l *stageLog) has(s Stage) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, v := range l.stages {
		if v == s {
			return true
		}
	}
	return false
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func noReclaim() {}
