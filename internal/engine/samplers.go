package engine

import (
	"context"
	"math"
	"math/rand/v2"

	"imaged/internal/tensor"
)

// DenoiseFunc returns the guided clean-latent estimate for x at noise level sigma.
type DenoiseFunc func(ctx context.Context, x *tensor.Tensor, sigma float64) (*tensor.Tensor, error)

// StepFunc runs after step i produced x. It may replace x (mask re-blending)
// and returns an error to abort sampling.
type StepFunc func(ctx context.Context, i int, x *tensor.Tensor) (*tensor.Tensor, error)

// Sampler integrates x along sigmas (descending, ending in 0).
type Sampler func(ctx context.Context, denoise DenoiseFunc, x *tensor.Tensor, sigmas []float64, rng *rand.Rand, params map[string]any, step StepFunc) (*tensor.Tensor, error)

// NativeSamplers is the native-path sampler registry.
var NativeSamplers = map[string]Sampler{
	"euler":    sampleEuler,
	"euler_a":  sampleEulerAncestral,
	"heun":     sampleHeun,
	"dpm2":     sampleDPM2,
	"dpmpp_2m": sampleDPMPP2M,
}

// karrasSigmas builds the Karras et al. noise schedule with a trailing zero.
func karrasSigmas(n int, sigmaMin, sigmaMax, rho float64) []float64 {
	out := make([]float64, 0, n+1)
	minInv := math.Pow(sigmaMin, 1/rho)
	maxInv := math.Pow(sigmaMax, 1/rho)
	for i := 0; i < n; i++ {
		ramp := 0.0
		if n > 1 {
			ramp = float64(i) / float64(n-1)
		}
		out = append(out, math.Pow(maxInv+ramp*(minInv-maxInv), rho))
	}
	return append(out, 0)
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// derivative is (x - denoised) / sigma.
func derivative(x, denoised *tensor.Tensor, sigma float64) *tensor.Tensor {
	return x.Sub(denoised).Scale(1 / sigma)
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func sampleEuler(ctx context.Context, denoise DenoiseFunc, x *tensor.Tensor, sigmas []float64, _ *rand.Rand, _ map[string]any, step StepFunc) (*tensor.Tensor, error) {
	for i := 0; i < len(sigmas)-1; i++ {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		denoised, err := denoise(ctx, x, sigmas[i])
		if err != nil {
			return nil, err
		}
		d := derivative(x, denoised, sigmas[i])
		x = x.AddScaled(d, sigmas[i+1]-sigmas[i])
		if x, err = step(ctx, i, x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func sampleEulerAncestral(ctx context.Context, denoise DenoiseFunc, x *tensor.Tensor, sigmas []float64, rng *rand.Rand, params map[string]any, step StepFunc) (*tensor.Tensor, error) {
	eta := paramFloat(params, "eta", 1)
	sNoise := paramFloat(params, "s_noise", 1)
	for i := 0; i < len(sigmas)-1; i++ {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		s, next := sigmas[i], sigmas[i+1]
		denoised, err := denoise(ctx, x, s)
		if err != nil {
			return nil, err
		}
		up := math.Min(next, eta*math.Sqrt(next*next*(s*s-next*next)/(s*s)))
		down := math.Sqrt(next*next - up*up)
		x = x.AddScaled(derivative(x, denoised, s), down-s)
		if next > 0 {
			x = x.AddScaled(tensor.Randn(rng, x.Shape...), sNoise*up)
		}
		if x, err = step(ctx, i, x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func sampleHeun(ctx context.Context, denoise DenoiseFunc, x *tensor.Tensor, sigmas []float64, _ *rand.Rand, _ map[string]any, step StepFunc) (*tensor.Tensor, error) {
	for i := 0; i < len(sigmas)-1; i++ {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		s, next := sigmas[i], sigmas[i+1]
		denoised, err := denoise(ctx, x, s)
		if err != nil {
			return nil, err
		}
		d := derivative(x, denoised, s)
		dt := next - s
		if next == 0 {
			x = x.AddScaled(d, dt)
		} else {
			x2 := x.AddScaled(d, dt)
			denoised2, err := denoise(ctx, x2, next)
			if err != nil {
				return nil, err
			}
			d2 := derivative(x2, denoised2, next)
			x = x.AddScaled(d.Add(d2), dt/2)
		}
		if x, err = step(ctx, i, x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func sampleDPM2(ctx context.Context, denoise DenoiseFunc, x *tensor.Tensor, sigmas []float64, _ *rand.Rand, _ map[string]any, step StepFunc) (*tensor.Tensor, error) {
	for i := 0; i < len(sigmas)-1; i++ {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		s, next := sigmas[i], sigmas[i+1]
		denoised, err := denoise(ctx, x, s)
		if err != nil {
			return nil, err
		}
		d := derivative(x, denoised, s)
		if next == 0 {
			x = x.AddScaled(d, next-s)
		} else {
			mid := math.Exp((math.Log(s) + math.Log(next)) / 2)
			x2 := x.AddScaled(d, mid-s)
			denoised2, err := denoise(ctx, x2, mid)
			if err != nil {
				return nil, err
			}
			x = x.AddScaled(derivative(x2, denoised2, mid), next-s)
		}
		if x, err = step(ctx, i, x); err != nil {
			return nil, err
		}
	}
	return x, nil
}

func sampleDPMPP2M(ctx context.Context, denoise DenoiseFunc, x *tensor.Tensor, sigmas []float64, _ *rand.Rand, _ map[string]any, step StepFunc) (*tensor.Tensor, error) {
	var old *tensor.Tensor
	for i := 0; i < len(sigmas)-1; i++ {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		s, next := sigmas[i], sigmas[i+1]
		denoised, err := denoise(ctx, x, s)
		if err != nil {
			return nil, err
		}
		if next == 0 {
			x = denoised
		} else {
			t, tNext := -math.Log(s), -math.Log(next)
			h := tNext - t
			d := denoised
			if old != nil {
				hLast := t + math.Log(sigmas[i-1])
				r := hLast / h
				d = denoised.Scale(1 + 1/(2*r)).AddScaled(old, -1/(2*r))
			}
			x = x.Scale(next / s).AddScaled(d, -math.Expm1(-h))
		}
		old = denoised
		if x, err = step(ctx, i, x); err != nil {
			return nil, err
		}
	}
	return x, nil
}
