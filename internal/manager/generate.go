package manager

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/google/uuid"

	"imaged/internal/engine"
	"imaged/internal/imageutil"
	"imaged/internal/output"
	"imaged/pkg/types"
)

// Generate ensures the model instance, waits for admission and runs one
// generation. When w is non-nil it receives NDJSON lines: one
// types.GenerateProgress per sampler step if req.Stream is set, then the final
// types.GenerateResult. flush, if non-nil, is called after every line.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) (types.GenerateResult, error) {
	res := types.GenerateResult{Backend: m.backend}
	modelID, err := m.resolveModelID(req.Model)
	if err != nil {
		return res, err
	}
	release, err := m.ensureAndAdmit(ctx, modelID)
	if err != nil {
		return res, err
	}
	defer release()

	m.mu.RLock()
	inst := m.instances[modelID]
	m.mu.RUnlock()
	if inst == nil || inst.coord == nil {
		return res, ErrModelNotFound(modelID)
	}
	defer func() {
		m.mu.Lock()
		inst.stage = engine.StageIdle
		m.mu.Unlock()
	}()

	ereq := toEngineRequest(req).WithDefaults()
	res.Seed = ereq.Seed
	res.Operation = ereq.Operation().String()
	if req.Stream && w != nil {
		ereq.Progress = engine.ProgressFunc(func(s engine.StepInfo) error {
			return writeLine(w, flush, types.GenerateProgress{Step: s.Step, Total: s.Total})
		})
	}

	images, err := inst.coord.Generate(ctx, ereq)
	if err != nil {
		return res, err
	}

	res.Images = make([]string, len(images))
	for i, img := range images {
		b, err := imageutil.EncodePNG(img)
		if err != nil {
			return res, fmt.Errorf("encode image %d: %w", i, err)
		}
		res.Images[i] = base64.StdEncoding.EncodeToString(b)
	}
	if m.output.Dir != "" {
		files, err := m.save(modelID, ereq, images)
		if err != nil {
			return res, err
		}
		res.Files = files
	}

	m.mu.Lock()
	m.generationsTotal++
	m.mu.Unlock()

	res.Done = true
	if w != nil {
		if err := writeLine(w, flush, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ensureAndAdmit loads the instance and takes its generation slots. A
// concurrent ensure of another model may evict the idle instance in between;
// that is retried once.
func (m *Manager) ensureAndAdmit(ctx context.Context, modelID string) (func(), error) {
	for attempt := 0; ; attempt++ {
		if err := m.EnsureInstance(ctx, modelID); err != nil {
			return nil, err
		}
		release, err := m.beginGeneration(ctx, modelID)
		if err == nil || attempt > 0 || !IsModelNotFound(err) {
			return release, err
		}
		m.log.Debug().Str("event", "admit_retry").Str("model", modelID).Msg("instance evicted before admission")
	}
}

// toEngineRequest applies the wire defaults for seed, guidance scale and prompt
// strength, whose zero values are legal; the engine fills in the rest.
func toEngineRequest(req types.GenerateRequest) engine.Request {
	seed := types.DefaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}
	guidance := types.DefaultGuidanceScale
	if req.GuidanceScale != nil {
		guidance = *req.GuidanceScale
	}
	strength := types.DefaultPromptStrength
	if req.PromptStrength != nil {
		strength = *req.PromptStrength
	}
	out := engine.Request{
		Prompt:                        req.Prompt,
		NegativePrompt:                req.NegativePrompt,
		Seed:                          seed,
		Width:                         req.Width,
		Height:                        req.Height,
		NumOutputs:                    req.NumOutputs,
		Steps:                         req.NumInferenceSteps,
		GuidanceScale:                 guidance,
		PromptStrength:                strength,
		PreserveInitImageColorProfile: req.PreserveInitImageColorProfile,
		SamplerName:                   req.SamplerName,
		AdapterStrength:               req.AdapterStrength,
		SamplerParams:                 req.SamplerParams,
	}
	if strings.TrimSpace(req.InitImage) != "" {
		out.InitImage = imageutil.FromRef(req.InitImage)
	}
	if strings.TrimSpace(req.InitImageMask) != "" {
		out.InitImageMask = imageutil.FromRef(req.InitImageMask)
	}
	return out
}

// save writes images and metadata to the configured output directory.
func (m *Manager) save(modelID string, req engine.Request, images []image.Image) ([]string, error) {
	format, err := output.NormalizeFormat(m.output.Format)
	if err != nil {
		return nil, err
	}
	namer := output.Indexed(fmt.Sprintf("%d_%s", req.Seed, uuid.NewString()[:8]))
	files, err := output.SaveImages(images, m.output.Dir, namer, format, m.output.Quality)
	if err != nil {
		return nil, fmt.Errorf("save images: %w", err)
	}
	entries := make([]output.Metadata, len(images))
	for i := range images {
		entries[i] = output.Metadata{
			"prompt":              req.Prompt,
			"negative_prompt":     req.NegativePrompt,
			"seed":                req.Seed,
			"width":               req.Width,
			"height":              req.Height,
			"num_inference_steps": req.Steps,
			"guidance_scale":      req.GuidanceScale,
			"sampler_name":        req.SamplerName,
			"model":               modelID,
			"backend":             m.backend,
			"use_half_precision":  m.precision == engine.PrecisionHalf,
		}
		if !req.InitImage.IsZero() {
			entries[i]["prompt_strength"] = req.PromptStrength
		}
		if req.AdapterStrength != 0 {
			entries[i]["adapter_strength"] = req.AdapterStrength
		}
	}
	if err := output.SaveMetadata(entries, m.output.Dir, namer, m.output.MetadataFormats, format); err != nil {
		return files, fmt.Errorf("save metadata: %w", err)
	}
	return files, nil
}

func writeLine(w io.Writer, flush func(), v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}
