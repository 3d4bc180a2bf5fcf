package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"imaged/pkg/types"
)

// validateGenerate rejects requests the engine would refuse anyway, before
// they take a queue slot. An empty prompt is allowed and means unconditioned.
func validateGenerate(req types.GenerateRequest) error {
	if req.Width < 0 || req.Width%8 != 0 || req.Height < 0 || req.Height%8 != 0 {
		return fmt.Errorf("width and height must be positive multiples of 8")
	}
	if req.NumOutputs < 0 {
		return fmt.Errorf("num_outputs must not be negative")
	}
	if req.NumInferenceSteps < 0 {
		return fmt.Errorf("num_inference_steps must not be negative")
	}
	if s := req.PromptStrength; s != nil && (*s < 0 || *s > 1) {
		return fmt.Errorf("prompt_strength must be within [0,1]")
	}
	return nil
}

// countingWriter remembers whether any byte reached the client; after that the
// status line is gone and errors must be reported in-band.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

func generateHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateGenerate(req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		lvl := requestLogLevel(r)
		out := &countingWriter{w: w}
		var writer io.Writer = out
		if lvl >= LevelDebug {
			writer = io.MultiWriter(out, &loggingLineWriter{requestID: middleware.GetReqID(r.Context())})
		}
		requestEvent(r, lvl, LevelInfo).Str("model", req.Model).Bool("stream", req.Stream).Msg("generate start")

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if generateTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(generateTimeout)*time.Second)
			defer tcancel()
		}

		start := time.Now()
		res, err := svc.Generate(ctx, req, writer, flush)
		dur := time.Since(start)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				ObserveGeneration(res.Backend, res.Operation, "canceled", dur)
				requestEvent(r, lvl, LevelInfo).Dur("dur", dur).Msg("generate canceled")
				return
			}
			status := statusFor(err)
			outcome := "error"
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("queue")
				outcome = "rejected"
			}
			ObserveGeneration(res.Backend, res.Operation, outcome, dur)
			requestEvent(r, lvl, LevelError).Int("status", status).Dur("dur", dur).Err(err).Msg("generate end")
			if out.n > 0 {
				// progress already streamed; report in-band
				b, _ := json.Marshal(types.ErrorResponse{Error: err.Error(), Code: status})
				_, _ = w.Write(append(b, '\n'))
				return
			}
			writeJSONError(w, status, err.Error())
			return
		}
		ObserveGeneration(res.Backend, res.Operation, "ok", dur)
		requestEvent(r, lvl, LevelInfo).Int("status", http.StatusOK).Str("backend", res.Backend).
			Str("operation", res.Operation).Int("images", len(res.Images)).Dur("dur", dur).Msg("generate end")
	}
}
