// Package ocr defines the black-box OCR contract used by the worker pool:
// recognition itself (language packs, model internals) is out of scope —
// only engine selection, concurrency limiting, and CPU/GPU fallback live
// here. A real backend is wired in by supplying a RecognizeFunc.
package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/filotkyc/engine/kycerr"
)

// RecognizeFunc performs the actual recognition of an image/PDF's bytes
// into raw text. The engine that ships with this package is a black box
// by design (spec Non-goal: "OCR engine internals") — callers substitute
// a real implementation (a tesseract binding, a hosted OCR API client,
// whatever the deployment uses) here.
type RecognizeFunc func(ctx context.Context, data []byte) (string, error)

// Engine recognizes text from document bytes.
type Engine interface {
	Recognize(ctx context.Context, data []byte) (string, error)
}

// cpuEngine runs recognition inline, unbounded: it is the fallback path
// and the only path on CPU-family workers.
type cpuEngine struct {
	recognize RecognizeFunc
}

// NewCPUEngine wraps a RecognizeFunc as a CPU Engine.
func NewCPUEngine(fn RecognizeFunc) Engine {
	return &cpuEngine{recognize: fn}
}

func (e *cpuEngine) Recognize(ctx context.Context, data []byte) (string, error) {
	text, err := e.recognize(ctx, data)
	if err != nil {
		return "", kycerr.Wrap(kycerr.Processing, "OCR_CPU_FAILED", "CPU OCR recognition failed", err)
	}
	return text, nil
}

// gpuEngine bounds in-flight recognitions to OCR_GPU_CONCURRENCY slots and
// enforces OCR_GPU_STUCK_TIMEOUT per attempt, retrying transient failures
// up to OCR_GPU_MAX_RETRIES times before giving up.
type gpuEngine struct {
	recognize    RecognizeFunc
	sem          chan struct{}
	maxRetries   int
	stuckTimeout time.Duration
}

// GPUConfig configures the GPU engine's concurrency and retry behavior.
type GPUConfig struct {
	Concurrency  int
	MaxRetries   int
	StuckTimeout time.Duration
}

// NewGPUEngine wraps a RecognizeFunc as a concurrency-limited GPU Engine.
func NewGPUEngine(fn RecognizeFunc, cfg GPUConfig) Engine {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &gpuEngine{
		recognize:    fn,
		sem:          make(chan struct{}, concurrency),
		maxRetries:   cfg.MaxRetries,
		stuckTimeout: cfg.StuckTimeout,
	}
}

func (e *gpuEngine) Recognize(ctx context.Context, data []byte) (string, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return "", kycerr.Wrap(kycerr.Transient, "OCR_GPU_BUSY", "GPU OCR concurrency limit reached", ctx.Err())
	}

	var lastErr error
	attempts := e.maxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if e.stuckTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.stuckTimeout)
		}
		text, err := e.recognize(callCtx, data)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", kycerr.Wrap(kycerr.Processing, "OCR_GPU_FAILED", fmt.Sprintf("GPU OCR failed after %d attempts", attempts), lastErr)
}

// Selector picks between CPU and GPU engines per the configured queue
// family, falling back from GPU to CPU in-process on failure when enabled
// (§4.6 step 7).
type Selector struct {
	cpu          Engine
	gpu          Engine
	autoFallback bool
}

func NewSelector(cpu, gpu Engine, autoFallback bool) *Selector {
	return &Selector{cpu: cpu, gpu: gpu, autoFallback: autoFallback}
}

// Recognize runs the GPU engine when useGPU is true, falling back in-process
// to the CPU engine on failure if auto-fallback is enabled; otherwise it
// always uses the CPU engine.
func (s *Selector) Recognize(ctx context.Context, data []byte, useGPU bool) (string, error) {
	if !useGPU {
		return s.cpu.Recognize(ctx, data)
	}
	text, err := s.gpu.Recognize(ctx, data)
	if err == nil {
		return text, nil
	}
	if !s.autoFallback {
		return "", err
	}
	return s.cpu.Recognize(ctx, data)
}
