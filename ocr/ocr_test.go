package ocr

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCPUEngineWrapsFailureAsProcessingError(t *testing.T) {
	e := NewCPUEngine(func(ctx context.Context, data []byte) (string, error) {
		return "", errors.New("boom")
	})
	_, err := e.Recognize(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestGPUEngineRetriesUpToMaxRetries(t *testing.T) {
	calls := 0
	e := NewGPUEngine(func(ctx context.Context, data []byte) (string, error) {
		calls++
		return "", errors.New("transient")
	}, GPUConfig{Concurrency: 1, MaxRetries: 3})

	_, err := e.Recognize(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGPUEngineSucceedsWithoutExhaustingRetries(t *testing.T) {
	calls := 0
	e := NewGPUEngine(func(ctx context.Context, data []byte) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "recognized text", nil
	}, GPUConfig{Concurrency: 1, MaxRetries: 3})

	text, err := e.Recognize(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recognized text" {
		t.Errorf("text = %q", text)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (stop retrying on first success)", calls)
	}
}

func TestSelectorFallsBackFromGPUToCPUOnFailure(t *testing.T) {
	cpu := NewCPUEngine(func(ctx context.Context, data []byte) (string, error) {
		return "cpu result", nil
	})
	gpu := NewGPUEngine(func(ctx context.Context, data []byte) (string, error) {
		return "", errors.New("gpu down")
	}, GPUConfig{Concurrency: 1, MaxRetries: 1})

	s := NewSelector(cpu, gpu, true)
	text, err := s.Recognize(context.Background(), []byte("x"), true)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got error: %v", err)
	}
	if text != "cpu result" {
		t.Errorf("text = %q, want cpu fallback result", text)
	}
}

func TestSelectorDoesNotFallBackWhenDisabled(t *testing.T) {
	cpu := NewCPUEngine(func(ctx context.Context, data []byte) (string, error) {
		return "cpu result", nil
	})
	gpu := NewGPUEngine(func(ctx context.Context, data []byte) (string, error) {
		return "", errors.New("gpu down")
	}, GPUConfig{Concurrency: 1, MaxRetries: 1})

	s := NewSelector(cpu, gpu, false)
	_, err := s.Recognize(context.Background(), []byte("x"), true)
	if err == nil {
		t.Fatal("expected GPU failure to propagate when auto-fallback is disabled")
	}
}

func TestGPUEngineRespectsConcurrencyLimit(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 2)
	e := NewGPUEngine(func(ctx context.Context, data []byte) (string, error) {
		started <- struct{}{}
		<-block
		return "ok", nil
	}, GPUConfig{Concurrency: 1, MaxRetries: 1})

	go e.Recognize(context.Background(), []byte("x"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Recognize(ctx, []byte("y"))
	if err == nil {
		t.Fatal("expected second call to block until the slot frees and then time out")
	}
	close(block)
}
