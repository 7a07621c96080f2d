package worker

import (
	"testing"
	"time"
)

func TestRetryDelayBackoffTable(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 9 * time.Second},
		{3, 27 * time.Second},
	}
	for _, c := range cases {
		got := retryDelay(c.attempt)
		if got != c.want {
			t.Errorf("retryDelay(%d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}

func TestNewPoolAppliesDefaults(t *testing.T) {
	p := NewPool(Dependencies{})
	if p.deps.NumWorkers != 2 {
		t.Errorf("NumWorkers default = %d, want 2", p.deps.NumWorkers)
	}
	if p.deps.LockTTL != 10*time.Minute {
		t.Errorf("LockTTL default = %s, want 10m", p.deps.LockTTL)
	}
	if p.deps.StuckTimeout != 5*time.Minute {
		t.Errorf("StuckTimeout default = %s, want 5m", p.deps.StuckTimeout)
	}
	if p.deps.ReaperInterval != 60*time.Second {
		t.Errorf("ReaperInterval default = %s, want 60s", p.deps.ReaperInterval)
	}
	if p.deps.ConservativeThreshold != 75 {
		t.Errorf("ConservativeThreshold default = %d, want 75", p.deps.ConservativeThreshold)
	}
	if p.deps.TempDir == "" {
		t.Error("TempDir default should not be empty")
	}
}

func TestNewPoolPreservesExplicitValues(t *testing.T) {
	p := NewPool(Dependencies{
		NumWorkers:            5,
		LockTTL:               time.Minute,
		StuckTimeout:          time.Minute,
		ReaperInterval:        time.Minute,
		ConservativeThreshold: 90,
		TempDir:               "/tmp/custom",
	})
	if p.deps.NumWorkers != 5 {
		t.Errorf("NumWorkers = %d, want 5", p.deps.NumWorkers)
	}
	if p.deps.ConservativeThreshold != 90 {
		t.Errorf("ConservativeThreshold = %d, want 90", p.deps.ConservativeThreshold)
	}
	if p.deps.TempDir != "/tmp/custom" {
		t.Errorf("TempDir = %q, want /tmp/custom", p.deps.TempDir)
	}
}
