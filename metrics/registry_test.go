package metrics

import (
	"testing"
	"time"
)

func TestSnapshotIncludesRecordedMetrics(t *testing.T) {
	r := New("test")
	r.RecordDocumentProcessed("KTP", "auto_approved", 2*time.Second)
	r.SetQueueDepth("cpu", 3)
	r.SetCircuitBreakerOpen(true)

	snap, err := r.Snapshot(1700000000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := snap["_aws"]; !ok {
		t.Error("snapshot missing _aws metadata block")
	}

	found := false
	for k, v := range snap {
		if k == "test_queue_depth{family=cpu}" {
			found = true
			if v != float64(3) {
				t.Errorf("queue depth = %v, want 3", v)
			}
		}
	}
	if !found {
		t.Error("snapshot missing queue_depth series")
	}
}

func TestSnapshotDefaultsNamespace(t *testing.T) {
	r := New("")
	snap, err := r.Snapshot(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for k := range snap {
		if k == "filotkyc_reviewer_circuit_open" {
			found = true
		}
	}
	if !found {
		t.Error("expected default namespace \"filotkyc\" to prefix metric names")
	}
}
