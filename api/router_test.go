package api

import (
	"testing"
	"time"

	"github.com/filotkyc/engine/callback"
	"github.com/filotkyc/engine/identity"
)

func TestNewEchoRegistersEverySurfaceRoute(t *testing.T) {
	h := Handlers{
		Documents:  &DocumentsHandler{},
		Verify:     &VerificationHandler{},
		Callback:   &callback.Handler{},
		Internal:   &InternalHandler{},
		Health:     &HealthHandler{},
		Metrics:    &MetricsHandler{},
		Verifier:   identity.NewJWTVerifier("secret"),
		ServiceKey: "service-key",
	}

	e := NewEcho(ServerConfig{Addr: ":0", ShutdownTimeout: time.Second}, h)

	want := map[string]bool{
		"/health":                                 false,
		"/metrics":                                false,
		"/documents/upload":                       false,
		"/documents/:id/process":                  false,
		"/documents/:id/result":                   false,
		"/documents/:id/download":                 false,
		"/verification/evaluate":                  false,
		"/verification/status/:docId":             false,
		"/verification/:docId/escalate":           false,
		"/internal/reviews/:reviewId/callback":    false,
		"/internal/verification/result":           false,
	}

	for _, r := range e.Routes() {
		if _, ok := want[r.Path]; ok {
			want[r.Path] = true
		}
	}

	for path, found := range want {
		if !found {
			t.Errorf("expected route %s to be registered", path)
		}
	}
}
