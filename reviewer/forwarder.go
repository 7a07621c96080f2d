// Package reviewer implements the Review Forwarder (§4.7): it hands an
// escalated ManualReview off to the external human-review service over
// HTTP, guards the call with a circuit breaker, retries transient failures
// with capped exponential backoff, and spills onto a durable retry queue
// when the service is unreachable rather than blocking the worker pool.
package reviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/filotkyc/engine/config"
	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/kycerr"
	"github.com/filotkyc/engine/logging"
	"github.com/filotkyc/engine/metrics"
	"github.com/filotkyc/engine/queue"
)

// Envelope is the wire payload POSTed to the reviewer service, and also the
// shape spilled onto the retry queue so a drain pass can resume forwarding
// without re-deriving it from the database.
type Envelope struct {
	ReviewID      string          `json:"reviewId"`
	DocumentID    string          `json:"documentId"`
	UserID        string          `json:"userId"`
	DocumentType  string          `json:"documentType"`
	ParsedData    json.RawMessage `json:"parsedData"`
	OCRText       string          `json:"ocrText"`
	Score         int             `json:"score"`
	Decision      string          `json:"decision"`
	Reasons       []string        `json:"reasons"`
	CallbackURL   string          `json:"callbackUrl"`
	CorrelationID string          `json:"correlationId"`

	// Attempts counts envelope-level forwarding attempts across the whole
	// lifetime of this escalation, including retry-queue drain passes. It is
	// stored with the envelope on the retry queue; postOnce clears it before
	// sending, so the reviewer service never receives it.
	Attempts int `json:"attempts,omitempty"`
}

// maxSendAttempts is the in-request attempt ceiling (§4.7): up to 3 POSTs,
// with waits of 1s and then 2s between them.
const maxSendAttempts = 3

// maxEnvelopeAttempts bounds how many times the retry-queue drainer will
// re-attempt a single envelope before recording it as a terminal forwarding
// failure.
const maxEnvelopeAttempts = 5

const requestTimeout = 30 * time.Second

// Forwarder implements worker.Forwarder.
type Forwarder struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cfg        config.ReviewerConfig
	substrate  *queue.Substrate
	logger     *logging.ContextLogger
	metrics    *metrics.Registry
}

func New(cfg config.ReviewerConfig, substrate *queue.Substrate, logger *logging.ContextLogger, reg *metrics.Registry) *Forwarder {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reviewer-forwarder",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if reg != nil {
				reg.SetCircuitBreakerOpen(to == gobreaker.StateOpen)
			}
		},
	})
	return &Forwarder{
		httpClient: &http.Client{Timeout: requestTimeout},
		breaker:    breaker,
		cfg:        cfg,
		substrate:  substrate,
		logger:     logger,
		metrics:    reg,
	}
}

// Forward builds the forwarding envelope and attempts to deliver it,
// spilling to the retry queue on failure. It never returns an error to the
// caller: per §4.7, a forwarding failure must never cause the worker pool
// to re-queue or re-process the already-persisted Document.
func (f *Forwarder) Forward(ctx context.Context, review *db.ManualReview, doc *db.Document, reasons []string) {
	env := Envelope{
		ReviewID:      review.ID,
		DocumentID:    doc.ID,
		UserID:        doc.UserID,
		DocumentType:  doc.Type,
		ParsedData:    review.Payload,
		Score:         valueOrZero(doc.AIScore),
		Decision:      valueOrEmpty(doc.AIDecision),
		Reasons:       reasons,
		CallbackURL:   f.cfg.CallbackURL,
		CorrelationID: "",
		Attempts:      1,
	}
	if doc.OCRText != nil {
		env.OCRText = *doc.OCRText
	}

	log := f.logger.WithField("component", "reviewer-forwarder").WithDocument(doc.ID)

	if err := f.sendWithRetry(ctx, env); err != nil {
		log.WithError(err).Warn("forwarding failed after retries, spilling to retry queue")
		if f.metrics != nil {
			f.metrics.RecordReviewForwarded("spilled")
		}
		body, marshalErr := json.Marshal(env)
		if marshalErr != nil {
			log.WithError(marshalErr).Error("failed to marshal envelope for retry queue")
			return
		}
		if err := f.substrate.PushRetryEnvelope(ctx, body); err != nil {
			log.WithError(err).Error("failed to push envelope to retry queue")
		}
		return
	}
	if f.metrics != nil {
		f.metrics.RecordReviewForwarded("delivered")
	}
}

// sendWithRetry attempts delivery up to maxSendAttempts times with capped
// exponential backoff (starting at 1s and doubling, capped at 30s; with
// maxSendAttempts = 3 the waits are 1s and 2s), each attempt guarded by
// the circuit breaker.
func (f *Forwarder) sendWithRetry(ctx context.Context, env Envelope) error {
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		_, err := f.breaker.Execute(func() (any, error) {
			return nil, f.postOnce(ctx, env)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return kycerr.Wrap(kycerr.CircuitOpen, "REVIEWER_CIRCUIT_OPEN", "reviewer circuit breaker is open", err)
		}
		if attempt < maxSendAttempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}
	return fmt.Errorf("forward review after %d attempts: %w", maxSendAttempts, lastErr)
}

func (f *Forwarder) postOnce(ctx context.Context, env Envelope) error {
	env.Attempts = 0
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, f.cfg.APIURL+"/reviews", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reviewer service returned status %d", resp.StatusCode)
	}
	return nil
}

// CircuitOpen reports whether the breaker guarding delivery to the
// reviewer service is currently open, for the health endpoint's
// circuit-breaker-state probe (D.1).
func (f *Forwarder) CircuitOpen() bool {
	return f.breaker.State() == gobreaker.StateOpen
}

func valueOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func valueOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
