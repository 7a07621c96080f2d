// Package worker implements the Worker Pool (§4.6): a set of cooperating
// workers sharing one queue family, each running the dequeue-lock-load-
// process-persist-route-publish-cleanup loop, plus a periodic reaper that
// recovers documents stuck in the processing set. Generalized from the
// teacher's generic Queue/JobProcessor Pool into this engine's concrete
// pipeline.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/decision"
	"github.com/filotkyc/engine/ids"
	"github.com/filotkyc/engine/kycerr"
	"github.com/filotkyc/engine/logging"
	"github.com/filotkyc/engine/metrics"
	"github.com/filotkyc/engine/ocr"
	"github.com/filotkyc/engine/parser"
	"github.com/filotkyc/engine/queue"
	"github.com/filotkyc/engine/scoring"
	"github.com/filotkyc/engine/statemanager"
	"github.com/filotkyc/engine/storage"
)

// maxAttempts is the retry ceiling before a document is marked permanently
// failed (§4.6 failure handling).
const maxAttempts = 3

// Forwarder hands a newly-escalated ManualReview off to the Review
// Forwarder (§4.7); kept as an interface here so the worker pool does not
// import the reviewer package's HTTP/circuit-breaker machinery directly,
// mirroring the teacher's Queue/JobProcessor abstraction boundary.
type Forwarder interface {
	Forward(ctx context.Context, review *db.ManualReview, doc *db.Document, reasons []string)
}

// Dependencies wires the Worker Pool to the rest of the engine.
type Dependencies struct {
	Substrate             *queue.Substrate
	Blob                  *storage.Blob
	Documents             *db.DocumentRepository
	Users                 *db.UserRepository
	Reviews               *db.ManualReviewRepository
	OCR                   *ocr.Selector
	Forwarder             Forwarder
	Metrics               *metrics.Registry
	States                *statemanager.Manager
	Logger                *logging.ContextLogger
	Family                queue.Family
	UseGPU                bool
	NumWorkers            int
	LockTTL               time.Duration
	StuckTimeout          time.Duration
	ReaperInterval        time.Duration
	ConservativeThreshold int
	TempDir               string
}

// Pool runs NumWorkers loops against one queue family plus a shared
// reaper goroutine.
type Pool struct {
	deps Dependencies
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPool constructs a Pool ready to Start.
func NewPool(deps Dependencies) *Pool {
	if deps.NumWorkers <= 0 {
		deps.NumWorkers = 2
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 10 * time.Minute
	}
	if deps.StuckTimeout <= 0 {
		deps.StuckTimeout = 5 * time.Minute
	}
	if deps.ReaperInterval <= 0 {
		deps.ReaperInterval = 60 * time.Second
	}
	if deps.ConservativeThreshold <= 0 {
		deps.ConservativeThreshold = 75
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	return &Pool{deps: deps, stop: make(chan struct{})}
}

// Start launches the workers, the delayed-retry sweeper, and the reaper.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.deps.NumWorkers; i++ {
		w := &workerLoop{id: i, deps: p.deps}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(ctx, p.stop)
		}()
	}

	p.wg.Add(2)
	go func() { defer p.wg.Done(); p.sweepLoop(ctx) }()
	go func() { defer p.wg.Done(); p.reapLoop(ctx) }()
}

// Stop signals every worker and background loop to exit and waits for them.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Pool) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.deps.Substrate.SweepDelayed(ctx, p.deps.Family); err != nil {
				p.deps.Logger.WithError(err).Warn("sweep delayed retries failed")
			}
			if p.deps.Metrics != nil {
				if n, err := p.deps.Substrate.QueueLen(ctx, p.deps.Family); err == nil {
					p.deps.Metrics.SetQueueDepth(string(p.deps.Family), float64(n))
				}
			}
		}
	}
}

// reapLoop implements §4.6's reaper: every ReaperInterval, scan the
// processing set for entries whose processing-start predates StuckTimeout.
func (p *Pool) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(p.deps.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reapOnce(ctx)
		}
	}
}

func (p *Pool) reapOnce(ctx context.Context) {
	docIDs, err := p.deps.Substrate.ProcessingSet(ctx, p.deps.Family)
	if err != nil {
		p.deps.Logger.WithError(err).Warn("reaper: list processing set failed")
		return
	}

	for _, docID := range docIDs {
		startedAt, ok, err := p.deps.Substrate.ProcessingStartedAt(ctx, p.deps.Family, docID)
		if err != nil || !ok {
			continue
		}
		if time.Since(startedAt) < p.deps.StuckTimeout {
			continue
		}

		attempts, err := p.deps.Substrate.IncrementAttempts(ctx, docID)
		if err != nil {
			p.deps.Logger.WithError(err).Warn("reaper: increment attempts failed")
			continue
		}

		if attempts < maxAttempts {
			if doc, err := p.deps.Documents.GetByID(ctx, docID); err == nil && doc != nil && doc.Status == db.DocumentStatusProcessing {
				_ = p.deps.Documents.ResetToUploaded(ctx, docID)
			}
			if err := p.deps.Substrate.ClearStaleProcessingEntry(ctx, p.deps.Family, docID); err != nil {
				p.deps.Logger.WithError(err).Warn("reaper: clear stale entry failed")
				continue
			}
			if _, err := p.deps.Substrate.Enqueue(ctx, p.deps.Family, docID); err != nil {
				p.deps.Logger.WithError(err).Warn("reaper: re-enqueue failed")
			}
			if p.deps.Metrics != nil {
				p.deps.Metrics.RecordReaperRecovery("requeued")
			}
			continue
		}

		p.failTerminally(ctx, docID, fmt.Errorf("stuck in processing past %s", p.deps.StuckTimeout))
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordReaperRecovery("failed")
		}
	}
}

func (p *Pool) failTerminally(ctx context.Context, docID string, cause error) {
	resultJSON, _ := json.Marshal(map[string]any{
		"error":              cause.Error(),
		"failedAt":           time.Now().UTC().Format(time.RFC3339),
		"maxRetriesExceeded": true,
	})
	if err := p.deps.Documents.MarkFailed(ctx, docID, resultJSON); err != nil {
		p.deps.Logger.WithError(err).Error("failed to persist terminal failure")
	}
	if err := p.deps.Substrate.MarkFailed(ctx, p.deps.Family, docID); err != nil {
		p.deps.Logger.WithError(err).Warn("failed to clear substrate state after terminal failure")
	}
	_ = p.deps.Substrate.PublishResult(ctx, queue.Result{DocumentID: docID, Outcome: "failed"})
}

// workerLoop runs the dequeue→...→cleanup main loop on one goroutine.
type workerLoop struct {
	id   int
	deps Dependencies
}

func (w *workerLoop) run(ctx context.Context, stop chan struct{}) {
	log := w.deps.Logger.WithField("component", "worker").WithField("workerId", w.id)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		docID, err := w.deps.Substrate.Dequeue(ctx, w.deps.Family, time.Second)
		if err != nil {
			log.WithError(err).Warn("dequeue failed")
			continue
		}
		if docID == "" {
			continue
		}

		w.process(ctx, log, docID)
	}
}

func (w *workerLoop) process(ctx context.Context, log *logging.ContextLogger, docID string) {
	start := time.Now()

	// Step 2: acquire lock.
	locked, err := w.deps.Substrate.AcquireLock(ctx, docID, w.deps.LockTTL)
	if err != nil {
		log.WithError(err).Warn("lock acquisition errored")
		return
	}
	if !locked {
		// Another worker already holds it; this entry is a stale
		// duplicate dequeue, not this worker's to process.
		_ = w.deps.Substrate.MarkComplete(ctx, w.deps.Family, docID)
		return
	}
	released := false
	releaseLock := func() {
		if !released {
			_ = w.deps.Substrate.ReleaseLock(ctx, docID)
			released = true
		}
	}
	defer releaseLock()

	// Step 3: load Document; idempotency guard.
	doc, err := w.deps.Documents.GetByID(ctx, docID)
	if err != nil || doc == nil {
		if err != nil {
			log.WithError(err).Warn("load document failed")
		}
		_ = w.deps.Substrate.MarkComplete(ctx, w.deps.Family, docID)
		return
	}
	if doc.Status == db.DocumentStatusCompleted {
		_ = w.deps.Substrate.MarkComplete(ctx, w.deps.Family, docID)
		return
	}

	// Step 4: correlation ID.
	correlationID := ids.NewCorrelationID()
	_ = w.deps.Substrate.SetCorrelationID(ctx, docID, correlationID)
	log = log.WithCorrelationID(correlationID).WithDocument(docID)

	if w.deps.States != nil {
		w.deps.States.StartOperation(docID, "process_document", map[string]interface{}{
			"documentType":  doc.Type,
			"family":        string(w.deps.Family),
			"correlationId": correlationID,
		})
	}

	// Step 5: transition uploaded -> processing (best-effort; lock governs).
	if err := w.deps.Documents.TransitionToProcessing(ctx, docID); err != nil {
		log.WithError(err).Warn("db transition to processing failed")
	}

	if err := w.runPipeline(ctx, log, doc); err != nil {
		// Steps 6–10 failed: retry with backoff, do not release via
		// MarkComplete (that would clear the attempts counter early).
		releaseLock()
		if w.deps.States != nil {
			w.deps.States.CompleteOperation(docID, err)
		}
		w.onPipelineFailure(ctx, log, docID)
		return
	}

	if w.deps.States != nil {
		w.deps.States.CompleteOperation(docID, nil)
	}
	_ = w.deps.Substrate.MarkComplete(ctx, w.deps.Family, docID)
	_ = w.deps.Substrate.PublishResult(ctx, queue.Result{
		DocumentID:    docID,
		CorrelationID: correlationID,
		Outcome:       "completed",
		ProcessingMs:  time.Since(start).Milliseconds(),
	})
	if w.deps.Metrics != nil {
		w.deps.Metrics.RecordDocumentProcessed(doc.Type, "completed", time.Since(start))
	}
}

// runPipeline executes steps 6–11: download, OCR, parse, score, persist,
// route. A non-nil error here is always a retryable failure per the
// failure-handling rules in §4.6; terminal persistence is the caller's job.
func (w *workerLoop) runPipeline(ctx context.Context, log *logging.ContextLogger, doc *db.Document) error {
	// Step 6: download to a scoped temporary location.
	data, err := w.deps.Blob.Get(ctx, doc.BlobKey)
	if err != nil {
		return fmt.Errorf("download blob: %w", err)
	}
	tmpPath := filepath.Join(w.deps.TempDir, fmt.Sprintf("filotkyc-%s", ids.New()))
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	defer os.Remove(tmpPath)

	// Step 7: OCR.
	ocrText, err := w.deps.OCR.Recognize(ctx, data, w.deps.UseGPU)
	if err != nil {
		if w.deps.Metrics != nil {
			engine := "cpu"
			if w.deps.UseGPU {
				engine = "gpu"
			}
			w.deps.Metrics.RecordOCRFailure(engine)
		}
		return fmt.Errorf("ocr: %w", err)
	}

	// Step 8: parse per docType.
	var resultFields any
	var score scoring.Result
	switch doc.Type {
	case db.DocTypeKTP:
		fields := parser.ParseKTP(ocrText)
		resultFields = fields
		score = scoring.ScoreKTP(fields, ocrText)
	case db.DocTypeNPWP:
		fields := parser.ParseNPWP(ocrText)
		resultFields = fields
		score = scoring.ScoreNPWP(fields, ocrText)
	default:
		return kycerr.New(kycerr.Processing, "UNKNOWN_DOCUMENT_TYPE", fmt.Sprintf("unrecognized document type %q", doc.Type))
	}

	// Step 9: score & decide, conservative policy.
	decision, reason := scoring.DecideConservative(score.Score, w.deps.ConservativeThreshold)
	reasons := append(append([]string{}, score.Reasons...), reason)

	var verificationStatus string
	switch decision {
	case scoring.DecisionAutoApproved:
		verificationStatus = db.VerificationAutoApproved
	default:
		verificationStatus = db.VerificationPendingManualReview
	}

	resultJSON, err := json.Marshal(map[string]any{
		"parsed":  resultFields,
		"reasons": reasons,
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	// Step 10: persist.
	if err := w.deps.Documents.PersistResult(ctx, doc.ID, ocrText, resultJSON, score.Score, decision, verificationStatus); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	// Step 11: route. Errors here are logged but never cause a re-queue —
	// the Document's outcome is already durably written.
	switch decision {
	case scoring.DecisionAutoApproved:
		if err := w.applyUserJoin(ctx, doc.UserID); err != nil {
			log.WithError(err).Error("user verification join failed after auto-approval")
		}
	case scoring.DecisionPendingManualReview:
		review, err := w.deps.Reviews.Create(ctx, doc.ID, doc.UserID, resultJSON)
		if err != nil {
			log.WithError(err).Error("failed to create manual review")
			break
		}
		if w.deps.Forwarder != nil {
			if w.deps.States != nil {
				w.deps.States.StartOperation(review.ID, "forward_review", map[string]interface{}{
					"documentId": doc.ID,
				})
			}
			w.deps.Forwarder.Forward(ctx, review, doc, reasons)
			if w.deps.States != nil {
				w.deps.States.CompleteOperation(review.ID, nil)
			}
		}
	}

	return nil
}

// applyUserJoin recomputes and persists the user's joined
// verification_status after one of their documents is auto-approved,
// using the same rule (§4.8) the Callback Receiver and the explicit
// evaluate() route apply after a manual or explicit decision.
func (w *workerLoop) applyUserJoin(ctx context.Context, userID string) error {
	return decision.ApplyJoin(ctx, w.deps.Users, userID)
}

// onPipelineFailure implements the §4.6 retry/backoff: a retry after 3s
// following the 1st failed attempt and after 9s following the 2nd; the 3rd
// failure is terminal. The lock is already
// released by the caller; the processing-set entry is cleared here without
// touching the attempts counter, since attempts must survive until
// markComplete/markFailed per the concurrency invariants.
func (w *workerLoop) onPipelineFailure(ctx context.Context, log *logging.ContextLogger, docID string) {
	attempts, err := w.deps.Substrate.IncrementAttempts(ctx, docID)
	if err != nil {
		log.WithError(err).Error("increment attempts failed")
	}

	if attempts < maxAttempts {
		delay := retryDelay(attempts)
		if err := w.deps.Substrate.ScheduleRetry(ctx, w.deps.Family, docID, delay); err != nil {
			log.WithError(err).Error("schedule retry failed")
		}
		if err := w.deps.Substrate.ClearStaleProcessingEntry(ctx, w.deps.Family, docID); err != nil {
			log.WithError(err).Error("clear processing entry before retry failed")
		}
		return
	}

	resultJSON, _ := json.Marshal(map[string]any{
		"error":              "processing failed after maximum retries",
		"failedAt":           time.Now().UTC().Format(time.RFC3339),
		"maxRetriesExceeded": true,
	})
	if err := w.deps.Documents.MarkFailed(ctx, docID, resultJSON); err != nil {
		log.WithError(err).Error("persist terminal failure failed")
	}
	_ = w.deps.Substrate.MarkFailed(ctx, w.deps.Family, docID)
	_ = w.deps.Substrate.PublishResult(ctx, queue.Result{DocumentID: docID, Outcome: "failed"})
}

// retryDelay computes the backoff before re-attempting a document after its
// Nth failed attempt: 3s, 9s, 27s for attempts 1, 2, 3 (3 * 3^(attempt-1)).
func retryDelay(attempt int) time.Duration {
	delay := 3 * time.Second
	for i := 1; i < attempt; i++ {
		delay *= 3
	}
	return delay
}
