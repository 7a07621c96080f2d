// Package startup implements Config & Startup Recovery (§4.9): block until
// the Queue Substrate is reachable, then reconcile any processing-set
// state left behind by a crash so no in-flight document is silently lost.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/logging"
	"github.com/filotkyc/engine/queue"
)

// maxPingAttempts bounds "block until healthy" (§4.9 step 1) to a finite
// wait rather than an infinite one: "block forever" would make a
// genuinely down substrate indistinguishable from a slow deploy pipeline,
// so after this many attempts Recover gives up and returns an error for
// the caller to log and exit on, the same "fail fast, say why" shape as
// config.Config.Validate.
const maxPingAttempts = 10

var pingRetryDelay = 3 * time.Second

// Recover runs the three §4.9 steps in order, against both queue families
// (CPU and GPU share one substrate but have independent processing sets).
func Recover(ctx context.Context, substrate *queue.Substrate, documents *db.DocumentRepository, families []queue.Family, log *logging.ContextLogger) error {
	if err := waitForSubstrate(ctx, substrate, log); err != nil {
		return err
	}

	for _, f := range families {
		if err := reconcileFamily(ctx, substrate, documents, f, log); err != nil {
			return fmt.Errorf("startup: reconcile family %s: %w", f, err)
		}
	}

	return nil
}

// waitForSubstrate implements §4.9 step 1.
func waitForSubstrate(ctx context.Context, substrate *queue.Substrate, log *logging.ContextLogger) error {
	var lastErr error
	for attempt := 1; attempt <= maxPingAttempts; attempt++ {
		if err := substrate.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
			log.WithError(err).Warn(fmt.Sprintf("substrate not yet reachable, attempt %d/%d", attempt, maxPingAttempts))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pingRetryDelay):
		}
	}
	return fmt.Errorf("startup: substrate unreachable after %d attempts: %w", maxPingAttempts, lastErr)
}

// reconcileFamily implements §4.9 steps 2–3 for one queue family: first
// drop any processing-set entry with no backing Document row at all (a
// row that was never durably created, or was deleted out of band), then
// reset every Document stuck in `processing` back to `uploaded` and
// re-enqueue it, clearing its transient substrate state first so the
// re-enqueue starts from a clean slate.
func reconcileFamily(ctx context.Context, substrate *queue.Substrate, documents *db.DocumentRepository, f queue.Family, log *logging.ContextLogger) error {
	processingIDs, err := substrate.ProcessingSet(ctx, f)
	if err != nil {
		return fmt.Errorf("list processing set: %w", err)
	}

	stale := 0
	for _, docID := range processingIDs {
		doc, err := documents.GetByID(ctx, docID)
		if err != nil {
			return fmt.Errorf("load document %s: %w", docID, err)
		}
		if doc == nil {
			if err := substrate.ClearStaleProcessingEntry(ctx, f, docID); err != nil {
				return fmt.Errorf("clear stale entry %s: %w", docID, err)
			}
			log.WithField("document_id", docID).Warn("startup recovery: cleared processing entry with no backing document row")
			stale++
		}
	}

	stuck, err := documents.ListByStatus(ctx, db.DocumentStatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing documents: %w", err)
	}

	log.WithField("family", string(f)).
		WithField("processing_set_size", len(processingIDs)).
		WithField("stale_entries_cleared", stale).
		WithField("stuck_documents", len(stuck)).
		Info("startup recovery: reconciling family")

	for _, doc := range stuck {
		if err := substrate.MarkComplete(ctx, f, doc.ID); err != nil {
			return fmt.Errorf("clear substrate state for %s: %w", doc.ID, err)
		}
		if err := documents.ResetToUploaded(ctx, doc.ID); err != nil {
			return fmt.Errorf("reset %s to uploaded: %w", doc.ID, err)
		}
		if _, err := substrate.Enqueue(ctx, f, doc.ID); err != nil {
			return fmt.Errorf("re-enqueue %s: %w", doc.ID, err)
		}
		log.WithField("document_id", doc.ID).Info("startup recovery: reset and re-enqueued stuck document")
	}

	return nil
}
