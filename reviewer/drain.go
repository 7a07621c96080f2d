package reviewer

import (
	"context"
	"encoding/json"
	"time"
)

// drainInterval is how often the retry queue is polled for spilled
// envelopes.
const drainInterval = 15 * time.Second

// Drainer periodically re-attempts delivery of envelopes that overflowed
// onto the retry queue (§4.7 fallback path), up to maxEnvelopeAttempts
// total tries before giving up on an envelope for good.
type Drainer struct {
	forwarder *Forwarder
}

func NewDrainer(f *Forwarder) *Drainer {
	return &Drainer{forwarder: f}
}

// Run blocks, draining the retry queue every drainInterval until ctx is
// canceled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

// drainOnce pops every envelope currently queued and re-attempts each one.
// Envelopes still failing are pushed back onto the tail of the queue unless
// they have exhausted maxEnvelopeAttempts, in which case the failure is
// recorded as terminal and the envelope is dropped — the underlying
// ManualReview/Document are left untouched either way, since forwarding
// failure is an external-delivery concern, not a verification outcome.
func (d *Drainer) drainOnce(ctx context.Context) {
	log := d.forwarder.logger.WithField("component", "reviewer-drainer")

	// Snapshot the queue length up front: envelopes re-pushed during this
	// pass (a failed re-attempt requeues onto the tail) must wait for the
	// *next* drain tick, or a persistently-failing envelope would spin
	// this loop forever within one pass.
	pending, err := d.forwarder.substrate.RetryQueueLen(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to read retry queue length")
		return
	}
	if d.forwarder.metrics != nil {
		d.forwarder.metrics.SetRetryQueueDepth(float64(pending))
	}

	for i := int64(0); i < pending; i++ {
		raw, err := d.forwarder.substrate.PopRetryEnvelope(ctx)
		if err != nil {
			log.WithError(err).Warn("failed to pop retry envelope")
			return
		}
		if raw == nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.WithError(err).Error("dropping unparseable retry envelope")
			continue
		}

		if err := d.forwarder.sendWithRetry(ctx, env); err == nil {
			if d.forwarder.metrics != nil {
				d.forwarder.metrics.RecordReviewForwarded("delivered")
			}
			continue
		}

		env.Attempts++
		if env.Attempts >= maxEnvelopeAttempts {
			log.WithField("reviewId", env.ReviewID).
				WithField("documentId", env.DocumentID).
				Error("review forwarding permanently failed after exhausting retry-queue attempts")
			if d.forwarder.metrics != nil {
				d.forwarder.metrics.RecordReviewForwarded("permanently_failed")
			}
			continue
		}

		body, err := json.Marshal(env)
		if err != nil {
			log.WithError(err).Error("failed to re-marshal envelope for requeue")
			continue
		}
		if err := d.forwarder.substrate.PushRetryEnvelope(ctx, body); err != nil {
			log.WithError(err).Error("failed to requeue envelope")
		}
	}
}
