package scoring

import "fmt"

// Decision values for the two policies described in §4.5. The automatic
// post-OCR path and the explicit-evaluation path use distinct vocabularies
// on purpose — they are different products, not the same enum renamed.
const (
	DecisionAutoApproved        = "auto_approved"
	DecisionPendingManualReview = "pending_manual_review"

	DecisionAutoApprove = "auto_approve"
	DecisionAutoReject  = "auto_reject"
	DecisionNeedsReview = "needs_review"
)

// DecideConservative is the automatic, post-OCR policy invoked by the
// worker pool after scoring. Fixed threshold 75, no auto-reject: a low
// score always escalates to a human, never rejects outright.
func DecideConservative(score, threshold int) (decision string, reason string) {
	if score >= threshold {
		return DecisionAutoApproved, fmt.Sprintf("Score %d meets conservative threshold %d (auto-approved)", score, threshold)
	}
	return DecisionPendingManualReview, fmt.Sprintf("Score %d requires manual review", score)
}

// DecideExplicit is the configurable policy used by a client-initiated
// evaluation request against a completed Document.
func DecideExplicit(score, autoApprove, autoReject int) (decision string, reason string) {
	switch {
	case score >= autoApprove:
		return DecisionAutoApprove, fmt.Sprintf("Score %d meets auto-approve threshold %d", score, autoApprove)
	case score <= autoReject:
		return DecisionAutoReject, fmt.Sprintf("Score %d at or below auto-reject threshold %d", score, autoReject)
	default:
		return DecisionNeedsReview, fmt.Sprintf("Score %d between thresholds, needs review", score)
	}
}
