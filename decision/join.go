// Package decision implements the Decision Router (§4.8): the explicit
// evaluate(documentId) entry point and the User verification-status join
// rule shared by the worker pool's automatic route and the Callback
// Receiver.
package decision

import (
	"context"
	"fmt"

	"github.com/filotkyc/engine/db"
)

// JoinUser computes a User's aggregate verification_status from the
// verification_status of each of their Documents, per the §4.8 rule:
// rejection dominates, then all-approved, then the most-advanced
// intermediate (pending_manual_review dominates pending).
func JoinUser(statuses map[string]string) string {
	var hasAutoRejected, hasManualRejected bool
	var hasAutoApproved bool
	var hasPendingManualReview bool
	approved := 0

	for _, s := range statuses {
		switch s {
		case db.VerificationAutoRejected:
			hasAutoRejected = true
		case db.VerificationManuallyRejected:
			hasManualRejected = true
		case db.VerificationAutoApproved:
			hasAutoApproved = true
			approved++
		case db.VerificationManuallyApproved:
			approved++
		case db.VerificationPendingManualReview:
			hasPendingManualReview = true
		}
	}

	if hasAutoRejected {
		return db.VerificationAutoRejected
	}
	if hasManualRejected {
		return db.VerificationManuallyRejected
	}
	if len(statuses) > 0 && approved == len(statuses) {
		if hasAutoApproved {
			return db.VerificationAutoApproved
		}
		return db.VerificationManuallyApproved
	}
	if hasPendingManualReview {
		return db.VerificationPendingManualReview
	}
	return db.VerificationPending
}

// ApplyJoin recomputes and persists a User's joined verification_status
// from their current Documents. A User with no Documents yet is left
// untouched (still `pending` from creation).
func ApplyJoin(ctx context.Context, users *db.UserRepository, userID string) error {
	statuses, err := users.DocumentVerificationStatuses(ctx, userID)
	if err != nil {
		return fmt.Errorf("decision: load document statuses: %w", err)
	}
	if len(statuses) == 0 {
		return nil
	}
	return users.SetVerificationStatus(ctx, userID, JoinUser(statuses))
}
