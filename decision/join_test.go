package decision

import (
	"testing"

	"github.com/filotkyc/engine/db"
)

func TestJoinUserRejectionDominates(t *testing.T) {
	statuses := map[string]string{
		"doc1": db.VerificationAutoApproved,
		"doc2": db.VerificationManuallyRejected,
	}
	if got := JoinUser(statuses); got != db.VerificationManuallyRejected {
		t.Errorf("JoinUser = %q, want %q", got, db.VerificationManuallyRejected)
	}
}

func TestJoinUserAutoRejectionBeatsManualRejection(t *testing.T) {
	statuses := map[string]string{
		"doc1": db.VerificationAutoRejected,
		"doc2": db.VerificationManuallyRejected,
	}
	if got := JoinUser(statuses); got != db.VerificationAutoRejected {
		t.Errorf("JoinUser = %q, want %q", got, db.VerificationAutoRejected)
	}
}

func TestJoinUserAllApprovedPrefersAutoApproved(t *testing.T) {
	statuses := map[string]string{
		"doc1": db.VerificationAutoApproved,
		"doc2": db.VerificationManuallyApproved,
	}
	if got := JoinUser(statuses); got != db.VerificationAutoApproved {
		t.Errorf("JoinUser = %q, want %q", got, db.VerificationAutoApproved)
	}
}

func TestJoinUserAllApprovedAllManual(t *testing.T) {
	statuses := map[string]string{
		"doc1": db.VerificationManuallyApproved,
		"doc2": db.VerificationManuallyApproved,
	}
	if got := JoinUser(statuses); got != db.VerificationManuallyApproved {
		t.Errorf("JoinUser = %q, want %q", got, db.VerificationManuallyApproved)
	}
}

func TestJoinUserPendingManualReviewDominatesPending(t *testing.T) {
	statuses := map[string]string{
		"doc1": db.VerificationPending,
		"doc2": db.VerificationPendingManualReview,
	}
	if got := JoinUser(statuses); got != db.VerificationPendingManualReview {
		t.Errorf("JoinUser = %q, want %q", got, db.VerificationPendingManualReview)
	}
}

func TestJoinUserAllPending(t *testing.T) {
	statuses := map[string]string{
		"doc1": db.VerificationPending,
	}
	if got := JoinUser(statuses); got != db.VerificationPending {
		t.Errorf("JoinUser = %q, want %q", got, db.VerificationPending)
	}
}

func TestJoinUserEmptyIsPending(t *testing.T) {
	if got := JoinUser(map[string]string{}); got != db.VerificationPending {
		t.Errorf("JoinUser(empty) = %q, want %q", got, db.VerificationPending)
	}
}
