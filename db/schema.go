package db

// Enum values and table names mirrored from §3/§6 of the verification
// design. Schema migration tooling itself is out of scope (spec.md
// Non-goals); these constants exist so repository code and tests share one
// vocabulary with whatever migration actually creates the tables below.
//
//	CREATE TYPE verification_status AS ENUM (
//	    'pending', 'auto_approved', 'auto_rejected',
//	    'pending_manual_review', 'manually_approved', 'manually_rejected');
//	CREATE TYPE document_status AS ENUM ('uploaded', 'processing', 'completed', 'failed');
//	CREATE TYPE review_status AS ENUM ('pending', 'approved', 'rejected');
//
//	CREATE TABLE users (
//	    id UUID PRIMARY KEY,
//	    subject TEXT UNIQUE NOT NULL,
//	    email TEXT,
//	    verification_status verification_status NOT NULL DEFAULT 'pending',
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now());
//
//	CREATE TABLE documents (
//	    id UUID PRIMARY KEY,
//	    user_id UUID NOT NULL REFERENCES users(id),
//	    type TEXT NOT NULL,
//	    blob_key TEXT NOT NULL,
//	    status document_status NOT NULL DEFAULT 'uploaded',
//	    verification_status verification_status NOT NULL DEFAULT 'pending',
//	    ai_score INT,
//	    ai_decision TEXT,
//	    result_json JSONB,
//	    ocr_text TEXT,
//	    buli2_ticket_id TEXT,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    processed_at TIMESTAMPTZ);
//
//	CREATE TABLE manual_reviews (
//	    id UUID PRIMARY KEY,
//	    document_id UUID NOT NULL REFERENCES documents(id),
//	    user_id UUID NOT NULL REFERENCES users(id),
//	    payload JSONB NOT NULL,
//	    status review_status NOT NULL DEFAULT 'pending',
//	    decision TEXT,
//	    notes TEXT,
//	    buli2_task_id TEXT,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now());
const (
	VerificationPending             = "pending"
	VerificationAutoApproved        = "auto_approved"
	VerificationAutoRejected        = "auto_rejected"
	VerificationPendingManualReview = "pending_manual_review"
	VerificationManuallyApproved    = "manually_approved"
	VerificationManuallyRejected    = "manually_rejected"

	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"

	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"

	DocTypeKTP  = "KTP"
	DocTypeNPWP = "NPWP"
)

// TerminalVerificationStatuses are the statuses after which a Document's
// evaluation is idempotent (§3 Inv. 2).
var TerminalVerificationStatuses = map[string]bool{
	VerificationAutoApproved:     true,
	VerificationAutoRejected:     true,
	VerificationManuallyApproved: true,
	VerificationManuallyRejected: true,
}

// TerminalReviewStatuses are the statuses after which a ManualReview is
// immutable (§3 Inv. 3).
var TerminalReviewStatuses = map[string]bool{
	ReviewStatusApproved: true,
	ReviewStatusRejected: true,
}
