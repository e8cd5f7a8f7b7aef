package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is a custom type for the provider-session ENUM.
// Transitions are monotonic: pending -> in_progress -> completed, or
// pending|in_progress -> expired. completed and expired are terminal.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionExpired    SessionStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionExpired
}

// VerificationStatus is a custom type for the final-decision ENUM
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationDeclined VerificationStatus = "declined"
)

// DocumentStatus is a custom type for the per-document check ENUM
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
)

// VerificationSession links a provider session id to exactly one internal
// verification record. Mutated only by webhook events.
type VerificationSession struct {
	SessionID      string
	VerificationID uuid.UUID
	Status         SessionStatus
	LastEventAt    time.Time
}

// VerificationRecord holds the derived identity decision. Status is never
// set directly by a client; it is recomputed from accumulated sub-results.
type VerificationRecord struct {
	ID            uuid.UUID
	UserID        string
	Status        VerificationStatus
	RiskScore     int
	DeclineReason *string // Nullable
	PersonalInfo  *string // Encrypted JSON, nullable
	Address       *string // Encrypted JSON, nullable
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DocumentResult is one per-document sub-check, keyed (SessionID, DocumentID)
// so a replayed event overwrites rather than duplicates.
type DocumentResult struct {
	SessionID  string
	DocumentID string
	Type       string
	Status     DocumentStatus
	Confidence float64
	Extracted  []byte // raw JSON as delivered by the provider
}

// BiometricResult is the face-match and liveness sub-check for a session.
type BiometricResult struct {
	SessionID           string
	FaceMatchConfidence float64
	FaceMatchVerified   bool
	LivenessScore       float64
	LivenessPassed      bool
}

// ComplianceResult aggregates the AML, sanctions and PEP screenings.
type ComplianceResult struct {
	SessionID       string
	AMLPassed       bool
	AMLRiskLevel    string
	SanctionsPassed bool
	SanctionsHits   int
	PEPPassed       bool
	PEPRiskLevel    string
}

// Passed reports whether every screening cleared.
func (c ComplianceResult) Passed() bool {
	return c.AMLPassed && c.SanctionsPassed && c.PEPPassed
}

// VerificationData is the accumulated sub-result set for a session, read
// back in full whenever the final status has to be recomputed.
type VerificationData struct {
	Session    VerificationSession
	Documents  []DocumentResult
	Biometrics *BiometricResult
	Compliance *ComplianceResult
	RiskScore  int
}
