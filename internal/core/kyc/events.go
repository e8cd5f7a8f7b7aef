package kyc

import (
	"encoding/json"
	"time"
)

// Webhook event names pushed by the identity provider. Delivery is
// at-least-once, so every handler below is idempotent under replay.
const (
	EventSessionStarted        = "session_started"
	EventDocumentUploaded      = "document_uploaded"
	EventVerificationCompleted = "verification_completed"
	EventSessionExpired        = "session_expired"
)

// WebhookEvent is the provider's POST body.
type WebhookEvent struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// EventData carries whichever sub-results this event delivers.
type EventData struct {
	Documents             []DocumentPayload  `json:"documents,omitempty"`
	Biometrics            *BiometricsPayload `json:"biometrics,omitempty"`
	ComplianceChecks      *CompliancePayload `json:"complianceChecks,omitempty"`
	RiskScore             *int               `json:"riskScore,omitempty"`
	ExtractedPersonalInfo json.RawMessage    `json:"extractedPersonalInfo,omitempty"`
	ExtractedAddress      json.RawMessage    `json:"extractedAddress,omitempty"`
}

// DocumentPayload is one document check result.
type DocumentPayload struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Confidence    float64         `json:"confidence"`
	ExtractedData json.RawMessage `json:"extractedData,omitempty"`
}

// BiometricsPayload is the face-match and liveness result.
type BiometricsPayload struct {
	FaceMatch struct {
		Confidence float64 `json:"confidence"`
		Verified   bool    `json:"verified"`
	} `json:"faceMatch"`
	LivenessCheck struct {
		Score  float64 `json:"score"`
		Passed bool    `json:"passed"`
	} `json:"livenessCheck"`
}

// CompliancePayload carries the three screenings.
type CompliancePayload struct {
	AMLScreening   *CheckPayload `json:"amlScreening,omitempty"`
	SanctionsCheck *CheckPayload `json:"sanctionsCheck,omitempty"`
	PEPCheck       *CheckPayload `json:"pepCheck,omitempty"`
}

// CheckPayload is a single pass/fail screening result.
type CheckPayload struct {
	Passed    bool   `json:"passed"`
	RiskLevel string `json:"riskLevel,omitempty"`
	Matches   int    `json:"matches,omitempty"`
}
