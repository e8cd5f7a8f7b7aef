package domain

import (
	"time"

	"github.com/google/uuid"
)

// VoteType is a custom type for the ballot ENUM
type VoteType string

const (
	VoteFor     VoteType = "for"
	VoteAgainst VoteType = "against"
	VoteAbstain VoteType = "abstain"
)

// Valid reports whether t is one of the three known ballot choices.
func (t VoteType) Valid() bool {
	switch t {
	case VoteFor, VoteAgainst, VoteAbstain:
		return true
	}
	return false
}

// Vote is a single immutable ballot. At most one exists per
// (ProposalID, VoterID) pair; the weight is a snapshot of the voter's
// token balance at cast time and is never re-resolved.
type Vote struct {
	ID            uuid.UUID
	ProposalID    uuid.UUID
	VoterID       string
	Type          VoteType
	Weight        int64
	SettlementRef *string // Nullable
	CastAt        time.Time
}
