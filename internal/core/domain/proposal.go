package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProposalCategory is a custom type for our ENUM
type ProposalCategory string

const (
	CategoryTreasury   ProposalCategory = "treasury"
	CategoryTechnical  ProposalCategory = "technical"
	CategoryGovernance ProposalCategory = "governance"
	CategoryCommunity  ProposalCategory = "community"
)

// ProposalStatus is a custom type for the proposal lifecycle ENUM
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalActive   ProposalStatus = "active"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal represents a governance proposal. Tally fields hold accumulated
// vote weight, not vote counts, and may only ever grow.
type Proposal struct {
	ID                     uuid.UUID
	Title                  string
	Description            string
	Category               ProposalCategory
	Status                 ProposalStatus
	StartDate              time.Time
	EndDate                time.Time
	Quorum                 int64
	VotesFor               int64
	VotesAgainst           int64
	VotesAbstain           int64
	CreatorID              string
	ProposedChanges        *string // Nullable
	ImplementationTimeline *string // Nullable
	ExpectedImpact         *string // Nullable
	CreatedAt              time.Time
}

// TotalVotes is the total weighted participation, abstentions included.
func (p *Proposal) TotalVotes() int64 {
	return p.VotesFor + p.VotesAgainst + p.VotesAbstain
}

// Votable reports whether a vote may be cast at the given instant.
func (p *Proposal) Votable(now time.Time) bool {
	return p.Status == ProposalActive && !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// Closed reports whether the voting window has ended.
func (p *Proposal) Closed(now time.Time) bool {
	return now.After(p.EndDate)
}

// Outcome is the result of evaluating a proposal's tallies against its quorum.
type Outcome struct {
	QuorumMet bool           `json:"quorumMet"`
	Result    ProposalStatus `json:"outcome"`
}

// ComputeOutcome derives the outcome from the persisted tallies alone.
// Abstain weight counts toward quorum but not toward the for/against
// comparison. It is a pure function; a cached outcome column is never
// authoritative.
func ComputeOutcome(votesFor, votesAgainst, votesAbstain, quorum int64) Outcome {
	total := votesFor + votesAgainst + votesAbstain
	if total < quorum {
		return Outcome{QuorumMet: false, Result: ProposalPending}
	}
	if votesFor > votesAgainst {
		return Outcome{QuorumMet: true, Result: ProposalPassed}
	}
	return Outcome{QuorumMet: true, Result: ProposalRejected}
}

// Outcome evaluates the proposal's own tallies.
func (p *Proposal) Outcome() Outcome {
	return ComputeOutcome(p.VotesFor, p.VotesAgainst, p.VotesAbstain, p.Quorum)
}
