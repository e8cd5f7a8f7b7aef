package ports

import (
	"context"

	"github.com/google/uuid"

	"tokendesk/internal/core/domain"
)

// ProposalRepository defines the persistence operations for proposals and
// their votes. Implementations must make CastVote a single atomic unit:
// the vote insert and the tally increment either both happen or neither
// does, and a duplicate (proposal, voter) pair surfaces as
// domain.ErrDuplicateVote.
type ProposalRepository interface {
	// Create saves a new proposal with zeroed tallies.
	Create(ctx context.Context, p *domain.Proposal) error

	// GetByID finds a proposal by id. Returns nil, nil when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error)

	// List returns proposals newest first.
	List(ctx context.Context, limit, offset int32) ([]*domain.Proposal, error)

	// CastVote inserts the vote and increments the matching tally on the
	// proposal row in one transaction. The increment is guarded by
	// status = 'active' so a concurrently finalized proposal cannot
	// accept a late ballot.
	CastVote(ctx context.Context, v *domain.Vote) error

	// GetVote finds a voter's ballot on a proposal. Returns nil, nil when
	// the voter has not voted.
	GetVote(ctx context.Context, proposalID uuid.UUID, voterID string) (*domain.Vote, error)

	// UpdateStatus moves the proposal to the given lifecycle status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProposalStatus) error

	// Delete removes a proposal only while all tallies are zero; once a
	// vote exists it fails with domain.ErrProposalImmutable.
	Delete(ctx context.Context, id uuid.UUID) error

	// Archive copies a closed proposal into the append-only archive table.
	Archive(ctx context.Context, id uuid.UUID) error
}

// TokenBalances resolves a voter's current token balance. The governance
// engine snapshots it as the vote weight at cast time.
type TokenBalances interface {
	BalanceOf(ctx context.Context, holderID string) (int64, error)
}
