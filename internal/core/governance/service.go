package governance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/ports"
)

// CreateProposalInput carries the raw, untrusted fields of a proposal
// submission. Dates arrive as RFC 3339 strings from the RPC surface and
// are re-validated here even when a UI pre-filtered them.
type CreateProposalInput struct {
	Title                  string
	Description            string
	Category               domain.ProposalCategory
	Status                 domain.ProposalStatus
	StartDate              string
	EndDate                string
	Quorum                 int64
	CreatorID              string
	ProposedChanges        *string
	ImplementationTimeline *string
	ExpectedImpact         *string
}

// Service is the proposal and voting engine.
type Service struct {
	repo     ports.ProposalRepository
	balances ports.TokenBalances
	bus      ports.EventBus
	log      zerolog.Logger
	now      func() time.Time
}

// NewService wires the engine. The bus may carry zero subscribers; every
// publish is fire-and-forget from the engine's point of view.
func NewService(repo ports.ProposalRepository, balances ports.TokenBalances, bus ports.EventBus, baseLogger *zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		balances: balances,
		bus:      bus,
		log:      baseLogger.With().Str("component", "governance").Logger(),
		now:      time.Now,
	}
}

// CreateProposal validates every field, reporting all problems at once,
// and persists the proposal with zeroed tallies.
func (s *Service) CreateProposal(ctx context.Context, in CreateProposalInput) (*domain.Proposal, error) {
	if strings.TrimSpace(in.CreatorID) == "" {
		return nil, domain.ErrUnauthenticated
	}

	verr := domain.NewValidationError()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		verr.Add("title", "must not be empty")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		verr.Add("description", "must not be empty")
	}

	switch in.Category {
	case domain.CategoryTreasury, domain.CategoryTechnical, domain.CategoryGovernance, domain.CategoryCommunity:
	default:
		verr.Add("category", fmt.Sprintf("unknown category %q", in.Category))
	}

	status := in.Status
	if status == "" {
		status = domain.ProposalPending
	}
	if status != domain.ProposalPending && status != domain.ProposalActive {
		verr.Add("status", "new proposals may only be pending or active")
	}

	start, err := time.Parse(time.RFC3339, in.StartDate)
	if err != nil {
		verr.Add("startDate", "must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, in.EndDate)
	if err != nil {
		verr.Add("endDate", "must be an RFC 3339 timestamp")
	} else if _, ok := verr.Fields["startDate"]; !ok && !end.After(start) {
		verr.Add("endDate", "must be after startDate")
	}

	if in.Quorum <= 0 {
		verr.Add("quorum", "must be a positive integer")
	}

	if verr.Any() {
		return nil, verr
	}

	p := &domain.Proposal{
		ID:                     uuid.New(),
		Title:                  title,
		Description:            desc,
		Category:               in.Category,
		Status:                 status,
		StartDate:              start,
		EndDate:                end,
		Quorum:                 in.Quorum,
		CreatorID:              in.CreatorID,
		ProposedChanges:        in.ProposedChanges,
		ImplementationTimeline: in.ImplementationTimeline,
		ExpectedImpact:         in.ExpectedImpact,
		CreatedAt:              s.now().UTC(),
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.log.Error().Err(err).Str("creator", in.CreatorID).Msg("Failed to persist proposal")
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	s.log.Info().Str("proposal_id", p.ID.String()).Str("category", string(p.Category)).Msg("Proposal created")
	_ = s.bus.Publish(ctx, ports.TopicProposalCreated, p)
	return p, nil
}

// CastVote casts one immutable ballot. The weight is the voter's token
// balance at this instant; it is never re-resolved afterwards. The insert
// plus tally increment happens atomically in the repository, so a
// same-voter race yields exactly one success and a distinct-voter race
// loses no increment.
func (s *Service) CastVote(ctx context.Context, proposalID uuid.UUID, voterID string, voteType domain.VoteType) (*domain.Vote, error) {
	if strings.TrimSpace(voterID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	if !voteType.Valid() {
		verr := domain.NewValidationError()
		verr.Add("voteType", fmt.Sprintf("unknown vote type %q", voteType))
		return nil, verr
	}

	p, err := s.repo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}
	if p == nil {
		return nil, domain.ErrProposalNotFound
	}
	if !p.Votable(s.now()) {
		return nil, domain.ErrVotingClosed
	}

	weight, err := s.balances.BalanceOf(ctx, voterID)
	if err != nil {
		s.log.Error().Err(err).Str("voter", voterID).Msg("Failed to resolve token balance")
		return nil, fmt.Errorf("resolve vote weight: %w", err)
	}
	if weight <= 0 {
		verr := domain.NewValidationError()
		verr.Add("voteWeight", "voter holds no tokens")
		return nil, verr
	}

	vote := &domain.Vote{
		ID:         uuid.New(),
		ProposalID: proposalID,
		VoterID:    voterID,
		Type:       voteType,
		Weight:     weight,
		CastAt:     s.now().UTC(),
	}

	if err := s.repo.CastVote(ctx, vote); err != nil {
		if errors.Is(err, domain.ErrDuplicateVote) || errors.Is(err, domain.ErrVotingClosed) {
			return nil, err
		}
		s.log.Error().Err(err).Str("proposal_id", proposalID.String()).Str("voter", voterID).Msg("Failed to cast vote")
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	s.log.Info().
		Str("proposal_id", proposalID.String()).
		Str("voter", voterID).
		Str("type", string(voteType)).
		Int64("weight", weight).
		Msg("Vote cast")
	_ = s.bus.Publish(ctx, ports.TopicVoteCast, vote)
	return vote, nil
}

// Outcome recomputes the proposal's outcome from its persisted tallies.
func (s *Service) Outcome(ctx context.Context, proposalID uuid.UUID) (*domain.Outcome, error) {
	p, err := s.repo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}
	if p == nil {
		return nil, domain.ErrProposalNotFound
	}
	out := p.Outcome()
	return &out, nil
}

// Finalize closes an active proposal after its voting window. Quorum not
// met at close resolves to rejected: the tallies can never grow again.
func (s *Service) Finalize(ctx context.Context, proposalID uuid.UUID) (*domain.Proposal, error) {
	p, err := s.repo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}
	if p == nil {
		return nil, domain.ErrProposalNotFound
	}
	if p.Status != domain.ProposalActive {
		return nil, domain.ErrVotingClosed
	}
	if !p.Closed(s.now()) {
		return nil, domain.ErrProposalOpen
	}

	out := p.Outcome()
	final := domain.ProposalRejected
	if out.QuorumMet && out.Result == domain.ProposalPassed {
		final = domain.ProposalPassed
	}

	if err := s.repo.UpdateStatus(ctx, proposalID, final); err != nil {
		return nil, fmt.Errorf("finalize proposal: %w", err)
	}
	p.Status = final

	s.log.Info().
		Str("proposal_id", proposalID.String()).
		Bool("quorum_met", out.QuorumMet).
		Str("result", string(final)).
		Msg("Proposal finalized")
	_ = s.bus.Publish(ctx, ports.TopicProposalFinalized, p)
	return p, nil
}

// Archive snapshots a closed proposal into the immutable archive table.
func (s *Service) Archive(ctx context.Context, proposalID uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("load proposal: %w", err)
	}
	if p == nil {
		return domain.ErrProposalNotFound
	}
	if p.Status != domain.ProposalPassed && p.Status != domain.ProposalRejected {
		return domain.ErrProposalOpen
	}
	if err := s.repo.Archive(ctx, proposalID); err != nil {
		return fmt.Errorf("archive proposal: %w", err)
	}
	s.log.Info().Str("proposal_id", proposalID.String()).Msg("Proposal archived")
	return nil
}

// Delete removes a proposal that has no recorded votes. Voting history is
// never destroyed once it exists; the repository rejects the delete with
// domain.ErrProposalImmutable as soon as any tally is non-zero.
func (s *Service) Delete(ctx context.Context, proposalID uuid.UUID, callerID string) error {
	if strings.TrimSpace(callerID) == "" {
		return domain.ErrUnauthenticated
	}
	if err := s.repo.Delete(ctx, proposalID); err != nil {
		if errors.Is(err, domain.ErrProposalNotFound) || errors.Is(err, domain.ErrProposalImmutable) {
			return err
		}
		return fmt.Errorf("delete proposal: %w", err)
	}
	s.log.Info().Str("proposal_id", proposalID.String()).Str("caller", callerID).Msg("Proposal deleted")
	_ = s.bus.Publish(ctx, ports.TopicProposalDeleted, proposalID)
	return nil
}

// Get returns one proposal.
func (s *Service) Get(ctx context.Context, proposalID uuid.UUID) (*domain.Proposal, error) {
	p, err := s.repo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("load proposal: %w", err)
	}
	if p == nil {
		return nil, domain.ErrProposalNotFound
	}
	return p, nil
}

// List returns proposals newest first.
func (s *Service) List(ctx context.Context, limit, offset int32) ([]*domain.Proposal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
