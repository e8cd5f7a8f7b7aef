package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/ports"
)

type proposalRepository struct {
	db  *DB
	log zerolog.Logger
}

var _ ports.ProposalRepository = (*proposalRepository)(nil) // Ensure compliance

// NewProposalRepository creates the repository for proposals and votes.
func NewProposalRepository(db *DB, baseLogger *zerolog.Logger) ports.ProposalRepository {
	return &proposalRepository{
		db:  db,
		log: baseLogger.With().Str("component", "proposal_repo").Logger(),
	}
}

const proposalCols = `
	id, title, description, category, status, start_date, end_date, quorum,
	votes_for, votes_against, votes_abstain, creator_id,
	proposed_changes, implementation_timeline, expected_impact, created_at
`

func (r *proposalRepository) scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var p domain.Proposal
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Category,
		&p.Status,
		&p.StartDate,
		&p.EndDate,
		&p.Quorum,
		&p.VotesFor,
		&p.VotesAgainst,
		&p.VotesAbstain,
		&p.CreatorID,
		&p.ProposedChanges,
		&p.ImplementationTimeline,
		&p.ExpectedImpact,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		r.log.Error().Err(err).Msg("Failed to scan proposal row")
		return nil, err
	}
	return &p, nil
}

// Create saves a new proposal. Tallies start at zero.
func (r *proposalRepository) Create(ctx context.Context, p *domain.Proposal) error {
	query := `
		INSERT INTO proposals (
			id, title, description, category, status, start_date, end_date,
			quorum, creator_id, proposed_changes, implementation_timeline,
			expected_impact, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.pool.Exec(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		p.Category,
		p.Status,
		p.StartDate,
		p.EndDate,
		p.Quorum,
		p.CreatorID,
		p.ProposedChanges,
		p.ImplementationTimeline,
		p.ExpectedImpact,
		p.CreatedAt,
	)
	if err != nil {
		r.log.Error().Err(err).Str("proposal_id", p.ID.String()).Msg("Failed to insert proposal")
	}
	return err
}

// GetByID finds a proposal. Returns nil, nil when absent.
func (r *proposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Proposal, error) {
	query := `SELECT ` + proposalCols + ` FROM proposals WHERE id = $1`

	row := r.db.pool.QueryRow(ctx, query, id)
	p, err := r.scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// List returns proposals newest first.
func (r *proposalRepository) List(ctx context.Context, limit, offset int32) ([]*domain.Proposal, error) {
	query := `SELECT ` + proposalCols + ` FROM proposals ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.pool.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to list proposals")
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Proposal
	for rows.Next() {
		p, err := r.scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// tallyColumn maps a ballot choice onto the proposal column it increments.
// The queries are fixed strings; the vote type never reaches SQL as text.
func tallyUpdate(t domain.VoteType) string {
	switch t {
	case domain.VoteFor:
		return `UPDATE proposals SET votes_for = votes_for + $1 WHERE id = $2 AND status = 'active'`
	case domain.VoteAgainst:
		return `UPDATE proposals SET votes_against = votes_against + $1 WHERE id = $2 AND status = 'active'`
	default:
		return `UPDATE proposals SET votes_abstain = votes_abstain + $1 WHERE id = $2 AND status = 'active'`
	}
}

// CastVote inserts the ballot and increments the matching tally in one
// transaction. The unique (proposal_id, voter_id) index closes the
// check-then-insert race: two concurrent attempts by the same voter commit
// exactly one row, the loser sees SQLSTATE 23505 which we surface as
// domain.ErrDuplicateVote. The increment is a relative UPDATE so
// concurrent distinct voters serialize on the row without lost updates.
func (r *proposalRepository) CastVote(ctx context.Context, v *domain.Vote) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO votes (id, proposal_id, voter_id, vote_type, weight, settlement_ref, cast_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, insert,
		v.ID,
		v.ProposalID,
		v.VoterID,
		v.Type,
		v.Weight,
		v.SettlementRef,
		v.CastAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateVote
		}
		r.log.Error().Err(err).Str("proposal_id", v.ProposalID.String()).Str("voter", v.VoterID).Msg("Failed to insert vote")
		return err
	}

	ct, err := tx.Exec(ctx, tallyUpdate(v.Type), v.Weight, v.ProposalID)
	if err != nil {
		r.log.Error().Err(err).Str("proposal_id", v.ProposalID.String()).Msg("Failed to increment tally")
		return err
	}
	if ct.RowsAffected() == 0 {
		// Proposal finalized or removed between the service's check and
		// this commit; the rollback discards the inserted vote too.
		return domain.ErrVotingClosed
	}

	return tx.Commit(ctx)
}

// GetVote finds a voter's ballot on a proposal. Returns nil, nil when the
// voter has not voted.
func (r *proposalRepository) GetVote(ctx context.Context, proposalID uuid.UUID, voterID string) (*domain.Vote, error) {
	query := `
		SELECT id, proposal_id, voter_id, vote_type, weight, settlement_ref, cast_at
		FROM votes WHERE proposal_id = $1 AND voter_id = $2
	`
	var v domain.Vote
	err := r.db.pool.QueryRow(ctx, query, proposalID, voterID).Scan(
		&v.ID,
		&v.ProposalID,
		&v.VoterID,
		&v.Type,
		&v.Weight,
		&v.SettlementRef,
		&v.CastAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.Error().Err(err).Msg("Failed to scan vote row")
		return nil, err
	}
	return &v, nil
}

// UpdateStatus moves the proposal to the given lifecycle status.
func (r *proposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProposalStatus) error {
	ct, err := r.db.pool.Exec(ctx, `UPDATE proposals SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		r.log.Error().Err(err).Str("proposal_id", id.String()).Msg("Failed to update proposal status")
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrProposalNotFound
	}
	return nil
}

// Delete removes a proposal only while untouched by voting. The tally
// guard lives in the WHERE clause so the check and the delete are one
// statement.
func (r *proposalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.db.pool.Exec(ctx, `
		DELETE FROM proposals
		WHERE id = $1 AND votes_for = 0 AND votes_against = 0 AND votes_abstain = 0
	`, id)
	if err != nil {
		r.log.Error().Err(err).Str("proposal_id", id.String()).Msg("Failed to delete proposal")
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM proposals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrProposalImmutable
	}
	return domain.ErrProposalNotFound
}

// Archive copies a closed proposal into the append-only archive table.
// Re-archiving is a no-op.
func (r *proposalRepository) Archive(ctx context.Context, id uuid.UUID) error {
	ct, err := r.db.pool.Exec(ctx, `
		INSERT INTO proposal_archive (
			id, title, description, category, status, start_date, end_date, quorum,
			votes_for, votes_against, votes_abstain, creator_id,
			proposed_changes, implementation_timeline, expected_impact, created_at, archived_at
		)
		SELECT `+proposalCols+`, now() FROM proposals WHERE id = $1
		ON CONFLICT (id) DO NOTHING
	`, id)
	if err != nil {
		r.log.Error().Err(err).Str("proposal_id", id.String()).Msg("Failed to archive proposal")
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := r.db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM proposals WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrProposalNotFound
		}
	}
	return nil
}
