package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/ports"
)

type balanceRepository struct {
	db  *DB
	log zerolog.Logger
}

var _ ports.TokenBalances = (*balanceRepository)(nil) // Ensure compliance

// NewBalanceRepository reads token balances maintained by the settlement
// pipeline. The governance engine snapshots these as vote weights.
func NewBalanceRepository(db *DB, baseLogger *zerolog.Logger) ports.TokenBalances {
	return &balanceRepository{
		db:  db,
		log: baseLogger.With().Str("component", "balance_repo").Logger(),
	}
}

// BalanceOf returns the holder's balance, zero when the holder is unknown.
func (r *balanceRepository) BalanceOf(ctx context.Context, holderID string) (int64, error) {
	var balance int64
	err := r.db.pool.QueryRow(ctx, `SELECT balance FROM token_balances WHERE holder_id = $1`, holderID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		r.log.Error().Err(err).Str("holder_id", holderID).Msg("Failed to read token balance")
		return 0, err
	}
	return balance, nil
}
