package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"yieldsplit/internal/ledger"
	"yieldsplit/internal/pool"
	"yieldsplit/internal/storage"
)

// Store provides Postgres persistence for pool state, claim balances, rate
// observations, and operation receipts.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPoolState inserts or updates the pool's mutable state row.
func (s *Store) UpsertPoolState(ctx context.Context, state storage.PoolState) error {
	if state.Name == "" {
		return fmt.Errorf("pool name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_state (
			name, maturity_at, matured, halted, initial_rate, current_rate, maturity_rate,
			backing_yield, fee_shares, deposit_fee_bps, early_redeem_fee_bps, maturity_redeem_fee_bps,
			principal_supply, yield_supply, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
		ON CONFLICT (name)
		DO UPDATE SET
			matured = EXCLUDED.matured,
			halted = EXCLUDED.halted,
			current_rate = EXCLUDED.current_rate,
			maturity_rate = EXCLUDED.maturity_rate,
			backing_yield = EXCLUDED.backing_yield,
			fee_shares = EXCLUDED.fee_shares,
			principal_supply = EXCLUDED.principal_supply,
			yield_supply = EXCLUDED.yield_supply,
			updated_at = now()
	`,
		state.Name,
		state.MaturityAt,
		state.Matured,
		state.Halted,
		state.InitialRate,
		state.CurrentRate,
		nullable(state.MaturityRate),
		state.BackingYield,
		state.FeeShares,
		state.DepositFeeBps,
		state.EarlyRedeemBps,
		state.MaturityRedeemBps,
		state.PrincipalSupply,
		state.YieldSupply,
	)
	return err
}

// LoadPoolState returns the persisted state for a pool name.
func (s *Store) LoadPoolState(ctx context.Context, name string) (storage.PoolState, bool, error) {
	if name == "" {
		return storage.PoolState{}, false, fmt.Errorf("pool name required")
	}
	var state storage.PoolState
	var maturityRate *string
	row := s.pool.QueryRow(ctx, `
		SELECT name, maturity_at, matured, halted, initial_rate, current_rate, maturity_rate,
		       backing_yield, fee_shares, deposit_fee_bps, early_redeem_fee_bps, maturity_redeem_fee_bps,
		       principal_supply, yield_supply, updated_at
		FROM pool_state WHERE name=$1
	`, name)
	err := row.Scan(
		&state.Name,
		&state.MaturityAt,
		&state.Matured,
		&state.Halted,
		&state.InitialRate,
		&state.CurrentRate,
		&maturityRate,
		&state.BackingYield,
		&state.FeeShares,
		&state.DepositFeeBps,
		&state.EarlyRedeemBps,
		&state.MaturityRedeemBps,
		&state.PrincipalSupply,
		&state.YieldSupply,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.PoolState{}, false, nil
		}
		return storage.PoolState{}, false, err
	}
	if maturityRate != nil {
		state.MaturityRate = *maturityRate
	}
	return state, true, nil
}

// UpsertClaimBalances replaces the stored balances for a pool with the given
// ledger snapshot.
func (s *Store) UpsertClaimBalances(ctx context.Context, poolName string, claim ledger.Claim, balances map[string]*big.Int) error {
	if len(balances) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for holder, amount := range balances {
		batch.Queue(`
			INSERT INTO claim_balances (pool_name, claim, holder, balance, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (pool_name, claim, holder)
			DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()
		`,
			poolName,
			claim.String(),
			holder,
			amount.String(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range balances {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadClaimBalances returns all stored balances of one claim kind.
func (s *Store) LoadClaimBalances(ctx context.Context, poolName string, claim ledger.Claim) (map[string]*big.Int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT holder, balance FROM claim_balances
		WHERE pool_name=$1 AND claim=$2
	`, poolName, claim.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[string]*big.Int)
	for rows.Next() {
		var holder, balance string
		if err := rows.Scan(&holder, &balance); err != nil {
			return nil, err
		}
		v, ok := new(big.Int).SetString(balance, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q for holder %s", balance, holder)
		}
		balances[holder] = v
	}
	return balances, rows.Err()
}

// InsertRateObservation appends one rate observation for audit history.
func (s *Store) InsertRateObservation(ctx context.Context, poolName string, rate *big.Int, halted bool, observedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rate_observations (pool_name, rate, halted, observed_at)
		VALUES ($1, $2, $3, $4)
	`, poolName, rate.String(), halted, observedAt.UTC())
	return err
}

// PutReceiptBatch appends operation receipts.
func (s *Store) PutReceiptBatch(ctx context.Context, poolName string, receipts []*pool.Receipt) error {
	if len(receipts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range receipts {
		batch.Queue(`
			INSERT INTO operation_receipts (
				pool_name, kind, holder, amount_in, asset_in, amount_out, asset_out,
				shares_minted, principals_burned, yields_burned, fee, rate_used, matured, ts
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`,
			poolName,
			string(r.Kind),
			r.Holder,
			bigString(r.AmountIn),
			string(r.AssetIn),
			bigString(r.AmountOut),
			string(r.AssetOut),
			bigString(r.SharesMinted),
			bigString(r.PrincipalsBurned),
			bigString(r.YieldsBurned),
			bigString(r.Fee),
			bigString(r.RateUsed),
			r.Matured,
			r.Timestamp.UTC(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range receipts {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func bigString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
