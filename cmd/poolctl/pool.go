package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yieldsplit/internal/adapter"
	"yieldsplit/internal/chain"
	"yieldsplit/internal/config"
	"yieldsplit/internal/fixedmath"
	"yieldsplit/internal/ledger"
	"yieldsplit/internal/pool"
	"yieldsplit/internal/rate"
	"yieldsplit/internal/storage"
	"yieldsplit/internal/storage/postgres"
)

// poolHandle bundles one pool's wired components for a single CLI
// invocation.
type poolHandle struct {
	cfg     config.Config
	logger  *zap.Logger
	engine  *pool.Engine
	shares  *ledger.ShareLedger
	store   *postgres.Store
	journal *storage.JsonlJournal
	closers []func()
}

func (h *poolHandle) close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
}

// openPool connects storage, builds the yield source, and restores or
// creates the engine. With mustExist set, a pool absent from storage is an
// error; init uses the opposite to refuse overwriting an existing pool.
func openPool(ctx context.Context, cfg config.Config, logger *zap.Logger, mustExist bool) (*poolHandle, error) {
	h := &poolHandle{cfg: cfg, logger: logger}

	var state storage.PoolState
	var found bool
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		h.store = store
		h.closers = append(h.closers, store.Close)

		state, found, err = store.LoadPoolState(ctx, cfg.PoolName)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("load pool state: %w", err)
		}
	}
	if mustExist && cfg.PGDSN != "" && !found {
		h.close()
		return nil, fmt.Errorf("pool %q not found, run init first", cfg.PoolName)
	}
	if cfg.PGDSN == "" && cfg.Maturity.IsZero() {
		h.close()
		return nil, fmt.Errorf("maturity is required when no state store is configured")
	}
	if !mustExist && found {
		h.close()
		return nil, fmt.Errorf("pool %q already exists", cfg.PoolName)
	}

	seedRate := new(big.Int).Set(fixedmath.One)
	if cfg.InitialRate != "" {
		parsed, err := parseBig(cfg.InitialRate)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("parse initial-rate: %w", err)
		}
		seedRate = parsed
	}
	if found && state.CurrentRate != "" {
		parsed, err := parseBig(state.CurrentRate)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("parse stored rate: %w", err)
		}
		seedRate = parsed
	}

	source, err := buildSource(ctx, cfg, seedRate, logger, h)
	if err != nil {
		h.close()
		return nil, err
	}

	var oracle *rate.Oracle
	shares := ledger.NewShareLedger()
	engineCfg := pool.Config{MaturityTime: cfg.Maturity}

	if found {
		oracle, err = restoreOracle(source, logger, state)
		if err != nil {
			h.close()
			return nil, err
		}
		engineCfg.MaturityTime = state.MaturityAt
		engineCfg.Matured = state.Matured
		engineCfg.BackingYield, err = parseBig(state.BackingYield)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("parse backing yield: %w", err)
		}
		engineCfg.FeeShares, err = parseBig(state.FeeShares)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("parse fee shares: %w", err)
		}
		for _, claim := range []ledger.Claim{ledger.Principal, ledger.Yield} {
			balances, err := h.store.LoadClaimBalances(ctx, cfg.PoolName, claim)
			if err != nil {
				h.close()
				return nil, fmt.Errorf("load %s balances: %w", claim, err)
			}
			shares.Restore(claim, balances)
		}
	} else {
		oracle, err = rate.NewOracle(ctx, source, logger)
		if err != nil {
			h.close()
			return nil, err
		}
	}

	// The fee schedule is fixed at init time; later invocations use the
	// stored values.
	if found {
		cfg.DepositFeeBps = state.DepositFeeBps
		cfg.EarlyRedeemBps = state.EarlyRedeemBps
		cfg.MaturityRedeemBps = state.MaturityRedeemBps
		h.cfg = cfg
	}
	fees := pool.FeesFromBasisPoints(cfg.DepositFeeBps, cfg.EarlyRedeemBps, cfg.MaturityRedeemBps)
	h.engine = pool.NewEngine(engineCfg, source, oracle, shares, fees, logger)
	h.shares = shares
	h.journal = storage.NewJsonlJournal(cfg.Journal)
	return h, nil
}

func restoreOracle(source rate.Source, logger *zap.Logger, state storage.PoolState) (*rate.Oracle, error) {
	initial, err := parseBig(state.InitialRate)
	if err != nil {
		return nil, fmt.Errorf("parse initial rate: %w", err)
	}
	current, err := parseBig(state.CurrentRate)
	if err != nil {
		return nil, fmt.Errorf("parse current rate: %w", err)
	}
	var maturity *big.Int
	if state.MaturityRate != "" {
		maturity, err = parseBig(state.MaturityRate)
		if err != nil {
			return nil, fmt.Errorf("parse maturity rate: %w", err)
		}
	}
	return rate.Restore(source, logger, initial, current, maturity, state.Halted), nil
}

// buildSource constructs the configured yield source. On-chain sources read
// rates over eth_call; submitting their deposit and withdrawal transactions
// needs an invoker, which the CLI does not carry, so fund-moving commands
// against them surface the adapter's error.
func buildSource(ctx context.Context, cfg config.Config, seedRate *big.Int, logger *zap.Logger, h *poolHandle) (adapter.ProtocolAdapter, error) {
	if cfg.Source == "static" {
		return adapter.NewStaticSource("static", cfg.BackingDecimals, cfg.YieldDecimals, seedRate), nil
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required for source %q", cfg.Source)
	}
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	h.closers = append(h.closers, chainClient.Close)

	addr := func(key string) (common.Address, error) {
		val, err := cfg.SourceParam(key)
		if err != nil {
			return common.Address{}, err
		}
		if !common.IsHexAddress(val) {
			return common.Address{}, fmt.Errorf("source param %q: invalid address %q", key, val)
		}
		return common.HexToAddress(val), nil
	}

	switch cfg.Source {
	case "aave":
		lendingPool, err := addr("lending-pool")
		if err != nil {
			return nil, err
		}
		asset, err := addr("asset")
		if err != nil {
			return nil, err
		}
		aToken, err := addr("atoken")
		if err != nil {
			return nil, err
		}
		holder, err := addr("holder")
		if err != nil {
			return nil, err
		}
		return adapter.NewAaveSource(adapter.AaveConfig{
			LendingPool:   lendingPool,
			Asset:         asset,
			AToken:        aToken,
			Holder:        holder,
			AssetDecimals: cfg.BackingDecimals,
			MaxRetries:    cfg.MaxRetries,
			RetryBackoff:  cfg.RetryBackoff,
		}, chainClient, nil, logger), nil

	case "compound", "rari":
		cToken, err := addr("ctoken")
		if err != nil {
			return nil, err
		}
		underlying, err := addr("underlying")
		if err != nil {
			return nil, err
		}
		holder, err := addr("holder")
		if err != nil {
			return nil, err
		}
		tokenCfg := adapter.CTokenConfig{
			CToken:             cToken,
			Underlying:         underlying,
			Holder:             holder,
			UnderlyingDecimals: cfg.BackingDecimals,
			MaxRetries:         cfg.MaxRetries,
			RetryBackoff:       cfg.RetryBackoff,
		}
		if cfg.Source == "rari" {
			return adapter.NewRariSource(tokenCfg, chainClient, nil, logger), nil
		}
		return adapter.NewCompoundSource(tokenCfg, chainClient, nil, logger), nil

	case "lido":
		stETH, err := addr("steth")
		if err != nil {
			return nil, err
		}
		lidoCfg := adapter.LidoConfig{
			StETH:        stETH,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}
		if referral, ok := cfg.SourceParams["referral"]; ok && common.IsHexAddress(referral) {
			lidoCfg.Referral = common.HexToAddress(referral)
		}
		return adapter.NewLidoSource(lidoCfg, chainClient, nil, logger), nil

	case "yearn":
		vault, err := addr("vault")
		if err != nil {
			return nil, err
		}
		return adapter.NewYearnSource(adapter.YearnConfig{
			Vault:              vault,
			UnderlyingDecimals: cfg.BackingDecimals,
			MaxRetries:         cfg.MaxRetries,
			RetryBackoff:       cfg.RetryBackoff,
		}, chainClient, nil, logger), nil

	case "stakewise":
		stakePool, err := addr("pool")
		if err != nil {
			return nil, err
		}
		stakedToken, err := addr("staked-token")
		if err != nil {
			return nil, err
		}
		holder, err := addr("holder")
		if err != nil {
			return nil, err
		}
		return adapter.NewStakeWiseSource(adapter.StakeWiseConfig{
			Pool:         stakePool,
			StakedToken:  stakedToken,
			Holder:       holder,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, chainClient, nil, logger), nil

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// persist journals the receipt and, when Postgres is configured, saves the
// pool state, claim balances, and the receipt row.
func (h *poolHandle) persist(ctx context.Context, receipt *pool.Receipt) error {
	if receipt != nil {
		if err := h.journal.PutReceiptBatch([]*pool.Receipt{receipt}); err != nil {
			return fmt.Errorf("journal receipt: %w", err)
		}
	}
	if h.store == nil {
		return nil
	}

	snap := h.engine.Snapshot()
	state := storage.StateFromSnapshot(h.cfg.PoolName, h.engine.MaturityTime(), snap, time.Now())
	state.DepositFeeBps = h.cfg.DepositFeeBps
	state.EarlyRedeemBps = h.cfg.EarlyRedeemBps
	state.MaturityRedeemBps = h.cfg.MaturityRedeemBps
	if err := h.store.UpsertPoolState(ctx, state); err != nil {
		return fmt.Errorf("save pool state: %w", err)
	}
	for _, claim := range []ledger.Claim{ledger.Principal, ledger.Yield} {
		if err := h.store.UpsertClaimBalances(ctx, h.cfg.PoolName, claim, h.shares.Balances(claim)); err != nil {
			return fmt.Errorf("save %s balances: %w", claim, err)
		}
	}
	if receipt != nil {
		if err := h.store.PutReceiptBatch(ctx, h.cfg.PoolName, []*pool.Receipt{receipt}); err != nil {
			return fmt.Errorf("save receipt: %w", err)
		}
	}
	return nil
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
