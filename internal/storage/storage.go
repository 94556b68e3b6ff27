package storage

import (
	"time"

	"yieldsplit/internal/pool"
)

// Journal is a sink for operation receipts.
type Journal interface {
	PutReceiptBatch(receipts []*pool.Receipt) error
}

// PoolState is the persistable form of a pool's mutable state. Big integers
// are carried as decimal strings so they survive any numeric column width.
type PoolState struct {
	Name              string    `json:"name"`
	MaturityAt        time.Time `json:"maturity_at"`
	Matured           bool      `json:"matured"`
	Halted            bool      `json:"halted"`
	InitialRate       string    `json:"initial_rate"`
	CurrentRate       string    `json:"current_rate"`
	MaturityRate      string    `json:"maturity_rate,omitempty"`
	BackingYield      string    `json:"backing_yield"`
	FeeShares         string    `json:"fee_shares"`
	DepositFeeBps     uint64    `json:"deposit_fee_bps"`
	EarlyRedeemBps    uint64    `json:"early_redeem_fee_bps"`
	MaturityRedeemBps uint64    `json:"maturity_redeem_fee_bps"`
	PrincipalSupply   string    `json:"principal_supply"`
	YieldSupply       string    `json:"yield_supply"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StateFromSnapshot flattens an engine snapshot for persistence.
func StateFromSnapshot(name string, maturityAt time.Time, snap pool.Snapshot, now time.Time) PoolState {
	state := PoolState{
		Name:            name,
		MaturityAt:      maturityAt.UTC(),
		Matured:         snap.Matured,
		Halted:          snap.Halted,
		InitialRate:     snap.InitialRate.String(),
		CurrentRate:     snap.CurrentRate.String(),
		BackingYield:    snap.BackingYield.String(),
		FeeShares:       snap.FeeShares.String(),
		PrincipalSupply: snap.PrincipalSupply.String(),
		YieldSupply:     snap.YieldSupply.String(),
		UpdatedAt:       now.UTC(),
	}
	if snap.MaturityRate != nil {
		state.MaturityRate = snap.MaturityRate.String()
	}
	return state
}
