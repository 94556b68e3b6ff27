package ledger

import (
	"errors"
	"math/big"
	"sync"
)

var (
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
)

// Claim selects one of the two claim token ledgers.
type Claim uint8

const (
	Principal Claim = iota
	Yield
)

func (c Claim) String() string {
	if c == Principal {
		return "principal"
	}
	return "yield"
}

// ShareLedger tracks supply and per-holder balances of the principal and
// yield claims over one holder set. Minting is coupled 1:1 across both
// claims; burns and transfers act on each claim independently.
type ShareLedger struct {
	mu       sync.RWMutex
	balances [2]map[string]*big.Int
	supply   [2]*big.Int
}

func NewShareLedger() *ShareLedger {
	return &ShareLedger{
		balances: [2]map[string]*big.Int{make(map[string]*big.Int), make(map[string]*big.Int)},
		supply:   [2]*big.Int{big.NewInt(0), big.NewInt(0)},
	}
}

// MintPair credits the holder with the same amount of both claims.
func (l *ShareLedger) MintPair(holder string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, claim := range []Claim{Principal, Yield} {
		l.credit(claim, holder, amount)
	}
	return nil
}

// Burn removes amount of one claim from the holder.
func (l *ShareLedger) Burn(claim Claim, holder string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debit(claim, holder, amount)
}

// BurnPair removes possibly different amounts of each claim from the holder
// as one atomic step: if either side lacks balance, nothing is burned. A nil
// or zero amount for one side skips that side.
func (l *ShareLedger) BurnPair(holder string, principalAmount, yieldAmount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkBalance(Principal, holder, principalAmount); err != nil {
		return err
	}
	if err := l.checkBalance(Yield, holder, yieldAmount); err != nil {
		return err
	}
	if principalAmount != nil && principalAmount.Sign() > 0 {
		if err := l.debit(Principal, holder, principalAmount); err != nil {
			return err
		}
	}
	if yieldAmount != nil && yieldAmount.Sign() > 0 {
		if err := l.debit(Yield, holder, yieldAmount); err != nil {
			return err
		}
	}
	return nil
}

// Transfer moves amount of one claim between holders.
func (l *ShareLedger) Transfer(claim Claim, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(claim, from, amount); err != nil {
		return err
	}
	// debit and credit cancel out on the supply side.
	l.credit(claim, to, amount)
	return nil
}

// BalanceOf returns the holder's balance of one claim.
func (l *ShareLedger) BalanceOf(claim Claim, holder string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if balance, ok := l.balances[claim][holder]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

// TotalSupply returns the total outstanding amount of one claim.
func (l *ShareLedger) TotalSupply(claim Claim) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply[claim])
}

// Balances returns a copy of all holder balances for one claim, for
// persistence snapshots.
func (l *ShareLedger) Balances(claim Claim) map[string]*big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*big.Int, len(l.balances[claim]))
	for holder, balance := range l.balances[claim] {
		out[holder] = new(big.Int).Set(balance)
	}
	return out
}

// Restore replaces one claim's balances and supply from a snapshot.
func (l *ShareLedger) Restore(claim Claim, balances map[string]*big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[claim] = make(map[string]*big.Int, len(balances))
	supply := big.NewInt(0)
	for holder, balance := range balances {
		if balance == nil || balance.Sign() <= 0 {
			continue
		}
		l.balances[claim][holder] = new(big.Int).Set(balance)
		supply.Add(supply, balance)
	}
	l.supply[claim] = supply
}

func (l *ShareLedger) credit(claim Claim, holder string, amount *big.Int) {
	balance, ok := l.balances[claim][holder]
	if !ok {
		balance = big.NewInt(0)
		l.balances[claim][holder] = balance
	}
	balance.Add(balance, amount)
	l.supply[claim].Add(l.supply[claim], amount)
}

func (l *ShareLedger) debit(claim Claim, holder string, amount *big.Int) error {
	balance, ok := l.balances[claim][holder]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	balance.Sub(balance, amount)
	l.supply[claim].Sub(l.supply[claim], amount)
	return nil
}

func (l *ShareLedger) checkBalance(claim Claim, holder string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	balance, ok := l.balances[claim][holder]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	return nil
}
