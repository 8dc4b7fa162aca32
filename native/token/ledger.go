package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"crcmarket/core/types"
)

var (
	errInvalidAmount         = errors.New("token ledger: amount must be non-negative")
	errInsufficientBalance   = errors.New("token ledger: insufficient balance")
	errInsufficientAllowance = errors.New("token ledger: insufficient allowance")
)

// Ledger is an in-memory reference implementation of the Token interface.
// It backs tests and the daemon's local mode; production deployments swap
// in a bridge to the real token contract.
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	decimals   uint8
	balances   map[types.Address]*big.Int
	allowances map[types.Address]map[types.Address]*big.Int
}

// NewLedger creates a token ledger with the given symbol and decimals.
func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		decimals:   decimals,
		balances:   make(map[types.Address]*big.Int),
		allowances: make(map[types.Address]map[types.Address]*big.Int),
	}
}

// Symbol returns the configured token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals implements the Token interface.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// Mint credits freshly issued units to the account. Test and genesis helper.
func (l *Ledger) Mint(account types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, amount)
	return nil
}

// BalanceOf implements the Token interface.
func (l *Ledger) BalanceOf(account types.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Allowance returns the residual amount spender may pull from owner.
func (l *Ledger) Allowance(owner, spender types.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if granted, ok := l.allowances[owner]; ok {
		if amt, ok := granted[spender]; ok {
			return new(big.Int).Set(amt)
		}
	}
	return big.NewInt(0)
}

// Approve implements the Token interface. The approval overwrites any prior
// allowance from caller to spender.
func (l *Ledger) Approve(caller, spender types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	granted, ok := l.allowances[caller]
	if !ok {
		granted = make(map[types.Address]*big.Int)
		l.allowances[caller] = granted
	}
	granted[spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer implements the Token interface.
func (l *Ledger) Transfer(caller, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(caller, to, amount)
}

// TransferFrom implements the Token interface. When caller and from differ
// the move consumes allowance granted by from to caller.
func (l *Ledger) TransferFrom(caller, from, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != from {
		granted := l.allowances[from]
		remaining, ok := granted[caller]
		if !ok || remaining.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s from %s", errInsufficientAllowance, amount, from.Hex())
		}
		granted[caller] = new(big.Int).Sub(remaining, amount)
	}
	return l.move(from, to, amount)
}

func (l *Ledger) move(from, to types.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s", errInsufficientBalance, from.Hex())
	}
	l.balances[from] = new(big.Int).Sub(bal, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(account types.Address, amount *big.Int) {
	if bal, ok := l.balances[account]; ok {
		l.balances[account] = new(big.Int).Add(bal, amount)
		return
	}
	l.balances[account] = new(big.Int).Set(amount)
}
