package weights

import (
	"errors"
	"math/big"

	"crcmarket/core/types"
)

// ScaleValue is the fixed-point denominator for weights. Weights are
// expressed in basis points of the base limit.
const ScaleValue = 10_000

var (
	errNilState       = errors.New("weight ledger: state not configured")
	errAdminRequired  = errors.New("weight ledger: admin address required")
	errUnauthorized   = errors.New("weight ledger: caller is not the ledger admin")
	errLengthMismatch = errors.New("weight ledger: accounts and weights length mismatch")
	errScopeFinalized = errors.New("weight ledger: scope is finalized")
	errNegativeWeight = errors.New("weight ledger: weight must be non-negative")
)

// ErrScopeFinalized reports a weight write against a frozen scope.
var ErrScopeFinalized = errScopeFinalized

// Ledger is the per-offer-scope eligibility surface shared by the graded and
// binary strategies. Scopes are keyed by offer identity. Finalize freezes
// the caller's own scope; mutating calls carry the caller identity
// explicitly.
type Ledger interface {
	SetWeights(caller, scope types.Address, accounts []types.Address, weightValues []*big.Int) error
	Finalize(caller types.Address) error
	Finalized(scope types.Address) (bool, error)
	WeightOf(scope, account types.Address) (*big.Int, error)
	TotalWeight(scope types.Address) (*big.Int, error)
	TotalAccounts(scope types.Address) (uint64, error)
	Scale() *big.Int
}

// Scope is the per-offer bookkeeping record shared by both strategies. The
// graded strategy maintains TotalWeight directly; the binary one derives it
// from TotalAccounts.
type Scope struct {
	TotalAccounts uint64   `json:"totalAccounts"`
	TotalWeight   *big.Int `json:"totalWeight"`
	Finalized     bool     `json:"finalized"`
}

// Clone returns a deep copy of the scope record.
func (s *Scope) Clone() *Scope {
	if s == nil {
		return nil
	}
	clone := &Scope{TotalAccounts: s.TotalAccounts, Finalized: s.Finalized}
	if s.TotalWeight != nil {
		clone.TotalWeight = new(big.Int).Set(s.TotalWeight)
	}
	return clone
}

func newScope() *Scope {
	return &Scope{TotalWeight: big.NewInt(0)}
}

func scaleBig() *big.Int {
	return big.NewInt(ScaleValue)
}
