package weights

import (
	"errors"
	"math/big"
	"sync"

	"crcmarket/core/events"
	"crcmarket/core/types"
)

var (
	errNilBackendFactory = errors.New("weight ledger: backend factory not configured")
	errNilBackend        = errors.New("weight ledger: backend factory returned nil")
)

// EligibilityBackend is the per-scope delegate the binary strategy writes
// trust flips through. Trust and Untrust report whether the account's state
// actually changed, which lets the ledger maintain membership counts in
// O(1) regardless of batch size.
type EligibilityBackend interface {
	Trust(account types.Address) (bool, error)
	Untrust(account types.Address) (bool, error)
	IsTrusted(account types.Address) (bool, error)
}

// BackendFactory allocates the delegate for a scope the first time weights
// are written to it. Implementations must hand out a backend nothing else
// can reach, keeping post-finalize eligibility frozen in practice.
type BackendFactory func(scope types.Address) (EligibilityBackend, error)

// BinaryState is the persistence surface the binary strategy needs. Only
// counts and the finalize latch are stored; trust membership lives in the
// delegate.
type BinaryState interface {
	WeightScopeGet(scope types.Address) (*Scope, bool, error)
	WeightScopePut(scope types.Address, record *Scope) error
}

// Binary maps nonzero weights to trust and zero weights to untrust against
// a per-scope eligibility delegate. WeightOf is a live read-through: a
// trusted account weighs exactly one scale unit.
type Binary struct {
	admin   types.Address
	state   BinaryState
	factory BackendFactory
	emitter events.Emitter

	mu       sync.Mutex
	backends map[types.Address]EligibilityBackend
}

// NewBinary creates a binary weight ledger administered by admin.
func NewBinary(admin types.Address, state BinaryState, factory BackendFactory) (*Binary, error) {
	if admin.IsZero() {
		return nil, errAdminRequired
	}
	if state == nil {
		return nil, errNilState
	}
	if factory == nil {
		return nil, errNilBackendFactory
	}
	return &Binary{
		admin:    admin,
		state:    state,
		factory:  factory,
		emitter:  events.NoopEmitter{},
		backends: make(map[types.Address]EligibilityBackend),
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (b *Binary) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// Admin returns the ledger admin identity.
func (b *Binary) Admin() types.Address { return b.admin }

// Scale implements the Ledger interface.
func (b *Binary) Scale() *big.Int { return scaleBig() }

func (b *Binary) backend(scope types.Address, allocate bool) (EligibilityBackend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if backend, ok := b.backends[scope]; ok {
		return backend, nil
	}
	if !allocate {
		return nil, nil
	}
	backend, err := b.factory(scope)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, errNilBackend
	}
	b.backends[scope] = backend
	return backend, nil
}

func (b *Binary) loadScope(scope types.Address) (*Scope, error) {
	record, ok, err := b.state.WeightScopeGet(scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newScope(), nil
	}
	return record, nil
}

// SetWeights translates the batch into trust flips against the scope's
// delegate. Re-trusting an already trusted account (or re-untrusting an
// untrusted one) is a no-op by construction.
func (b *Binary) SetWeights(caller, scope types.Address, accounts []types.Address, weightValues []*big.Int) error {
	if caller != b.admin {
		return errUnauthorized
	}
	if len(accounts) != len(weightValues) {
		return errLengthMismatch
	}
	record, err := b.loadScope(scope)
	if err != nil {
		return err
	}
	if record.Finalized {
		return errScopeFinalized
	}
	for _, w := range weightValues {
		if w == nil || w.Sign() < 0 {
			return errNegativeWeight
		}
	}
	backend, err := b.backend(scope, true)
	if err != nil {
		return err
	}
	delta := int64(0)
	for i, account := range accounts {
		if weightValues[i].Sign() > 0 {
			changed, err := backend.Trust(account)
			if err != nil {
				return err
			}
			if changed {
				delta++
			}
		} else {
			changed, err := backend.Untrust(account)
			if err != nil {
				return err
			}
			if changed {
				delta--
			}
		}
	}
	record.TotalAccounts = uint64(int64(record.TotalAccounts) + delta)
	record.TotalWeight = new(big.Int).Mul(new(big.Int).SetUint64(record.TotalAccounts), scaleBig())
	if err := b.state.WeightScopePut(scope, record); err != nil {
		return err
	}
	b.emit(NewWeightsUpdatedEvent(scope, len(accounts), record))
	return nil
}

// Finalize freezes the caller's own scope against further weight writes.
// The delegate's state stays readable; only writes through this ledger are
// blocked.
func (b *Binary) Finalize(caller types.Address) error {
	record, err := b.loadScope(caller)
	if err != nil {
		return err
	}
	if record.Finalized {
		return nil
	}
	record.Finalized = true
	if err := b.state.WeightScopePut(caller, record); err != nil {
		return err
	}
	b.emit(NewScopeFinalizedEvent(caller, record))
	return nil
}

// Finalized implements the Ledger interface.
func (b *Binary) Finalized(scope types.Address) (bool, error) {
	record, err := b.loadScope(scope)
	if err != nil {
		return false, err
	}
	return record.Finalized, nil
}

// WeightOf reads through to the delegate: scale when trusted, zero
// otherwise.
func (b *Binary) WeightOf(scope, account types.Address) (*big.Int, error) {
	backend, err := b.backend(scope, false)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return big.NewInt(0), nil
	}
	trusted, err := backend.IsTrusted(account)
	if err != nil {
		return nil, err
	}
	if trusted {
		return scaleBig(), nil
	}
	return big.NewInt(0), nil
}

// TotalWeight implements the Ledger interface as accounts × scale.
func (b *Binary) TotalWeight(scope types.Address) (*big.Int, error) {
	record, err := b.loadScope(scope)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(record.TotalAccounts), scaleBig()), nil
}

// TotalAccounts implements the Ledger interface.
func (b *Binary) TotalAccounts(scope types.Address) (uint64, error) {
	record, err := b.loadScope(scope)
	if err != nil {
		return 0, err
	}
	return record.TotalAccounts, nil
}

func (b *Binary) emit(evt *types.Event) {
	if b == nil || b.emitter == nil || evt == nil {
		return
	}
	b.emitter.Emit(wrapEvent(evt))
}
