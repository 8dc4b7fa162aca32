package trust

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"crcmarket/core/types"
	"crcmarket/crypto"
)

var (
	errOrgNotFound  = errors.New("trust registry: organization not found")
	errUnauthorized = errors.New("trust registry: caller is not the organization owner")
	errNameRequired = errors.New("trust registry: organization name required")
)

// Organization is a named trust scope. Accounts are trusted with an expiry
// timestamp; a zero or elapsed expiry means untrusted.
type Organization struct {
	Address  types.Address
	Owner    types.Address
	Name     string
	MetaHash [32]byte

	trusted map[types.Address]int64
}

// Registry keeps organizations and their per-account trust expiries. It is
// the external trust-graph collaborator the binary weight strategy and the
// cycle's currency maintenance delegate to.
type Registry struct {
	mu    sync.Mutex
	nowFn func() int64
	seq   uint64
	orgs  map[types.Address]*Organization
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nowFn: func() int64 { return time.Now().Unix() },
		orgs:  make(map[types.Address]*Organization),
	}
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// RegisterOrganization creates a new organization owned by the caller and
// returns its address.
func (r *Registry) RegisterOrganization(caller types.Address, name string, metaHash [32]byte) (types.Address, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return types.Address{}, errNameRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	addr := crypto.DeriveContractAddress(caller, r.seq)
	r.orgs[addr] = &Organization{
		Address:  addr,
		Owner:    caller,
		Name:     trimmed,
		MetaHash: metaHash,
		trusted:  make(map[types.Address]int64),
	}
	return addr, nil
}

// Trust sets the trust expiry for account under org. A zero expiry revokes
// trust. Only the organization owner may mutate its trust set. The returned
// flag reports whether the account's effective trusted/untrusted state
// flipped, letting callers track membership counts in O(1).
func (r *Registry) Trust(caller, org, account types.Address, expiry int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.orgs[org]
	if !ok {
		return false, errOrgNotFound
	}
	if entry.Owner != caller {
		return false, fmt.Errorf("%w: %s", errUnauthorized, caller.Hex())
	}
	now := r.nowFn()
	was := entry.trusted[account] > now
	if expiry <= 0 {
		delete(entry.trusted, account)
	} else {
		entry.trusted[account] = expiry
	}
	is := expiry > now
	return was != is, nil
}

// IsTrusted reports whether account is currently trusted under org.
func (r *Registry) IsTrusted(org, account types.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.orgs[org]
	if !ok {
		return false, errOrgNotFound
	}
	return entry.trusted[account] > r.nowFn(), nil
}

// TrustedCount returns the number of currently trusted accounts under org.
// Expired entries are not counted.
func (r *Registry) TrustedCount(org types.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.orgs[org]
	if !ok {
		return 0, errOrgNotFound
	}
	now := r.nowFn()
	var count uint64
	for _, expiry := range entry.trusted {
		if expiry > now {
			count++
		}
	}
	return count, nil
}

// ScopeBackend adapts one exclusively-owned organization to the eligibility
// surface the binary weight strategy expects. The backend holds the only
// reference to the owner identity, so nothing else can mutate the scope's
// trust state after the owning ledger is finalized.
type ScopeBackend struct {
	registry *Registry
	owner    types.Address
	org      types.Address
}

// NewScopeBackend registers a dedicated organization for scope and returns
// a backend bound to it.
func NewScopeBackend(registry *Registry, scope types.Address, name string) (*ScopeBackend, error) {
	if registry == nil {
		return nil, errors.New("trust registry: registry required")
	}
	owner := crypto.DeriveContractAddress(scope, 0)
	org, err := registry.RegisterOrganization(owner, name, [32]byte{})
	if err != nil {
		return nil, err
	}
	return &ScopeBackend{registry: registry, owner: owner, org: org}, nil
}

// Organization returns the address of the backing organization.
func (b *ScopeBackend) Organization() types.Address { return b.org }

// Trust marks account as eligible with no natural expiry. The returned flag
// reports whether the account flipped from untrusted to trusted.
func (b *ScopeBackend) Trust(account types.Address) (bool, error) {
	return b.registry.Trust(b.owner, b.org, account, math.MaxInt64)
}

// Untrust revokes eligibility. The returned flag reports whether the account
// flipped from trusted to untrusted.
func (b *ScopeBackend) Untrust(account types.Address) (bool, error) {
	return b.registry.Trust(b.owner, b.org, account, 0)
}

// IsTrusted reports the account's current eligibility.
func (b *ScopeBackend) IsTrusted(account types.Address) (bool, error) {
	return b.registry.IsTrusted(b.org, account)
}
