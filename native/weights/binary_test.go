package weights

import (
	"errors"
	"math/big"
	"testing"

	"crcmarket/core/types"
	"crcmarket/native/trust"
)

type mockBackend struct {
	trusted map[types.Address]bool
}

func newMockBackend() *mockBackend {
	return &mockBackend{trusted: make(map[types.Address]bool)}
}

func (m *mockBackend) Trust(account types.Address) (bool, error) {
	if m.trusted[account] {
		return false, nil
	}
	m.trusted[account] = true
	return true, nil
}

func (m *mockBackend) Untrust(account types.Address) (bool, error) {
	if !m.trusted[account] {
		return false, nil
	}
	delete(m.trusted, account)
	return true, nil
}

func (m *mockBackend) IsTrusted(account types.Address) (bool, error) {
	return m.trusted[account], nil
}

func TestBinaryDeltaCounting(t *testing.T) {
	admin := testAddress(0x01)
	scope := testAddress(0xB0)
	backend := newMockBackend()
	ledger, err := NewBinary(admin, newMockGradedState(), func(types.Address) (EligibilityBackend, error) {
		return backend, nil
	})
	if err != nil {
		t.Fatalf("new binary: %v", err)
	}
	accounts := []types.Address{testAddress(0x10), testAddress(0x11), testAddress(0x12)}
	values := []*big.Int{big.NewInt(1), big.NewInt(9999), big.NewInt(0)}
	if err := ledger.SetWeights(admin, scope, accounts, values); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	count, _ := ledger.TotalAccounts(scope)
	if count != 2 {
		t.Fatalf("expected 2 trusted accounts, got %d", count)
	}
	total, _ := ledger.TotalWeight(scope)
	want := new(big.Int).Mul(big.NewInt(2), big.NewInt(ScaleValue))
	if total.Cmp(want) != 0 {
		t.Fatalf("expected total %s, got %s", want, total)
	}

	// Re-trusting a trusted account must not double count; flipping one off
	// must decrement exactly once.
	if err := ledger.SetWeights(admin, scope, accounts[:2], []*big.Int{big.NewInt(5), big.NewInt(0)}); err != nil {
		t.Fatalf("flip weights: %v", err)
	}
	count, _ = ledger.TotalAccounts(scope)
	if count != 1 {
		t.Fatalf("expected 1 trusted account, got %d", count)
	}
}

func TestBinaryWeightOfReadThrough(t *testing.T) {
	admin := testAddress(0x01)
	scope := testAddress(0xB0)
	account := testAddress(0x10)
	backend := newMockBackend()
	ledger, _ := NewBinary(admin, newMockGradedState(), func(types.Address) (EligibilityBackend, error) {
		return backend, nil
	})
	weight, err := ledger.WeightOf(scope, account)
	if err != nil {
		t.Fatalf("weight of unknown scope: %v", err)
	}
	if weight.Sign() != 0 {
		t.Fatalf("expected zero weight before any write, got %s", weight)
	}
	if err := ledger.SetWeights(admin, scope, []types.Address{account}, []*big.Int{big.NewInt(1)}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	weight, _ = ledger.WeightOf(scope, account)
	if weight.Cmp(big.NewInt(ScaleValue)) != 0 {
		t.Fatalf("expected scale weight for trusted account, got %s", weight)
	}

	// Mutating the backend directly is visible through WeightOf without any
	// ledger write.
	if _, err := backend.Untrust(account); err != nil {
		t.Fatalf("untrust: %v", err)
	}
	weight, _ = ledger.WeightOf(scope, account)
	if weight.Sign() != 0 {
		t.Fatalf("expected live read-through to report zero, got %s", weight)
	}
}

func TestBinaryFinalizeBlocksWrites(t *testing.T) {
	admin := testAddress(0x01)
	scope := testAddress(0xB0)
	ledger, _ := NewBinary(admin, newMockGradedState(), func(types.Address) (EligibilityBackend, error) {
		return newMockBackend(), nil
	})
	if err := ledger.SetWeights(admin, scope, []types.Address{testAddress(0x10)}, []*big.Int{big.NewInt(1)}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	if err := ledger.Finalize(scope); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	err := ledger.SetWeights(admin, scope, []types.Address{testAddress(0x11)}, []*big.Int{big.NewInt(1)})
	if !errors.Is(err, ErrScopeFinalized) {
		t.Fatalf("expected finalized error, got %v", err)
	}
}

func TestBinaryWithRegistryBackend(t *testing.T) {
	admin := testAddress(0x01)
	scope := testAddress(0xB0)
	account := testAddress(0x10)
	registry := trust.NewRegistry()
	registry.SetNowFunc(func() int64 { return 1_000 })
	ledger, _ := NewBinary(admin, newMockGradedState(), func(scope types.Address) (EligibilityBackend, error) {
		return trust.NewScopeBackend(registry, scope, "offer-eligibility")
	})
	if err := ledger.SetWeights(admin, scope, []types.Address{account}, []*big.Int{big.NewInt(1)}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	weight, err := ledger.WeightOf(scope, account)
	if err != nil {
		t.Fatalf("weight of: %v", err)
	}
	if weight.Cmp(big.NewInt(ScaleValue)) != 0 {
		t.Fatalf("expected trusted account at scale, got %s", weight)
	}
	if err := ledger.SetWeights(admin, scope, []types.Address{account}, []*big.Int{big.NewInt(0)}); err != nil {
		t.Fatalf("untrust via weights: %v", err)
	}
	count, _ := ledger.TotalAccounts(scope)
	if count != 0 {
		t.Fatalf("expected empty scope, got %d", count)
	}
}
