package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"crcmarket/core/types"
	"crcmarket/native/cycle"
	"crcmarket/native/offer"
	"crcmarket/native/payments"
	"crcmarket/native/weights"
	"crcmarket/storage"
)

func addr(fill byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(storage.NewMemDB())
	require.NoError(t, err)
	return manager
}

func TestManagerWeightRecords(t *testing.T) {
	manager := newManager(t)
	scope, account := addr(0xA0), addr(0x10)

	_, ok, err := manager.WeightScopeGet(scope)
	require.NoError(t, err)
	require.False(t, ok)

	record := &weights.Scope{TotalAccounts: 3, TotalWeight: big.NewInt(25_000), Finalized: true}
	require.NoError(t, manager.WeightScopePut(scope, record))
	got, ok, err := manager.WeightScopeGet(scope)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), got.TotalAccounts)
	require.Zero(t, got.TotalWeight.Cmp(big.NewInt(25_000)))
	require.True(t, got.Finalized)

	weight, err := manager.WeightGet(scope, account)
	require.NoError(t, err)
	require.Nil(t, weight)
	require.NoError(t, manager.WeightPut(scope, account, big.NewInt(5_000)))
	weight, err = manager.WeightGet(scope, account)
	require.NoError(t, err)
	require.Zero(t, weight.Cmp(big.NewInt(5_000)))
}

func TestManagerOfferRecords(t *testing.T) {
	manager := newManager(t)
	offerAddr, account := addr(0xAA), addr(0x10)

	_, ok, err := manager.OfferMetaGet(offerAddr)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, manager.OfferMetaPut(offerAddr, &offer.Meta{TokensDeposited: true, ClaimantCount: 7}))
	meta, ok, err := manager.OfferMetaGet(offerAddr)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, meta.TokensDeposited)
	require.Equal(t, uint64(7), meta.ClaimantCount)

	used, err := manager.OfferUsageGet(offerAddr, account)
	require.NoError(t, err)
	require.Nil(t, used)
	require.NoError(t, manager.OfferUsagePut(offerAddr, account, big.NewInt(125)))
	used, err = manager.OfferUsageGet(offerAddr, account)
	require.NoError(t, err)
	require.Zero(t, used.Cmp(big.NewInt(125)))
}

func TestManagerCycleRecords(t *testing.T) {
	manager := newManager(t)
	cycleAddr, account := addr(0xC1), addr(0x10)

	record := &cycle.OfferRecord{
		ID:          3,
		Address:     addr(0xAA),
		Name:        "sale-3",
		WindowStart: 100,
		WindowEnd:   200,
		Accepted:    []payments.CurrencyID{payments.CurrencyFromAddress(addr(0xCC))},
	}
	require.NoError(t, manager.CycleOfferPut(cycleAddr, 3, record))
	got, ok, err := manager.CycleOfferGet(cycleAddr, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Name, got.Name)
	require.Equal(t, record.Address, got.Address)
	require.Len(t, got.Accepted, 1)
	require.Equal(t, record.Accepted[0], got.Accepted[0])

	// Amounts round-trip as decimal strings, so arbitrarily large values
	// survive.
	huge, _ := new(big.Int).SetString("60096153846153846153000000000", 10)
	require.NoError(t, manager.TotalClaimedPut(cycleAddr, account, huge))
	claimed, err := manager.TotalClaimedGet(cycleAddr, account)
	require.NoError(t, err)
	require.Zero(t, claimed.Cmp(huge))
}
