package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"crcmarket/core/types"
	"crcmarket/native/cycle"
	"crcmarket/native/offer"
	"crcmarket/native/weights"
	"crcmarket/storage"
)

// Manager persists every engine's records in a key-value store with
// JSON-encoded values and prefixed keys. It implements the state interfaces
// of the weights, offer and cycle modules, so one Manager can back a whole
// factory.
type Manager struct {
	db storage.Database
}

// NewManager wraps a database.
func NewManager(db storage.Database) (*Manager, error) {
	if db == nil {
		return nil, errors.New("state manager: database required")
	}
	return &Manager{db: db}, nil
}

func weightScopeKey(scope types.Address) []byte {
	return []byte("weights/scope/" + scope.Hex())
}

func weightKey(scope, account types.Address) []byte {
	return []byte("weights/weight/" + scope.Hex() + "/" + account.Hex())
}

func offerMetaKey(offerAddr types.Address) []byte {
	return []byte("offer/meta/" + offerAddr.Hex())
}

func offerUsageKey(offerAddr, account types.Address) []byte {
	return []byte("offer/usage/" + offerAddr.Hex() + "/" + account.Hex())
}

func cycleOfferKey(cycleAddr types.Address, id uint64) []byte {
	return []byte("cycle/offer/" + cycleAddr.Hex() + "/" + strconv.FormatUint(id, 10))
}

func cycleClaimedKey(cycleAddr, account types.Address) []byte {
	return []byte("cycle/claimed/" + cycleAddr.Hex() + "/" + account.Hex())
}

func (m *Manager) getJSON(key []byte, out any) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state manager: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state manager: encode %s: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func (m *Manager) getBig(key []byte) (*big.Int, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state manager: malformed amount at %s", key)
	}
	return value, nil
}

func (m *Manager) putBig(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	return m.db.Put(key, []byte(value.String()))
}

// WeightScopeGet implements weights.GradedState and weights.BinaryState.
func (m *Manager) WeightScopeGet(scope types.Address) (*weights.Scope, bool, error) {
	record := new(weights.Scope)
	ok, err := m.getJSON(weightScopeKey(scope), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// WeightScopePut implements weights.GradedState and weights.BinaryState.
func (m *Manager) WeightScopePut(scope types.Address, record *weights.Scope) error {
	return m.putJSON(weightScopeKey(scope), record)
}

// WeightGet implements weights.GradedState.
func (m *Manager) WeightGet(scope, account types.Address) (*big.Int, error) {
	return m.getBig(weightKey(scope, account))
}

// WeightPut implements weights.GradedState.
func (m *Manager) WeightPut(scope, account types.Address, weight *big.Int) error {
	return m.putBig(weightKey(scope, account), weight)
}

// OfferMetaGet implements offer.State.
func (m *Manager) OfferMetaGet(offerAddr types.Address) (*offer.Meta, bool, error) {
	record := new(offer.Meta)
	ok, err := m.getJSON(offerMetaKey(offerAddr), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// OfferMetaPut implements offer.State.
func (m *Manager) OfferMetaPut(offerAddr types.Address, meta *offer.Meta) error {
	return m.putJSON(offerMetaKey(offerAddr), meta)
}

// OfferUsageGet implements offer.State.
func (m *Manager) OfferUsageGet(offerAddr, account types.Address) (*big.Int, error) {
	return m.getBig(offerUsageKey(offerAddr, account))
}

// OfferUsagePut implements offer.State.
func (m *Manager) OfferUsagePut(offerAddr, account types.Address, used *big.Int) error {
	return m.putBig(offerUsageKey(offerAddr, account), used)
}

// CycleOfferGet implements cycle.State.
func (m *Manager) CycleOfferGet(cycleAddr types.Address, id uint64) (*cycle.OfferRecord, bool, error) {
	record := new(cycle.OfferRecord)
	ok, err := m.getJSON(cycleOfferKey(cycleAddr, id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// CycleOfferPut implements cycle.State.
func (m *Manager) CycleOfferPut(cycleAddr types.Address, id uint64, record *cycle.OfferRecord) error {
	return m.putJSON(cycleOfferKey(cycleAddr, id), record)
}

// TotalClaimedGet implements cycle.State.
func (m *Manager) TotalClaimedGet(cycleAddr, account types.Address) (*big.Int, error) {
	return m.getBig(cycleClaimedKey(cycleAddr, account))
}

// TotalClaimedPut implements cycle.State.
func (m *Manager) TotalClaimedPut(cycleAddr, account types.Address, amount *big.Int) error {
	return m.putBig(cycleClaimedKey(cycleAddr, account), amount)
}
