package cycle

import (
	"math/big"

	"crcmarket/core/types"
	"crcmarket/native/offer"
	"crcmarket/native/payments"
	"crcmarket/native/token"
	"crcmarket/native/trust"
	"crcmarket/native/weights"
)

// OfferSpec carries the per-slot parameters the admin chooses when creating
// the next offer.
type OfferSpec struct {
	Price       *big.Int
	BaseLimit   *big.Int
	WindowStart int64
	WindowEnd   int64
	Accepted    []payments.CurrencyID
}

// OfferConstructor builds offers on behalf of a cycle. The factory
// implements it and marks offers created by registered cycles.
type OfferConstructor interface {
	CreateOffer(caller types.Address, spec OfferSpec) (*offer.Engine, error)
}

// OfferRecord is the persisted bookkeeping for one slot.
type OfferRecord struct {
	ID          uint64                `json:"id"`
	Address     types.Address         `json:"address"`
	Name        string                `json:"name"`
	WindowStart int64                 `json:"windowStart"`
	WindowEnd   int64                 `json:"windowEnd"`
	Accepted    []payments.CurrencyID `json:"accepted"`
}

// Clone returns a deep copy of the record.
func (r *OfferRecord) Clone() *OfferRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Accepted = make([]payments.CurrencyID, len(r.Accepted))
	copy(clone.Accepted, r.Accepted)
	return &clone
}

// Config is the immutable configuration of a cycle.
type Config struct {
	// Address is the cycle's own identity, assigned by the factory.
	Address types.Address
	// Admin controls offer creation, weights and deposits, and receives
	// the forwarded CRC.
	Admin types.Address
	// Token is the fungible token sold across all slots.
	Token token.Token
	// Start is the first window's start time; Duration the contiguous
	// slot length in seconds.
	Start    int64
	Duration int64
	// SoftLock enables the lifetime-claims-versus-balance guard on
	// inbound claims.
	SoftLock bool
	// Ledger is the weight ledger shared by every offer in the cycle.
	Ledger weights.Ledger
	// NamePrefix seeds per-slot offer names ("prefix-3").
	NamePrefix string
	// Transport relays claims to the current offer and forwards CRC to
	// the admin.
	Transport payments.Transport
	// Registry and TrustOrg back the accepted-currency trust refresh.
	Registry *trust.Registry
	TrustOrg types.Address
	// Constructor builds the per-slot offers.
	Constructor OfferConstructor
}
