package offer

import (
	"math/big"

	"crcmarket/core/types"
	"crcmarket/native/payments"
	"crcmarket/native/token"
	"crcmarket/native/weights"
)

// Config is the immutable configuration of one offer, fixed at creation.
type Config struct {
	// Address is the offer's own identity, assigned by the factory. Weight
	// scoping, token custody and the payment return leg all key off it.
	Address types.Address
	// Owner funds the offer and receives the residual. For cycle-spawned
	// offers this is the cycle itself.
	Owner types.Address
	// Token is the fungible token being sold.
	Token token.Token
	// Price is the CRC amount required per whole token unit, before
	// decimal scaling.
	Price *big.Int
	// BaseLimit is the per-account CRC spend limit at full weight.
	BaseLimit *big.Int
	// WindowStart and WindowEnd bound the claim window. Both endpoints are
	// inclusive.
	WindowStart int64
	WindowEnd   int64
	// Ledger provides per-account weights scoped under Address.
	Ledger weights.Ledger
	// Transport delivers the CRC return leg for cycle-spawned offers.
	Transport payments.Transport
	// Accepted lists the CRC currencies this offer redeems.
	Accepted []payments.CurrencyID
	// CreatedByCycle marks offers spawned through a cycle, which changes
	// the claim-payer identity rules.
	CreatedByCycle bool
}

// Meta is the mutable per-offer record kept in state.
type Meta struct {
	TokensDeposited bool   `json:"tokensDeposited"`
	ClaimantCount   uint64 `json:"claimantCount"`
}

// Clone returns a copy of the record.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// Status describes the derived lifecycle position of an offer.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusPending       Status = "pending"
	StatusActive        Status = "active"
	StatusEnded         Status = "ended"
)
