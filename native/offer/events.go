package offer

import (
	"math/big"

	"crcmarket/core/types"
)

const (
	// EventTypeDeposited is emitted when the deposit latch flips.
	EventTypeDeposited = "offer.deposited"
	// EventTypeClaimed is emitted for every settled claim.
	EventTypeClaimed = "offer.claimed"
	// EventTypeWithdrawn is emitted when the residual is drained.
	EventTypeWithdrawn = "offer.withdrawn"
)

type offerEvent struct {
	evt *types.Event
}

func (e offerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e offerEvent) Event() *types.Event { return e.evt }

func wrapEvent(evt *types.Event) offerEvent { return offerEvent{evt: evt} }

// NewDepositedEvent returns the canonical payload for a completed deposit.
func NewDepositedEvent(offer types.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeDeposited, Attributes: map[string]string{
		"offer":  offer.Hex(),
		"amount": amount.String(),
	}}
}

// NewClaimedEvent returns the canonical payload for a settled claim.
func NewClaimedEvent(offer, account types.Address, spend, payout *big.Int) *types.Event {
	return &types.Event{Type: EventTypeClaimed, Attributes: map[string]string{
		"offer":   offer.Hex(),
		"account": account.Hex(),
		"spend":   spend.String(),
		"payout":  payout.String(),
	}}
}

// NewWithdrawnEvent returns the canonical payload for a residual withdrawal.
func NewWithdrawnEvent(offer types.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeWithdrawn, Attributes: map[string]string{
		"offer":  offer.Hex(),
		"amount": amount.String(),
	}}
}
