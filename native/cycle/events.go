package cycle

import (
	"math/big"
	"strconv"

	"crcmarket/core/types"
	"crcmarket/native/payments"
)

const (
	// EventTypeOfferCreated is emitted when a next-offer slot is filled.
	EventTypeOfferCreated = "cycle.offer.created"
	// EventTypeClaimRecorded is emitted on the return leg of a claim.
	EventTypeClaimRecorded = "cycle.claim.recorded"
)

type cycleEvent struct {
	evt *types.Event
}

func (e cycleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e cycleEvent) Event() *types.Event { return e.evt }

func wrapEvent(evt *types.Event) cycleEvent { return cycleEvent{evt: evt} }

// NewOfferCreatedEvent returns the canonical payload for a new slot offer.
func NewOfferCreatedEvent(cycle types.Address, record *OfferRecord) *types.Event {
	return &types.Event{Type: EventTypeOfferCreated, Attributes: map[string]string{
		"cycle":       cycle.Hex(),
		"offerId":     strconv.FormatUint(record.ID, 10),
		"offer":       record.Address.Hex(),
		"name":        record.Name,
		"windowStart": strconv.FormatInt(record.WindowStart, 10),
		"windowEnd":   strconv.FormatInt(record.WindowEnd, 10),
	}}
}

// NewClaimRecordedEvent returns the canonical payload for a recorded claim.
func NewClaimRecordedEvent(cycle types.Address, memo payments.ReceiptMemo, lifetime *big.Int) *types.Event {
	return &types.Event{Type: EventTypeClaimRecorded, Attributes: map[string]string{
		"cycle":       cycle.Hex(),
		"beneficiary": memo.Beneficiary.Hex(),
		"tokenAmount": memo.TokenAmount.String(),
		"spentAmount": memo.SpentAmount.String(),
		"lifetime":    lifetime.String(),
	}}
}
