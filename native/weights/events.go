package weights

import (
	"strconv"

	"crcmarket/core/types"
)

const (
	// EventTypeWeightsUpdated is emitted after a successful weight batch.
	EventTypeWeightsUpdated = "weights.updated"
	// EventTypeScopeFinalized is emitted when a scope is frozen.
	EventTypeScopeFinalized = "weights.finalized"
)

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

func wrapEvent(evt *types.Event) ledgerEvent { return ledgerEvent{evt: evt} }

func scopeAttributes(scope types.Address, record *Scope) map[string]string {
	attrs := map[string]string{
		"scope":         scope.Hex(),
		"totalAccounts": strconv.FormatUint(record.TotalAccounts, 10),
	}
	if record.TotalWeight != nil {
		attrs["totalWeight"] = record.TotalWeight.String()
	}
	return attrs
}

// NewWeightsUpdatedEvent returns the canonical payload for a weight batch.
func NewWeightsUpdatedEvent(scope types.Address, batchSize int, record *Scope) *types.Event {
	attrs := scopeAttributes(scope, record)
	attrs["batchSize"] = strconv.Itoa(batchSize)
	return &types.Event{Type: EventTypeWeightsUpdated, Attributes: attrs}
}

// NewScopeFinalizedEvent returns the canonical payload for a scope freeze.
func NewScopeFinalizedEvent(scope types.Address, record *Scope) *types.Event {
	return &types.Event{Type: EventTypeScopeFinalized, Attributes: scopeAttributes(scope, record)}
}
