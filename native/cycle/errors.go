package cycle

import "errors"

var (
	errNilState         = errors.New("cycle engine: state not configured")
	errConfigAddress    = errors.New("cycle engine: cycle address required")
	errConfigAdmin      = errors.New("cycle engine: admin address required")
	errConfigToken      = errors.New("cycle engine: token required")
	errConfigDuration   = errors.New("cycle engine: window duration must be positive")
	errConfigLedger     = errors.New("cycle engine: weight ledger required")
	errConfigTransport  = errors.New("cycle engine: transport required")
	errConfigBuilder    = errors.New("cycle engine: offer constructor required")
	errUnauthorized     = errors.New("cycle engine: caller is not the admin")
	errNextOfferFunded  = errors.New("cycle engine: next offer already funded")
	errNextOfferMissing = errors.New("cycle engine: next offer not created")
	errNoCurrentOffer   = errors.New("cycle engine: no current offer")
	errSoftLocked       = errors.New("cycle engine: lifetime claims exceed current balance")
	errRegistryMissing  = errors.New("cycle engine: trust registry not configured")
)

// ErrSoftLocked reports an inbound claim rejected by the anti-abuse rule.
var ErrSoftLocked = errSoftLocked

// ErrNextOfferFunded reports an attempt to overwrite a funded future slot.
var ErrNextOfferFunded = errNextOfferFunded
