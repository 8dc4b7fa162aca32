package offer

import "errors"

var (
	errNilState           = errors.New("offer engine: state not configured")
	errConfigAddress      = errors.New("offer engine: offer address required")
	errConfigOwner        = errors.New("offer engine: owner address required")
	errConfigToken        = errors.New("offer engine: token required")
	errConfigPrice        = errors.New("offer engine: price must be positive")
	errConfigBaseLimit    = errors.New("offer engine: base limit must be positive")
	errConfigWindow       = errors.New("offer engine: window duration must be positive")
	errConfigLedger       = errors.New("offer engine: weight ledger required")
	errConfigTransport    = errors.New("offer engine: transport required for cycle offers")
	errUnauthorized       = errors.New("offer engine: caller is not the owner")
	errAlreadyDeposited   = errors.New("offer engine: tokens already deposited")
	errNotFunded          = errors.New("offer engine: tokens not deposited")
	errWindowClosed       = errors.New("offer engine: claim outside sale window")
	errWindowStillOpen    = errors.New("offer engine: sale window not ended")
	errIneligible         = errors.New("offer engine: account has zero weight")
	errCurrencyRejected   = errors.New("offer engine: currency not accepted")
	errUnexpectedPayer    = errors.New("offer engine: cycle offer paid by non-cycle sender")
	errMemoRequired       = errors.New("offer engine: relay memo required")
	errBatchLength        = errors.New("offer engine: currencies and amounts length mismatch")
	errNegativeSpend      = errors.New("offer engine: spend amount must be non-negative")
	errExceedsLimitDetail = errors.New("offer engine: spend exceeds remaining limit")
)

// ErrExceedsLimit reports a claim above the account's remaining limit. The
// wrapped message carries the requested and available amounts.
var ErrExceedsLimit = errExceedsLimitDetail

// ErrIneligible reports a claim by a zero-weight account.
var ErrIneligible = errIneligible

// ErrWindowClosed reports a claim outside the sale window.
var ErrWindowClosed = errWindowClosed

// ErrNotFunded reports a claim before the deposit latch flipped.
var ErrNotFunded = errNotFunded
