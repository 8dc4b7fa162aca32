package offer

import (
	"fmt"
	"math/big"
	"time"

	"crcmarket/core/events"
	"crcmarket/core/types"
	"crcmarket/native/payments"
)

// State is the persistence surface the offer engine needs. All records are
// keyed by the offer's own address.
type State interface {
	OfferMetaGet(offer types.Address) (*Meta, bool, error)
	OfferMetaPut(offer types.Address, meta *Meta) error
	OfferUsageGet(offer, account types.Address) (*big.Int, error)
	OfferUsagePut(offer, account types.Address, used *big.Int) error
}

// Engine is the single-window sale state machine. It owns the
// deposit/claim/withdraw lifecycle for one offer, computing limits from the
// shared weight ledger and settling claims through the payment transport.
// All mutable state lives behind the injected state backend, keyed by the
// offer's own address.
type Engine struct {
	cfg      Config
	accepted map[payments.CurrencyID]struct{}
	state    State
	emitter  events.Emitter
	nowFn    func() int64
}

// New validates the immutable configuration and returns the offer engine.
// A zero-valued required parameter fails here, never leaving a
// half-configured offer reachable.
func New(cfg Config, state State) (*Engine, error) {
	if state == nil {
		return nil, errNilState
	}
	if cfg.Address.IsZero() {
		return nil, errConfigAddress
	}
	if cfg.Owner.IsZero() {
		return nil, errConfigOwner
	}
	if cfg.Token == nil {
		return nil, errConfigToken
	}
	if cfg.Price == nil || cfg.Price.Sign() <= 0 {
		return nil, errConfigPrice
	}
	if cfg.BaseLimit == nil || cfg.BaseLimit.Sign() <= 0 {
		return nil, errConfigBaseLimit
	}
	if cfg.WindowEnd <= cfg.WindowStart {
		return nil, errConfigWindow
	}
	if cfg.Ledger == nil {
		return nil, errConfigLedger
	}
	if cfg.CreatedByCycle && cfg.Transport == nil {
		return nil, errConfigTransport
	}
	accepted := make(map[payments.CurrencyID]struct{}, len(cfg.Accepted))
	for _, currency := range cfg.Accepted {
		accepted[currency] = struct{}{}
	}
	return &Engine{
		cfg:      cfg,
		accepted: accepted,
		state:    state,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Address returns the offer's identity.
func (e *Engine) Address() types.Address { return e.cfg.Address }

// Owner returns the funding identity.
func (e *Engine) Owner() types.Address { return e.cfg.Owner }

// Window returns the inclusive claim window bounds.
func (e *Engine) Window() (int64, int64) { return e.cfg.WindowStart, e.cfg.WindowEnd }

// CreatedByCycle reports whether the offer was spawned through a cycle.
func (e *Engine) CreatedByCycle() bool { return e.cfg.CreatedByCycle }

// AcceptedCurrencies returns the configured currency list.
func (e *Engine) AcceptedCurrencies() []payments.CurrencyID {
	out := make([]payments.CurrencyID, len(e.cfg.Accepted))
	copy(out, e.cfg.Accepted)
	return out
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) meta() (*Meta, error) {
	record, ok, err := e.state.OfferMetaGet(e.cfg.Address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Meta{}, nil
	}
	return record, nil
}

// TokensDeposited reports whether the deposit latch has flipped.
func (e *Engine) TokensDeposited() (bool, error) {
	record, err := e.meta()
	if err != nil {
		return false, err
	}
	return record.TokensDeposited, nil
}

// ClaimantCount returns the number of distinct accounts with nonzero usage.
func (e *Engine) ClaimantCount() (uint64, error) {
	record, err := e.meta()
	if err != nil {
		return 0, err
	}
	return record.ClaimantCount, nil
}

// Status derives the lifecycle position from the deposit latch and clock.
func (e *Engine) Status() (Status, error) {
	record, err := e.meta()
	if err != nil {
		return StatusUninitialized, err
	}
	if !record.TokensDeposited {
		return StatusUninitialized, nil
	}
	now := e.now()
	switch {
	case now < e.cfg.WindowStart:
		return StatusPending, nil
	case now > e.cfg.WindowEnd:
		return StatusEnded, nil
	default:
		return StatusActive, nil
	}
}

// Usage returns the cumulative CRC spent by account on this offer.
func (e *Engine) Usage(account types.Address) (*big.Int, error) {
	used, err := e.state.OfferUsageGet(e.cfg.Address, account)
	if err != nil {
		return nil, err
	}
	if used == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(used), nil
}

// AccountLimit computes baseLimit × weight / scale with truncating
// division. A zero weight yields a zero limit.
func (e *Engine) AccountLimit(account types.Address) (*big.Int, error) {
	weight, err := e.cfg.Ledger.WeightOf(e.cfg.Address, account)
	if err != nil {
		return nil, err
	}
	limit := new(big.Int).Mul(e.cfg.BaseLimit, weight)
	return limit.Quo(limit, e.cfg.Ledger.Scale()), nil
}

// RequiredTokenAmount computes the exact token inventory backing a full
// payout: baseLimit × totalWeight × 10^decimals / (scale × price). The
// value is read live from the ledger, so it tracks weight changes until the
// deposit freezes the scope.
func (e *Engine) RequiredTokenAmount() (*big.Int, error) {
	totalWeight, err := e.cfg.Ledger.TotalWeight(e.cfg.Address)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Mul(e.cfg.BaseLimit, totalWeight)
	required.Mul(required, pow10(e.cfg.Token.Decimals()))
	divisor := new(big.Int).Mul(e.cfg.Ledger.Scale(), e.cfg.Price)
	return required.Quo(required, divisor), nil
}

// Deposit freezes the weight scope and pulls the exact required token
// amount from the owner. The finalize happens before the pull so demand is
// locked before supply is measured against it. The deposit latch flips
// exactly once.
func (e *Engine) Deposit(caller types.Address) (*big.Int, error) {
	if caller != e.cfg.Owner {
		return nil, errUnauthorized
	}
	record, err := e.meta()
	if err != nil {
		return nil, err
	}
	if record.TokensDeposited {
		return nil, errAlreadyDeposited
	}
	if err := e.cfg.Ledger.Finalize(e.cfg.Address); err != nil {
		return nil, err
	}
	required, err := e.RequiredTokenAmount()
	if err != nil {
		return nil, err
	}
	if err := e.cfg.Token.TransferFrom(e.cfg.Address, e.cfg.Owner, e.cfg.Address, required); err != nil {
		return nil, fmt.Errorf("offer engine: pull deposit: %w", err)
	}
	record.TokensDeposited = true
	if err := e.state.OfferMetaPut(e.cfg.Address, record); err != nil {
		return nil, err
	}
	e.emit(NewDepositedEvent(e.cfg.Address, required))
	return required, nil
}

// WithdrawResidual transfers the remaining token balance to the owner once
// the window has ended. Repeat calls succeed and move nothing.
func (e *Engine) WithdrawResidual(caller types.Address) (*big.Int, error) {
	if caller != e.cfg.Owner {
		return nil, errUnauthorized
	}
	if e.now() <= e.cfg.WindowEnd {
		return nil, errWindowStillOpen
	}
	residual := e.cfg.Token.BalanceOf(e.cfg.Address)
	if residual.Sign() > 0 {
		if err := e.cfg.Token.Transfer(e.cfg.Address, e.cfg.Owner, residual); err != nil {
			return nil, fmt.Errorf("offer engine: withdraw residual: %w", err)
		}
	}
	e.emit(NewWithdrawnEvent(e.cfg.Address, residual))
	return residual, nil
}

// OnCRCReceived is the single-currency claim entry point, invoked by the
// payment transport while the inbound transfer is settling.
func (e *Engine) OnCRCReceived(operator, from types.Address, currency payments.CurrencyID, amount *big.Int, data []byte) ([4]byte, error) {
	var ack [4]byte
	if _, ok := e.accepted[currency]; !ok {
		return ack, fmt.Errorf("%w: %s", errCurrencyRejected, currency.Hex())
	}
	beneficiary, err := e.resolveBeneficiary(from, data)
	if err != nil {
		return ack, err
	}
	payout, err := e.claim(beneficiary, amount)
	if err != nil {
		return ack, err
	}
	if e.cfg.CreatedByCycle {
		memo, err := payments.EncodeReceiptMemo(payments.ReceiptMemo{
			Beneficiary: beneficiary,
			TokenAmount: payout,
			SpentAmount: amount,
		})
		if err != nil {
			return ack, err
		}
		if err := e.cfg.Transport.TransferOne(e.cfg.Address, e.cfg.Address, e.cfg.Owner, currency, amount, memo); err != nil {
			return ack, fmt.Errorf("offer engine: forward return leg: %w", err)
		}
	}
	return payments.AckReceived, nil
}

// OnCRCBatchReceived is the batched claim entry point. Every presented
// currency must be accepted before any arithmetic happens; an unrecognized
// identifier fails the whole call.
func (e *Engine) OnCRCBatchReceived(operator, from types.Address, currencies []payments.CurrencyID, amounts []*big.Int, data []byte) ([4]byte, error) {
	var ack [4]byte
	if len(currencies) != len(amounts) {
		return ack, errBatchLength
	}
	for _, currency := range currencies {
		if _, ok := e.accepted[currency]; !ok {
			return ack, fmt.Errorf("%w: %s", errCurrencyRejected, currency.Hex())
		}
	}
	total := big.NewInt(0)
	for _, amount := range amounts {
		if amount == nil || amount.Sign() < 0 {
			return ack, errNegativeSpend
		}
		total.Add(total, amount)
	}
	beneficiary, err := e.resolveBeneficiary(from, data)
	if err != nil {
		return ack, err
	}
	payout, err := e.claim(beneficiary, total)
	if err != nil {
		return ack, err
	}
	if e.cfg.CreatedByCycle {
		memo, err := payments.EncodeReceiptMemo(payments.ReceiptMemo{
			Beneficiary: beneficiary,
			TokenAmount: payout,
			SpentAmount: total,
		})
		if err != nil {
			return ack, err
		}
		if err := e.cfg.Transport.TransferBatch(e.cfg.Address, e.cfg.Address, e.cfg.Owner, currencies, amounts, memo); err != nil {
			return ack, fmt.Errorf("offer engine: forward return leg: %w", err)
		}
	}
	return payments.AckBatchReceived, nil
}

// resolveBeneficiary maps the payment sender to the claiming account. A
// standalone offer treats the payer as the beneficiary; a cycle-spawned
// offer only accepts payments relayed by its owning cycle, which encodes
// the original sender in the memo.
func (e *Engine) resolveBeneficiary(from types.Address, data []byte) (types.Address, error) {
	if !e.cfg.CreatedByCycle {
		return from, nil
	}
	if from != e.cfg.Owner {
		return types.Address{}, errUnexpectedPayer
	}
	memo, err := payments.DecodeClaimMemo(data)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", errMemoRequired, err)
	}
	return memo.Beneficiary, nil
}

// claim applies one spend against the account's limit and pays out tokens.
// All guards run before any state changes; under the supply-conservation
// invariant the payout transfer cannot fail once the guards pass.
func (e *Engine) claim(account types.Address, spend *big.Int) (*big.Int, error) {
	if spend == nil || spend.Sign() < 0 {
		return nil, errNegativeSpend
	}
	record, err := e.meta()
	if err != nil {
		return nil, err
	}
	if !record.TokensDeposited {
		return nil, errNotFunded
	}
	now := e.now()
	if now < e.cfg.WindowStart || now > e.cfg.WindowEnd {
		return nil, errWindowClosed
	}
	limit, err := e.AccountLimit(account)
	if err != nil {
		return nil, err
	}
	if limit.Sign() == 0 {
		return nil, fmt.Errorf("%w: account %s", errIneligible, account.Hex())
	}
	used, err := e.Usage(account)
	if err != nil {
		return nil, err
	}
	available := new(big.Int).Sub(limit, used)
	if available.Cmp(spend) < 0 {
		return nil, fmt.Errorf("%w: requested %s, available %s", errExceedsLimitDetail, spend, available)
	}
	if spend.Sign() == 0 {
		return big.NewInt(0), nil
	}
	firstClaim := used.Sign() == 0
	used.Add(used, spend)
	if err := e.state.OfferUsagePut(e.cfg.Address, account, used); err != nil {
		return nil, err
	}
	if firstClaim {
		record.ClaimantCount++
		if err := e.state.OfferMetaPut(e.cfg.Address, record); err != nil {
			return nil, err
		}
	}
	payout := new(big.Int).Mul(spend, pow10(e.cfg.Token.Decimals()))
	payout.Quo(payout, e.cfg.Price)
	if payout.Sign() > 0 {
		if err := e.cfg.Token.Transfer(e.cfg.Address, account, payout); err != nil {
			return nil, fmt.Errorf("offer engine: payout: %w", err)
		}
	}
	e.emit(NewClaimedEvent(e.cfg.Address, account, spend, payout))
	return payout, nil
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(wrapEvent(evt))
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
