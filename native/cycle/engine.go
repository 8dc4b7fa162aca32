package cycle

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"crcmarket/core/events"
	"crcmarket/core/types"
	"crcmarket/native/offer"
	"crcmarket/native/payments"
)

// State is the persistence surface the cycle engine needs. All records are
// keyed by the cycle's own address.
type State interface {
	CycleOfferGet(cycle types.Address, id uint64) (*OfferRecord, bool, error)
	CycleOfferPut(cycle types.Address, id uint64, record *OfferRecord) error
	TotalClaimedGet(cycle, account types.Address) (*big.Int, error)
	TotalClaimedPut(cycle, account types.Address, amount *big.Int) error
}

// Engine chains offers across contiguous time slots, proxies CRC payments
// between end users and the rotating current offer, and keeps the lifetime
// claim ledger backing the soft-lock rule.
type Engine struct {
	cfg     Config
	state   State
	emitter events.Emitter
	nowFn   func() int64

	mu     sync.Mutex
	offers map[uint64]*offer.Engine
}

// New validates the configuration and returns the cycle engine.
func New(cfg Config, state State) (*Engine, error) {
	if state == nil {
		return nil, errNilState
	}
	if cfg.Address.IsZero() {
		return nil, errConfigAddress
	}
	if cfg.Admin.IsZero() {
		return nil, errConfigAdmin
	}
	if cfg.Token == nil {
		return nil, errConfigToken
	}
	if cfg.Duration <= 0 {
		return nil, errConfigDuration
	}
	if cfg.Ledger == nil {
		return nil, errConfigLedger
	}
	if cfg.Transport == nil {
		return nil, errConfigTransport
	}
	if cfg.Constructor == nil {
		return nil, errConfigBuilder
	}
	return &Engine{
		cfg:     cfg,
		state:   state,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		offers:  make(map[uint64]*offer.Engine),
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

// Address returns the cycle's identity.
func (e *Engine) Address() types.Address { return e.cfg.Address }

// Admin returns the controlling identity.
func (e *Engine) Admin() types.Address { return e.cfg.Admin }

func (e *Engine) now() int64 { return e.nowFn() }

// CurrentOfferID derives the active slot from the clock: zero before the
// cycle starts, then one-based contiguous slots of Duration seconds.
func (e *Engine) CurrentOfferID() uint64 {
	now := e.now()
	if now < e.cfg.Start {
		return 0
	}
	return uint64((now-e.cfg.Start)/e.cfg.Duration) + 1
}

// NextOfferID is always the slot after the current one.
func (e *Engine) NextOfferID() uint64 {
	return e.CurrentOfferID() + 1
}

func (e *Engine) offerByID(id uint64) *offer.Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offers[id]
}

// CurrentOffer returns the engine for the active slot, or nil when none was
// created for it.
func (e *Engine) CurrentOffer() *offer.Engine {
	return e.offerByID(e.CurrentOfferID())
}

// OfferRecord returns the persisted bookkeeping for a slot.
func (e *Engine) OfferRecord(id uint64) (*OfferRecord, bool, error) {
	return e.state.CycleOfferGet(e.cfg.Address, id)
}

// TotalClaimed returns the lifetime token receipts of account across all
// offers in the cycle.
func (e *Engine) TotalClaimed(account types.Address) (*big.Int, error) {
	claimed, err := e.state.TotalClaimedGet(e.cfg.Address, account)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(claimed), nil
}

// CreateNextOffer builds the offer for the next slot. Slot windows are
// contiguous: slot n starts at Start + Duration × (n-1). Recreating a next
// offer is allowed until it is funded; a funded slot may not be clobbered.
func (e *Engine) CreateNextOffer(caller types.Address, price, baseLimit *big.Int, accepted []payments.CurrencyID) (*offer.Engine, uint64, error) {
	if caller != e.cfg.Admin {
		return nil, 0, errUnauthorized
	}
	currentID := e.CurrentOfferID()
	nextID := currentID + 1
	if existing := e.offerByID(nextID); existing != nil {
		funded, err := existing.TokensDeposited()
		if err != nil {
			return nil, 0, err
		}
		if funded {
			return nil, 0, errNextOfferFunded
		}
	}
	windowStart := e.cfg.Start + e.cfg.Duration*int64(currentID)
	windowEnd := windowStart + e.cfg.Duration
	created, err := e.cfg.Constructor.CreateOffer(e.cfg.Address, OfferSpec{
		Price:       price,
		BaseLimit:   baseLimit,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Accepted:    accepted,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("cycle engine: create offer: %w", err)
	}
	record := &OfferRecord{
		ID:          nextID,
		Address:     created.Address(),
		Name:        e.offerName(nextID),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Accepted:    append([]payments.CurrencyID(nil), accepted...),
	}
	if err := e.state.CycleOfferPut(e.cfg.Address, nextID, record); err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	e.offers[nextID] = created
	e.mu.Unlock()
	e.emit(NewOfferCreatedEvent(e.cfg.Address, record))
	return created, nextID, nil
}

func (e *Engine) offerName(id uint64) string {
	prefix := strings.TrimSpace(e.cfg.NamePrefix)
	if prefix == "" {
		prefix = "offer"
	}
	return fmt.Sprintf("%s-%d", prefix, id)
}

// SetNextOfferAccountWeights writes weights into the shared ledger scoped
// under the next offer's identity. The scope key is the offer's address,
// not the cycle's, because weight scoping is per offer.
func (e *Engine) SetNextOfferAccountWeights(caller types.Address, accounts []types.Address, weightValues []*big.Int) error {
	if caller != e.cfg.Admin {
		return errUnauthorized
	}
	next := e.offerByID(e.NextOfferID())
	if next == nil {
		return errNextOfferMissing
	}
	return e.cfg.Ledger.SetWeights(caller, next.Address(), accounts, weightValues)
}

// DepositNextOfferTokens funds the next offer with the exact required
// amount. The pull is two-hop: admin to cycle, then an allowance grant so
// the offer's own deposit can pull from the cycle, its configured owner.
func (e *Engine) DepositNextOfferTokens(caller types.Address) (*big.Int, error) {
	if caller != e.cfg.Admin {
		return nil, errUnauthorized
	}
	next := e.offerByID(e.NextOfferID())
	if next == nil {
		return nil, errNextOfferMissing
	}
	required, err := next.RequiredTokenAmount()
	if err != nil {
		return nil, err
	}
	if err := e.cfg.Token.TransferFrom(e.cfg.Address, e.cfg.Admin, e.cfg.Address, required); err != nil {
		return nil, fmt.Errorf("cycle engine: pull deposit from admin: %w", err)
	}
	if err := e.cfg.Token.Approve(e.cfg.Address, next.Address(), required); err != nil {
		return nil, fmt.Errorf("cycle engine: grant offer allowance: %w", err)
	}
	deposited, err := next.Deposit(e.cfg.Address)
	if err != nil {
		return nil, err
	}
	return deposited, nil
}

// SyncOfferTrust refreshes the trust expiry of every accepted currency of
// the current offer to the slot's natural end. The operation carries no
// access restriction; it is pure maintenance.
func (e *Engine) SyncOfferTrust() error {
	if e.cfg.Registry == nil || e.cfg.TrustOrg.IsZero() {
		return errRegistryMissing
	}
	record, ok, err := e.state.CycleOfferGet(e.cfg.Address, e.CurrentOfferID())
	if err != nil {
		return err
	}
	if !ok {
		return errNoCurrentOffer
	}
	for _, currency := range record.Accepted {
		if _, err := e.cfg.Registry.Trust(e.cfg.Address, e.cfg.TrustOrg, currency.Issuer(), record.WindowEnd); err != nil {
			return fmt.Errorf("cycle engine: refresh currency trust: %w", err)
		}
	}
	return nil
}

// OnCRCReceived is the single-currency payment proxy. A payment sent by the
// current offer is the return leg of a claim; anything else is an inbound
// claim attempt to relay.
func (e *Engine) OnCRCReceived(operator, from types.Address, currency payments.CurrencyID, amount *big.Int, data []byte) ([4]byte, error) {
	var ack [4]byte
	current := e.CurrentOffer()
	if current != nil && from == current.Address() {
		if err := e.settleReturnLeg(data, func(memo []byte) error {
			return e.cfg.Transport.TransferOne(e.cfg.Address, e.cfg.Address, e.cfg.Admin, currency, amount, memo)
		}); err != nil {
			return ack, err
		}
		return payments.AckReceived, nil
	}
	if err := e.relayInbound(from, func(memo []byte) error {
		return e.cfg.Transport.TransferOne(e.cfg.Address, e.cfg.Address, current.Address(), currency, amount, memo)
	}, current); err != nil {
		return ack, err
	}
	return payments.AckReceived, nil
}

// OnCRCBatchReceived is the batched payment proxy.
func (e *Engine) OnCRCBatchReceived(operator, from types.Address, currencies []payments.CurrencyID, amounts []*big.Int, data []byte) ([4]byte, error) {
	var ack [4]byte
	current := e.CurrentOffer()
	if current != nil && from == current.Address() {
		if err := e.settleReturnLeg(data, func(memo []byte) error {
			return e.cfg.Transport.TransferBatch(e.cfg.Address, e.cfg.Address, e.cfg.Admin, currencies, amounts, memo)
		}); err != nil {
			return ack, err
		}
		return payments.AckBatchReceived, nil
	}
	if err := e.relayInbound(from, func(memo []byte) error {
		return e.cfg.Transport.TransferBatch(e.cfg.Address, e.cfg.Address, current.Address(), currencies, amounts, memo)
	}, current); err != nil {
		return ack, err
	}
	return payments.AckBatchReceived, nil
}

// settleReturnLeg records the settled claim in the lifetime ledger and
// forwards the CRC to the admin unmodified. It runs inside the offer's
// outbound transfer, so the bookkeeping lands before the enclosing claim
// call returns.
func (e *Engine) settleReturnLeg(data []byte, forward func([]byte) error) error {
	memo, err := payments.DecodeReceiptMemo(data)
	if err != nil {
		return fmt.Errorf("cycle engine: return leg: %w", err)
	}
	claimed, err := e.TotalClaimed(memo.Beneficiary)
	if err != nil {
		return err
	}
	claimed.Add(claimed, memo.TokenAmount)
	if err := e.state.TotalClaimedPut(e.cfg.Address, memo.Beneficiary, claimed); err != nil {
		return err
	}
	e.emit(NewClaimRecordedEvent(e.cfg.Address, memo, claimed))
	return forward(data)
}

// relayInbound applies the soft-lock rule and forwards the payment to the
// current offer with the original sender encoded in the memo.
func (e *Engine) relayInbound(from types.Address, forward func([]byte) error, current *offer.Engine) error {
	if current == nil {
		return errNoCurrentOffer
	}
	if e.cfg.SoftLock {
		claimed, err := e.TotalClaimed(from)
		if err != nil {
			return err
		}
		if claimed.Cmp(e.cfg.Token.BalanceOf(from)) > 0 {
			return fmt.Errorf("%w: account %s", errSoftLocked, from.Hex())
		}
	}
	memo, err := payments.EncodeClaimMemo(payments.ClaimMemo{Beneficiary: from})
	if err != nil {
		return err
	}
	if err := forward(memo); err != nil {
		return fmt.Errorf("cycle engine: relay claim: %w", err)
	}
	return nil
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(wrapEvent(evt))
}
