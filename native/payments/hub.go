package payments

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"crcmarket/core/types"
)

var (
	errInvalidAmount       = errors.New("payments hub: amount must be non-negative")
	errOperatorMismatch    = errors.New("payments hub: operator may only move its own balance")
	errInsufficientBalance = errors.New("payments hub: insufficient currency balance")
	errLengthMismatch      = errors.New("payments hub: currencies and amounts length mismatch")
	errAckMismatch         = errors.New("payments hub: receiver acknowledgement mismatch")
)

// Hub is a synchronous in-memory payment transport. Balance moves apply
// before the receiver callback runs; when the callback errors or returns
// the wrong acknowledgement, the hub unwinds the moves it made so the
// failed transfer leaves no trace. Nested transfers issued from inside a
// callback settle (or unwind) before the callback returns, preserving the
// call-and-return nesting the return-leg bookkeeping depends on.
type Hub struct {
	mu        sync.Mutex
	balances  map[CurrencyID]map[types.Address]*big.Int
	receivers map[types.Address]Receiver
}

// NewHub creates an empty transport hub.
func NewHub() *Hub {
	return &Hub{
		balances:  make(map[CurrencyID]map[types.Address]*big.Int),
		receivers: make(map[types.Address]Receiver),
	}
}

// RegisterReceiver attaches a payment callback to a contract address.
// Transfers to addresses without a receiver settle without a callback.
func (h *Hub) RegisterReceiver(addr types.Address, receiver Receiver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if receiver == nil {
		delete(h.receivers, addr)
		return
	}
	h.receivers[addr] = receiver
}

// Mint credits freshly issued CRC of the given currency. Test and genesis
// helper.
func (h *Hub) Mint(currency CurrencyID, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.credit(currency, to, amount)
	return nil
}

// BalanceOf returns the holder's balance in the given currency.
func (h *Hub) BalanceOf(currency CurrencyID, account types.Address) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if holders, ok := h.balances[currency]; ok {
		if bal, ok := holders[account]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return big.NewInt(0)
}

// TotalBalance sums the holder's balances across all currencies. The cycle
// soft-lock compares lifetime claims against it.
func (h *Hub) TotalBalance(account types.Address) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := big.NewInt(0)
	for _, holders := range h.balances {
		if bal, ok := holders[account]; ok {
			total.Add(total, bal)
		}
	}
	return total
}

// TransferOne implements the Transport interface.
func (h *Hub) TransferOne(operator, from, to types.Address, currency CurrencyID, amount *big.Int, data []byte) error {
	return h.transfer(operator, from, to, []CurrencyID{currency}, []*big.Int{amount}, data, false)
}

// TransferBatch implements the Transport interface. All legs move before
// the single batched callback fires; a failure unwinds every leg.
func (h *Hub) TransferBatch(operator, from, to types.Address, currencies []CurrencyID, amounts []*big.Int, data []byte) error {
	return h.transfer(operator, from, to, currencies, amounts, data, true)
}

func (h *Hub) transfer(operator, from, to types.Address, currencies []CurrencyID, amounts []*big.Int, data []byte, batch bool) error {
	if operator != from {
		return errOperatorMismatch
	}
	if len(currencies) != len(amounts) {
		return errLengthMismatch
	}
	for _, amount := range amounts {
		if amount == nil || amount.Sign() < 0 {
			return errInvalidAmount
		}
	}
	if err := h.moveAll(from, to, currencies, amounts); err != nil {
		return err
	}
	receiver := h.receiverFor(to)
	if receiver == nil {
		return nil
	}
	ack, err := h.invoke(receiver, operator, from, to, currencies, amounts, data, batch)
	if err != nil {
		h.mustMoveAll(to, from, currencies, amounts)
		return err
	}
	want := AckReceived
	if batch {
		want = AckBatchReceived
	}
	if ack != want {
		h.mustMoveAll(to, from, currencies, amounts)
		return errAckMismatch
	}
	return nil
}

func (h *Hub) invoke(receiver Receiver, operator, from, to types.Address, currencies []CurrencyID, amounts []*big.Int, data []byte, batch bool) ([4]byte, error) {
	if batch {
		return receiver.OnCRCBatchReceived(operator, from, currencies, amounts, data)
	}
	return receiver.OnCRCReceived(operator, from, currencies[0], amounts[0], data)
}

func (h *Hub) receiverFor(addr types.Address) Receiver {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.receivers[addr]
}

func (h *Hub) moveAll(from, to types.Address, currencies []CurrencyID, amounts []*big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, currency := range currencies {
		if err := h.move(currency, from, to, amounts[i]); err != nil {
			for j := i - 1; j >= 0; j-- {
				if undoErr := h.move(currencies[j], to, from, amounts[j]); undoErr != nil {
					panic(fmt.Sprintf("payments hub: unwind failed: %v", undoErr))
				}
			}
			return err
		}
	}
	return nil
}

// mustMoveAll reverses settled legs after a failed callback. The funds are
// known to sit with the receiver, so a failure here indicates corrupted
// hub state.
func (h *Hub) mustMoveAll(from, to types.Address, currencies []CurrencyID, amounts []*big.Int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, currency := range currencies {
		if err := h.move(currency, from, to, amounts[i]); err != nil {
			panic(fmt.Sprintf("payments hub: unwind failed: %v", err))
		}
	}
}

func (h *Hub) move(currency CurrencyID, from, to types.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	holders := h.balances[currency]
	bal, ok := holders[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: currency %s account %s", errInsufficientBalance, currency.Hex(), from.Hex())
	}
	holders[from] = new(big.Int).Sub(bal, amount)
	h.credit(currency, to, amount)
	return nil
}

func (h *Hub) credit(currency CurrencyID, to types.Address, amount *big.Int) {
	holders, ok := h.balances[currency]
	if !ok {
		holders = make(map[types.Address]*big.Int)
		h.balances[currency] = holders
	}
	if bal, ok := holders[to]; ok {
		holders[to] = new(big.Int).Add(bal, amount)
		return
	}
	holders[to] = new(big.Int).Set(amount)
}
