package payments

import (
	"errors"
	"math/big"
	"testing"

	"crcmarket/core/types"
)

func addr(fill byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

type scriptedReceiver struct {
	onOne   func(operator, from types.Address, currency CurrencyID, amount *big.Int, data []byte) ([4]byte, error)
	onBatch func(operator, from types.Address, currencies []CurrencyID, amounts []*big.Int, data []byte) ([4]byte, error)
}

func (r *scriptedReceiver) OnCRCReceived(operator, from types.Address, currency CurrencyID, amount *big.Int, data []byte) ([4]byte, error) {
	if r.onOne == nil {
		return AckReceived, nil
	}
	return r.onOne(operator, from, currency, amount, data)
}

func (r *scriptedReceiver) OnCRCBatchReceived(operator, from types.Address, currencies []CurrencyID, amounts []*big.Int, data []byte) ([4]byte, error) {
	if r.onBatch == nil {
		return AckBatchReceived, nil
	}
	return r.onBatch(operator, from, currencies, amounts, data)
}

func TestHubTransferSettlesBeforeCallback(t *testing.T) {
	hub := NewHub()
	currency := CurrencyFromAddress(addr(0xCC))
	sender, contract := addr(0x01), addr(0x02)
	if err := hub.Mint(currency, sender, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	var seenDuringCallback *big.Int
	hub.RegisterReceiver(contract, &scriptedReceiver{
		onOne: func(_, _ types.Address, c CurrencyID, amount *big.Int, _ []byte) ([4]byte, error) {
			seenDuringCallback = hub.BalanceOf(c, contract)
			return AckReceived, nil
		},
	})
	if err := hub.TransferOne(sender, sender, contract, currency, big.NewInt(40), nil); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if seenDuringCallback == nil || seenDuringCallback.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("callback saw balance %v, want 40", seenDuringCallback)
	}
	if got := hub.BalanceOf(currency, sender); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("sender balance %s", got)
	}
}

func TestHubUnwindsOnCallbackFailure(t *testing.T) {
	hub := NewHub()
	currency := CurrencyFromAddress(addr(0xCC))
	sender, contract := addr(0x01), addr(0x02)
	if err := hub.Mint(currency, sender, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	boom := errors.New("rejected")
	hub.RegisterReceiver(contract, &scriptedReceiver{
		onOne: func(_, _ types.Address, _ CurrencyID, _ *big.Int, _ []byte) ([4]byte, error) {
			return [4]byte{}, boom
		},
	})
	if err := hub.TransferOne(sender, sender, contract, currency, big.NewInt(40), nil); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if got := hub.BalanceOf(currency, sender); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("sender balance after unwind %s, want 100", got)
	}
	if got := hub.BalanceOf(currency, contract); got.Sign() != 0 {
		t.Fatalf("contract balance after unwind %s, want 0", got)
	}

	// A wrong acknowledgement unwinds just like an error.
	hub.RegisterReceiver(contract, &scriptedReceiver{
		onOne: func(_, _ types.Address, _ CurrencyID, _ *big.Int, _ []byte) ([4]byte, error) {
			return [4]byte{0xde, 0xad, 0xbe, 0xef}, nil
		},
	})
	if err := hub.TransferOne(sender, sender, contract, currency, big.NewInt(40), nil); !errors.Is(err, errAckMismatch) {
		t.Fatalf("expected ack mismatch, got %v", err)
	}
	if got := hub.BalanceOf(currency, sender); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("sender balance after ack unwind %s, want 100", got)
	}
}

func TestHubBatchAllOrNothing(t *testing.T) {
	hub := NewHub()
	good := CurrencyFromAddress(addr(0xC1))
	short := CurrencyFromAddress(addr(0xC2))
	sender, contract := addr(0x01), addr(0x02)
	if err := hub.Mint(good, sender, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Second currency has no balance, so the second leg fails after the
	// first already moved.
	err := hub.TransferBatch(sender, sender, contract,
		[]CurrencyID{good, short},
		[]*big.Int{big.NewInt(50), big.NewInt(1)}, nil)
	if !errors.Is(err, errInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := hub.BalanceOf(good, sender); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("first leg not unwound, sender has %s", got)
	}
}

func TestHubOperatorMustBeSender(t *testing.T) {
	hub := NewHub()
	currency := CurrencyFromAddress(addr(0xCC))
	if err := hub.TransferOne(addr(0x01), addr(0x02), addr(0x03), currency, big.NewInt(1), nil); !errors.Is(err, errOperatorMismatch) {
		t.Fatalf("expected operator mismatch, got %v", err)
	}
}

func TestHubNestedTransferInsideCallback(t *testing.T) {
	hub := NewHub()
	currency := CurrencyFromAddress(addr(0xCC))
	sender, relay, final := addr(0x01), addr(0x02), addr(0x03)
	if err := hub.Mint(currency, sender, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// The relay forwards the full amount onward before acknowledging, the
	// same shape as a cycle relaying to its current offer.
	hub.RegisterReceiver(relay, &scriptedReceiver{
		onOne: func(_, _ types.Address, c CurrencyID, amount *big.Int, data []byte) ([4]byte, error) {
			if err := hub.TransferOne(relay, relay, final, c, amount, data); err != nil {
				return [4]byte{}, err
			}
			return AckReceived, nil
		},
	})
	if err := hub.TransferOne(sender, sender, relay, currency, big.NewInt(70), nil); err != nil {
		t.Fatalf("relayed transfer: %v", err)
	}
	if got := hub.BalanceOf(currency, final); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("final balance %s, want 70", got)
	}
	if got := hub.BalanceOf(currency, relay); got.Sign() != 0 {
		t.Fatalf("relay retained %s", got)
	}
	if got := hub.TotalBalance(sender); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("sender total %s, want 30", got)
	}
}

func TestMemoRoundTrip(t *testing.T) {
	claim, err := EncodeClaimMemo(ClaimMemo{Beneficiary: addr(0x07)})
	if err != nil {
		t.Fatalf("encode claim memo: %v", err)
	}
	decoded, err := DecodeClaimMemo(claim)
	if err != nil {
		t.Fatalf("decode claim memo: %v", err)
	}
	if decoded.Beneficiary != addr(0x07) {
		t.Fatalf("beneficiary mismatch: %v", decoded.Beneficiary)
	}
	if _, err := DecodeClaimMemo(nil); !errors.Is(err, errEmptyMemo) {
		t.Fatalf("expected empty memo error, got %v", err)
	}

	receipt, err := EncodeReceiptMemo(ReceiptMemo{
		Beneficiary: addr(0x07),
		TokenAmount: big.NewInt(12),
		SpentAmount: big.NewInt(34),
	})
	if err != nil {
		t.Fatalf("encode receipt memo: %v", err)
	}
	got, err := DecodeReceiptMemo(receipt)
	if err != nil {
		t.Fatalf("decode receipt memo: %v", err)
	}
	if got.TokenAmount.Cmp(big.NewInt(12)) != 0 || got.SpentAmount.Cmp(big.NewInt(34)) != 0 {
		t.Fatalf("receipt amounts mismatch: %+v", got)
	}
}
