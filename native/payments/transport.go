package payments

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crcmarket/core/types"
)

// CurrencyID identifies one CRC credit currency by its issuer address.
type CurrencyID [20]byte

// CurrencyFromAddress derives the currency identifier for an issuer.
func CurrencyFromAddress(addr types.Address) CurrencyID {
	return CurrencyID(addr)
}

// Issuer returns the issuing account behind the currency.
func (c CurrencyID) Issuer() types.Address {
	return types.Address(c)
}

// Hex returns the lowercase hex rendering used in events and logs.
func (c CurrencyID) Hex() string {
	return hex.EncodeToString(c[:])
}

// MarshalText renders the currency id as hex for JSON payloads.
func (c CurrencyID) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText parses a hex currency id.
func (c *CurrencyID) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("payments: decode currency id: %w", err)
	}
	if len(raw) != len(c) {
		return fmt.Errorf("payments: currency id must be %d bytes, got %d", len(c), len(raw))
	}
	copy(c[:], raw)
	return nil
}

// Acknowledgement values the transport expects back from receiver
// callbacks. A callback that returns anything else, or an error, aborts the
// whole transfer.
var (
	AckReceived      = selector("onCRCReceived(address,address,address,uint256,bytes)")
	AckBatchReceived = selector("onCRCBatchReceived(address,address,address[],uint256[],bytes)")
)

func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

// Receiver is implemented by contracts that accept CRC payments. The
// callback runs synchronously inside the transfer call; its return value
// must match the fixed acknowledgement for the transfer to settle.
type Receiver interface {
	OnCRCReceived(operator, from types.Address, currency CurrencyID, amount *big.Int, data []byte) ([4]byte, error)
	OnCRCBatchReceived(operator, from types.Address, currencies []CurrencyID, amounts []*big.Int, data []byte) ([4]byte, error)
}

// ReceiverRegistry attaches payment callbacks to contract addresses. The
// factory registers every offer and cycle it creates; registration is what
// restricts the callback entry points to the transport.
type ReceiverRegistry interface {
	RegisterReceiver(addr types.Address, receiver Receiver)
}

// Transport delivers CRC payments with attached opaque data. The operator
// argument carries the identity of the invoking account.
type Transport interface {
	TransferOne(operator, from, to types.Address, currency CurrencyID, amount *big.Int, data []byte) error
	TransferBatch(operator, from, to types.Address, currencies []CurrencyID, amounts []*big.Int, data []byte) error
}

// ClaimMemo carries the original sender's identity when a cycle relays an
// inbound claim to its current offer.
type ClaimMemo struct {
	Beneficiary types.Address `json:"beneficiary"`
}

// ReceiptMemo rides the return leg from an offer back to its cycle,
// reporting the settled claim.
type ReceiptMemo struct {
	Beneficiary types.Address `json:"beneficiary"`
	TokenAmount *big.Int      `json:"tokenAmount"`
	SpentAmount *big.Int      `json:"spentAmount"`
}

var errEmptyMemo = errors.New("payments: empty memo")

// EncodeClaimMemo serializes the relay memo.
func EncodeClaimMemo(memo ClaimMemo) ([]byte, error) {
	return json.Marshal(memo)
}

// DecodeClaimMemo parses a relay memo.
func DecodeClaimMemo(data []byte) (ClaimMemo, error) {
	var memo ClaimMemo
	if len(data) == 0 {
		return memo, errEmptyMemo
	}
	if err := json.Unmarshal(data, &memo); err != nil {
		return memo, fmt.Errorf("payments: decode claim memo: %w", err)
	}
	if memo.Beneficiary.IsZero() {
		return memo, errors.New("payments: claim memo beneficiary required")
	}
	return memo, nil
}

// EncodeReceiptMemo serializes the return-leg memo.
func EncodeReceiptMemo(memo ReceiptMemo) ([]byte, error) {
	if memo.TokenAmount == nil {
		memo.TokenAmount = big.NewInt(0)
	}
	if memo.SpentAmount == nil {
		memo.SpentAmount = big.NewInt(0)
	}
	return json.Marshal(memo)
}

// DecodeReceiptMemo parses a return-leg memo.
func DecodeReceiptMemo(data []byte) (ReceiptMemo, error) {
	var memo ReceiptMemo
	if len(data) == 0 {
		return memo, errEmptyMemo
	}
	if err := json.Unmarshal(data, &memo); err != nil {
		return memo, fmt.Errorf("payments: decode receipt memo: %w", err)
	}
	if memo.Beneficiary.IsZero() {
		return memo, errors.New("payments: receipt memo beneficiary required")
	}
	if memo.TokenAmount == nil {
		memo.TokenAmount = big.NewInt(0)
	}
	if memo.SpentAmount == nil {
		memo.SpentAmount = big.NewInt(0)
	}
	return memo, nil
}
