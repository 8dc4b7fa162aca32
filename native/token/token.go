package token

import (
	"math/big"

	"crcmarket/core/types"
)

// Token is the fungible-token surface the sale engines depend on. All
// transfer-style calls fail loudly on insufficient balance or allowance
// instead of returning false. The caller argument carries the identity of
// the invoking account or contract.
type Token interface {
	TransferFrom(caller, from, to types.Address, amount *big.Int) error
	Transfer(caller, to types.Address, amount *big.Int) error
	Approve(caller, spender types.Address, amount *big.Int) error
	BalanceOf(account types.Address) *big.Int
	Decimals() uint8
}
