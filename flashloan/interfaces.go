package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/chain"
)

// ERC20 is the token surface lenders and borrowers rely on
type ERC20 interface {
	chain.Contract
	Symbol() string
	Decimals() uint8
	BalanceOf(f *chain.Frame, owner common.Address) (*big.Int, error)
	Allowance(f *chain.Frame, owner, spender common.Address) (*big.Int, error)
	Transfer(f *chain.Frame, to common.Address, amount *big.Int) error
	TransferFrom(f *chain.Frame, from, to common.Address, amount *big.Int) error
	Approve(f *chain.Frame, spender common.Address, amount *big.Int) error
}

// Lender is an ERC-3156 flash lender
type Lender interface {
	chain.Contract
	// MaxFlashLoan is the largest amount of token that can be borrowed now
	MaxFlashLoan(f *chain.Frame, token common.Address) (*big.Int, error)
	// FlashFee is charged on top of amount. Unsupported tokens fail with
	// ErrUnsupportedAsset.
	FlashFee(f *chain.Frame, token common.Address, amount *big.Int) (*big.Int, error)
	// FlashLoan sends amount to receiver, calls its OnFlashLoan and pulls
	// back amount plus fee.
	FlashLoan(f *chain.Frame, receiver, token common.Address, amount *big.Int, data []byte) (bool, error)
}

// Borrower is an ERC-3156 flash borrower. It must return CallbackSuccess.
type Borrower interface {
	OnFlashLoan(f *chain.Frame, initiator, token common.Address, amount, fee *big.Int, data []byte) (common.Hash, error)
}
