package balancer

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/michaelpento.lv/flashbridge/utils/math"
	"go.uber.org/zap"
)

var ErrCallerNotOwner = errors.New("balancer: caller is not the vault owner")

// FlashLoanTopic is emitted once a loan has been repaid
var FlashLoanTopic = crypto.Keccak256Hash([]byte("FlashLoan(address,address,uint256,uint256)"))

var flashLoanEventData = abi.Arguments{
	{Type: utils.MustABIType("uint256")}, // amount
	{Type: utils.MustABIType("uint256")}, // feeAmount
}

const tokensSlot = 0

// Vault is a flash lender that lends its own token balances directly. The
// fee is a flat rate in basis points and defaults to zero.
type Vault struct {
	address common.Address
	code    *chain.Code
	owner   common.Address
	feeBps  int64
}

// NewVault creates a vault owned by owner charging feeBps on every loan
func NewVault(address, owner common.Address, feeBps uint16) *Vault {
	return &Vault{
		address: address,
		owner:   owner,
		feeBps:  int64(feeBps),
	}
}

func (v *Vault) Address() common.Address     { return v.address }
func (v *Vault) Bind(code *chain.Code) error { return chain.Bind(&v.code, code) }

// String returns the provider name
func (v *Vault) String() string {
	return "Balancer"
}

// RegisterToken enables flash loans of token. Owner only.
func (v *Vault) RegisterToken(f *chain.Frame, token common.Address) error {
	return v.code.Enter(f, func(c *chain.Frame) error {
		if c.Caller() != v.owner {
			return fmt.Errorf("%w: %s", ErrCallerNotOwner, c.Caller().Hex())
		}
		return c.Store(tokenKey(token), uint256.NewInt(1))
	})
}

// MaxFlashLoan is the vault's balance of token, or zero when token is not
// registered.
func (v *Vault) MaxFlashLoan(f *chain.Frame, token common.Address) (*big.Int, error) {
	out := new(big.Int)
	err := v.code.EnterStatic(f, func(c *chain.Frame) error {
		if !v.registered(c, token) {
			return nil
		}
		tok, err := chain.Resolve[flashloan.ERC20](c, token)
		if err != nil {
			return err
		}
		balance, err := tok.BalanceOf(c.StaticCall(token), v.address)
		if err != nil {
			return err
		}
		out = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (v *Vault) FlashFee(f *chain.Frame, token common.Address, amount *big.Int) (*big.Int, error) {
	var fee *big.Int
	err := v.code.EnterStatic(f, func(c *chain.Frame) error {
		var err error
		fee, err = v.flashFee(c, token, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}

func (v *Vault) flashFee(c *chain.Frame, token common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %v", flashloan.ErrInvalidAmount, amount)
	}
	if !v.registered(c, token) {
		return nil, flashloan.ErrUnsupportedAsset
	}
	return math.MulDiv(amount, v.feeBps, math.BasisPoints)
}

// FlashLoan sends amount to receiver, runs its callback with the caller as
// initiator and pulls amount plus fee back.
func (v *Vault) FlashLoan(f *chain.Frame, receiver, token common.Address, amount *big.Int, data []byte) (bool, error) {
	err := v.code.Enter(f, func(c *chain.Frame) error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: %v", flashloan.ErrInvalidAmount, amount)
		}
		fee, err := v.flashFee(c, token, amount)
		if err != nil {
			return err
		}
		tok, err := chain.Resolve[flashloan.ERC20](c, token)
		if err != nil {
			return err
		}
		borrower, err := chain.Resolve[flashloan.Borrower](c, receiver)
		if err != nil {
			return err
		}

		if err := tok.Transfer(c.Call(token), receiver, amount); err != nil {
			return err
		}
		result, err := borrower.OnFlashLoan(c.Call(receiver), c.Caller(), token, amount, fee, data)
		if err != nil {
			return fmt.Errorf("%w: %w", flashloan.ErrCallbackRejected, err)
		}
		if result != flashloan.CallbackSuccess {
			return fmt.Errorf("%w: returned %s", flashloan.ErrCallbackRejected, result.Hex())
		}
		if err := tok.TransferFrom(c.Call(token), receiver, v.address, math.TotalRepayment(amount, fee)); err != nil {
			return fmt.Errorf("%w: %w", flashloan.ErrInsufficientRepaymentApproval, err)
		}

		eventData, err := flashLoanEventData.Pack(amount, fee)
		if err != nil {
			return err
		}
		if err := c.Emit([]common.Hash{
			FlashLoanTopic,
			common.BytesToHash(receiver.Bytes()),
			common.BytesToHash(token.Bytes()),
		}, eventData); err != nil {
			return err
		}

		c.Logger().Info("Balancer flash loan executed",
			zap.String("receiver", receiver.Hex()),
			zap.String("token", token.Hex()),
			zap.String("amount", amount.String()),
			zap.String("fee", fee.String()))
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (v *Vault) registered(c *chain.Frame, token common.Address) bool {
	return !c.Load(tokenKey(token)).IsZero()
}

func tokenKey(token common.Address) common.Hash {
	var slot [32]byte
	slot[31] = tokensSlot
	return crypto.Keccak256Hash(common.LeftPadBytes(token.Bytes(), 32), slot[:])
}
