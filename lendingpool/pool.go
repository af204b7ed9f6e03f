package lendingpool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/michaelpento.lv/flashbridge/utils/math"
	"go.uber.org/zap"
)

var (
	ErrCallerNotPool         = errors.New("lendingpool: caller must be lending pool")
	ErrCallerNotOwner        = errors.New("lendingpool: caller is not the owner")
	ErrReserveNotFound       = errors.New("lendingpool: reserve not initialized")
	ErrReserveAlreadyExists  = errors.New("lendingpool: reserve already initialized")
	ErrInvalidAmount         = errors.New("lendingpool: invalid amount")
	ErrUnsupportedMode       = errors.New("lendingpool: unsupported interest rate mode")
	ErrInsufficientLiquidity = errors.New("lendingpool: insufficient liquidity")
	ErrInvalidExecutorReturn = errors.New("lendingpool: invalid flash loan executor return")
	ErrRepaymentFailed       = errors.New("lendingpool: flash loan repayment failed")
)

// FlashLoanPremiumTotal is the flash loan premium in basis points
const FlashLoanPremiumTotal = 9

// ModeNone repays the loan in the same transaction; debt-opening modes are
// not supported.
const ModeNone = 0

var FlashLoanTopic = crypto.Keccak256Hash([]byte("FlashLoan(address,address,address,uint256,uint256,uint16)"))

var flashLoanEventData = abi.Arguments{
	{Type: utils.MustABIType("uint256")},
	{Type: utils.MustABIType("uint256")},
	{Type: utils.MustABIType("uint16")},
}

const reservesSlot = 0

// FlashLoanReceiver is called by the pool once the principal has been sent.
// Returning false or an error reverts the loan.
type FlashLoanReceiver interface {
	ExecuteOperation(f *chain.Frame, asset common.Address, amount, premium *big.Int,
		initiator common.Address, params []byte) (bool, error)
}

type ReserveData struct {
	ATokenAddress common.Address
}

// Pool is a lending pool holding one aToken per reserve
type Pool struct {
	address common.Address
	code    *chain.Code
	owner   common.Address
}

func NewPool(address, owner common.Address) *Pool {
	return &Pool{address: address, owner: owner}
}

func (p *Pool) Address() common.Address     { return p.address }
func (p *Pool) Bind(code *chain.Code) error { return chain.Bind(&p.code, code) }

// FlashLoanPremiumTotal returns the premium rate in basis points
func (p *Pool) FlashLoanPremiumTotal() *big.Int {
	return big.NewInt(FlashLoanPremiumTotal)
}

// InitReserve lists asset with aToken as its custodian. Owner only.
func (p *Pool) InitReserve(f *chain.Frame, asset, aToken common.Address) error {
	return p.code.Enter(f, func(c *chain.Frame) error {
		if c.Caller() != p.owner {
			return fmt.Errorf("%w: %s", ErrCallerNotOwner, c.Caller().Hex())
		}
		if asset == (common.Address{}) || aToken == (common.Address{}) {
			return fmt.Errorf("%w: zero address", ErrReserveNotFound)
		}
		key := mappingKey(asset, reservesSlot)
		if !c.Load(key).IsZero() {
			return fmt.Errorf("%w: %s", ErrReserveAlreadyExists, asset.Hex())
		}
		return c.Store(key, addressWord(aToken))
	})
}

// GetReserveData returns the reserve of asset. Unknown assets have a zero
// aToken address.
func (p *Pool) GetReserveData(f *chain.Frame, asset common.Address) (ReserveData, error) {
	var out ReserveData
	err := p.code.EnterStatic(f, func(c *chain.Frame) error {
		out.ATokenAddress = wordAddress(c.Load(mappingKey(asset, reservesSlot)))
		return nil
	})
	return out, err
}

// FlashLoan lends amount of asset to receiver for the duration of the call.
// The receiver gets amount, is called back, and must have approved the pool
// to pull amount plus the premium.
func (p *Pool) FlashLoan(f *chain.Frame, receiver, asset common.Address, amount *big.Int,
	mode uint8, onBehalfOf common.Address, params []byte, referralCode uint16) error {
	return p.code.Enter(f, func(c *chain.Frame) error {
		initiator := c.Caller()

		if mode != ModeNone {
			return fmt.Errorf("%w: %d", ErrUnsupportedMode, mode)
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
		}
		aTokenAddr := wordAddress(c.Load(mappingKey(asset, reservesSlot)))
		if aTokenAddr == (common.Address{}) {
			return fmt.Errorf("%w: %s", ErrReserveNotFound, asset.Hex())
		}
		aToken, err := chain.Resolve[*AToken](c, aTokenAddr)
		if err != nil {
			return err
		}
		underlying, err := chain.Resolve[Asset](c, asset)
		if err != nil {
			return err
		}

		premium := math.NewBigIntFromInt(amount).CalculateFlashLoanFee(math.NewBigInt(FlashLoanPremiumTotal)).Int

		if err := aToken.TransferUnderlyingTo(c.Call(aTokenAddr), receiver, amount); err != nil {
			return err
		}

		target, err := chain.Resolve[FlashLoanReceiver](c, receiver)
		if err != nil {
			return err
		}
		ok, err := target.ExecuteOperation(c.Call(receiver), asset, amount, premium, initiator, params)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidExecutorReturn
		}

		owed := math.TotalRepayment(amount, premium)
		if err := underlying.TransferFrom(c.Call(asset), receiver, aTokenAddr, owed); err != nil {
			return fmt.Errorf("%w: %w", ErrRepaymentFailed, err)
		}

		data, err := flashLoanEventData.Pack(amount, premium, referralCode)
		if err != nil {
			return err
		}
		if err := c.Emit([]common.Hash{
			FlashLoanTopic,
			common.BytesToHash(receiver.Bytes()),
			common.BytesToHash(initiator.Bytes()),
			common.BytesToHash(asset.Bytes()),
		}, data); err != nil {
			return err
		}

		c.Logger().Debug("Flash loan served",
			zap.String("pool", p.address.Hex()),
			zap.String("receiver", receiver.Hex()),
			zap.String("onBehalfOf", onBehalfOf.Hex()),
			zap.String("asset", underlying.Symbol()),
			zap.String("amount", amount.String()),
			zap.String("premium", premium.String()))
		return nil
	})
}
