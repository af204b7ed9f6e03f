package borrower

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/utils"
	"go.uber.org/zap"
)

var (
	ErrUntrustedInitiator = errors.New("borrower: untrusted loan initiator")
	ErrRevertRequested    = errors.New("borrower: revert requested")
	ErrLoanDeclined       = errors.New("borrower: lender returned false")
	ErrUnknownAction      = errors.New("borrower: unknown action")
)

// Action tells the borrower how to behave inside its callback
type Action uint8

const (
	// ActionNormal repays the loan
	ActionNormal Action = iota
	// ActionReject returns a value other than CallbackSuccess
	ActionReject
	// ActionRevert fails the callback
	ActionRevert
	// ActionSkipApproval borrows without approving the repayment
	ActionSkipApproval
	// ActionReenter borrows twice the amount again from inside the callback
	ActionReenter
)

var actionNames = map[Action]string{
	ActionNormal:       "normal",
	ActionReject:       "reject",
	ActionRevert:       "revert",
	ActionSkipApproval: "skip-approval",
	ActionReenter:      "reenter",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// ParseAction maps a name printed by Action.String back to the action
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

var actionArgs = abi.Arguments{{Name: "action", Type: utils.MustABIType("uint8")}}

// EncodeAction is the data FlashBorrow hands to the lender
func EncodeAction(a Action) ([]byte, error) {
	return actionArgs.Pack(uint8(a))
}

// DecodeAction reads the action back. Empty data means ActionNormal.
func DecodeAction(data []byte) (Action, error) {
	if len(data) == 0 {
		return ActionNormal, nil
	}
	values, err := actionArgs.Unpack(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnknownAction, err)
	}
	v, ok := values[0].(uint8)
	if !ok || Action(v) > ActionReenter {
		return 0, fmt.Errorf("%w: %v", ErrUnknownAction, values[0])
	}
	return Action(v), nil
}

// Storage layout
const (
	senderSlot = iota
	tokenSlot
	amountSlot
	feeSlot
	balanceSlot
)

// Loan is what the borrower saw during its most recent callback
type Loan struct {
	FlashSender  common.Address
	FlashToken   common.Address
	FlashAmount  *big.Int
	FlashFee     *big.Int
	FlashBalance *big.Int
}

// FlashBorrower is a reference ERC-3156 borrower
type FlashBorrower struct {
	address common.Address
	code    *chain.Code
	// acceptLenderInitiator also trusts callbacks whose initiator is the
	// calling lender, for lenders that report themselves as initiator.
	acceptLenderInitiator bool
}

func New(address common.Address, acceptLenderInitiator bool) *FlashBorrower {
	return &FlashBorrower{
		address:               address,
		acceptLenderInitiator: acceptLenderInitiator,
	}
}

func (b *FlashBorrower) Address() common.Address     { return b.address }
func (b *FlashBorrower) Bind(code *chain.Code) error { return chain.Bind(&b.code, code) }

// FlashBorrow approves the lender for the current allowance plus amount and
// fee, then borrows amount of token.
func (b *FlashBorrower) FlashBorrow(f *chain.Frame, lender, token common.Address, amount *big.Int, action Action) error {
	return b.code.Enter(f, func(c *chain.Frame) error {
		return b.flashBorrow(c, lender, token, amount, action)
	})
}

func (b *FlashBorrower) flashBorrow(c *chain.Frame, lender, token common.Address, amount *big.Int, action Action) error {
	l, err := chain.Resolve[flashloan.Lender](c, lender)
	if err != nil {
		return err
	}
	tok, err := chain.Resolve[flashloan.ERC20](c, token)
	if err != nil {
		return err
	}

	if action != ActionSkipApproval {
		allowance, err := tok.Allowance(c.StaticCall(token), b.address, lender)
		if err != nil {
			return err
		}
		fee, err := l.FlashFee(c.StaticCall(lender), token, amount)
		if err != nil {
			return err
		}
		repayment := new(big.Int).Add(allowance, amount)
		repayment.Add(repayment, fee)
		if err := tok.Approve(c.Call(token), lender, repayment); err != nil {
			return err
		}
	}

	data, err := EncodeAction(action)
	if err != nil {
		return err
	}
	ok, err := l.FlashLoan(c.Call(lender), b.address, token, amount, data)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLoanDeclined
	}
	return nil
}

// OnFlashLoan records the loan and acts on the encoded action
func (b *FlashBorrower) OnFlashLoan(f *chain.Frame, initiator, token common.Address, amount, fee *big.Int, data []byte) (common.Hash, error) {
	var result common.Hash
	err := b.code.Enter(f, func(c *chain.Frame) error {
		lender := c.Caller()
		if amount == nil || fee == nil {
			return fmt.Errorf("borrower: missing amount or fee")
		}
		if initiator != b.address && !(b.acceptLenderInitiator && initiator == lender) {
			return fmt.Errorf("%w: %s", ErrUntrustedInitiator, initiator.Hex())
		}
		action, err := DecodeAction(data)
		if err != nil {
			return err
		}

		tok, err := chain.Resolve[flashloan.ERC20](c, token)
		if err != nil {
			return err
		}
		balance, err := tok.BalanceOf(c.StaticCall(token), b.address)
		if err != nil {
			return err
		}
		if err := b.record(c, initiator, token, amount, fee, balance); err != nil {
			return err
		}

		c.Logger().Debug("Flash loan received",
			zap.String("borrower", b.address.Hex()),
			zap.String("lender", lender.Hex()),
			zap.String("action", action.String()),
			zap.String("amount", amount.String()),
			zap.String("fee", fee.String()))

		switch action {
		case ActionReject:
			return nil
		case ActionRevert:
			return ErrRevertRequested
		case ActionReenter:
			if err := b.flashBorrow(c, lender, token, new(big.Int).Mul(amount, big.NewInt(2)), ActionNormal); err != nil {
				return err
			}
		}
		result = flashloan.CallbackSuccess
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return result, nil
}

// LastLoan returns the fields recorded by the most recent callback
func (b *FlashBorrower) LastLoan(f *chain.Frame) (Loan, error) {
	var out Loan
	err := b.code.EnterStatic(f, func(c *chain.Frame) error {
		out = Loan{
			FlashSender:  common.Address(c.Load(slot(senderSlot)).Bytes20()),
			FlashToken:   common.Address(c.Load(slot(tokenSlot)).Bytes20()),
			FlashAmount:  c.Load(slot(amountSlot)).ToBig(),
			FlashFee:     c.Load(slot(feeSlot)).ToBig(),
			FlashBalance: c.Load(slot(balanceSlot)).ToBig(),
		}
		return nil
	})
	return out, err
}

func (b *FlashBorrower) record(c *chain.Frame, sender, token common.Address, amount, fee, balance *big.Int) error {
	words := []struct {
		slot  uint64
		value *big.Int
	}{
		{senderSlot, new(big.Int).SetBytes(sender.Bytes())},
		{tokenSlot, new(big.Int).SetBytes(token.Bytes())},
		{amountSlot, amount},
		{feeSlot, fee},
		{balanceSlot, balance},
	}
	for _, w := range words {
		if w.value == nil || w.value.Sign() < 0 {
			return fmt.Errorf("borrower: invalid value %v for slot %d", w.value, w.slot)
		}
		value, overflow := uint256.FromBig(w.value)
		if overflow {
			return fmt.Errorf("borrower: value for slot %d overflows uint256", w.slot)
		}
		if err := c.Store(slot(w.slot), value); err != nil {
			return err
		}
	}
	return nil
}

func slot(n uint64) common.Hash {
	return common.Hash(uint256.NewInt(n).Bytes32())
}
