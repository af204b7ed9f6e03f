package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/michaelpento.lv/flashbridge/chain"
)

var (
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: transfer amount exceeds allowance")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrAmountOutOfRange      = errors.New("token: amount outside uint256 range")
	ErrSupplyOverflow        = errors.New("token: total supply overflow")
)

// Event topics
var (
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
)

// Storage layout, following solidity mapping slots
const (
	balancesSlot   = 0
	allowancesSlot = 1
	supplySlot     = 2
)

var maxAllowance = new(uint256.Int).SetAllOne()

// ERC20 is a standard fungible token with an open mint used to seed
// balances in tests and demos.
type ERC20 struct {
	address  common.Address
	code     *chain.Code
	name     string
	symbol   string
	decimals uint8
}

// New creates a token to be deployed at address
func New(address common.Address, name, symbol string, decimals uint8) *ERC20 {
	return &ERC20{
		address:  address,
		name:     name,
		symbol:   symbol,
		decimals: decimals,
	}
}

func (t *ERC20) Address() common.Address     { return t.address }
func (t *ERC20) Bind(code *chain.Code) error { return chain.Bind(&t.code, code) }
func (t *ERC20) Name() string                { return t.name }
func (t *ERC20) Symbol() string              { return t.symbol }
func (t *ERC20) Decimals() uint8             { return t.decimals }

// TotalSupply returns the amount of tokens in existence
func (t *ERC20) TotalSupply(f *chain.Frame) (*big.Int, error) {
	var out *big.Int
	err := t.code.EnterStatic(f, func(c *chain.Frame) error {
		out = c.Load(supplyKey()).ToBig()
		return nil
	})
	return out, err
}

// BalanceOf returns the balance of owner
func (t *ERC20) BalanceOf(f *chain.Frame, owner common.Address) (*big.Int, error) {
	var out *big.Int
	err := t.code.EnterStatic(f, func(c *chain.Frame) error {
		out = c.Load(balanceKey(owner)).ToBig()
		return nil
	})
	return out, err
}

// Allowance returns how much spender may still pull from owner
func (t *ERC20) Allowance(f *chain.Frame, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	err := t.code.EnterStatic(f, func(c *chain.Frame) error {
		out = c.Load(allowanceKey(owner, spender)).ToBig()
		return nil
	})
	return out, err
}

// Transfer moves amount from the caller to to
func (t *ERC20) Transfer(f *chain.Frame, to common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	return t.code.Enter(f, func(c *chain.Frame) error {
		return t.move(c, c.Caller(), to, value)
	})
}

// TransferFrom moves amount from from to to, spending the caller's allowance
func (t *ERC20) TransferFrom(f *chain.Frame, from, to common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	return t.code.Enter(f, func(c *chain.Frame) error {
		if err := t.spendAllowance(c, from, c.Caller(), value); err != nil {
			return err
		}
		return t.move(c, from, to, value)
	})
}

// Approve sets the caller's allowance for spender to exactly amount
func (t *ERC20) Approve(f *chain.Frame, spender common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	return t.code.Enter(f, func(c *chain.Frame) error {
		return t.approve(c, c.Caller(), spender, value)
	})
}

// Mint creates amount tokens for to
func (t *ERC20) Mint(f *chain.Frame, to common.Address, amount *big.Int) error {
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	return t.code.Enter(f, func(c *chain.Frame) error {
		if to == (common.Address{}) {
			return fmt.Errorf("%w: mint to", ErrZeroAddress)
		}
		supply, overflow := new(uint256.Int).AddOverflow(c.Load(supplyKey()), value)
		if overflow {
			return ErrSupplyOverflow
		}
		if err := c.Store(supplyKey(), supply); err != nil {
			return err
		}
		// cannot overflow: every balance is bounded by the supply
		balance := new(uint256.Int).Add(c.Load(balanceKey(to)), value)
		if err := c.Store(balanceKey(to), balance); err != nil {
			return err
		}
		return t.emitTransfer(c, common.Address{}, to, value)
	})
}

func (t *ERC20) move(c *chain.Frame, from, to common.Address, value *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return fmt.Errorf("%w: transfer %s -> %s", ErrZeroAddress, from.Hex(), to.Hex())
	}

	fromBalance := c.Load(balanceKey(from))
	if fromBalance.Lt(value) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBalance.Dec(), t.symbol, value.Dec())
	}
	if err := c.Store(balanceKey(from), new(uint256.Int).Sub(fromBalance, value)); err != nil {
		return err
	}
	toBalance := new(uint256.Int).Add(c.Load(balanceKey(to)), value)
	if err := c.Store(balanceKey(to), toBalance); err != nil {
		return err
	}
	return t.emitTransfer(c, from, to, value)
}

func (t *ERC20) spendAllowance(c *chain.Frame, owner, spender common.Address, value *uint256.Int) error {
	current := c.Load(allowanceKey(owner, spender))
	if current.Eq(maxAllowance) {
		return nil
	}
	if current.Lt(value) {
		return fmt.Errorf("%w: %s may pull %s %s from %s, needs %s",
			ErrInsufficientAllowance, spender.Hex(), current.Dec(), t.symbol, owner.Hex(), value.Dec())
	}
	return t.approve(c, owner, spender, new(uint256.Int).Sub(current, value))
}

func (t *ERC20) approve(c *chain.Frame, owner, spender common.Address, value *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return fmt.Errorf("%w: approve %s -> %s", ErrZeroAddress, owner.Hex(), spender.Hex())
	}
	if err := c.Store(allowanceKey(owner, spender), value); err != nil {
		return err
	}
	word := value.Bytes32()
	return c.Emit([]common.Hash{ApprovalTopic, addressTopic(owner), addressTopic(spender)}, word[:])
}

func (t *ERC20) emitTransfer(c *chain.Frame, from, to common.Address, value *uint256.Int) error {
	word := value.Bytes32()
	return c.Emit([]common.Hash{TransferTopic, addressTopic(from), addressTopic(to)}, word[:])
}

func toWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %v", ErrAmountOutOfRange, amount)
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrAmountOutOfRange, amount)
	}
	return value, nil
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func balanceKey(owner common.Address) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(owner.Bytes(), 32), slotBytes(balancesSlot))
}

func allowanceKey(owner, spender common.Address) common.Hash {
	inner := crypto.Keccak256(common.LeftPadBytes(owner.Bytes(), 32), slotBytes(allowancesSlot))
	return crypto.Keccak256Hash(common.LeftPadBytes(spender.Bytes(), 32), inner)
}

func supplyKey() common.Hash {
	return common.BytesToHash(slotBytes(supplySlot))
}

func slotBytes(slot uint64) []byte {
	word := uint256.NewInt(slot).Bytes32()
	return word[:]
}
