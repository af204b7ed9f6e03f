package lendingpool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/token"
)

// Asset is the part of an ERC20 the pool and its aTokens rely on
type Asset interface {
	chain.Contract
	Symbol() string
	BalanceOf(f *chain.Frame, owner common.Address) (*big.Int, error)
	Transfer(f *chain.Frame, to common.Address, amount *big.Int) error
	TransferFrom(f *chain.Frame, from, to common.Address, amount *big.Int) error
}

// AToken custodies the underlying liquidity of one reserve
type AToken struct {
	address    common.Address
	code       *chain.Code
	underlying common.Address
	pool       common.Address
}

func NewAToken(address, underlying, pool common.Address) *AToken {
	return &AToken{
		address:    address,
		underlying: underlying,
		pool:       pool,
	}
}

func (a *AToken) Address() common.Address     { return a.address }
func (a *AToken) Bind(code *chain.Code) error { return chain.Bind(&a.code, code) }

// UnderlyingAsset is the token held by this aToken
func (a *AToken) UnderlyingAsset() common.Address { return a.underlying }

// Pool is the only account allowed to move the underlying
func (a *AToken) Pool() common.Address { return a.pool }

// TransferUnderlyingTo sends amount of the underlying to to
func (a *AToken) TransferUnderlyingTo(f *chain.Frame, to common.Address, amount *big.Int) error {
	return a.code.Enter(f, func(c *chain.Frame) error {
		if c.Caller() != a.pool {
			return fmt.Errorf("%w: %s", ErrCallerNotPool, c.Caller().Hex())
		}
		asset, err := chain.Resolve[Asset](c, a.underlying)
		if err != nil {
			return err
		}
		if err := asset.Transfer(c.Call(a.underlying), to, amount); err != nil {
			if errors.Is(err, token.ErrInsufficientBalance) {
				return fmt.Errorf("%w: %v", ErrInsufficientLiquidity, err)
			}
			return err
		}
		return nil
	})
}
