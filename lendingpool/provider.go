package lendingpool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/flashbridge/chain"
)

var LendingPoolUpdatedTopic = crypto.Keccak256Hash([]byte("LendingPoolUpdated(address)"))

const lendingPoolSlot = 0

// AddressesProvider is the registry the adapter asks for the current pool
type AddressesProvider struct {
	address common.Address
	code    *chain.Code
	owner   common.Address
}

func NewAddressesProvider(address, owner common.Address) *AddressesProvider {
	return &AddressesProvider{address: address, owner: owner}
}

func (p *AddressesProvider) Address() common.Address     { return p.address }
func (p *AddressesProvider) Bind(code *chain.Code) error { return chain.Bind(&p.code, code) }
func (p *AddressesProvider) Owner() common.Address       { return p.owner }

// GetLendingPool returns the pool currently registered
func (p *AddressesProvider) GetLendingPool(f *chain.Frame) (common.Address, error) {
	var out common.Address
	err := p.code.EnterStatic(f, func(c *chain.Frame) error {
		out = wordAddress(c.Load(slotKey(lendingPoolSlot)))
		return nil
	})
	return out, err
}

// SetLendingPool points the registry at a new pool. Owner only.
func (p *AddressesProvider) SetLendingPool(f *chain.Frame, pool common.Address) error {
	return p.code.Enter(f, func(c *chain.Frame) error {
		if c.Caller() != p.owner {
			return fmt.Errorf("%w: %s", ErrCallerNotOwner, c.Caller().Hex())
		}
		if err := c.Store(slotKey(lendingPoolSlot), addressWord(pool)); err != nil {
			return err
		}
		return c.Emit([]common.Hash{LendingPoolUpdatedTopic, common.BytesToHash(pool.Bytes())}, nil)
	})
}
