package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	carol = common.HexToAddress("0xca201")
)

func setup(t *testing.T) (*chain.VM, *ERC20) {
	vm := chain.NewVM(chain.WithLogger(zaptest.NewLogger(t)))
	tok := New(vm.NextAddress(alice), "Dai Stablecoin", "DAI", 18)
	require.NoError(t, vm.Deploy(tok))
	receipt := vm.Transact(alice, func(f *chain.Frame) error {
		return tok.Mint(f.Call(tok.Address()), alice, big.NewInt(1_000))
	})
	require.True(t, receipt.Succeeded(), "mint: %v", receipt.Err)
	return vm, tok
}

func balance(t *testing.T, vm *chain.VM, tok *ERC20, owner common.Address) *big.Int {
	var out *big.Int
	require.NoError(t, vm.View(owner, func(f *chain.Frame) error {
		var err error
		out, err = tok.BalanceOf(f.Call(tok.Address()), owner)
		return err
	}))
	return out
}

func TestTransfer(t *testing.T) {
	vm, tok := setup(t)

	receipt := vm.Transact(alice, func(f *chain.Frame) error {
		return tok.Transfer(f.Call(tok.Address()), bob, big.NewInt(400))
	})
	require.True(t, receipt.Succeeded())
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, TransferTopic, receipt.Logs[0].Topics[0])
	assert.Equal(t, common.BytesToHash(bob.Bytes()), receipt.Logs[0].Topics[2])
	assert.Equal(t, int64(600), balance(t, vm, tok, alice).Int64())
	assert.Equal(t, int64(400), balance(t, vm, tok, bob).Int64())

	receipt = vm.Transact(bob, func(f *chain.Frame) error {
		return tok.Transfer(f.Call(tok.Address()), carol, big.NewInt(401))
	})
	assert.ErrorIs(t, receipt.Err, ErrInsufficientBalance)
	assert.Equal(t, int64(400), balance(t, vm, tok, bob).Int64())

	receipt = vm.Transact(alice, func(f *chain.Frame) error {
		return tok.Transfer(f.Call(tok.Address()), common.Address{}, big.NewInt(1))
	})
	assert.ErrorIs(t, receipt.Err, ErrZeroAddress)
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	vm, tok := setup(t)

	require.True(t, vm.Transact(alice, func(f *chain.Frame) error {
		return tok.Approve(f.Call(tok.Address()), bob, big.NewInt(300))
	}).Succeeded())

	tests := []struct {
		name     string
		amount   int64
		wantErr  error
		wantLeft int64
	}{
		{name: "within_allowance", amount: 200, wantLeft: 100},
		{name: "exceeds_allowance", amount: 101, wantErr: ErrInsufficientAllowance, wantLeft: 100},
		{name: "exact_remainder", amount: 100, wantLeft: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt := vm.Transact(bob, func(f *chain.Frame) error {
				return tok.TransferFrom(f.Call(tok.Address()), alice, carol, big.NewInt(tt.amount))
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, receipt.Err, tt.wantErr)
			} else {
				require.True(t, receipt.Succeeded(), "transferFrom: %v", receipt.Err)
			}

			require.NoError(t, vm.View(bob, func(f *chain.Frame) error {
				left, err := tok.Allowance(f.Call(tok.Address()), alice, bob)
				require.NoError(t, err)
				assert.Equal(t, tt.wantLeft, left.Int64())
				return nil
			}))
		})
	}
	assert.Equal(t, int64(300), balance(t, vm, tok, carol).Int64())
}

func TestInfiniteAllowanceIsNotDecremented(t *testing.T) {
	vm, tok := setup(t)
	maxUint := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	require.True(t, vm.Transact(alice, func(f *chain.Frame) error {
		return tok.Approve(f.Call(tok.Address()), bob, maxUint)
	}).Succeeded())
	require.True(t, vm.Transact(bob, func(f *chain.Frame) error {
		return tok.TransferFrom(f.Call(tok.Address()), alice, bob, big.NewInt(10))
	}).Succeeded())

	require.NoError(t, vm.View(bob, func(f *chain.Frame) error {
		left, err := tok.Allowance(f.Call(tok.Address()), alice, bob)
		require.NoError(t, err)
		assert.Equal(t, 0, left.Cmp(maxUint))
		return nil
	}))
}

func TestAmountRange(t *testing.T) {
	vm, tok := setup(t)
	tooLarge := new(big.Int).Lsh(big.NewInt(1), 256)

	for _, amount := range []*big.Int{nil, big.NewInt(-1), tooLarge} {
		receipt := vm.Transact(alice, func(f *chain.Frame) error {
			return tok.Transfer(f.Call(tok.Address()), bob, amount)
		})
		assert.ErrorIs(t, receipt.Err, ErrAmountOutOfRange)
	}
}

func TestMintTracksSupply(t *testing.T) {
	vm, tok := setup(t)

	require.True(t, vm.Transact(bob, func(f *chain.Frame) error {
		return tok.Mint(f.Call(tok.Address()), bob, big.NewInt(50))
	}).Succeeded())

	require.NoError(t, vm.View(bob, func(f *chain.Frame) error {
		supply, err := tok.TotalSupply(f.Call(tok.Address()))
		require.NoError(t, err)
		assert.Equal(t, int64(1_050), supply.Int64())
		return nil
	}))

	maxUint := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	receipt := vm.Transact(bob, func(f *chain.Frame) error {
		return tok.Mint(f.Call(tok.Address()), bob, maxUint)
	})
	assert.ErrorIs(t, receipt.Err, ErrSupplyOverflow)
}
