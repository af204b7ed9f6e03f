package aave

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/borrower"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/lendingpool"
	"github.com/michaelpento.lv/flashbridge/token"
	"github.com/michaelpento.lv/flashbridge/utils/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const aaveBalance = 100_000

var (
	deployer = common.HexToAddress("0xde9107e5")
	user1    = common.HexToAddress("0x05e71")
)

type env struct {
	vm       *chain.VM
	weth     *token.ERC20
	dai      *token.ERC20
	aWeth    *lendingpool.AToken
	aDai     *lendingpool.AToken
	pool     *lendingpool.Pool
	provider *lendingpool.AddressesProvider
	lender   *Adapter
	borrower *borrower.FlashBorrower
	metrics  *metrics.FlashLoanMetrics
}

func newEnv(t *testing.T, policy flashloan.InitiatorPolicy, acceptLenderInitiator bool) *env {
	logger := zaptest.NewLogger(t)
	vm := chain.NewVM(chain.WithLogger(logger))
	e := &env{vm: vm, metrics: metrics.NewFlashLoanMetrics("test", nil)}

	e.weth = token.New(vm.NextAddress(deployer), "Wrapped Ether", "WETH", 18)
	e.dai = token.New(vm.NextAddress(deployer), "Dai Stablecoin", "DAI", 18)
	e.pool = lendingpool.NewPool(vm.NextAddress(deployer), deployer)
	e.aWeth = lendingpool.NewAToken(vm.NextAddress(deployer), e.weth.Address(), e.pool.Address())
	e.aDai = lendingpool.NewAToken(vm.NextAddress(deployer), e.dai.Address(), e.pool.Address())
	e.provider = lendingpool.NewAddressesProvider(vm.NextAddress(deployer), deployer)

	var err error
	e.lender, err = NewAdapter(AdapterConfig{
		Address:         vm.NextAddress(deployer),
		Provider:        e.provider.Address(),
		InitiatorPolicy: policy,
	}, logger, e.metrics)
	require.NoError(t, err)
	e.borrower = borrower.New(vm.NextAddress(user1), acceptLenderInitiator)

	for _, c := range []chain.Contract{e.weth, e.dai, e.pool, e.aWeth, e.aDai, e.provider, e.lender, e.borrower} {
		require.NoError(t, vm.Deploy(c))
	}

	receipt := vm.Transact(deployer, func(f *chain.Frame) error {
		if err := e.provider.SetLendingPool(f.Call(e.provider.Address()), e.pool.Address()); err != nil {
			return err
		}
		if err := e.pool.InitReserve(f.Call(e.pool.Address()), e.weth.Address(), e.aWeth.Address()); err != nil {
			return err
		}
		if err := e.pool.InitReserve(f.Call(e.pool.Address()), e.dai.Address(), e.aDai.Address()); err != nil {
			return err
		}
		if err := e.weth.Mint(f.Call(e.weth.Address()), e.aWeth.Address(), big.NewInt(aaveBalance)); err != nil {
			return err
		}
		return e.dai.Mint(f.Call(e.dai.Address()), e.aDai.Address(), big.NewInt(aaveBalance))
	})
	require.True(t, receipt.Succeeded(), "bootstrap: %v", receipt.Err)
	return e
}

func (e *env) view(t *testing.T, fn func(f *chain.Frame)) {
	require.NoError(t, e.vm.View(user1, func(f *chain.Frame) error {
		fn(f)
		return nil
	}))
}

func (e *env) balance(t *testing.T, tok *token.ERC20, owner common.Address) int64 {
	var out int64
	e.view(t, func(f *chain.Frame) {
		b, err := tok.BalanceOf(f.Call(tok.Address()), owner)
		require.NoError(t, err)
		out = b.Int64()
	})
	return out
}

func (e *env) fee(t *testing.T, tok common.Address, amount int64) *big.Int {
	var out *big.Int
	e.view(t, func(f *chain.Frame) {
		var err error
		out, err = e.lender.FlashFee(f.Call(e.lender.Address()), tok, big.NewInt(amount))
		require.NoError(t, err)
	})
	return out
}

func (e *env) mint(t *testing.T, tok *token.ERC20, to common.Address, amount *big.Int) {
	receipt := e.vm.Transact(user1, func(f *chain.Frame) error {
		return tok.Mint(f.Call(tok.Address()), to, amount)
	})
	require.True(t, receipt.Succeeded(), "mint: %v", receipt.Err)
}

func (e *env) borrow(tok common.Address, amount int64, action borrower.Action) *chain.Receipt {
	return e.vm.Transact(user1, func(f *chain.Frame) error {
		return e.borrower.FlashBorrow(f.Call(e.borrower.Address()), e.lender.Address(), tok, big.NewInt(amount), action)
	})
}

func TestFlashSupply(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, true)

	e.view(t, func(f *chain.Frame) {
		for _, tok := range []common.Address{e.weth.Address(), e.dai.Address()} {
			supply, err := e.lender.MaxFlashLoan(f.Call(e.lender.Address()), tok)
			require.NoError(t, err)
			assert.Equal(t, int64(aaveBalance), supply.Int64())
		}

		supply, err := e.lender.MaxFlashLoan(f.Call(e.lender.Address()), e.lender.Address())
		require.NoError(t, err)
		assert.Equal(t, 0, supply.Sign())
	})

	// supply follows the aToken's underlying balance
	maxLoan := func() *big.Int {
		var out *big.Int
		e.view(t, func(f *chain.Frame) {
			var err error
			out, err = e.lender.MaxFlashLoan(f.Call(e.lender.Address()), e.weth.Address())
			require.NoError(t, err)
		})
		return out
	}
	for _, n := range []int64{1, 12_345, aaveBalance} {
		before := maxLoan()
		e.mint(t, e.weth, e.aWeth.Address(), big.NewInt(n))
		after := maxLoan()
		assert.Equal(t, n, new(big.Int).Sub(after, before).Int64())
	}
	assert.Equal(t, int64(aaveBalance+1+12_345+aaveBalance), maxLoan().Int64())
}

func TestFlashFee(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, true)

	assert.Equal(t, int64(aaveBalance*9/10000), e.fee(t, e.weth.Address(), aaveBalance).Int64())
	assert.Equal(t, int64(aaveBalance*9/10000), e.fee(t, e.dai.Address(), aaveBalance).Int64())
	assert.Equal(t, int64(0), e.fee(t, e.dai.Address(), 1111).Int64())

	e.view(t, func(f *chain.Frame) {
		_, err := e.lender.FlashFee(f.Call(e.lender.Address()), e.lender.Address(), big.NewInt(aaveBalance))
		require.ErrorIs(t, err, flashloan.ErrUnsupportedAsset)
		assert.Equal(t, "Unsupported currency", err.Error())
	})
}

func TestFlashLoan(t *testing.T) {
	tests := []struct {
		name   string
		policy flashloan.InitiatorPolicy
		accept bool
		sender func(e *env) common.Address
	}{
		{
			name:   "adapter_initiator",
			policy: flashloan.InitiatorAdapter,
			accept: true,
			sender: func(e *env) common.Address { return e.lender.Address() },
		},
		{
			name:   "origin_initiator",
			policy: flashloan.InitiatorOrigin,
			accept: false,
			sender: func(e *env) common.Address { return e.borrower.Address() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.policy, tt.accept)

			for _, tok := range []*token.ERC20{e.weth, e.dai} {
				fee := e.fee(t, tok.Address(), aaveBalance)
				e.mint(t, tok, e.borrower.Address(), fee)

				receipt := e.borrow(tok.Address(), aaveBalance, borrower.ActionNormal)
				require.True(t, receipt.Succeeded(), "flash loan: %v", receipt.Err)

				assert.Equal(t, int64(0), e.balance(t, tok, user1))
				assert.Equal(t, int64(0), e.balance(t, tok, e.borrower.Address()))
				assert.Equal(t, int64(0), e.balance(t, tok, e.lender.Address()))

				e.view(t, func(f *chain.Frame) {
					loan, err := e.borrower.LastLoan(f.Call(e.borrower.Address()))
					require.NoError(t, err)
					assert.Equal(t, new(big.Int).Add(big.NewInt(aaveBalance), fee).String(), loan.FlashBalance.String())
					assert.Equal(t, tok.Address(), loan.FlashToken)
					assert.Equal(t, int64(aaveBalance), loan.FlashAmount.Int64())
					assert.Equal(t, fee.String(), loan.FlashFee.String())
					assert.Equal(t, tt.sender(e), loan.FlashSender)

					left, err := tok.Allowance(f.Call(tok.Address()), e.lender.Address(), e.pool.Address())
					require.NoError(t, err)
					assert.Equal(t, 0, left.Sign())
				})
			}

			assert.Equal(t, int64(aaveBalance+90), e.balance(t, e.weth, e.aWeth.Address()))
			assert.Equal(t, int64(aaveBalance+90), e.balance(t, e.dai, e.aDai.Address()))
			assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.Loans.WithLabelValues(e.weth.Address().Hex())))
			assert.Equal(t, float64(90), testutil.ToFloat64(e.metrics.Fees.WithLabelValues(e.dai.Address().Hex())))
		})
	}
}

func TestFailedLoanRevertsEverything(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		action    borrower.Action
		token     func(t *testing.T, e *env) common.Address
		noFeeFund bool
		wantErr   []error
	}{
		{name: "rejected_return", amount: 1000, action: borrower.ActionReject, wantErr: []error{flashloan.ErrCallbackRejected}},
		{name: "callback_reverts", amount: 1000, action: borrower.ActionRevert,
			wantErr: []error{flashloan.ErrCallbackRejected, borrower.ErrRevertRequested}},
		{name: "no_approval", amount: 1000, action: borrower.ActionSkipApproval,
			wantErr: []error{flashloan.ErrInsufficientRepaymentApproval}},
		{name: "cannot_pay_fee", amount: 100_000, noFeeFund: true,
			wantErr: []error{flashloan.ErrInsufficientRepaymentApproval, token.ErrInsufficientBalance}},
		{name: "exceeds_liquidity", amount: aaveBalance + 1, wantErr: []error{lendingpool.ErrInsufficientLiquidity}},
		{name: "zero_amount", amount: 0, wantErr: []error{flashloan.ErrInvalidAmount}},
		{name: "unsupported_token", amount: 1000,
			token: func(t *testing.T, e *env) common.Address {
				usdc := token.New(e.vm.NextAddress(deployer), "USD Coin", "USDC", 6)
				require.NoError(t, e.vm.Deploy(usdc))
				return usdc.Address()
			},
			wantErr: []error{flashloan.ErrUnsupportedAsset}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, flashloan.InitiatorAdapter, true)
			if !tt.noFeeFund {
				e.mint(t, e.weth, e.borrower.Address(), big.NewInt(1_000))
			}
			tok := e.weth.Address()
			if tt.token != nil {
				tok = tt.token(t, e)
			}

			before := e.vm.Digest()
			receipt := e.borrow(tok, tt.amount, tt.action)
			require.False(t, receipt.Succeeded())
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, receipt.Err, want)
			}
			assert.Equal(t, before, e.vm.Digest())
			assert.Equal(t, int64(aaveBalance), e.balance(t, e.weth, e.aWeth.Address()))
		})
	}
}

func TestStrictBorrowerRejectsAdapterInitiator(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, false)
	e.mint(t, e.weth, e.borrower.Address(), big.NewInt(90))

	receipt := e.borrow(e.weth.Address(), aaveBalance, borrower.ActionNormal)
	assert.ErrorIs(t, receipt.Err, flashloan.ErrCallbackRejected)
	assert.ErrorIs(t, receipt.Err, borrower.ErrUntrustedInitiator)
}

func TestUntrustedCallbacks(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, true)
	attacker := common.HexToAddress("0xbad")
	params, err := EncodeParams(attacker, attacker, nil)
	require.NoError(t, err)

	// direct call from an account that is not the pool
	receipt := e.vm.Transact(attacker, func(f *chain.Frame) error {
		_, err := e.lender.ExecuteOperation(f.Call(e.lender.Address()), e.weth.Address(), big.NewInt(1000), big.NewInt(0), e.lender.Address(), params)
		return err
	})
	assert.ErrorIs(t, receipt.Err, flashloan.ErrUntrustedCaller)

	// real pool, but the loan was not initiated by the adapter
	before := e.vm.Digest()
	receipt = e.vm.Transact(attacker, func(f *chain.Frame) error {
		return e.pool.FlashLoan(f.Call(e.pool.Address()), e.lender.Address(), e.weth.Address(), big.NewInt(1000),
			lendingpool.ModeNone, e.lender.Address(), params, 0)
	})
	assert.ErrorIs(t, receipt.Err, flashloan.ErrUntrustedCaller)
	assert.Equal(t, before, e.vm.Digest())
	assert.Equal(t, float64(2), testutil.ToFloat64(e.metrics.Rejected))
}

func TestPoolUpgrade(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, true)

	next := lendingpool.NewPool(e.vm.NextAddress(deployer), deployer)
	nextAWeth := lendingpool.NewAToken(e.vm.NextAddress(deployer), e.weth.Address(), next.Address())
	require.NoError(t, e.vm.Deploy(next))
	require.NoError(t, e.vm.Deploy(nextAWeth))

	receipt := e.vm.Transact(deployer, func(f *chain.Frame) error {
		if err := next.InitReserve(f.Call(next.Address()), e.weth.Address(), nextAWeth.Address()); err != nil {
			return err
		}
		if err := e.weth.Mint(f.Call(e.weth.Address()), nextAWeth.Address(), big.NewInt(500)); err != nil {
			return err
		}
		return e.provider.SetLendingPool(f.Call(e.provider.Address()), next.Address())
	})
	require.True(t, receipt.Succeeded(), "upgrade: %v", receipt.Err)

	e.view(t, func(f *chain.Frame) {
		supply, err := e.lender.MaxFlashLoan(f.Call(e.lender.Address()), e.weth.Address())
		require.NoError(t, err)
		assert.Equal(t, int64(500), supply.Int64())

		_, err = e.lender.FlashFee(f.Call(e.lender.Address()), e.dai.Address(), big.NewInt(1))
		assert.ErrorIs(t, err, flashloan.ErrUnsupportedAsset)
	})

	// the retired pool still calls back, but is no longer trusted
	params, err := EncodeParams(e.borrower.Address(), e.borrower.Address(), nil)
	require.NoError(t, err)
	before := e.vm.Digest()
	receipt = e.vm.Transact(user1, func(f *chain.Frame) error {
		return e.pool.FlashLoan(f.Call(e.pool.Address()), e.lender.Address(), e.weth.Address(), big.NewInt(100),
			lendingpool.ModeNone, e.lender.Address(), params, 0)
	})
	assert.ErrorIs(t, receipt.Err, flashloan.ErrUntrustedCaller)
	assert.Equal(t, before, e.vm.Digest())

	e.mint(t, e.weth, e.borrower.Address(), big.NewInt(1))
	receipt = e.borrow(e.weth.Address(), 500, borrower.ActionNormal)
	require.True(t, receipt.Succeeded(), "flash loan: %v", receipt.Err)
	assert.Equal(t, int64(500), e.balance(t, e.weth, nextAWeth.Address()))
	assert.Equal(t, int64(1), e.balance(t, e.weth, e.borrower.Address()))
}

// skimmingPool lists the real reserves but charges one unit more than quoted
type skimmingPool struct {
	addr common.Address
	code *chain.Code
	real *lendingpool.Pool
}

func (p *skimmingPool) Address() common.Address     { return p.addr }
func (p *skimmingPool) Bind(code *chain.Code) error { return chain.Bind(&p.code, code) }

func (p *skimmingPool) GetReserveData(f *chain.Frame, asset common.Address) (lendingpool.ReserveData, error) {
	var out lendingpool.ReserveData
	err := p.code.EnterStatic(f, func(c *chain.Frame) error {
		var err error
		out, err = p.real.GetReserveData(c.Call(p.real.Address()), asset)
		return err
	})
	return out, err
}

func (p *skimmingPool) FlashLoan(f *chain.Frame, receiver, asset common.Address, amount *big.Int,
	mode uint8, onBehalfOf common.Address, params []byte, referralCode uint16) error {
	return p.code.Enter(f, func(c *chain.Frame) error {
		target, err := chain.Resolve[lendingpool.FlashLoanReceiver](c, receiver)
		if err != nil {
			return err
		}
		premium := new(big.Int).Quo(new(big.Int).Mul(amount, big.NewInt(9)), big.NewInt(10_000))
		premium.Add(premium, big.NewInt(1))
		_, err = target.ExecuteOperation(c.Call(receiver), asset, amount, premium, c.Caller(), params)
		return err
	})
}

func TestPremiumMismatch(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, true)
	rogue := &skimmingPool{addr: e.vm.NextAddress(deployer), real: e.pool}
	require.NoError(t, e.vm.Deploy(rogue))
	require.True(t, e.vm.Transact(deployer, func(f *chain.Frame) error {
		return e.provider.SetLendingPool(f.Call(e.provider.Address()), rogue.Address())
	}).Succeeded())
	e.mint(t, e.weth, e.borrower.Address(), big.NewInt(1_000))

	receipt := e.borrow(e.weth.Address(), 10_000, borrower.ActionNormal)
	assert.ErrorIs(t, receipt.Err, flashloan.ErrPremiumMismatch)
	assert.Equal(t, float64(1), testutil.ToFloat64(e.metrics.Errors.WithLabelValues("premium_mismatch")))
}

func TestReentrantBorrow(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, true)
	e.mint(t, e.weth, e.borrower.Address(), big.NewInt(27))

	receipt := e.borrow(e.weth.Address(), 10_000, borrower.ActionReenter)
	require.True(t, receipt.Succeeded(), "flash loan: %v", receipt.Err)

	e.view(t, func(f *chain.Frame) {
		loan, err := e.borrower.LastLoan(f.Call(e.borrower.Address()))
		require.NoError(t, err)
		assert.Equal(t, int64(20_000), loan.FlashAmount.Int64())
		assert.Equal(t, int64(18), loan.FlashFee.Int64())
		assert.Equal(t, int64(30_027), loan.FlashBalance.Int64())

		left, err := e.weth.Allowance(f.Call(e.weth.Address()), e.borrower.Address(), e.lender.Address())
		require.NoError(t, err)
		assert.Equal(t, 0, left.Sign())
	})
	assert.Equal(t, int64(aaveBalance+27), e.balance(t, e.weth, e.aWeth.Address()))
	assert.Equal(t, int64(0), e.balance(t, e.weth, e.borrower.Address()))
}

func TestCallbackParams(t *testing.T) {
	origin := common.HexToAddress("0x01")
	receiver := common.HexToAddress("0x02")

	packed, err := EncodeParams(origin, receiver, []byte("hello"))
	require.NoError(t, err)
	gotOrigin, gotReceiver, data, err := DecodeParams(packed)
	require.NoError(t, err)
	assert.Equal(t, origin, gotOrigin)
	assert.Equal(t, receiver, gotReceiver)
	assert.Equal(t, []byte("hello"), data)

	_, _, _, err = DecodeParams(packed[:40])
	assert.ErrorIs(t, err, flashloan.ErrMalformedParams)
}

func TestNewAdapterValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	addr := common.HexToAddress("0x01")

	_, err := NewAdapter(AdapterConfig{Provider: addr}, logger, nil)
	assert.Error(t, err)
	_, err = NewAdapter(AdapterConfig{Address: addr}, logger, nil)
	assert.Error(t, err)
	_, err = NewAdapter(AdapterConfig{Address: addr, Provider: addr}, nil, nil)
	assert.Error(t, err)

	a, err := NewAdapter(AdapterConfig{Address: addr, Provider: addr, InitiatorPolicy: flashloan.InitiatorOrigin}, logger, nil)
	require.NoError(t, err)
	assert.Equal(t, flashloan.InitiatorOrigin, a.InitiatorPolicy())
	assert.Equal(t, addr, a.Provider())
}

type hijack int

const (
	drainReserve hijack = iota
	replayCallback
	forwardCall
)

// hijacker borrows from the adapter and uses its callback to reach what only
// the pool may touch
type hijacker struct {
	addr    common.Address
	code    *chain.Code
	mode    hijack
	aWeth   *lendingpool.AToken
	adapter *Adapter
	entered common.Address // caller of the callback frame
	opened  common.Address // caller of a call opened from it
}

func (h *hijacker) Address() common.Address     { return h.addr }
func (h *hijacker) Bind(code *chain.Code) error { return chain.Bind(&h.code, code) }

func (h *hijacker) OnFlashLoan(f *chain.Frame, initiator, token common.Address, amount, fee *big.Int, data []byte) (common.Hash, error) {
	err := h.code.Enter(f, func(c *chain.Frame) error {
		h.entered = c.Caller()
		h.opened = c.Call(h.aWeth.Address()).Caller()

		switch h.mode {
		case drainReserve:
			return h.aWeth.TransferUnderlyingTo(c.Call(h.aWeth.Address()), h.addr, amount)
		case replayCallback:
			params, err := EncodeParams(h.addr, h.addr, nil)
			if err != nil {
				return err
			}
			_, err = h.adapter.ExecuteOperation(c.Call(h.adapter.Address()), token, amount, big.NewInt(0), h.adapter.Address(), params)
			return err
		default:
			// hand the frame it was called with to the aToken
			return h.aWeth.TransferUnderlyingTo(f, h.addr, amount)
		}
	})
	if err != nil {
		return common.Hash{}, err
	}
	return flashloan.CallbackSuccess, nil
}

func TestCallbackCannotActAsPool(t *testing.T) {
	tests := []struct {
		name    string
		mode    hijack
		wantErr error
	}{
		{"drain_reserve", drainReserve, lendingpool.ErrCallerNotPool},
		{"replay_callback", replayCallback, flashloan.ErrUntrustedCaller},
		{"forward_call", forwardCall, chain.ErrWrongTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, flashloan.InitiatorAdapter, true)
			h := &hijacker{addr: e.vm.NextAddress(user1), mode: tt.mode, aWeth: e.aWeth, adapter: e.lender}
			require.NoError(t, e.vm.Deploy(h))
			e.mint(t, e.weth, h.addr, big.NewInt(9))
			before := e.vm.Digest()

			receipt := e.vm.Transact(user1, func(f *chain.Frame) error {
				_, err := e.lender.FlashLoan(f.Call(e.lender.Address()), h.addr, e.weth.Address(), big.NewInt(10_000), nil)
				return err
			})
			assert.ErrorIs(t, receipt.Err, flashloan.ErrCallbackRejected)
			assert.ErrorIs(t, receipt.Err, tt.wantErr)
			assert.Equal(t, before, e.vm.Digest())
			assert.Equal(t, int64(aaveBalance), e.balance(t, e.weth, e.aWeth.Address()))

			assert.Equal(t, e.lender.Address(), h.entered)
			assert.Equal(t, h.addr, h.opened)
			assert.NotEqual(t, e.pool.Address(), h.entered)
			assert.NotEqual(t, e.pool.Address(), h.opened)
		})
	}
}

func TestAttackerCannotPullReserve(t *testing.T) {
	e := newEnv(t, flashloan.InitiatorAdapter, true)
	attacker := common.HexToAddress("0xbad")
	before := e.vm.Digest()

	receipt := e.vm.Transact(attacker, func(f *chain.Frame) error {
		return e.aWeth.TransferUnderlyingTo(f.Call(e.aWeth.Address()), attacker, big.NewInt(1))
	})
	assert.ErrorIs(t, receipt.Err, lendingpool.ErrCallerNotPool)
	assert.Equal(t, before, e.vm.Digest())
	assert.Equal(t, int64(aaveBalance), e.balance(t, e.weth, e.aWeth.Address()))
}
