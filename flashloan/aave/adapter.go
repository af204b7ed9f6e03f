package aave

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/lendingpool"
	"github.com/michaelpento.lv/flashbridge/utils/math"
	"github.com/michaelpento.lv/flashbridge/utils/metrics"
	"go.uber.org/zap"
)

const (
	// FeeNumerator over FeeDenominator is the Aave V2 flash loan premium
	FeeNumerator   = 9
	FeeDenominator = 10_000

	referralCode = 0
)

type addressesProvider interface {
	GetLendingPool(f *chain.Frame) (common.Address, error)
}

type lendingPool interface {
	GetReserveData(f *chain.Frame, asset common.Address) (lendingpool.ReserveData, error)
	FlashLoan(f *chain.Frame, receiver, asset common.Address, amount *big.Int,
		mode uint8, onBehalfOf common.Address, params []byte, referralCode uint16) error
}

// AdapterConfig is fixed at deployment
type AdapterConfig struct {
	Address         common.Address
	Provider        common.Address
	InitiatorPolicy flashloan.InitiatorPolicy
}

// Adapter exposes an Aave V2 lending pool as an ERC-3156 flash lender.
// It keeps no ledger state of its own; the pool is looked up through the
// addresses provider on every call so pool upgrades take effect at once.
type Adapter struct {
	cfg     AdapterConfig
	code    *chain.Code
	logger  *zap.Logger
	metrics *metrics.FlashLoanMetrics
}

// NewAdapter creates an adapter to be deployed at cfg.Address
func NewAdapter(cfg AdapterConfig, logger *zap.Logger, m *metrics.FlashLoanMetrics) (*Adapter, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("adapter address cannot be zero")
	}
	if cfg.Provider == (common.Address{}) {
		return nil, fmt.Errorf("addresses provider cannot be zero")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if m == nil {
		m = metrics.NewFlashLoanMetrics(metrics.DefaultNamespace, nil)
	}

	return &Adapter{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}, nil
}

func (a *Adapter) Address() common.Address     { return a.cfg.Address }
func (a *Adapter) Bind(code *chain.Code) error { return chain.Bind(&a.code, code) }

// Provider is the addresses provider the pool is resolved through
func (a *Adapter) Provider() common.Address { return a.cfg.Provider }

func (a *Adapter) InitiatorPolicy() flashloan.InitiatorPolicy { return a.cfg.InitiatorPolicy }

// MaxFlashLoan returns the underlying balance held by the reserve's aToken,
// or zero when the pool has no reserve for token.
func (a *Adapter) MaxFlashLoan(f *chain.Frame, token common.Address) (*big.Int, error) {
	out := new(big.Int)
	err := a.code.EnterStatic(f, func(c *chain.Frame) error {
		poolAddr, pool, err := a.lendingPool(c)
		if err != nil {
			return err
		}
		reserve, err := pool.GetReserveData(c.StaticCall(poolAddr), token)
		if err != nil {
			return err
		}
		if reserve.ATokenAddress == (common.Address{}) {
			return nil
		}
		asset, err := chain.Resolve[flashloan.ERC20](c, token)
		if err != nil {
			return err
		}
		out, err = asset.BalanceOf(c.StaticCall(token), reserve.ATokenAddress)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FlashFee returns amount * 9 / 10000 for tokens the pool lists
func (a *Adapter) FlashFee(f *chain.Frame, token common.Address, amount *big.Int) (*big.Int, error) {
	var fee *big.Int
	err := a.code.EnterStatic(f, func(c *chain.Frame) error {
		var err error
		fee, err = a.flashFee(c, token, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fee, nil
}

func (a *Adapter) flashFee(c *chain.Frame, token common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %v", flashloan.ErrInvalidAmount, amount)
	}
	poolAddr, pool, err := a.lendingPool(c)
	if err != nil {
		return nil, err
	}
	reserve, err := pool.GetReserveData(c.StaticCall(poolAddr), token)
	if err != nil {
		return nil, err
	}
	if reserve.ATokenAddress == (common.Address{}) {
		return nil, flashloan.ErrUnsupportedAsset
	}
	return math.MulDiv(amount, FeeNumerator, FeeDenominator)
}

// FlashLoan borrows amount of token from the pool on behalf of receiver.
// The caller is recorded as the origin of the loan.
func (a *Adapter) FlashLoan(f *chain.Frame, receiver, token common.Address, amount *big.Int, data []byte) (bool, error) {
	start := time.Now()
	defer func() {
		a.metrics.LoanLatency.Observe(time.Since(start).Seconds())
	}()

	var fee *big.Int
	err := a.code.Enter(f, func(c *chain.Frame) error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("%w: %v", flashloan.ErrInvalidAmount, amount)
		}
		poolAddr, pool, err := a.lendingPool(c)
		if err != nil {
			return err
		}
		if fee, err = a.flashFee(c, token, amount); err != nil {
			return err
		}
		params, err := EncodeParams(c.Caller(), receiver, data)
		if err != nil {
			return err
		}

		a.logger.Debug("Requesting flash loan",
			zap.String("pool", poolAddr.Hex()),
			zap.String("origin", c.Caller().Hex()),
			zap.String("receiver", receiver.Hex()),
			zap.String("token", token.Hex()),
			zap.String("amount", amount.String()),
			zap.String("fee", fee.String()))

		err = pool.FlashLoan(c.Call(poolAddr), a.cfg.Address, token, amount, lendingpool.ModeNone, a.cfg.Address, params, referralCode)
		if errors.Is(err, lendingpool.ErrRepaymentFailed) {
			return fmt.Errorf("%w: %w", flashloan.ErrInsufficientRepaymentApproval, err)
		}
		return err
	})
	if err != nil {
		a.metrics.Errors.WithLabelValues(errorReason(err)).Inc()
		a.logger.Debug("Flash loan reverted",
			zap.String("receiver", receiver.Hex()),
			zap.String("token", token.Hex()),
			zap.Error(err))
		return false, err
	}

	label := token.Hex()
	a.metrics.Loans.WithLabelValues(label).Inc()
	a.metrics.Volume.WithLabelValues(label).Add(toFloat(amount))
	a.metrics.Fees.WithLabelValues(label).Add(toFloat(fee))
	a.logger.Info("Flash loan completed",
		zap.String("receiver", receiver.Hex()),
		zap.String("token", label),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()))
	return true, nil
}

// ExecuteOperation is the pool callback. It forwards the principal to the
// receiver named in params, runs the borrower callback, collects principal
// plus premium and approves the pool to pull it back.
func (a *Adapter) ExecuteOperation(f *chain.Frame, asset common.Address, amount, premium *big.Int,
	initiator common.Address, params []byte) (bool, error) {
	err := a.code.Enter(f, func(c *chain.Frame) error {
		poolAddr, _, err := a.lendingPool(c)
		if err != nil {
			return err
		}
		if c.Caller() != poolAddr {
			a.metrics.Rejected.Inc()
			return fmt.Errorf("%w: caller %s is not the lending pool", flashloan.ErrUntrustedCaller, c.Caller().Hex())
		}
		if initiator != a.cfg.Address {
			a.metrics.Rejected.Inc()
			return fmt.Errorf("%w: initiator %s", flashloan.ErrUntrustedCaller, initiator.Hex())
		}

		origin, receiver, data, err := DecodeParams(params)
		if err != nil {
			return err
		}

		fee, err := a.flashFee(c, asset, amount)
		if err != nil {
			return err
		}
		if premium == nil || premium.Cmp(fee) != 0 {
			return fmt.Errorf("%w: pool charged %v, quoted %s", flashloan.ErrPremiumMismatch, premium, fee)
		}

		tok, err := chain.Resolve[flashloan.ERC20](c, asset)
		if err != nil {
			return err
		}
		if err := tok.Transfer(c.Call(asset), receiver, amount); err != nil {
			return err
		}

		reported := a.cfg.Address
		if a.cfg.InitiatorPolicy == flashloan.InitiatorOrigin {
			reported = origin
		}
		if err := a.callBorrower(c, receiver, reported, asset, amount, fee, data); err != nil {
			return err
		}

		owed := math.TotalRepayment(amount, fee)
		if err := tok.TransferFrom(c.Call(asset), receiver, a.cfg.Address, owed); err != nil {
			return fmt.Errorf("%w: %w", flashloan.ErrInsufficientRepaymentApproval, err)
		}
		if err := tok.Approve(c.Call(asset), poolAddr, owed); err != nil {
			return err
		}

		a.logger.Debug("Flash loan repaid to adapter",
			zap.String("receiver", receiver.Hex()),
			zap.String("token", tok.Symbol()),
			zap.String("owed", owed.String()))
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) callBorrower(c *chain.Frame, receiver, initiator, token common.Address, amount, fee *big.Int, data []byte) error {
	borrower, err := chain.Resolve[flashloan.Borrower](c, receiver)
	if err != nil {
		return fmt.Errorf("%w: %w", flashloan.ErrCallbackRejected, err)
	}
	result, err := borrower.OnFlashLoan(c.Call(receiver), initiator, token, amount, fee, data)
	if err != nil {
		return fmt.Errorf("%w: %w", flashloan.ErrCallbackRejected, err)
	}
	if result != flashloan.CallbackSuccess {
		return fmt.Errorf("%w: returned %s", flashloan.ErrCallbackRejected, result.Hex())
	}
	return nil
}

// lendingPool resolves the current pool through the provider
func (a *Adapter) lendingPool(c *chain.Frame) (common.Address, lendingPool, error) {
	provider, err := chain.Resolve[addressesProvider](c, a.cfg.Provider)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("addresses provider: %w", err)
	}
	addr, err := provider.GetLendingPool(c.StaticCall(a.cfg.Provider))
	if err != nil {
		return common.Address{}, nil, err
	}
	pool, err := chain.Resolve[lendingPool](c, addr)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("lending pool: %w", err)
	}
	return addr, pool, nil
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, flashloan.ErrUntrustedCaller):
		return "untrusted_caller"
	case errors.Is(err, flashloan.ErrMalformedParams):
		return "malformed_params"
	case errors.Is(err, flashloan.ErrPremiumMismatch):
		return "premium_mismatch"
	case errors.Is(err, flashloan.ErrCallbackRejected):
		return "callback_rejected"
	case errors.Is(err, flashloan.ErrInsufficientRepaymentApproval):
		return "repayment_approval"
	case errors.Is(err, flashloan.ErrUnsupportedAsset):
		return "unsupported_asset"
	case errors.Is(err, flashloan.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, lendingpool.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	default:
		return "other"
	}
}

func toFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
