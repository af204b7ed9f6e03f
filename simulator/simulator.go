package simulator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/flashbridge/borrower"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultCacheSize is used when no cache size is configured
const DefaultCacheSize = 256

// SimulationResult represents the result of a dry run
type SimulationResult struct {
	Success bool
	Fee     *big.Int
	Error   error
	Logs    []*types.Log
	// StateDigest is the state the simulation ran against
	StateDigest uint64
	Cached      bool
}

// clone copies r deeply enough that callers cannot reach the cached result
func (r *SimulationResult) clone() *SimulationResult {
	out := *r
	if r.Fee != nil {
		out.Fee = new(big.Int).Set(r.Fee)
	}
	if r.Logs != nil {
		out.Logs = make([]*types.Log, len(r.Logs))
		for i, l := range r.Logs {
			cp := *l
			cp.Topics = append([]common.Hash(nil), l.Topics...)
			cp.Data = append([]byte(nil), l.Data...)
			out.Logs[i] = &cp
		}
	}
	return &out
}

// FlashLoanRequest describes a borrower-driven flash loan
type FlashLoanRequest struct {
	From     common.Address
	Borrower common.Address
	Lender   common.Address
	Token    common.Address
	Amount   *big.Int
	Action   borrower.Action
}

type cacheKey struct {
	digest   uint64
	from     common.Address
	borrower common.Address
	lender   common.Address
	token    common.Address
	amount   string
	action   borrower.Action
}

type flashBorrower interface {
	FlashBorrow(f *chain.Frame, lender, token common.Address, amount *big.Int, action borrower.Action) error
}

// Simulator runs flash loans against the live ledger and rolls them back
type Simulator struct {
	vm      *chain.VM
	cache   *lru.Cache
	metrics *metrics.SimulationMetrics
	logger  *zap.Logger

	limiter     *rate.Limiter
	waitTimeout time.Duration
}

// Option configures a Simulator
type Option func(*Simulator)

// WithRateLimit caps simulations at rps with the given burst. A request
// waits at most waitTimeout for a token; zero waits as long as its context
// allows.
func WithRateLimit(rps float64, burst int, waitTimeout time.Duration) Option {
	return func(s *Simulator) {
		if rps > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
			s.waitTimeout = waitTimeout
		}
	}
}

// NewSimulator creates a new simulator over vm
func NewSimulator(vm *chain.VM, cacheSize int, logger *zap.Logger, m *metrics.SimulationMetrics, opts ...Option) (*Simulator, error) {
	if vm == nil {
		return nil, fmt.Errorf("vm cannot be nil")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewSimulationMetrics(metrics.DefaultNamespace, nil)
	}

	s := &Simulator{
		vm:      vm,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Simulate dry-runs fn as a transaction from from. Nothing is cached.
func (s *Simulator) Simulate(ctx context.Context, from common.Address, fn func(*chain.Frame) error) (*SimulationResult, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}

	receipt := s.vm.DryRun(from, fn)
	result := &SimulationResult{
		Success:     receipt.Succeeded(),
		Error:       receipt.Err,
		Logs:        receipt.Logs,
		StateDigest: receipt.PreStateDigest,
	}
	s.record(result)
	return result, nil
}

// SimulateFlashLoan dry-runs req.Borrower borrowing from req.Lender. A
// failing loan is reported in the result, not as an error.
func (s *Simulator) SimulateFlashLoan(ctx context.Context, req FlashLoanRequest) (*SimulationResult, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	if req.Amount == nil {
		return nil, fmt.Errorf("amount cannot be nil")
	}

	key := cacheKey{
		digest:   s.vm.Digest(),
		from:     req.From,
		borrower: req.Borrower,
		lender:   req.Lender,
		token:    req.Token,
		amount:   req.Amount.String(),
		action:   req.Action,
	}
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.CacheHits.Inc()
		result := cached.(*SimulationResult).clone()
		result.Cached = true
		return result, nil
	}
	s.metrics.CacheMisses.Inc()

	var fee *big.Int
	receipt := s.vm.DryRun(req.From, func(f *chain.Frame) error {
		lender, err := chain.Resolve[flashloan.Lender](f, req.Lender)
		if err != nil {
			return err
		}
		if fee, err = lender.FlashFee(f.StaticCall(req.Lender), req.Token, req.Amount); err != nil {
			return err
		}
		b, err := chain.Resolve[flashBorrower](f, req.Borrower)
		if err != nil {
			return err
		}
		return b.FlashBorrow(f.Call(req.Borrower), req.Lender, req.Token, req.Amount, req.Action)
	})

	result := &SimulationResult{
		Success:     receipt.Succeeded(),
		Fee:         fee,
		Error:       receipt.Err,
		Logs:        receipt.Logs,
		StateDigest: receipt.PreStateDigest,
	}
	s.record(result)

	key.digest = receipt.PreStateDigest
	s.cache.Add(key, result.clone())

	s.logger.Debug("Simulated flash loan",
		zap.String("borrower", req.Borrower.Hex()),
		zap.String("lender", req.Lender.Hex()),
		zap.String("amount", req.Amount.String()),
		zap.String("action", req.Action.String()),
		zap.Bool("success", result.Success),
		zap.Error(result.Error))
	return result, nil
}

// admit fails when ctx is done or the rate limiter has no token in time
func (s *Simulator) admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limiter == nil {
		return nil
	}
	if s.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.waitTimeout)
		defer cancel()
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

// Purge drops every memoised result
func (s *Simulator) Purge() {
	s.cache.Purge()
}

func (s *Simulator) record(result *SimulationResult) {
	outcome := "success"
	if !result.Success {
		outcome = "reverted"
	}
	s.metrics.Runs.WithLabelValues(outcome).Inc()
}
