package flashloan

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

type namedLender struct {
	name   string
	lender Lender
}

// FlashLoanManager routes flash loans to the cheapest lender able to serve
// them. It holds no ledger state; every query runs against the caller's frame.
type FlashLoanManager struct {
	mu      sync.RWMutex
	lenders []namedLender
	metrics *metrics.RouterMetrics
	logger  *zap.Logger
}

// NewFlashLoanManager creates a new flash loan manager. A nil metrics set is
// replaced with an unregistered one.
func NewFlashLoanManager(logger *zap.Logger, m *metrics.RouterMetrics) *FlashLoanManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewRouterMetrics(metrics.DefaultNamespace, nil)
	}
	return &FlashLoanManager{
		logger:  logger,
		metrics: m,
	}
}

// RegisterLender adds a lender under a unique name
func (m *FlashLoanManager) RegisterLender(name string, lender Lender) error {
	if lender == nil {
		return fmt.Errorf("lender cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.lenders {
		if l.name == name {
			return fmt.Errorf("%w: %s", ErrLenderExists, name)
		}
	}
	m.lenders = append(m.lenders, namedLender{name: name, lender: lender})
	m.logger.Info("Registered flash lender",
		zap.String("name", name),
		zap.String("address", lender.Address().Hex()))
	return nil
}

// Lenders returns the registered lender names in registration order
func (m *FlashLoanManager) Lenders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.lenders))
	for _, l := range m.lenders {
		names = append(names, l.name)
	}
	return names
}

// Quote asks every lender for its capacity and fee. Lenders that do not
// support token are skipped.
func (m *FlashLoanManager) Quote(f *chain.Frame, token common.Address, amount *big.Int) ([]Quote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	m.mu.RLock()
	lenders := append([]namedLender(nil), m.lenders...)
	m.mu.RUnlock()

	quotes := make([]Quote, 0, len(lenders))
	for _, l := range lenders {
		fee, err := l.lender.FlashFee(f.StaticCall(l.lender.Address()), token, amount)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedAsset) {
				return nil, fmt.Errorf("lender %s: %w", l.name, err)
			}
			m.logger.Warn("Lender does not support token",
				zap.String("lender", l.name),
				zap.String("token", token.Hex()))
			continue
		}
		maxLoan, err := l.lender.MaxFlashLoan(f.StaticCall(l.lender.Address()), token)
		if err != nil {
			return nil, fmt.Errorf("lender %s: %w", l.name, err)
		}
		quotes = append(quotes, Quote{
			Lender:  l.name,
			Address: l.lender.Address(),
			MaxLoan: maxLoan,
			Fee:     fee,
		})
	}
	return quotes, nil
}

// BestLender returns the cheapest lender whose capacity covers amount. Ties
// go to the lender registered first.
func (m *FlashLoanManager) BestLender(f *chain.Frame, token common.Address, amount *big.Int) (Lender, Quote, error) {
	quotes, err := m.Quote(f, token, amount)
	if err != nil {
		return nil, Quote{}, err
	}

	best := -1
	for i, q := range quotes {
		if !q.Covers(amount) {
			continue
		}
		if best < 0 || q.Fee.Cmp(quotes[best].Fee) < 0 {
			best = i
		}
	}
	if best < 0 {
		return nil, Quote{}, fmt.Errorf("%w: %s of %s", ErrNoLender, amount, token.Hex())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.lenders {
		if l.name == quotes[best].Lender {
			m.metrics.Selections.WithLabelValues(l.name).Inc()
			return l.lender, quotes[best], nil
		}
	}
	return nil, Quote{}, fmt.Errorf("%w: lender %s was removed", ErrNoLender, quotes[best].Lender)
}

// FlashLoan borrows amount of token for receiver from the best lender. The
// loan is called from f, which must be executing, and reverts on its own
// when it fails.
func (m *FlashLoanManager) FlashLoan(f *chain.Frame, receiver, token common.Address, amount *big.Int, data []byte) (bool, error) {
	lender, quote, err := m.BestLender(f, token, amount)
	if err != nil {
		return false, err
	}

	m.metrics.Executions.Inc()
	ok, err := lender.FlashLoan(f.Call(lender.Address()), receiver, token, amount, data)
	if err != nil || !ok {
		m.metrics.Failures.Inc()
		m.updateSuccessRate()
		if err == nil {
			err = fmt.Errorf("lender %s declined the loan", quote.Lender)
		}
		return false, err
	}
	m.updateSuccessRate()

	m.logger.Debug("Routed flash loan",
		zap.String("lender", quote.Lender),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee", quote.Fee.String()))
	return true, nil
}

// updateSuccessRate derives the success gauge from the counters
func (m *FlashLoanManager) updateSuccessRate() {
	total := counterValue(m.metrics.Executions)
	if total == 0 {
		return
	}
	failed := counterValue(m.metrics.Failures)
	m.metrics.SuccessRate.Set((total - failed) / total)
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}
