// Package market assembles a complete in-process lending market: reserve
// tokens, the pool with its aTokens, the addresses provider, the ERC-3156
// adapter, an optional vault lender and a reference borrower.
package market

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashbridge/borrower"
	"github.com/michaelpento.lv/flashbridge/chain"
	"github.com/michaelpento.lv/flashbridge/config"
	"github.com/michaelpento.lv/flashbridge/flashloan"
	"github.com/michaelpento.lv/flashbridge/flashloan/aave"
	"github.com/michaelpento.lv/flashbridge/flashloan/balancer"
	"github.com/michaelpento.lv/flashbridge/lendingpool"
	"github.com/michaelpento.lv/flashbridge/token"
	"github.com/michaelpento.lv/flashbridge/utils"
	"github.com/michaelpento.lv/flashbridge/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Lender names in the manager
const (
	LenderName      = "aave"
	VaultLenderName = "balancer"
)

var (
	ErrUnknownReserve = errors.New("market: unknown reserve")
	ErrUnknownLender  = errors.New("market: unknown lender")
)

// Well-known accounts
var (
	Deployer = common.HexToAddress("0x00000000000000000000000000000000de9107e5")
	User     = common.HexToAddress("0x0000000000000000000000000000000000005e71")
)

// Reserve is one listed asset
type Reserve struct {
	Token  *token.ERC20
	AToken *lendingpool.AToken
}

// Market holds every deployed contract and the router built on top of them
type Market struct {
	VM       *chain.VM
	Pool     *lendingpool.Pool
	Provider *lendingpool.AddressesProvider
	Adapter  *aave.Adapter
	// Vault is nil unless enabled in the configuration
	Vault    *balancer.Vault
	Borrower *borrower.FlashBorrower
	Manager  *flashloan.FlashLoanManager

	reserves []*Reserve
	bySymbol map[string]*Reserve
	logger   *zap.Logger
}

// Bootstrap deploys a market described by cfg. Metrics are registered with
// reg when it is non-nil.
func Bootstrap(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*Market, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := cfg.Adapter.Policy()
	if err != nil {
		return nil, err
	}
	namespace := cfg.Metrics.Namespace
	if namespace == "" {
		namespace = metrics.DefaultNamespace
	}

	vm := chain.NewVM(chain.WithLogger(logger), chain.WithMaxDepth(cfg.MaxCallDepth))
	m := &Market{
		VM:       vm,
		bySymbol: make(map[string]*Reserve),
		logger:   logger,
	}

	m.Pool = lendingpool.NewPool(vm.NextAddress(Deployer), Deployer)
	m.Provider = lendingpool.NewAddressesProvider(vm.NextAddress(Deployer), Deployer)
	contracts := []chain.Contract{m.Pool, m.Provider}

	liquidity := make([]*big.Int, len(cfg.Reserves))
	vaultLiquidity := make([]*big.Int, len(cfg.Reserves))
	for i, rc := range cfg.Reserves {
		if _, dup := m.bySymbol[rc.Symbol]; dup {
			return nil, fmt.Errorf("duplicate reserve %s", rc.Symbol)
		}
		if liquidity[i], err = rc.LiquidityUnits(); err != nil {
			return nil, fmt.Errorf("reserve %s: %w", rc.Symbol, err)
		}
		if vaultLiquidity[i], err = rc.VaultLiquidityUnits(); err != nil {
			return nil, fmt.Errorf("reserve %s: %w", rc.Symbol, err)
		}
		name := rc.Name
		if name == "" {
			name = rc.Symbol
		}
		tok := token.New(vm.NextAddress(Deployer), name, rc.Symbol, rc.Decimals)
		r := &Reserve{
			Token:  tok,
			AToken: lendingpool.NewAToken(vm.NextAddress(Deployer), tok.Address(), m.Pool.Address()),
		}
		m.reserves = append(m.reserves, r)
		m.bySymbol[rc.Symbol] = r
		contracts = append(contracts, r.Token, r.AToken)
	}

	m.Adapter, err = aave.NewAdapter(aave.AdapterConfig{
		Address:         vm.NextAddress(Deployer),
		Provider:        m.Provider.Address(),
		InitiatorPolicy: policy,
	}, logger, metrics.NewFlashLoanMetrics(namespace, reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}
	m.Borrower = borrower.New(vm.NextAddress(User), cfg.Adapter.BorrowerAcceptsLender)
	contracts = append(contracts, m.Adapter, m.Borrower)
	if cfg.Vault.Enabled {
		m.Vault = balancer.NewVault(vm.NextAddress(Deployer), Deployer, cfg.Vault.FeeBps)
		contracts = append(contracts, m.Vault)
	}

	for _, c := range contracts {
		if err := vm.Deploy(c); err != nil {
			return nil, err
		}
	}

	receipt := vm.Transact(Deployer, func(f *chain.Frame) error {
		if err := m.Provider.SetLendingPool(f.Call(m.Provider.Address()), m.Pool.Address()); err != nil {
			return err
		}
		for i, r := range m.reserves {
			if err := m.Pool.InitReserve(f.Call(m.Pool.Address()), r.Token.Address(), r.AToken.Address()); err != nil {
				return err
			}
			if err := r.Token.Mint(f.Call(r.Token.Address()), r.AToken.Address(), liquidity[i]); err != nil {
				return err
			}
			if m.Vault == nil {
				continue
			}
			if err := m.Vault.RegisterToken(f.Call(m.Vault.Address()), r.Token.Address()); err != nil {
				return err
			}
			if vaultLiquidity[i].Sign() > 0 {
				if err := r.Token.Mint(f.Call(r.Token.Address()), m.Vault.Address(), vaultLiquidity[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if !receipt.Succeeded() {
		return nil, fmt.Errorf("failed to initialise market: %w", receipt.Err)
	}

	m.Manager = flashloan.NewFlashLoanManager(logger, metrics.NewRouterMetrics(namespace, reg))
	if err := m.Manager.RegisterLender(LenderName, m.Adapter); err != nil {
		return nil, err
	}
	if m.Vault != nil {
		if err := m.Manager.RegisterLender(VaultLenderName, m.Vault); err != nil {
			return nil, err
		}
	}

	logger.Info("Market deployed",
		zap.String("pool", m.Pool.Address().Hex()),
		zap.String("adapter", m.Adapter.Address().Hex()),
		zap.String("borrower", m.Borrower.Address().Hex()),
		zap.Int("reserves", len(m.reserves)))
	return m, nil
}

// Reserves returns the listed reserves in configuration order
func (m *Market) Reserves() []*Reserve {
	return append([]*Reserve(nil), m.reserves...)
}

func (m *Market) Reserve(symbol string) (*Reserve, error) {
	r, ok := m.bySymbol[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReserve, symbol)
	}
	return r, nil
}

// ParseAmount converts a decimal amount of symbol to base units
func (m *Market) ParseAmount(symbol, amount string) (*big.Int, error) {
	r, err := m.Reserve(symbol)
	if err != nil {
		return nil, err
	}
	return utils.ParseUnits(amount, r.Token.Decimals())
}

// Fund mints amount of symbol to to
func (m *Market) Fund(symbol string, to common.Address, amount *big.Int) error {
	r, err := m.Reserve(symbol)
	if err != nil {
		return err
	}
	receipt := m.VM.Transact(Deployer, func(f *chain.Frame) error {
		return r.Token.Mint(f.Call(r.Token.Address()), to, amount)
	})
	return receipt.Err
}

// Balance returns owner's balance of symbol
func (m *Market) Balance(symbol string, owner common.Address) (*big.Int, error) {
	r, err := m.Reserve(symbol)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	err = m.VM.View(User, func(f *chain.Frame) error {
		var err error
		out, err = r.Token.BalanceOf(f.StaticCall(r.Token.Address()), owner)
		return err
	})
	return out, err
}

// Quote asks every registered lender for capacity and fee
func (m *Market) Quote(symbol string, amount *big.Int) ([]flashloan.Quote, error) {
	r, err := m.Reserve(symbol)
	if err != nil {
		return nil, err
	}
	var quotes []flashloan.Quote
	err = m.VM.View(User, func(f *chain.Frame) error {
		var err error
		quotes, err = m.Manager.Quote(f, r.Token.Address(), amount)
		return err
	})
	return quotes, err
}

// BestLender returns the cheapest lender able to cover amount of symbol
func (m *Market) BestLender(symbol string, amount *big.Int) (flashloan.Quote, error) {
	r, err := m.Reserve(symbol)
	if err != nil {
		return flashloan.Quote{}, err
	}
	var quote flashloan.Quote
	err = m.VM.View(User, func(f *chain.Frame) error {
		var err error
		_, quote, err = m.Manager.BestLender(f, r.Token.Address(), amount)
		return err
	})
	return quote, err
}

// LenderAddress maps a lender name registered with the manager to its address
func (m *Market) LenderAddress(name string) (common.Address, error) {
	switch {
	case name == LenderName:
		return m.Adapter.Address(), nil
	case name == VaultLenderName && m.Vault != nil:
		return m.Vault.Address(), nil
	}
	return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownLender, name)
}

// Borrow has the reference borrower take a flash loan from the adapter
func (m *Market) Borrow(symbol string, amount *big.Int, action borrower.Action) (*chain.Receipt, error) {
	return m.BorrowFrom(m.Adapter.Address(), symbol, amount, action)
}

// BorrowFrom has the reference borrower take a flash loan from lender
func (m *Market) BorrowFrom(lender common.Address, symbol string, amount *big.Int, action borrower.Action) (*chain.Receipt, error) {
	r, err := m.Reserve(symbol)
	if err != nil {
		return nil, err
	}
	return m.VM.Transact(User, func(f *chain.Frame) error {
		return m.Borrower.FlashBorrow(f.Call(m.Borrower.Address()), lender, r.Token.Address(), amount, action)
	}), nil
}

// LastLoan returns what the reference borrower recorded in its last callback
func (m *Market) LastLoan() (borrower.Loan, error) {
	var loan borrower.Loan
	err := m.VM.View(User, func(f *chain.Frame) error {
		var err error
		loan, err = m.Borrower.LastLoan(f.StaticCall(m.Borrower.Address()))
		return err
	})
	return loan, err
}
