package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

var (
	ErrAddressInUse    = errors.New("chain: address already in use")
	ErrNoCode          = errors.New("chain: no contract at address")
	ErrNotImplemented  = errors.New("chain: contract does not implement the called interface")
	ErrDepthExceeded   = errors.New("chain: max call depth exceeded")
	ErrWriteProtection = errors.New("chain: write protection")
	ErrSenderNotEOA    = errors.New("chain: sender is a contract")
	ErrNotDeployed     = errors.New("chain: contract is not deployed")
	ErrAlreadyBound    = errors.New("chain: contract already has code")
	ErrWrongTarget     = errors.New("chain: call entered by the wrong contract")
	ErrInvalidFrame    = errors.New("chain: frame cannot be used")
)

// DefaultMaxDepth matches the EVM call depth limit
const DefaultMaxDepth = 1024

// Contract is anything that can be deployed at an address. Deploy hands
// the contract its Code through Bind.
type Contract interface {
	Address() common.Address
	Bind(code *Code) error
}

// Receipt reports the outcome of a top-level transaction
type Receipt struct {
	Status uint64
	Logs   []*types.Log
	Err    error
	// PreStateDigest is the state digest the transaction executed against
	PreStateDigest uint64
}

// Succeeded reports whether the transaction committed
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}

// VM executes transactions against a journaled State. Transactions are
// serialised; every call inside a transaction is synchronous and strictly
// nested, and any error unwinds the frame that returned it.
type VM struct {
	mu        sync.Mutex
	state     *State
	contracts map[common.Address]Contract
	nonces    map[common.Address]uint64
	maxDepth  int
	logger    *zap.Logger
}

// Option configures a VM
type Option func(*VM)

// WithMaxDepth overrides the maximum nested call depth
func WithMaxDepth(depth int) Option {
	return func(vm *VM) {
		if depth > 0 {
			vm.maxDepth = depth
		}
	}
}

// WithLogger sets the logger used for transaction tracing
func WithLogger(logger *zap.Logger) Option {
	return func(vm *VM) {
		if logger != nil {
			vm.logger = logger
		}
	}
}

// NewVM creates a VM with empty state
func NewVM(opts ...Option) *VM {
	vm := &VM{
		state:     NewState(),
		contracts: make(map[common.Address]Contract),
		nonces:    make(map[common.Address]uint64),
		maxDepth:  DefaultMaxDepth,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// NextAddress derives the address of the next contract created by deployer
func (vm *VM) NextAddress(deployer common.Address) common.Address {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	nonce := vm.nonces[deployer]
	vm.nonces[deployer] = nonce + 1
	return crypto.CreateAddress(deployer, nonce)
}

// Deploy registers contract code at the contract's address and binds the
// contract to its Code
func (vm *VM) Deploy(c Contract) error {
	if c == nil {
		return fmt.Errorf("contract cannot be nil")
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	addr := c.Address()
	if _, ok := vm.contracts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr.Hex())
	}
	if err := c.Bind(&Code{vm: vm, address: addr}); err != nil {
		return err
	}
	vm.contracts[addr] = c
	vm.logger.Debug("Contract deployed", zap.String("address", addr.Hex()))
	return nil
}

// Digest returns the current state digest
func (vm *VM) Digest() uint64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Digest()
}

// Logs returns all committed logs
func (vm *VM) Logs() []*types.Log {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Logs()
}

// Transact runs fn as a transaction sent by the externally owned account
// from. Either every effect of fn commits or none does. A from address with
// code deployed at it fails with ErrSenderNotEOA.
func (vm *VM) Transact(from common.Address, fn func(*Frame) error) *Receipt {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.execute(from, false, false, fn)
}

// DryRun runs fn like Transact and then discards every effect
func (vm *VM) DryRun(from common.Address, fn func(*Frame) error) *Receipt {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.execute(from, false, true, fn)
}

// View runs fn as a read-only call
func (vm *VM) View(from common.Address, fn func(*Frame) error) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.execute(from, true, true, fn).Err
}

func (vm *VM) execute(from common.Address, readOnly, discard bool, fn func(*Frame) error) *Receipt {
	receipt := &Receipt{PreStateDigest: vm.state.Digest()}
	if _, ok := vm.contracts[from]; ok {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Err = fmt.Errorf("%w: %s", ErrSenderNotEOA, from.Hex())
		return receipt
	}
	firstLog := len(vm.state.logs)
	snap := vm.state.Snapshot()

	root := &Frame{
		vm:       vm,
		origin:   from,
		caller:   from,
		self:     from,
		readOnly: readOnly,
		status:   frameActive,
	}

	err := fn(root)
	root.status = frameDone
	if err == nil {
		receipt.Status = types.ReceiptStatusSuccessful
		receipt.Logs = append([]*types.Log(nil), vm.state.logs[firstLog:]...)
	} else {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Err = err
	}

	if err != nil || discard {
		vm.state.RevertToSnapshot(snap)
	}
	vm.state.commit()

	if err != nil && !readOnly {
		vm.logger.Debug("Transaction reverted",
			zap.String("from", from.Hex()),
			zap.Error(err))
	}
	return receipt
}

// Resolve returns the contract deployed at addr as a T
func Resolve[T any](f *Frame, addr common.Address) (T, error) {
	var zero T
	c, ok := f.vm.contracts[addr]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNoCode, addr.Hex())
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotImplemented, addr.Hex())
	}
	return t, nil
}
