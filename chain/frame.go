package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

type frameStatus uint8

const (
	framePending frameStatus = iota
	frameActive
	frameDone
)

// Frame is the execution context of one call.
//
// A contract method receives a pending frame opened by its caller with Call
// or StaticCall and addressed to the contract. The contract enters it through
// the Code it was deployed with and runs in the fresh frame Enter hands it.
// Only active frames can write, emit or open further calls.
type Frame struct {
	vm       *VM
	parent   *Frame
	origin   common.Address
	caller   common.Address
	self     common.Address
	depth    int
	readOnly bool
	status   frameStatus
	err      error
}

// Origin is the account that sent the transaction
func (f *Frame) Origin() common.Address { return f.origin }

// Caller is the account or contract that opened this frame
func (f *Frame) Caller() common.Address { return f.caller }

// Self is the account executing in this frame, or the callee of a pending one
func (f *Frame) Self() common.Address { return f.self }

// Depth is zero for the transaction sender and grows by one per nested call
func (f *Frame) Depth() int { return f.depth }

// ReadOnly reports whether writes are rejected in this frame
func (f *Frame) ReadOnly() bool { return f.readOnly }

// Logger returns the VM logger
func (f *Frame) Logger() *zap.Logger { return f.vm.logger }

// Load reads a storage word of Self
func (f *Frame) Load(key common.Hash) *uint256.Int {
	return f.vm.state.Get(f.self, key)
}

// Store writes a storage word of the executing contract
func (f *Frame) Store(key common.Hash, val *uint256.Int) error {
	if err := f.active(); err != nil {
		return err
	}
	if f.readOnly {
		return ErrWriteProtection
	}
	f.vm.state.Set(f.self, key, val)
	return nil
}

// Emit records a log for the executing contract
func (f *Frame) Emit(topics []common.Hash, data []byte) error {
	if err := f.active(); err != nil {
		return err
	}
	if f.readOnly {
		return ErrWriteProtection
	}
	f.vm.state.addLog(&types.Log{
		Address: f.self,
		Topics:  topics,
		Data:    data,
	})
	return nil
}

// Call opens a pending call from this frame's account to the contract at to.
// It can be entered once, and only by the code deployed at to.
func (f *Frame) Call(to common.Address) *Frame {
	return f.open(to, f.readOnly)
}

// StaticCall opens a pending read-only call to the contract at to
func (f *Frame) StaticCall(to common.Address) *Frame {
	return f.open(to, true)
}

func (f *Frame) open(to common.Address, readOnly bool) *Frame {
	return &Frame{
		vm:       f.vm,
		parent:   f,
		origin:   f.origin,
		caller:   f.self,
		self:     to,
		depth:    f.depth + 1,
		readOnly: readOnly,
		status:   framePending,
		err:      f.active(),
	}
}

func (f *Frame) active() error {
	if f.status != frameActive {
		return fmt.Errorf("%w: frame of %s is not executing", ErrInvalidFrame, f.self.Hex())
	}
	return nil
}
