package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Code is the entry point VM.Deploy issues to a contract. A pending frame
// addressed to the contract can only be entered through it, so no other
// code ever runs with the contract's address as Self. Contracts keep their
// Code in an unexported field.
type Code struct {
	vm      *VM
	address common.Address
}

// Address is where the code is deployed
func (c *Code) Address() common.Address { return c.address }

// Bind stores code in *slot. Contracts implement Contract.Bind with it; a
// contract accepts exactly one Code.
func Bind(slot **Code, code *Code) error {
	if code == nil {
		return fmt.Errorf("code cannot be nil")
	}
	if *slot != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, (*slot).address.Hex())
	}
	*slot = code
	return nil
}

// Enter runs fn as the contract in a new frame for the pending call f.
// Effects of fn are discarded if it returns an error.
func (c *Code) Enter(f *Frame, fn func(*Frame) error) error {
	return c.enter(f, false, fn)
}

// EnterStatic is Enter with writes rejected however the call was opened
func (c *Code) EnterStatic(f *Frame, fn func(*Frame) error) error {
	return c.enter(f, true, fn)
}

func (c *Code) enter(f *Frame, static bool, fn func(*Frame) error) error {
	if c == nil || c.vm == nil {
		return ErrNotDeployed
	}
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.err != nil {
		return f.err
	}
	if f.vm != c.vm {
		return fmt.Errorf("%w: frame belongs to another VM", ErrInvalidFrame)
	}
	if f.self != c.address {
		return fmt.Errorf("%w: call to %s entered by %s", ErrWrongTarget, f.self.Hex(), c.address.Hex())
	}
	if f.status != framePending || f.parent == nil || f.parent.status != frameActive {
		return fmt.Errorf("%w: call to %s is not pending", ErrInvalidFrame, f.self.Hex())
	}
	if f.depth > c.vm.maxDepth {
		return ErrDepthExceeded
	}
	f.status = frameDone

	frame := &Frame{
		vm:       c.vm,
		parent:   f.parent,
		origin:   f.origin,
		caller:   f.caller,
		self:     c.address,
		depth:    f.depth,
		readOnly: f.readOnly || static,
		status:   frameActive,
	}
	snap := c.vm.state.Snapshot()
	err := fn(frame)
	frame.status = frameDone
	if err != nil {
		c.vm.state.RevertToSnapshot(snap)
	}
	return err
}
