package chain

import (
	"bytes"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// slot addresses one storage word of one contract
type slot struct {
	addr common.Address
	key  common.Hash
}

type journalEntry interface {
	revert(s *State)
}

type storageChange struct {
	slot slot
	prev *uint256.Int // nil when the slot was empty
}

func (c storageChange) revert(s *State) {
	if c.prev == nil {
		delete(s.storage, c.slot)
		return
	}
	s.storage[c.slot] = c.prev
}

type logChange struct{}

func (logChange) revert(s *State) {
	s.logs = s.logs[:len(s.logs)-1]
}

// State is the word-addressed storage shared by every deployed contract.
// All writes are journaled so that a failed call frame can be unwound to the
// snapshot taken when it was entered.
type State struct {
	storage map[slot]*uint256.Int
	logs    []*types.Log
	journal []journalEntry
}

// NewState creates an empty state
func NewState() *State {
	return &State{
		storage: make(map[slot]*uint256.Int),
	}
}

// Get returns a copy of the word stored at key for addr. Empty slots read as zero.
func (s *State) Get(addr common.Address, key common.Hash) *uint256.Int {
	v, ok := s.storage[slot{addr: addr, key: key}]
	if !ok {
		return new(uint256.Int)
	}
	return v.Clone()
}

// Set stores val at key for addr. Zero values clear the slot.
func (s *State) Set(addr common.Address, key common.Hash, val *uint256.Int) {
	k := slot{addr: addr, key: key}
	prev := s.storage[k]
	s.journal = append(s.journal, storageChange{slot: k, prev: prev})
	if val == nil || val.IsZero() {
		delete(s.storage, k)
		return
	}
	s.storage[k] = val.Clone()
}

func (s *State) addLog(l *types.Log) {
	l.Index = uint(len(s.logs))
	s.logs = append(s.logs, l)
	s.journal = append(s.journal, logChange{})
}

// Logs returns every log emitted by committed transactions, oldest first
func (s *State) Logs() []*types.Log {
	out := make([]*types.Log, len(s.logs))
	copy(out, s.logs)
	return out
}

// Snapshot returns an identifier for the current revision of the state
func (s *State) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken
func (s *State) RevertToSnapshot(id int) {
	if id < 0 || id > len(s.journal) {
		return
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i].revert(s)
	}
	s.journal = s.journal[:id]
}

// commit drops the journal once a top-level transaction has succeeded
func (s *State) commit() {
	s.journal = s.journal[:0]
}

// Digest fingerprints all non-empty storage. Two states with equal storage
// have equal digests regardless of the order the writes happened in.
func (s *State) Digest() uint64 {
	keys := make([]slot, 0, len(s.storage))
	for k := range s.storage {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].addr[:], keys[j].addr[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(keys[i].key[:], keys[j].key[:]) < 0
	})

	h := xxhash.New()
	for _, k := range keys {
		word := s.storage[k].Bytes32()
		_, _ = h.Write(k.addr[:])
		_, _ = h.Write(k.key[:])
		_, _ = h.Write(word[:])
	}
	return h.Sum64()
}
