package lendingpool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

func slotKey(slot uint64) common.Hash {
	return common.Hash(uint256.NewInt(slot).Bytes32())
}

func mappingKey(addr common.Address, slot uint64) common.Hash {
	word := uint256.NewInt(slot).Bytes32()
	return crypto.Keccak256Hash(common.LeftPadBytes(addr.Bytes(), 32), word[:])
}

func addressWord(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes20(addr.Bytes())
}

func wordAddress(word *uint256.Int) common.Address {
	return common.Address(word.Bytes20())
}
