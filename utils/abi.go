package utils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MustABIType parses a Solidity type name for package-level argument lists.
// It panics on a malformed name.
func MustABIType(name string) abi.Type {
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %q: %v", name, err))
	}
	return typ
}
