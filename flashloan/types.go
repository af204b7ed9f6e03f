package flashloan

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CallbackSuccess is the value a borrower returns to accept a loan
var CallbackSuccess = crypto.Keccak256Hash([]byte("ERC3156FlashBorrower.onFlashLoan"))

// InitiatorPolicy selects which address a lender reports to the borrower as
// the loan initiator.
type InitiatorPolicy int

const (
	// InitiatorAdapter reports the lender contract itself
	InitiatorAdapter InitiatorPolicy = iota
	// InitiatorOrigin reports the account that requested the loan
	InitiatorOrigin
)

func (p InitiatorPolicy) String() string {
	switch p {
	case InitiatorAdapter:
		return "adapter"
	case InitiatorOrigin:
		return "origin"
	default:
		return fmt.Sprintf("InitiatorPolicy(%d)", int(p))
	}
}

// ParseInitiatorPolicy accepts "adapter" and "origin". Empty means adapter.
func ParseInitiatorPolicy(s string) (InitiatorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "adapter":
		return InitiatorAdapter, nil
	case "origin":
		return InitiatorOrigin, nil
	default:
		return 0, fmt.Errorf("unknown initiator policy %q", s)
	}
}

// Quote is one lender's offer for a token
type Quote struct {
	Lender  string
	Address common.Address
	MaxLoan *big.Int
	Fee     *big.Int
}

// Covers reports whether the lender can lend amount
func (q Quote) Covers(amount *big.Int) bool {
	return q.MaxLoan != nil && amount != nil && q.MaxLoan.Cmp(amount) >= 0
}
