package math

import (
	"fmt"
	"math/big"
)

// BasisPoints is the denominator for rates expressed in basis points
const BasisPoints = 10_000

// BigInt extends *big.Int with the helpers used for loan pricing
type BigInt struct {
	*big.Int
}

// NewBigInt creates a new BigInt
func NewBigInt(x int64) *BigInt {
	return &BigInt{Int: big.NewInt(x)}
}

// NewBigIntFromInt wraps a copy of x. A nil x becomes zero.
func NewBigIntFromInt(x *big.Int) *BigInt {
	if x == nil {
		return NewBigInt(0)
	}
	return &BigInt{Int: new(big.Int).Set(x)}
}

// Add adds x and y and stores the result in z
func (z *BigInt) Add(x, y *BigInt) *BigInt {
	z.Int.Add(x.Int, y.Int)
	return z
}

// Mul multiplies x and y and stores the result in z
func (z *BigInt) Mul(x, y *BigInt) *BigInt {
	z.Int.Mul(x.Int, y.Int)
	return z
}

// Quo divides x by y truncating toward zero and stores the result in z
func (z *BigInt) Quo(x, y *BigInt) *BigInt {
	z.Int.Quo(x.Int, y.Int)
	return z
}

// IsZero returns true if x is zero
func (x *BigInt) IsZero() bool {
	return x.Sign() == 0
}

// MulDiv returns floor(x * numerator / denominator) for non-negative x
func MulDiv(x *big.Int, numerator, denominator int64) (*big.Int, error) {
	if denominator <= 0 {
		return nil, fmt.Errorf("denominator must be positive, got %d", denominator)
	}
	if numerator < 0 {
		return nil, fmt.Errorf("numerator must not be negative, got %d", numerator)
	}
	if x == nil || x.Sign() < 0 {
		return nil, fmt.Errorf("operand must not be negative, got %v", x)
	}
	out := NewBigIntFromInt(x)
	out.Mul(out, NewBigInt(numerator))
	out.Quo(out, NewBigInt(denominator))
	return out.Int, nil
}

// CalculateFlashLoanFee returns amount * feeRate / 10000, truncated.
// feeRate is in basis points (9 = 0.09%).
func (amount *BigInt) CalculateFlashLoanFee(feeRate *BigInt) *BigInt {
	if amount.IsZero() {
		return NewBigInt(0)
	}

	fee := NewBigInt(0)
	fee.Mul(amount, feeRate)
	fee.Quo(fee, NewBigInt(BasisPoints))

	return fee
}

// TotalRepayment returns principal + fee as a new value
func TotalRepayment(principal, fee *big.Int) *big.Int {
	return NewBigInt(0).Add(NewBigIntFromInt(principal), NewBigIntFromInt(fee)).Int
}
