package fixedpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

// MulDiv returns floor(x*y/d) computed with a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmeticOverflow)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// MulDivRoundingUp returns ceil(x*y/d).
func MulDivRoundingUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return z, nil
	}
	if _, overflow := z.AddOverflow(z, one); overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// DivRoundingUp returns ceil(x/d).
func DivRoundingUp(x, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmeticOverflow)
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(x, d, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// Add returns x+y or ErrArithmeticOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// Sub returns x-y or ErrArithmeticOverflow when y > x.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// WrappingSub returns x-y modulo 2^256. Fee growth counters rely on it.
func WrappingSub(x, y *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sub(x, y)
}

// Min returns the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}
