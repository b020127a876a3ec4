package fees

import (
	"errors"
	"fmt"
	"math/big"
)

// BasisPointsDenominator is the divisor applied to basis-point rates.
const BasisPointsDenominator = 10_000

var (
	errNegativeGross = errors.New("fees: gross amount must not be negative")
	errBpsRange      = fmt.Errorf("fees: rate must be within [0, %d] basis points", BasisPointsDenominator)
)

// Result summarises a settlement split. Fee and Net always sum to the gross
// amount supplied to Split.
type Result struct {
	Fee *big.Int
	Net *big.Int
}

// ValidateBps ensures the supplied rate is expressible as a share of the gross
// amount.
func ValidateBps(bps uint32) error {
	if bps > BasisPointsDenominator {
		return errBpsRange
	}
	return nil
}

// Split divides gross into the platform fee and the remainder owed to the
// payee. The fee is floor(gross*bps/10000); any rounding dust stays with the
// payee.
func Split(gross *big.Int, bps uint32) (Result, error) {
	if err := ValidateBps(bps); err != nil {
		return Result{}, err
	}
	result := Result{Fee: big.NewInt(0), Net: big.NewInt(0)}
	if gross == nil || gross.Sign() == 0 {
		return result, nil
	}
	if gross.Sign() < 0 {
		return Result{}, errNegativeGross
	}
	result.Net = new(big.Int).Set(gross)
	if bps == 0 {
		return result, nil
	}
	fee := new(big.Int).Mul(gross, big.NewInt(int64(bps)))
	fee.Quo(fee, big.NewInt(BasisPointsDenominator))
	result.Fee = fee
	result.Net = new(big.Int).Sub(gross, fee)
	return result, nil
}

// Totals aggregates settled volume and fees for a single payment token.
type Totals struct {
	Gross *big.Int
	Fee   *big.Int
	Net   *big.Int
}

// Add accumulates a settlement result into the totals.
func (t *Totals) Add(gross *big.Int, result Result) {
	if t.Gross == nil {
		t.Gross, t.Fee, t.Net = big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	if gross != nil {
		t.Gross.Add(t.Gross, gross)
	}
	if result.Fee != nil {
		t.Fee.Add(t.Fee, result.Fee)
	}
	if result.Net != nil {
		t.Net.Add(t.Net, result.Net)
	}
}

// Clone returns a copy of the totals structure with duplicated big.Int values.
func (t Totals) Clone() Totals {
	var clone Totals
	if t.Gross != nil {
		clone.Gross = new(big.Int).Set(t.Gross)
	}
	if t.Fee != nil {
		clone.Fee = new(big.Int).Set(t.Fee)
	}
	if t.Net != nil {
		clone.Net = new(big.Int).Set(t.Net)
	}
	return clone
}
