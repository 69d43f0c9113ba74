package service

import (
	"math/bits"

	"github.com/shinyyama/sensor-market/internal/model"
)

// PriceFor returns pricePerUnit*units, failing when the product exceeds
// model.MaxAmount.
func PriceFor(pricePerUnit, units uint64) (uint64, error) {
	hi, lo := bits.Mul64(pricePerUnit, units)
	if hi != 0 || lo > model.MaxAmount {
		return 0, ErrMathOverflow
	}
	return lo, nil
}

// SplitFee divides price into the marketplace fee, floor(price*bps/10000),
// and the seller's share. The product is taken in 128 bits.
func SplitFee(price uint64, bps uint16) (fee, toSeller uint64, err error) {
	if bps > model.MaxFeeBps {
		return 0, 0, ErrInvalidFeeBps
	}
	hi, lo := bits.Mul64(price, uint64(bps))
	// bps <= 10000 keeps hi below the divisor, so Div64 cannot panic.
	fee, _ = bits.Div64(hi, lo, model.MaxFeeBps)
	if fee > price {
		return 0, 0, ErrMathOverflow
	}
	toSeller = price - fee
	if sum, carry := bits.Add64(fee, toSeller, 0); carry != 0 || sum != price {
		return 0, 0, ErrFeeMismatch
	}
	return fee, toSeller, nil
}
