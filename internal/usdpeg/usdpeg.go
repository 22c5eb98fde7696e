// Package usdpeg converts between USD-denominated amounts and tokens at an
// oracle price. USD amounts and prices carry seven decimals.
package usdpeg

import (
	"math/bits"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Decimals is the fixed-point precision of USD amounts and prices.
const Decimals = 7

// Scale is 10^Decimals.
const Scale int64 = 10_000_000

// Price is an oracle observation: USD per token with seven decimals, and the
// unix time it was taken.
type Price struct {
	Value int64 `json:"price"`
	AsOf  int64 `json:"as_of"`
}

// Check enforces the peg's staleness window and price bounds on p. Nothing
// reported by the oracle is trusted beyond these checks.
func Check(p Price, peg *stream.USDPeg, now int64) error {
	if peg.MaxStaleness >= 0 && now-p.AsOf > peg.MaxStaleness {
		return stream.Errorf(stream.CodeOracleStalePrice, "price from %d is older than %ds at %d", p.AsOf, peg.MaxStaleness, now)
	}
	if p.Value <= 0 {
		return stream.Errorf(stream.CodeOracleFailed, "non-positive price %d", p.Value)
	}
	if p.Value < peg.PriceMin || (peg.PriceMax > 0 && p.Value > peg.PriceMax) {
		return stream.Errorf(stream.CodePriceOutOfBounds, "price %d outside [%d, %d]", p.Value, peg.PriceMin, peg.PriceMax)
	}
	return nil
}

// ValidatePeg checks the static peg parameters at creation.
func ValidatePeg(peg *stream.USDPeg) error {
	switch {
	case peg.USDAmount <= 0:
		return stream.Errorf(stream.CodeInvalidAmount, "usd amount must be positive, got %d", peg.USDAmount)
	case peg.Oracle == "":
		return stream.Errorf(stream.CodeInvalidRequest, "oracle is required")
	case peg.MaxStaleness < 0:
		return stream.Errorf(stream.CodeInvalidRequest, "max staleness must not be negative")
	case peg.PriceMin < 0 || (peg.PriceMax > 0 && peg.PriceMax < peg.PriceMin):
		return stream.Errorf(stream.CodeInvalidRequest, "invalid price bounds [%d, %d]", peg.PriceMin, peg.PriceMax)
	}
	return nil
}

// TokensForUSD returns floor(usd*10^7/price).
func TokensForUSD(usd, price int64) (int64, error) {
	if price <= 0 {
		return 0, stream.Errorf(stream.CodeOracleFailed, "non-positive price %d", price)
	}
	if usd <= 0 {
		return 0, nil
	}
	hi, lo := bits.Mul64(uint64(usd), uint64(Scale))
	if hi >= uint64(price) {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "usd %d at price %d exceeds 64 bits", usd, price)
	}
	q, _ := bits.Div64(hi, lo, uint64(price))
	if q > 1<<63-1 {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "usd %d at price %d exceeds int64", usd, price)
	}
	return int64(q), nil
}

// Format renders a seven-decimal fixed-point amount.
func Format(v int64) string {
	return decimal.New(v, -Decimals).StringFixed(Decimals)
}

// Parse reads a decimal string such as "1.25" into seven-decimal fixed point,
// truncating extra precision.
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, stream.Wrap(stream.CodeInvalidRequest, err, "parse amount")
	}
	scaled := d.Shift(Decimals).Truncate(0)
	if !scaled.IsInteger() || scaled.GreaterThan(decimal.NewFromInt(1<<63-1)) || scaled.LessThan(decimal.NewFromInt(-1<<63)) {
		return 0, stream.Errorf(stream.CodeArithmeticOverflow, "amount %s out of range", s)
	}
	return scaled.IntPart(), nil
}
