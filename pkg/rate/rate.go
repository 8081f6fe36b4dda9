// Package rate computes conversion rates between fiat currencies and crypto assets.
//
// Every function in this package is pure: no I/O, no shared state.
package rate

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// AssetRecord is one side of a conversion.
// Crypto records carry a USD price; fiat records carry a currency code that is
// looked up in a FiatTable.
type AssetRecord struct {
	ID       string  `json:"id"`
	IsCrypto bool    `json:"is_crypto"`
	PriceUSD float64 `json:"price_usd"`
	Code     string  `json:"code"`
}

// Crypto builds a crypto asset record.
func Crypto(id string, priceUSD float64) AssetRecord {
	return AssetRecord{ID: id, IsCrypto: true, PriceUSD: priceUSD, Code: id}
}

// Fiat builds a fiat asset record.
func Fiat(code string) AssetRecord {
	code = strings.ToUpper(code)
	return AssetRecord{ID: code, Code: code}
}

// FiatTable maps a currency code to units of that currency per one USD.
type FiatTable map[string]float64

// DefaultFiatTable is used when no upstream table is available.
func DefaultFiatTable() FiatTable {
	return FiatTable{"USD": 1}
}

// Multiplier returns the table value for code, or 1 when the code is missing.
func (t FiatTable) Multiplier(code string) float64 {
	if v, ok := t[strings.ToUpper(code)]; ok {
		return v
	}
	return 1
}

// Has reports whether the table knows code.
func (t FiatTable) Has(code string) bool {
	_, ok := t[strings.ToUpper(code)]
	return ok
}

// Rate returns how many units of to one unit of from is worth.
// It returns 0 when either side has no usable price; callers must treat 0 as
// "rate unavailable".
//
// Fiat to crypto is 1/(table[from]*to.PriceUSD) rather than
// table[from]/to.PriceUSD; the two agree for USD, and only the former keeps
// Rate(a, b)*Rate(b, a) == 1 for other fiat codes.
func Rate(from, to AssetRecord, table FiatTable) float64 {
	fromPrice := price(from, table)
	toPrice := price(to, table)
	if !usable(fromPrice) || !usable(toPrice) {
		return 0
	}

	var r float64
	switch {
	case !from.IsCrypto && !to.IsCrypto:
		r = toPrice / fromPrice
	case !from.IsCrypto && to.IsCrypto:
		// fromPrice is units of from per USD, so one unit is 1/fromPrice USD.
		r = 1 / (fromPrice * toPrice)
	case from.IsCrypto && !to.IsCrypto:
		r = fromPrice * toPrice
	default:
		r = fromPrice / toPrice
	}

	if !usable(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Inverse returns 1/r, or 0 when r is unusable.
func Inverse(r float64) float64 {
	if !usable(r) {
		return 0
	}
	return 1 / r
}

// Convert multiplies amount by r in decimal arithmetic.
func Convert(amount decimal.Decimal, r float64) decimal.Decimal {
	if !usable(r) {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromFloat(r))
}

// price is the number the rate formulas use for a record: the USD price for
// crypto, the table multiplier for fiat.
func price(a AssetRecord, table FiatTable) float64 {
	if a.IsCrypto {
		return a.PriceUSD
	}
	return table.Multiplier(a.Code)
}

func usable(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
