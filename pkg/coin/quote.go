// Package coin defines the market-data records shared by the upstream client,
// the cache, the fallback resolver and the HTTP layer.
package coin

import (
	"time"
)

// Field identifies one derived market-data field.
type Field uint8

const (
	FieldPrice Field = iota
	FieldChange1h
	FieldChange24h
	FieldChange7d
	FieldMarketCap
	FieldVolume24h
	FieldVolumeChange24h
	FieldCirculatingSupply
)

// Fields lists every derived field in display order.
var Fields = []Field{
	FieldPrice,
	FieldChange1h,
	FieldChange24h,
	FieldChange7d,
	FieldMarketCap,
	FieldVolume24h,
	FieldVolumeChange24h,
	FieldCirculatingSupply,
}

var fieldNames = [...]string{
	FieldPrice:             "price",
	FieldChange1h:          "price_change_1h",
	FieldChange24h:         "price_change_24h",
	FieldChange7d:          "price_change_7d",
	FieldMarketCap:         "market_cap",
	FieldVolume24h:         "volume_24h",
	FieldVolumeChange24h:   "volume_change_24h",
	FieldCirculatingSupply: "circulating_supply",
}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "unknown"
}

// FieldSet is a bit set of fields an upstream response actually carried.
type FieldSet uint16

// With returns the set with f added.
func (s FieldSet) With(f Field) FieldSet { return s | 1<<f }

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool { return s&(1<<f) != 0 }

// Quote is a normalized upstream quote for one asset.
// Values are immutable once constructed; the cache only replaces whole quotes.
type Quote struct {
	AssetID           int64     `json:"asset_id"`
	PriceUSD          float64   `json:"price_usd"`
	PctChange1h       float64   `json:"pct_change_1h"`
	PctChange24h      float64   `json:"pct_change_24h"`
	PctChange7d       float64   `json:"pct_change_7d"`
	MarketCapUSD      float64   `json:"market_cap_usd"`
	Volume24hUSD      float64   `json:"volume_24h_usd"`
	VolumeChange24h   float64   `json:"volume_change_24h"`
	CirculatingSupply float64   `json:"circulating_supply"`
	FetchedAt         time.Time `json:"fetched_at"`

	// Present marks the fields the source endpoint provided. The info
	// endpoint is sparse, so a zero value is not the same as a missing one.
	Present FieldSet `json:"present"`

	// Origin names the endpoint that produced the quote.
	Origin string `json:"origin"`
}

// Value returns the value of f and whether the source provided it.
func (q Quote) Value(f Field) (float64, bool) {
	var v float64
	switch f {
	case FieldPrice:
		v = q.PriceUSD
	case FieldChange1h:
		v = q.PctChange1h
	case FieldChange24h:
		v = q.PctChange24h
	case FieldChange7d:
		v = q.PctChange7d
	case FieldMarketCap:
		v = q.MarketCapUSD
	case FieldVolume24h:
		v = q.Volume24hUSD
	case FieldVolumeChange24h:
		v = q.VolumeChange24h
	case FieldCirculatingSupply:
		v = q.CirculatingSupply
	default:
		return 0, false
	}
	return v, q.Present.Has(f)
}

// Newer reports whether q was fetched after other.
func (q Quote) Newer(other Quote) bool {
	return q.FetchedAt.After(other.FetchedAt)
}

// IsEmpty reports whether the quote carries no fields at all.
func (q Quote) IsEmpty() bool {
	return q.Present == 0
}
