package coin

import (
	"time"
)

// TokenRecord is the persisted catalog record of a token.
// Market fields are pointers: nil means the catalog never stored a value.
type TokenRecord struct {
	ID            string       `json:"id"`
	CMCExternalID int64        `json:"cmcExternalId,omitempty"`
	Slug          string       `json:"slug"`
	Ticker        string       `json:"ticker"`
	Name          string       `json:"name"`
	Rank          int          `json:"rank"`
	CurrentPrice  CurrentPrice `json:"currentPrice"`
	MarketData    MarketData   `json:"marketData"`
	PriceChanges  PriceChanges `json:"priceChanges"`
}

// CurrentPrice is the last persisted spot price.
type CurrentPrice struct {
	USD         *float64  `json:"usd,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
}

// MarketData holds the last persisted market aggregates.
type MarketData struct {
	MarketCap         *float64 `json:"marketCap,omitempty"`
	Volume24h         *float64 `json:"volume24h,omitempty"`
	VolumeChange24h   *float64 `json:"volumeChange24h,omitempty"`
	CirculatingSupply *float64 `json:"circulatingSupply,omitempty"`
	TotalSupply       *float64 `json:"totalSupply,omitempty"`
	MaxSupply         *float64 `json:"maxSupply,omitempty"`
}

// PriceChanges holds the last persisted percentage changes.
type PriceChanges struct {
	Hour1 *float64 `json:"hour1,omitempty"`
	Day1  *float64 `json:"day1,omitempty"`
	Week1 *float64 `json:"week1,omitempty"`
}

// MarketDataPatch is a partial update of a catalog record.
// Only non-nil fields are applied.
type MarketDataPatch struct {
	PriceUSD          *float64 `json:"priceUsd,omitempty"`
	MarketCap         *float64 `json:"marketCap,omitempty"`
	Volume24h         *float64 `json:"volume24h,omitempty"`
	CirculatingSupply *float64 `json:"circulatingSupply,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p MarketDataPatch) IsEmpty() bool {
	return p.PriceUSD == nil && p.MarketCap == nil && p.Volume24h == nil && p.CirculatingSupply == nil
}

// CatalogValue returns the persisted value for f, or nil.
func (r *TokenRecord) CatalogValue(f Field) *float64 {
	if r == nil {
		return nil
	}
	switch f {
	case FieldPrice:
		return r.CurrentPrice.USD
	case FieldChange1h:
		return r.PriceChanges.Hour1
	case FieldChange24h:
		return r.PriceChanges.Day1
	case FieldChange7d:
		return r.PriceChanges.Week1
	case FieldMarketCap:
		return r.MarketData.MarketCap
	case FieldVolume24h:
		return r.MarketData.Volume24h
	case FieldVolumeChange24h:
		return r.MarketData.VolumeChange24h
	case FieldCirculatingSupply:
		return r.MarketData.CirculatingSupply
	}
	return nil
}

// HasMarketData reports whether any derived field was ever persisted.
func (r *TokenRecord) HasMarketData() bool {
	for _, f := range Fields {
		if r.CatalogValue(f) != nil {
			return true
		}
	}
	return false
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
