package coin

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates that neither the catalog nor the upstream knows the identifier.
	ErrNotFound = errors.New("coin not found")

	// ErrInvalidInput indicates a missing or malformed identifier.
	ErrInvalidInput = errors.New("invalid coin identifier")
)

// Source tells which tier a resolved field came from.
type Source uint8

const (
	SourceDefault Source = iota
	SourceCatalog
	SourceLive
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceCatalog:
		return "catalog"
	default:
		return "default"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	switch string(b) {
	case "live":
		*s = SourceLive
	case "catalog":
		*s = SourceCatalog
	case "default", "":
		*s = SourceDefault
	default:
		return fmt.Errorf("unknown source %q", b)
	}
	return nil
}

// Value is a resolved number tagged with the tier it came from.
type Value struct {
	Amount float64 `json:"amount"`
	Source Source  `json:"source"`
}

// Status summarizes how a coin was resolved.
type Status string

const (
	// StatusResolved means live data was available.
	StatusResolved Status = "resolved"

	// StatusStale means no live data; fields came from the catalog.
	StatusStale Status = "resolved_stale"

	// StatusEmpty means no live data and nothing persisted; fields are zero.
	StatusEmpty Status = "resolved_empty"
)

// ResolvedCoin is the output of the fallback resolver. It is always
// structurally complete: every field has a value, possibly a zero default.
type ResolvedCoin struct {
	ID            string    `json:"id"`
	CMCExternalID int64     `json:"cmc_external_id"`
	Slug          string    `json:"slug"`
	Ticker        string    `json:"ticker"`
	Name          string    `json:"name"`
	Rank          int       `json:"rank"`
	Status        Status    `json:"status"`
	LastUpdated   time.Time `json:"last_updated"`

	Price             Value `json:"price"`
	Change1h          Value `json:"change_1h"`
	Change24h         Value `json:"change_24h"`
	Change7d          Value `json:"change_7d"`
	MarketCap         Value `json:"market_cap"`
	Volume24h         Value `json:"volume_24h"`
	VolumeChange24h   Value `json:"volume_change_24h"`
	CirculatingSupply Value `json:"circulating_supply"`

	// Expires is when the underlying live quote goes stale. Zero when no
	// live quote was involved.
	Expires time.Time `json:"expires"`
}

// Get returns a pointer to the value slot for f.
func (c *ResolvedCoin) Get(f Field) *Value {
	switch f {
	case FieldPrice:
		return &c.Price
	case FieldChange1h:
		return &c.Change1h
	case FieldChange24h:
		return &c.Change24h
	case FieldChange7d:
		return &c.Change7d
	case FieldMarketCap:
		return &c.MarketCap
	case FieldVolume24h:
		return &c.Volume24h
	case FieldVolumeChange24h:
		return &c.VolumeChange24h
	case FieldCirculatingSupply:
		return &c.CirculatingSupply
	}
	return nil
}

// Sources maps each field name to the tier it came from.
func (c *ResolvedCoin) Sources() map[string]Source {
	out := make(map[string]Source, len(Fields))
	for _, f := range Fields {
		out[f.String()] = c.Get(f).Source
	}
	return out
}
