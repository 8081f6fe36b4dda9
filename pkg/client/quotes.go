package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coinrate/pkg/coin"
	"github.com/Sternrassler/coinrate/pkg/rate"
)

// Upstream endpoints.
const (
	PathQuotesLatest = "/v2/cryptocurrency/quotes/latest"
	PathInfo         = "/v2/cryptocurrency/info"
	PathFiatRates    = "/v1/fiat/rates"
)

// Origins recorded on normalized quotes.
const (
	OriginQuotes = "quotes_latest"
	OriginInfo   = "info"
)

// number accepts a JSON number, a numeric string or null.
type number struct {
	v  float64
	ok bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = number{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = number{}
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("numeric string %q: %w", s, err)
		}
		*n = number{v: v, ok: !math.IsNaN(v) && !math.IsInf(v, 0)}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = number{v: v, ok: true}
	return nil
}

type usdQuote struct {
	Price            number `json:"price"`
	Volume24h        number `json:"volume_24h"`
	VolumeChange24h  number `json:"volume_change_24h"`
	PercentChange1h  number `json:"percent_change_1h"`
	PercentChange24h number `json:"percent_change_24h"`
	PercentChange7d  number `json:"percent_change_7d"`
	MarketCap        number `json:"market_cap"`
}

type assetPayload struct {
	ID                int64               `json:"id"`
	CirculatingSupply number              `json:"circulating_supply"`
	Quote             map[string]usdQuote `json:"quote"`

	// info endpoint
	SelfReportedCirculatingSupply number `json:"self_reported_circulating_supply"`
	SelfReportedMarketCap         number `json:"self_reported_market_cap"`
}

// decodeEntry decodes a data entry that is either an object or an array whose
// first element is the object.
func decodeEntry(raw json.RawMessage) (*assetPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, nil
		}
		raw = list[0]
	}
	var p assetPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// decodeData decodes the data member keyed by id.
func decodeData(data json.RawMessage) (map[int64]*assetPayload, error) {
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	out := make(map[int64]*assetPayload, len(byID))
	for k, raw := range byID {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		p, err := decodeEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", k, err)
		}
		if p != nil {
			out[id] = p
		}
	}
	return out, nil
}

func set(q *coin.Quote, f coin.Field, n number) {
	if !n.ok {
		return
	}
	switch f {
	case coin.FieldPrice:
		q.PriceUSD = n.v
	case coin.FieldChange1h:
		q.PctChange1h = n.v
	case coin.FieldChange24h:
		q.PctChange24h = n.v
	case coin.FieldChange7d:
		q.PctChange7d = n.v
	case coin.FieldMarketCap:
		q.MarketCapUSD = n.v
	case coin.FieldVolume24h:
		q.Volume24hUSD = n.v
	case coin.FieldVolumeChange24h:
		q.VolumeChange24h = n.v
	case coin.FieldCirculatingSupply:
		q.CirculatingSupply = n.v
	}
	q.Present = q.Present.With(f)
}

func (p *assetPayload) quote(id int64, origin string, now time.Time) coin.Quote {
	q := coin.Quote{AssetID: id, FetchedAt: now, Origin: origin}
	if usd, ok := p.Quote["USD"]; ok {
		set(&q, coin.FieldPrice, usd.Price)
		set(&q, coin.FieldChange1h, usd.PercentChange1h)
		set(&q, coin.FieldChange24h, usd.PercentChange24h)
		set(&q, coin.FieldChange7d, usd.PercentChange7d)
		set(&q, coin.FieldMarketCap, usd.MarketCap)
		set(&q, coin.FieldVolume24h, usd.Volume24h)
		set(&q, coin.FieldVolumeChange24h, usd.VolumeChange24h)
	}
	set(&q, coin.FieldCirculatingSupply, p.CirculatingSupply)

	if !q.Present.Has(coin.FieldCirculatingSupply) {
		set(&q, coin.FieldCirculatingSupply, p.SelfReportedCirculatingSupply)
	}
	if !q.Present.Has(coin.FieldMarketCap) {
		set(&q, coin.FieldMarketCap, p.SelfReportedMarketCap)
	}
	return q
}

func idList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// QuotesLatest fetches live quotes for ids. Ids missing from the response are
// absent from the result; callers decide whether that is a failure.
func (c *Client) QuotesLatest(ctx context.Context, ids []int64) (map[int64]coin.Quote, error) {
	if len(ids) == 0 {
		return map[int64]coin.Quote{}, nil
	}

	q := url.Values{}
	q.Set("id", idList(ids))
	q.Set("convert", "USD")

	data, err := c.getJSON(ctx, PathQuotesLatest, q)
	if err != nil {
		return nil, err
	}

	payloads, err := decodeData(data)
	if err != nil {
		return nil, &UpstreamError{StatusCode: 200, ErrorClass: ErrorClassServer, Message: "normalize quotes", Err: err}
	}

	now := time.Now()
	out := make(map[int64]coin.Quote, len(payloads))
	for id, p := range payloads {
		out[id] = p.quote(id, OriginQuotes, now)
	}

	c.logger.Debug().Int("requested", len(ids)).Int("returned", len(out)).Msg("Quotes fetched")
	return out, nil
}

// Quote fetches the live quote for a single id. A response without an entry
// for id yields ErrEmptyPayload.
func (c *Client) Quote(ctx context.Context, id int64) (coin.Quote, error) {
	quotes, err := c.QuotesLatest(ctx, []int64{id})
	if err != nil {
		return coin.Quote{}, err
	}
	q, ok := quotes[id]
	if !ok || q.IsEmpty() {
		return coin.Quote{}, fmt.Errorf("quotes/latest %d: %w", id, ErrEmptyPayload)
	}
	return q, nil
}

// Info fetches the sparse info record for id. Only fields the endpoint carried
// are marked present.
func (c *Client) Info(ctx context.Context, id int64) (coin.Quote, error) {
	q := url.Values{}
	q.Set("id", strconv.FormatInt(id, 10))

	data, err := c.getJSON(ctx, PathInfo, q)
	if err != nil {
		return coin.Quote{}, err
	}

	payloads, err := decodeData(data)
	if err != nil {
		return coin.Quote{}, &UpstreamError{StatusCode: 200, ErrorClass: ErrorClassServer, Message: "normalize info", Err: err}
	}
	p, ok := payloads[id]
	if !ok {
		return coin.Quote{}, fmt.Errorf("info %d: %w", id, ErrEmptyPayload)
	}
	return p.quote(id, OriginInfo, time.Now()), nil
}

// FiatRates fetches the fiat multiplier table (units of code per USD).
// USD is always present with multiplier 1.
func (c *Client) FiatRates(ctx context.Context) (rate.FiatTable, error) {
	data, err := c.getJSON(ctx, PathFiatRates, url.Values{})
	if err != nil {
		return nil, err
	}

	var raw map[string]number
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &UpstreamError{StatusCode: 200, ErrorClass: ErrorClassServer, Message: "normalize fiat rates", Err: err}
	}

	table := rate.DefaultFiatTable()
	for code, n := range raw {
		if n.ok && n.v > 0 {
			table[strings.ToUpper(code)] = n.v
		}
	}
	table["USD"] = 1
	return table, nil
}
