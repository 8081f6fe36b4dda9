package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/coinrate/pkg/coin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PriceResponse is the body of GET /api/coin/price/{id}.
type PriceResponse struct {
	Price           float64     `json:"price"`
	PriceChange24h  float64     `json:"price_change_24h"`
	Volume          float64     `json:"volume"`
	VolumeChange24h float64     `json:"volume_change_24h"`
	MarketCap       float64     `json:"market_cap"`
	Status          coin.Status `json:"status"`
}

// CoinResponse is the body of GET /api/coin/{slug} and one element of
// GET /api/coins.
type CoinResponse struct {
	ID            string                 `json:"id"`
	CMCExternalID int64                  `json:"cmcExternalId,omitempty"`
	Slug          string                 `json:"slug"`
	Ticker        string                 `json:"ticker"`
	Name          string                 `json:"name"`
	Rank          int                    `json:"rank"`
	Status        coin.Status            `json:"status"`
	CurrentPrice  CurrentPrice           `json:"currentPrice"`
	PriceChanges  PriceChanges           `json:"priceChanges"`
	MarketData    MarketData             `json:"marketData"`
	Sources       map[string]coin.Source `json:"sources"`
}

type CurrentPrice struct {
	USD         float64   `json:"usd"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type PriceChanges struct {
	Hour1 float64 `json:"hour1"`
	Day1  float64 `json:"day1"`
	Week1 float64 `json:"week1"`
}

type MarketData struct {
	MarketCap         float64 `json:"marketCap"`
	Volume24h         float64 `json:"volume24h"`
	VolumeChange24h   float64 `json:"volumeChange24h"`
	CirculatingSupply float64 `json:"circulatingSupply"`
}

// RateResponse is the body of GET /api/rate.
type RateResponse struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Rate      float64         `json:"rate"`
	Inverse   float64         `json:"inverse"`
	Amount    decimal.Decimal `json:"amount"`
	Result    decimal.Decimal `json:"result"`
	Available bool            `json:"available"`
}

func priceResponse(c *coin.ResolvedCoin) PriceResponse {
	return PriceResponse{
		Price:           c.Price.Amount,
		PriceChange24h:  c.Change24h.Amount,
		Volume:          c.Volume24h.Amount,
		VolumeChange24h: c.VolumeChange24h.Amount,
		MarketCap:       c.MarketCap.Amount,
		Status:          c.Status,
	}
}

func coinResponse(c *coin.ResolvedCoin) CoinResponse {
	return CoinResponse{
		ID:            c.ID,
		CMCExternalID: c.CMCExternalID,
		Slug:          c.Slug,
		Ticker:        c.Ticker,
		Name:          c.Name,
		Rank:          c.Rank,
		Status:        c.Status,
		CurrentPrice: CurrentPrice{
			USD:         c.Price.Amount,
			LastUpdated: c.LastUpdated,
		},
		PriceChanges: PriceChanges{
			Hour1: c.Change1h.Amount,
			Day1:  c.Change24h.Amount,
			Week1: c.Change7d.Amount,
		},
		MarketData: MarketData{
			MarketCap:         c.MarketCap.Amount,
			Volume24h:         c.Volume24h.Amount,
			VolumeChange24h:   c.VolumeChange24h.Amount,
			CirculatingSupply: c.CirculatingSupply.Amount,
		},
		Sources: c.Sources(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write JSON response")
	}
}

func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}

// writeResolveError maps resolver errors to HTTP status codes.
func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coin.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coin.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "upstream timed out")
	default:
		log.Error().Err(err).Msg("Resolve failed")
		writeError(w, http.StatusBadGateway, "market data unavailable")
	}
}
