package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coinrate/pkg/cache"
	"github.com/Sternrassler/coinrate/pkg/coin"
	"github.com/Sternrassler/coinrate/pkg/rate"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.redis.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		writeError(w, http.StatusServiceUnavailable, "redis unavailable")
		return
	}
	writeData(w, map[string]string{"status": "ready"})
}

// handlePrice serves GET /api/coin/price/{id}?force=bool.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid force value %q", v))
			return
		}
		force = b
	}

	resolved, info, err := s.resolver.Resolve(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	cache.WriteHeaders(w.Header(), info)
	writeData(w, priceResponse(resolved))
}

// handleCoin serves GET /api/coin/{slug}.
func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	resolved, info, err := s.resolver.Resolve(r.Context(), chi.URLParam(r, "slug"), false)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	cache.WriteHeaders(w.Header(), info)
	if cache.NotModified(r, info.CachedAt) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeData(w, coinResponse(resolved))
}

// handleCoins serves GET /api/coins?limit=N.
func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = min(n, maxListLimit)
	}

	list, info, err := s.resolver.ResolveList(r.Context(), limit)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	out := make([]CoinResponse, len(list))
	for i := range list {
		out[i] = coinResponse(&list[i])
	}

	cache.WriteHeaders(w.Header(), info)
	writeData(w, out)
}

// handleRate serves GET /api/rate?from=X&to=Y&amount=A.
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	amount := decimal.NewFromInt(1)
	if v := q.Get("amount"); v != "" {
		a, err := decimal.NewFromString(v)
		if err != nil || a.IsNegative() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid amount %q", v))
			return
		}
		amount = a
	}

	pair, err := s.resolver.Pair(r.Context(), from, to)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	writeData(w, RateResponse{
		From:      pair.From.ID,
		To:        pair.To.ID,
		Rate:      pair.Rate,
		Inverse:   pair.Inverse,
		Amount:    amount,
		Result:    rate.Convert(amount, pair.Rate),
		Available: pair.Available(),
	})
}

// handleInvalidate serves DELETE /api/cache/coin/{id}.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.resolver.Invalidate(r.Context(), id); err != nil {
		if errors.Is(err, coin.ErrInvalidInput) || errors.Is(err, coin.ErrNotFound) {
			writeResolveError(w, err)
			return
		}
		s.logger.Error().Err(err).Str("id", id).Msg("Cache invalidation failed")
		writeError(w, http.StatusInternalServerError, "invalidation failed")
		return
	}

	s.logger.Info().Str("id", id).Msg("Quote cache invalidated")
	w.WriteHeader(http.StatusNoContent)
}
