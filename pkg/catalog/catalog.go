// Package catalog stores persisted token records: identity, rank and the last
// known good market data used when the upstream is unavailable.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coinrate/pkg/coin"
	"github.com/Sternrassler/coinrate/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix    = "coinrate:catalog:"
	tokenPrefix  = keyPrefix + "token:"
	slugPrefix   = keyPrefix + "slug:"
	tickerPrefix = keyPrefix + "ticker:"
	cmcPrefix    = keyPrefix + "cmc:"
	rankKey      = keyPrefix + "rank"

	// maxUpdateAttempts bounds optimistic transaction retries on concurrent writers.
	maxUpdateAttempts = 3
)

var catalogUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coinrate_catalog_updates_total",
	Help: "Catalog market data updates by result (written, unchanged, error)",
}, []string{"result"})

// Catalog is the read-through token store the resolver falls back to.
type Catalog interface {
	// FindBySlugOrID looks a token up by id, slug, ticker or upstream id.
	// Returns coin.ErrNotFound when nothing matches.
	FindBySlugOrID(ctx context.Context, identifier string) (*coin.TokenRecord, error)

	// UpdateMarketData applies the non-nil fields of patch. Applying the
	// same patch twice is a no-op.
	UpdateMarketData(ctx context.Context, id string, patch coin.MarketDataPatch) error

	// ListByRank returns up to limit ranked tokens, best rank first.
	ListByRank(ctx context.Context, limit int) ([]*coin.TokenRecord, error)
}

// RedisCatalog is a Catalog backed by Redis.
type RedisCatalog struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

var _ Catalog = (*RedisCatalog)(nil)

// NewRedisCatalog creates a catalog on redisClient.
func NewRedisCatalog(redisClient *redis.Client) *RedisCatalog {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisCatalog{
		redis:  redisClient,
		logger: logging.NewLogger(logging.ComponentCatalog),
		now:    time.Now,
	}
}

// Put stores rec and its lookup indices, replacing any previous record with
// the same id.
func (c *RedisCatalog) Put(ctx context.Context, rec *coin.TokenRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: token id is required", coin.ErrInvalidInput)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenPrefix+rec.ID, data, 0)
		if rec.Slug != "" {
			pipe.Set(ctx, slugPrefix+strings.ToLower(rec.Slug), rec.ID, 0)
		}
		if rec.Ticker != "" {
			pipe.Set(ctx, tickerPrefix+strings.ToUpper(rec.Ticker), rec.ID, 0)
		}
		if rec.CMCExternalID > 0 {
			pipe.Set(ctx, cmcPrefix+strconv.FormatInt(rec.CMCExternalID, 10), rec.ID, 0)
		}
		if rec.Rank > 0 {
			pipe.ZAdd(ctx, rankKey, redis.Z{Score: float64(rec.Rank), Member: rec.ID})
		} else {
			pipe.ZRem(ctx, rankKey, rec.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store token %s: %w", rec.ID, err)
	}
	return nil
}

// FindBySlugOrID resolves identifier in order: record id, slug, ticker,
// upstream numeric id.
func (c *RedisCatalog) FindBySlugOrID(ctx context.Context, identifier string) (*coin.TokenRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, coin.ErrInvalidInput
	}

	rec, err := c.get(ctx, identifier)
	if err == nil || !errors.Is(err, coin.ErrNotFound) {
		return rec, err
	}

	indices := []string{
		slugPrefix + strings.ToLower(identifier),
		tickerPrefix + strings.ToUpper(identifier),
	}
	if _, convErr := strconv.ParseInt(identifier, 10, 64); convErr == nil {
		indices = append(indices, cmcPrefix+identifier)
	}

	for _, idx := range indices {
		id, err := c.redis.Get(ctx, idx).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("catalog index lookup: %w", err)
		}
		return c.get(ctx, id)
	}
	return nil, coin.ErrNotFound
}

// UpdateMarketData applies patch inside an optimistic transaction. Nothing is
// written when the stored values already match.
func (c *RedisCatalog) UpdateMarketData(ctx context.Context, id string, patch coin.MarketDataPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	key := tokenPrefix + id

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var changed bool
		err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return coin.ErrNotFound
			}
			if err != nil {
				return err
			}

			var rec coin.TokenRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("decode token %s: %w", id, err)
			}

			changed = applyPatch(&rec, patch, c.now())
			if !changed {
				return nil
			}

			out, err := json.Marshal(&rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, 0)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			if changed {
				catalogUpdates.WithLabelValues("written").Inc()
				c.logger.Debug().Str("token", id).Msg("Catalog market data updated")
			} else {
				catalogUpdates.WithLabelValues("unchanged").Inc()
			}
			return nil
		case errors.Is(err, redis.TxFailedErr):
			c.logger.Debug().Str("token", id).Int("attempt", attempt).Msg("Catalog update raced, retrying")
			continue
		default:
			catalogUpdates.WithLabelValues("error").Inc()
			return fmt.Errorf("update token %s: %w", id, err)
		}
	}

	catalogUpdates.WithLabelValues("error").Inc()
	return fmt.Errorf("update token %s: %w", id, redis.TxFailedErr)
}

// ListByRank returns up to limit tokens ordered by rank. Unranked tokens are
// not listed.
func (c *RedisCatalog) ListByRank(ctx context.Context, limit int) ([]*coin.TokenRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := c.redis.ZRange(ctx, rankKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog rank range: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = tokenPrefix + id
	}
	vals, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("catalog mget: %w", err)
	}

	out := make([]*coin.TokenRecord, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// rank entry without a record
			continue
		}
		var rec coin.TokenRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			c.logger.Warn().Err(err).Str("token", ids[i]).Msg("Skipping undecodable catalog record")
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (c *RedisCatalog) get(ctx context.Context, id string) (*coin.TokenRecord, error) {
	data, err := c.redis.Get(ctx, tokenPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, coin.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog get: %w", err)
	}

	var rec coin.TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", id, err)
	}
	return &rec, nil
}

// applyPatch copies the non-nil patch fields into rec and reports whether
// anything changed.
func applyPatch(rec *coin.TokenRecord, p coin.MarketDataPatch, now time.Time) bool {
	changed := false
	assign := func(dst **float64, v *float64) {
		if v == nil || (*dst != nil && **dst == *v) {
			return
		}
		*dst = coin.Float(*v)
		changed = true
	}

	assign(&rec.CurrentPrice.USD, p.PriceUSD)
	if changed {
		rec.CurrentPrice.LastUpdated = now
	}
	assign(&rec.MarketData.MarketCap, p.MarketCap)
	assign(&rec.MarketData.Volume24h, p.Volume24h)
	assign(&rec.MarketData.CirculatingSupply, p.CirculatingSupply)
	return changed
}
