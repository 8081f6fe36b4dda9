// Package resolver turns a token identifier into a structurally complete
// ResolvedCoin by cascading live quote → info endpoint → catalog → zero, one
// field at a time.
package resolver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/coinrate/pkg/batch"
	"github.com/Sternrassler/coinrate/pkg/cache"
	"github.com/Sternrassler/coinrate/pkg/catalog"
	"github.com/Sternrassler/coinrate/pkg/coin"
	"github.com/Sternrassler/coinrate/pkg/logging"
	"github.com/Sternrassler/coinrate/pkg/rate"
	"github.com/rs/zerolog"
)

// maxIdentifierLen bounds identifiers accepted from callers.
const maxIdentifierLen = 100

// Upstream is the market-data API as seen by the resolver.
type Upstream interface {
	Quote(ctx context.Context, id int64) (coin.Quote, error)
	Info(ctx context.Context, id int64) (coin.Quote, error)
	QuotesLatest(ctx context.Context, ids []int64) (map[int64]coin.Quote, error)
	FiatRates(ctx context.Context) (rate.FiatTable, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBatchConfig sets the list quote fetcher configuration.
func WithBatchConfig(cfg batch.Config) Option {
	return func(r *Resolver) {
		r.batchConfig = cfg
	}
}

// WithReconcile bounds catalog write-backs: at most pending at once, each
// with its own timeout. Write-backs beyond the bound are dropped.
func WithReconcile(pending int, timeout time.Duration) Option {
	return func(r *Resolver) {
		if pending > 0 {
			r.reconcileSlots = make(chan struct{}, pending)
		}
		if timeout > 0 {
			r.reconcileTimeout = timeout
		}
	}
}

// WithCacheOptions passes options to every cache the resolver creates.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(r *Resolver) {
		r.cacheOpts = append(r.cacheOpts, opts...)
	}
}

// Resolver resolves token identifiers to market data.
type Resolver struct {
	upstream Upstream
	catalog  catalog.Catalog

	quotes *cache.Cache[coin.Quote]
	lists  *cache.Cache[[]coin.ResolvedCoin]
	fiat   *cache.Cache[rate.FiatTable]
	batch  *batch.Fetcher

	batchConfig      batch.Config
	cacheOpts        []cache.Option
	reconcileSlots   chan struct{}
	reconcileTimeout time.Duration
	reconciles       sync.WaitGroup

	logger zerolog.Logger
}

// New creates a resolver. manager and locker back the quote, list and fiat caches.
func New(upstream Upstream, cat catalog.Catalog, manager *cache.Manager, locker *cache.Locker, opts ...Option) *Resolver {
	if upstream == nil || cat == nil {
		panic("resolver requires an upstream and a catalog")
	}

	r := &Resolver{
		upstream:         upstream,
		catalog:          cat,
		batchConfig:      batch.DefaultConfig(),
		reconcileSlots:   make(chan struct{}, 16),
		reconcileTimeout: 3 * time.Second,
		logger:           logging.NewLogger(logging.ComponentResolver),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.quotes = cache.New[coin.Quote](manager, locker, "quote", r.cacheOpts...)
	r.lists = cache.New[[]coin.ResolvedCoin](manager, locker, "list", r.cacheOpts...)
	r.fiat = cache.New[rate.FiatTable](manager, locker, "fiat", r.cacheOpts...)
	r.batch = batch.NewFetcher(upstream, r.batchConfig)
	return r
}

// ResolvePrice resolves identifier, serving cached quotes while fresh.
func (r *Resolver) ResolvePrice(ctx context.Context, identifier string) (*coin.ResolvedCoin, error) {
	c, _, err := r.Resolve(ctx, identifier, false)
	return c, err
}

// ResolvePriceForce is ResolvePrice with an optional freshness bypass. A
// forced refresh still shares the in-flight upstream call for the key.
func (r *Resolver) ResolvePriceForce(ctx context.Context, identifier string, force bool) (*coin.ResolvedCoin, error) {
	c, _, err := r.Resolve(ctx, identifier, force)
	return c, err
}

// Resolve resolves identifier and returns the cache metadata of the live quote.
// The Info is zero when no live quote was used.
//
// Only an identifier without a catalog record and without a usable upstream id
// yields coin.ErrNotFound; upstream failures degrade to catalog or zero values.
func (r *Resolver) Resolve(ctx context.Context, identifier string, force bool) (*coin.ResolvedCoin, cache.Info, error) {
	identifier, err := normalizeIdentifier(identifier)
	if err != nil {
		return nil, cache.Info{}, err
	}

	rec, err := r.catalog.FindBySlugOrID(ctx, identifier)
	switch {
	case err == nil:
	case errors.Is(err, coin.ErrNotFound):
		rec = nil
	case errors.Is(err, coin.ErrInvalidInput):
		return nil, cache.Info{}, err
	default:
		r.logger.Warn().Err(err).Str("identifier", identifier).Msg("Catalog lookup failed, continuing without record")
		rec = nil
	}

	extID := externalID(rec, identifier)
	if rec == nil && extID == 0 {
		resolutions.WithLabelValues("not_found").Inc()
		return nil, cache.Info{}, coin.ErrNotFound
	}

	var (
		quote coin.Quote
		info  cache.Info
		live  bool
	)
	if extID > 0 {
		quote, info, err = r.liveQuote(ctx, extID, force)
		if err != nil {
			if ctx.Err() != nil {
				return nil, cache.Info{}, ctx.Err()
			}
			r.logger.Warn().Err(err).Int64("external_id", extID).Msg("Live quote unavailable, falling back to catalog")
		} else {
			live = !quote.IsEmpty()
		}
	}

	if rec == nil && !live {
		// Numeric id unknown to both catalog and upstream.
		resolutions.WithLabelValues("not_found").Inc()
		return nil, cache.Info{}, coin.ErrNotFound
	}

	resolved := merge(rec, extID, quote, live)
	if live {
		resolved.Expires = info.Expires
		r.reconcile(rec, quote)
	} else {
		info = cache.Info{}
	}
	resolutions.WithLabelValues(string(resolved.Status)).Inc()
	return resolved, info, nil
}

// Invalidate drops the cached live quote for identifier.
func (r *Resolver) Invalidate(ctx context.Context, identifier string) error {
	identifier, err := normalizeIdentifier(identifier)
	if err != nil {
		return err
	}
	rec, err := r.catalog.FindBySlugOrID(ctx, identifier)
	if err != nil && !errors.Is(err, coin.ErrNotFound) {
		return err
	}
	extID := externalID(rec, identifier)
	if extID == 0 {
		return coin.ErrNotFound
	}
	return r.quotes.Invalidate(ctx, quoteKey(extID))
}

// Wait blocks until pending catalog write-backs have finished.
func (r *Resolver) Wait() {
	r.reconciles.Wait()
}

func quoteKey(id int64) cache.CacheKey {
	return cache.CacheKey{Namespace: "quote", ID: strconv.FormatInt(id, 10)}
}

// liveQuote returns the quote for id through the single-flight cache. The
// fetch tries quotes/latest first and the info endpoint second. The primary
// gets half of the fetch budget so a hanging quotes/latest call still leaves
// room for the info endpoint.
func (r *Resolver) liveQuote(ctx context.Context, id int64, force bool) (coin.Quote, cache.Info, error) {
	return r.quotes.ResolveWithInfo(ctx, quoteKey(id), cache.TTLSpotPrice, force, func(ctx context.Context) (coin.Quote, error) {
		primaryCtx, cancel := primaryBudget(ctx)
		q, primaryErr := r.upstream.Quote(primaryCtx, id)
		cancel()
		if primaryErr == nil && !q.IsEmpty() {
			return q, nil
		}
		if primaryErr == nil {
			primaryErr = errors.New("empty quote")
		}
		if ctx.Err() != nil {
			return coin.Quote{}, primaryErr
		}
		r.logger.Debug().Err(primaryErr).Int64("external_id", id).Msg("Primary quote failed, trying info endpoint")

		info, secondaryErr := r.upstream.Info(ctx, id)
		if secondaryErr == nil && !info.IsEmpty() {
			return info, nil
		}
		if secondaryErr == nil {
			secondaryErr = errors.New("empty info record")
		}
		return coin.Quote{}, errors.Join(primaryErr, secondaryErr)
	})
}

// primaryBudget bounds ctx to half of its remaining time. Without a deadline
// ctx is returned unchanged.
func primaryBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Until(deadline)/2)
}

// merge builds the per-field cascade: live value, then catalog value, then zero.
func merge(rec *coin.TokenRecord, extID int64, q coin.Quote, live bool) *coin.ResolvedCoin {
	out := &coin.ResolvedCoin{CMCExternalID: extID}
	if rec != nil {
		out.ID = rec.ID
		out.Slug = rec.Slug
		out.Ticker = rec.Ticker
		out.Name = rec.Name
		out.Rank = rec.Rank
		out.LastUpdated = rec.CurrentPrice.LastUpdated
	} else {
		out.ID = strconv.FormatInt(extID, 10)
	}

	for _, f := range coin.Fields {
		slot := out.Get(f)
		if live {
			if v, ok := q.Value(f); ok {
				*slot = coin.Value{Amount: v, Source: coin.SourceLive}
				continue
			}
		}
		if v := rec.CatalogValue(f); v != nil {
			*slot = coin.Value{Amount: *v, Source: coin.SourceCatalog}
			continue
		}
		*slot = coin.Value{Source: coin.SourceDefault}
	}

	switch {
	case live:
		out.Status = coin.StatusResolved
		out.LastUpdated = q.FetchedAt
	case rec.HasMarketData():
		out.Status = coin.StatusStale
	default:
		out.Status = coin.StatusEmpty
	}
	return out
}

// reconcile persists a live circulating supply when the catalog has none.
// It never blocks the caller and never fails the read path.
func (r *Resolver) reconcile(rec *coin.TokenRecord, q coin.Quote) {
	if rec == nil {
		return
	}
	supply, ok := q.Value(coin.FieldCirculatingSupply)
	if !ok || supply <= 0 {
		return
	}
	if stored := rec.MarketData.CirculatingSupply; stored != nil && *stored != 0 {
		return
	}

	select {
	case r.reconcileSlots <- struct{}{}:
	default:
		reconciliations.WithLabelValues("dropped").Inc()
		r.logger.Debug().Str("token", rec.ID).Msg("Reconcile queue full, skipping write-back")
		return
	}

	id := rec.ID
	patch := coin.MarketDataPatch{CirculatingSupply: coin.Float(supply)}
	r.reconciles.Add(1)
	go func() {
		defer r.reconciles.Done()
		defer func() { <-r.reconcileSlots }()

		ctx, cancel := context.WithTimeout(context.Background(), r.reconcileTimeout)
		defer cancel()

		if err := r.catalog.UpdateMarketData(ctx, id, patch); err != nil {
			reconciliations.WithLabelValues("error").Inc()
			r.logger.Warn().Err(err).Str("token", id).Msg("Catalog write-back failed")
			return
		}
		reconciliations.WithLabelValues("success").Inc()
	}()
}

// externalID returns the upstream id for rec, or identifier itself when it is
// a positive integer and no record carries one.
func externalID(rec *coin.TokenRecord, identifier string) int64 {
	if rec != nil && rec.CMCExternalID > 0 {
		return rec.CMCExternalID
	}
	if rec != nil {
		return 0
	}
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// normalizeIdentifier trims identifier and rejects anything outside
// [A-Za-z0-9._-].
func normalizeIdentifier(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || len(identifier) > maxIdentifierLen {
		return "", coin.ErrInvalidInput
	}
	for _, r := range identifier {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return "", coin.ErrInvalidInput
		}
	}
	return identifier, nil
}
