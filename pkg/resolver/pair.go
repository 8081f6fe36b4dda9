package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/coinrate/pkg/cache"
	"github.com/Sternrassler/coinrate/pkg/rate"
	"golang.org/x/sync/errgroup"
)

var fiatKey = cache.CacheKey{Namespace: "fiat", ID: "USD"}

// FiatTable returns the fiat multiplier table. When the upstream table is
// unavailable the static USD-only table is returned.
func (r *Resolver) FiatTable(ctx context.Context) rate.FiatTable {
	table, err := r.fiat.Resolve(ctx, fiatKey, cache.TTLFiatRates, false, r.upstream.FiatRates)
	if err != nil || len(table) == 0 {
		fiatFallbacks.Inc()
		r.logger.Warn().Err(err).Msg("Fiat table unavailable, using USD only")
		return rate.DefaultFiatTable()
	}
	return table
}

// AssetRecord turns identifier into one side of a conversion. Currency codes
// known to table are fiat; everything else is resolved as a crypto asset.
func (r *Resolver) AssetRecord(ctx context.Context, identifier string, table rate.FiatTable) (rate.AssetRecord, error) {
	identifier, err := normalizeIdentifier(identifier)
	if err != nil {
		return rate.AssetRecord{}, err
	}
	if isFiatCode(identifier, table) {
		return rate.Fiat(identifier), nil
	}

	resolved, err := r.ResolvePrice(ctx, identifier)
	if err != nil {
		return rate.AssetRecord{}, err
	}
	id := resolved.Slug
	if id == "" {
		id = resolved.ID
	}
	return rate.Crypto(id, resolved.Price.Amount), nil
}

func isFiatCode(identifier string, table rate.FiatTable) bool {
	return len(identifier) == 3 && (strings.EqualFold(identifier, "USD") || table.Has(identifier))
}

// Pair is a resolved conversion between two assets.
type Pair struct {
	From    rate.AssetRecord `json:"from"`
	To      rate.AssetRecord `json:"to"`
	Rate    float64          `json:"rate"`
	Inverse float64          `json:"inverse"`
}

// Available reports whether both sides had usable prices.
func (p Pair) Available() bool {
	return p.Rate > 0
}

// Pair resolves both sides concurrently and computes the rate between them.
func (r *Resolver) Pair(ctx context.Context, from, to string) (Pair, error) {
	table := r.FiatTable(ctx)

	var p Pair
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := r.AssetRecord(gctx, from, table)
		if err != nil {
			return fmt.Errorf("from %q: %w", from, err)
		}
		p.From = rec
		return nil
	})
	g.Go(func() error {
		rec, err := r.AssetRecord(gctx, to, table)
		if err != nil {
			return fmt.Errorf("to %q: %w", to, err)
		}
		p.To = rec
		return nil
	})
	if err := g.Wait(); err != nil {
		return Pair{}, err
	}

	p.Rate = rate.Rate(p.From, p.To, table)
	p.Inverse = rate.Inverse(p.Rate)
	return p, nil
}
