package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Sternrassler/coinrate/pkg/batch"
	"github.com/Sternrassler/coinrate/pkg/cache"
	"github.com/Sternrassler/coinrate/pkg/coin"
)

// errNoListQuotes keeps a list without any live quote out of the cache.
var errNoListQuotes = errors.New("no live quotes for list")

func listKey(limit int) cache.CacheKey {
	return cache.CacheKey{Namespace: "list", ID: strconv.Itoa(limit)}
}

// ResolveList returns up to limit coins ordered by rank. The assembled list is
// cached with the list TTL. When no live quotes can be had and nothing is
// cached, the list is built from catalog values alone and not cached.
func (r *Resolver) ResolveList(ctx context.Context, limit int) ([]coin.ResolvedCoin, cache.Info, error) {
	if limit <= 0 {
		return nil, cache.Info{}, fmt.Errorf("%w: limit must be positive", coin.ErrInvalidInput)
	}

	list, info, err := r.lists.ResolveWithInfo(ctx, listKey(limit), cache.TTLListAggregate, false, func(ctx context.Context) ([]coin.ResolvedCoin, error) {
		return r.buildList(ctx, limit, true)
	})
	if err == nil {
		return list, info, nil
	}
	if ctx.Err() != nil {
		return nil, cache.Info{}, ctx.Err()
	}

	r.logger.Warn().Err(err).Int("limit", limit).Msg("Live list unavailable, serving catalog values")
	list, err = r.buildList(ctx, limit, false)
	if err != nil {
		return nil, cache.Info{}, err
	}
	return list, cache.Info{State: cache.StateStale}, nil
}

// buildList merges catalog records with batch quotes. With withQuotes unset
// the upstream is not called.
func (r *Resolver) buildList(ctx context.Context, limit int, withQuotes bool) ([]coin.ResolvedCoin, error) {
	records, err := r.catalog.ListByRank(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}

	var quotes map[int64]coin.Quote
	if withQuotes {
		ids := make([]int64, 0, len(records))
		for _, rec := range records {
			if rec.CMCExternalID > 0 {
				ids = append(ids, rec.CMCExternalID)
			}
		}

		quotes, err = r.batch.FetchQuotes(ctx, ids)
		var partial *batch.PartialError
		switch {
		case err == nil:
		case errors.As(err, &partial) && len(quotes) > 0:
			r.logger.Warn().Err(err).Msg("Partial list quotes, missing entries fall back to catalog")
		default:
			return nil, err
		}
		if len(ids) > 0 && len(quotes) == 0 {
			return nil, errNoListQuotes
		}
	}

	out := make([]coin.ResolvedCoin, 0, len(records))
	for _, rec := range records {
		q, live := quotes[rec.CMCExternalID]
		live = live && !q.IsEmpty()
		resolved := merge(rec, rec.CMCExternalID, q, live)
		if live {
			r.reconcile(rec, q)
		}
		out = append(out, *resolved)
	}
	return out, nil
}
