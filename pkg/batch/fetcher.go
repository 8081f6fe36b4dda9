package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/coinrate/pkg/coin"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// ChunkSize is the number of ids per upstream call
	ChunkSize int
	// MaxConcurrency is the maximum number of parallel upstream calls
	MaxConcurrency int
	// Timeout per chunk fetch
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize:      100,
		MaxConcurrency: 4,
		Timeout:        5 * time.Second,
	}
}

// QuoteFetcher is the upstream call one chunk is sent to
type QuoteFetcher interface {
	QuotesLatest(ctx context.Context, ids []int64) (map[int64]coin.Quote, error)
}

// ChunkResult represents the result of fetching a single chunk
type ChunkResult struct {
	Index  int
	IDs    []int64
	Quotes map[int64]coin.Quote
	Error  error
}

// PartialError reports chunks that failed while others succeeded.
type PartialError struct {
	FailedChunks int
	TotalChunks  int
	Err          error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("batch fetch: %d/%d chunks failed: %v", e.FailedChunks, e.TotalChunks, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Fetcher handles parallel fetching of id chunks
type Fetcher struct {
	fetcher QuoteFetcher
	config  Config
}

// NewFetcher creates a new batch fetcher
func NewFetcher(fetcher QuoteFetcher, config Config) *Fetcher {
	def := DefaultConfig()
	if config.ChunkSize <= 0 {
		config.ChunkSize = def.ChunkSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	return &Fetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// Chunk splits ids into groups of at most size, dropping duplicates and
// keeping first-seen order.
func Chunk(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = 1
	}
	seen := make(map[int64]struct{}, len(ids))
	var chunks [][]int64
	var cur []int64
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cur = append(cur, id)
		if len(cur) == size {
			chunks = append(chunks, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

// FetchQuotes fetches quotes for ids using a worker pool.
// Returns quotes from all successful chunks; when some chunks fail the error
// is a *PartialError and the map still holds the successful ones.
func (f *Fetcher) FetchQuotes(ctx context.Context, ids []int64) (map[int64]coin.Quote, error) {
	start := time.Now()
	chunks := Chunk(ids, f.config.ChunkSize)
	results := make(map[int64]coin.Quote, len(ids))
	if len(chunks) == 0 {
		return results, nil
	}

	// Single chunk optimization
	if len(chunks) == 1 {
		res := f.fetchChunk(ctx, 0, chunks[0])
		if res.Error != nil {
			return results, &PartialError{FailedChunks: 1, TotalChunks: 1, Err: res.Error}
		}
		return res.Quotes, nil
	}

	queue := make(chan int, len(chunks))
	chunkResults := make(chan ChunkResult, len(chunks))

	for i := range chunks {
		queue <- i
	}
	close(queue)

	workers := f.config.MaxConcurrency
	if workers > len(chunks) {
		workers = len(chunks)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go f.worker(ctx, chunks, queue, chunkResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(chunkResults)
	}()

	var errs []error
	done, failed := 0, 0
	for res := range chunkResults {
		done++
		if res.Error != nil {
			failed++
			errs = append(errs, fmt.Errorf("chunk %d: %w", res.Index, res.Error))
			continue
		}
		for id, q := range res.Quotes {
			results[id] = q
		}
	}

	// Chunks never picked up because the context ended count as failed.
	if missing := len(chunks) - done; missing > 0 {
		failed += missing
		errs = append(errs, fmt.Errorf("%d chunks not fetched: %w", missing, ctx.Err()))
	}

	if failed > 0 {
		log.Warn().
			Int("failed_chunks", failed).
			Int("total_chunks", len(chunks)).
			Int("quotes", len(results)).
			Msg("Batch fetch incomplete - returning partial results")
		return results, &PartialError{FailedChunks: failed, TotalChunks: len(chunks), Err: errors.Join(errs...)}
	}

	log.Debug().
		Int("ids", len(ids)).
		Int("chunks", len(chunks)).
		Int("quotes", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results, nil
}

func (f *Fetcher) fetchChunk(ctx context.Context, index int, ids []int64) ChunkResult {
	chunkCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	quotes, err := f.fetcher.QuotesLatest(chunkCtx, ids)
	return ChunkResult{Index: index, IDs: ids, Quotes: quotes, Error: err}
}

// worker processes chunks from the queue
func (f *Fetcher) worker(ctx context.Context, chunks [][]int64, queue <-chan int, results chan<- ChunkResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for index := range queue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("chunks_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		res := f.fetchChunk(ctx, index, chunks[index])
		if res.Error != nil {
			log.Warn().
				Err(res.Error).
				Int("worker_id", workerID).
				Int("chunk", index).
				Msg("Chunk fetch failed")
		}

		// results is buffered for every chunk, the send never blocks
		results <- res
		processed++
	}
}
