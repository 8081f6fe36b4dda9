// Package batch fetches live quotes for many assets in parallel.
//
// The upstream quotes endpoint accepts a comma separated id list, so a ranked
// list of a few hundred assets is split into chunks and the chunks are spread
// across a small worker pool. Every chunk carries its own timeout.
//
// Example usage:
//
//	fetcher := batch.NewFetcher(upstreamClient, batch.DefaultConfig())
//	quotes, err := fetcher.FetchQuotes(ctx, ids)
//
// The fetcher:
//   - De-duplicates ids and splits them into chunks of ChunkSize
//   - Spawns a worker pool (default 4 workers)
//   - Collects quotes from every successful chunk
//   - Returns partial results together with a *PartialError when chunks fail
package batch
