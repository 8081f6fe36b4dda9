package cache

import "time"

// TTL policy by data volatility. These are call-site policy, not mechanism.
const (
	TTLSpotPrice      = 10 * time.Second // live spot price
	TTLListAggregate  = 15 * time.Minute // ranked coin lists
	TTLTokenMetadata  = time.Hour        // descriptive token metadata
	TTLFiatRates      = time.Hour        // fiat multiplier table
	TTLStaticDocument = 24 * time.Hour   // sitemap, robots
)

// DefaultStaleRetention is how long Redis keeps an entry after it stops being fresh.
const DefaultStaleRetention = 24 * time.Hour
