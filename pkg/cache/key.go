package cache

import (
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix is prepended to every key this package writes.
const KeyPrefix = "coinrate"

// busySuffix turns a cache key into its busy marker key.
const busySuffix = "_busy"

// CacheKey identifies one cached value.
type CacheKey struct {
	// Namespace groups keys by data kind (e.g., "quote", "list", "fiat")
	Namespace string

	// ID is the identifier within the namespace (e.g., an upstream asset id)
	ID string

	// Params are extra qualifiers (e.g., {"convert": "USD"})
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: coinrate:namespace:id:param1=val1:param2=val2
//
// Example:
//
//	coinrate:quote:1:convert=USD
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	if k.ID != "" {
		parts = append(parts, k.ID)
	}

	// Params sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	return strings.Join(parts, ":")
}

// BusyKey returns the key of the busy marker guarding k.
func (k CacheKey) BusyKey() string {
	return k.String() + busySuffix
}
