package types

// Cache is a thread safe key-value store with optional expiry. It backs
// the metadata lookups of the rule and client resource repositories.
type Cache interface {
	// Set stores value under key. ttl is a duration string such as "10m";
	// an empty or zero ttl never expires.
	Set(key string, value interface{}, ttl string) error
	// Get returns nil when the key is missing or expired.
	Get(key string) interface{}
	Has(key string) bool
	Delete(key string) error
	// DeleteByPrefix evicts every key starting with prefix, e.g. after a metadata reload.
	DeleteByPrefix(prefix string) error
	GetByPrefix(prefix string) map[string]interface{}
}
