package cache

// ScopedKeyer prefixes every key produced by an inner Keyer. Registries use
// it to keep lookups from different endpoint URLs apart:
//
//	keyer := cache.NewScopedKeyer(nil, cache.EndpointScope("https://registry.npmjs.org"))
//	keyer.LookupKey("npm", "left") // "endpoint:3f1c...:lookup:npm:left"
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix. A nil inner keyer uses
// DefaultKeyer.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// LookupKey implements Keyer.
func (k *ScopedKeyer) LookupKey(registry, name string) string {
	return k.prefix + k.inner.LookupKey(registry, name)
}

// EndpointScope returns a key prefix unique to an endpoint URL.
func EndpointScope(url string) string {
	return "endpoint:" + Digest(url, 12) + ":"
}
