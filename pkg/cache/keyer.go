package cache

// Keyer builds cache keys.
type Keyer interface {
	// LookupKey is the key for a registry lookup of name.
	LookupKey(registry, name string) string
}

// DefaultKeyer builds readable keys: "lookup:<registry>:<name>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// LookupKey implements Keyer.
func (DefaultKeyer) LookupKey(registry, name string) string {
	return "lookup:" + registry + ":" + name
}
