package cache

// EvictionPolicy selects which entry is sacrificed when the cache is over
// its memory budget during a cleanup cycle. The entries cap is always
// enforced eagerly via the LRU recency index regardless of this setting;
// EvictionPolicy only governs the periodic memory-cap sweep.
type EvictionPolicy string

const (
	PolicyLRU    EvictionPolicy = "lru"
	PolicyLFU    EvictionPolicy = "lfu"
	PolicyTTL    EvictionPolicy = "ttl"
	PolicyRandom EvictionPolicy = "random"
)

// Valid reports whether p is a recognised eviction policy.
func (p EvictionPolicy) Valid() bool {
	switch p {
	case PolicyLRU, PolicyLFU, PolicyTTL, PolicyRandom:
		return true
	default:
		return false
	}
}
