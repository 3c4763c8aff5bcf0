package cache

import "github.com/attrengine/core/domain/cachekey"

// Warmer is fulfilled by a caller (typically the Engine) that can actually
// compute values; the Cache itself never computes, it only reports which
// (attributeID, targetID) pairs are missing so a Warmer can fill them.
type Warmer interface {
	Warm(attributeID, targetID string) error
}

// Warmup is a best-effort bulk precompute hook: for every (attributeID,
// targetID) pair not already cached, it delegates to w.Warm and collects any
// errors. It does not itself compute or cache anything.
func (c *Cache) Warmup(attributeIDs, targetIDs []string, w Warmer) []error {
	var errs []error
	for _, attributeID := range attributeIDs {
		for _, targetID := range targetIDs {
			c.mu.RLock()
			cached := false
			for _, key := range c.lru.Keys() {
				if cachekey.HasAttributeAndTarget(key, attributeID, targetID) {
					cached = true
					break
				}
			}
			c.mu.RUnlock()
			if cached {
				continue
			}
			if err := w.Warm(attributeID, targetID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}
