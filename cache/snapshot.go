package cache

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/attrengine/core/internal/obs/errors"
)

// SnapshotVersion is bumped whenever the Snapshot wire shape changes.
const SnapshotVersion = 1

// SnapshotEntry is the exported form of an Entry, keyed by its canonical
// cache key.
type SnapshotEntry struct {
	Key          string      `json:"key" yaml:"key"`
	Value        interface{} `json:"value" yaml:"value"`
	ComputedAt   time.Time   `json:"computedAt" yaml:"computedAt"`
	ExpiresAt    time.Time   `json:"expiresAt" yaml:"expiresAt"`
	Dependencies []string    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// Snapshot is a structured, versioned export of the cache's contents.
type Snapshot struct {
	Version    int             `json:"version" yaml:"version"`
	ExportedAt time.Time       `json:"exportedAt" yaml:"exportedAt"`
	Entries    []SnapshotEntry `json:"entries" yaml:"entries"`
}

// Both encodings are driven by the struct tags above; ToYAML/SnapshotFromYAML
// exist alongside ToJSON/SnapshotFromJSON for operators who keep warm-restart
// snapshots under source control as YAML.

// ToYAML renders the snapshot as YAML.
func (s Snapshot) ToYAML() ([]byte, error) {
	body, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.CacheErr("snapshot-to-yaml", err)
	}
	return body, nil
}

// SnapshotFromYAML parses a YAML-encoded snapshot, rejecting unknown
// versions.
func SnapshotFromYAML(body []byte) (Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(body, &snap); err != nil {
		return Snapshot{}, errors.CacheErr("snapshot-from-yaml", err)
	}
	if snap.Version != SnapshotVersion {
		return Snapshot{}, errors.ConfigurationError("unsupported snapshot version")
	}
	return snap, nil
}

// ToJSON renders the snapshot as JSON.
func (s Snapshot) ToJSON() ([]byte, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return nil, errors.CacheErr("snapshot-to-json", err)
	}
	return body, nil
}

// SnapshotFromJSON parses a JSON-encoded snapshot, rejecting unknown
// versions.
func SnapshotFromJSON(body []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return Snapshot{}, errors.CacheErr("snapshot-from-json", err)
	}
	if snap.Version != SnapshotVersion {
		return Snapshot{}, errors.ConfigurationError("unsupported snapshot version")
	}
	return snap, nil
}

// Export emits a structured snapshot of every unexpired entry.
func (c *Cache) Export() Snapshot {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{Version: SnapshotVersion, ExportedAt: now}
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if !ok || entry.expired(now) {
			continue
		}
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Key:          key,
			Value:        entry.Value,
			ComputedAt:   entry.ComputedAt,
			ExpiresAt:    entry.ExpiresAt,
			Dependencies: entry.Dependencies,
		})
	}
	return snap
}

// ImportResult reports the outcome of importing a Snapshot.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []error
}

// Import loads snap into the cache, skipping entries that have already
// expired and recomputing their estimated size. Existing entries with the
// same key are overwritten. A snapshot with an unknown version imports
// nothing and reports the rejection in Errors.
func (c *Cache) Import(snap Snapshot) ImportResult {
	now := time.Now()
	result := ImportResult{}
	if snap.Version != SnapshotVersion {
		result.Errors = append(result.Errors, errors.ConfigurationError("unsupported snapshot version"))
		return result
	}

	for _, se := range snap.Entries {
		if now.After(se.ExpiresAt) {
			result.Skipped++
			continue
		}

		entry := &Entry{
			Value:        se.Value,
			ComputedAt:   se.ComputedAt,
			ExpiresAt:    se.ExpiresAt,
			Dependencies: se.Dependencies,
			SizeBytes:    estimateSize(se.Value),
			LastAccessAt: now,
		}

		c.mu.Lock()
		if old, ok := c.lru.Peek(se.Key); ok {
			atomic.AddInt64(&c.bytesUsed, -old.SizeBytes)
		}
		c.lru.Add(se.Key, entry)
		atomic.AddInt64(&c.bytesUsed, entry.SizeBytes)
		c.mu.Unlock()

		result.Imported++
	}

	return result
}
