// Package cachekey defines the identity of a cached computed value and its
// canonical string form.
package cachekey

import (
	"strings"

	"github.com/attrengine/core/domain/attribute"
)

// Key identifies a single cached value: one attribute, computed for one
// target, optionally scoped by a context fingerprint (e.g. a hash of the
// inputs the computation depended on beyond the target itself).
type Key struct {
	AttributeID        string
	TargetKind         attribute.TargetKind
	TargetID           string
	ContextFingerprint string
}

const separator = ":"

// Canonical renders the key as a delimited string for internal indexing:
// attributeId:targetKind:targetId[:contextFingerprint]. This string is never
// part of the public API surface; callers always pass a structured Key.
func (k Key) Canonical() string {
	parts := []string{k.AttributeID, string(k.TargetKind), k.TargetID}
	if k.ContextFingerprint != "" {
		parts = append(parts, k.ContextFingerprint)
	}
	return strings.Join(parts, separator)
}

// HasAttributeAndTarget reports whether a canonical key belongs to the given
// attribute and (if targetID is non-empty) target.
func HasAttributeAndTarget(canonical, attributeID, targetID string) bool {
	parts := strings.SplitN(canonical, separator, 4)
	if len(parts) < 3 {
		return false
	}
	if parts[0] != attributeID {
		return false
	}
	if targetID != "" && parts[2] != targetID {
		return false
	}
	return true
}

// HasTarget reports whether a canonical key was computed for the given
// target kind and ID.
func HasTarget(canonical string, targetKind attribute.TargetKind, targetID string) bool {
	parts := strings.SplitN(canonical, separator, 4)
	if len(parts) < 3 {
		return false
	}
	return parts[1] == string(targetKind) && parts[2] == targetID
}
