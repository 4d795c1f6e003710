package client

import "strings"

// Key identifies a cached query as an ordered tuple of path segments.
// Keys are hierarchical: operations that take a prefix (cancel, invalidate,
// snapshot) affect every key the prefix is a prefix of, so invalidating
// ["activities"] also hits ["activities", "list", ...] variants.
type Key []string

// NewKey builds a Key from segments.
func NewKey(parts ...string) Key {
	return Key(parts)
}

// HasPrefix reports whether k starts with the given prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, part := range prefix {
		if k[i] != part {
			return false
		}
	}
	return true
}

// Equal reports whether two keys are identical tuples.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// String renders the key for use as a map index.
func (k Key) String() string {
	return strings.Join(k, "/")
}
