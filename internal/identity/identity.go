// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package identity builds composite row identity keys. A key accumulates an
// ordered sequence of (name, value) updates into a single comparable value
// used to deduplicate rows that belong to the same logical object and to
// stitch child rows onto parent rows.
package identity

import (
	"fmt"
)

// FNV-1a 64 bit parameters.
const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// Key is a composite row identity. Keys are value types: Update returns a new
// Key rather than mutating the receiver, so a parent key can be extended into
// child keys without copying state by hand. Two Keys are equal only if they
// were built from the same ordered sequence of updates.
//
// The zero Key is the null identity: it never matches any identifiable key
// and marks rows that must not be deduplicated or stitched.
type Key struct {
	hash  uint64
	count uint32
}

// NullKey is the identity of a row that cannot be identified. Lookups and
// combinations involving it always miss.
var NullKey = Key{}

// Update folds a (name, value) pair into the key and returns the extended
// key. The value is rendered with its default format, so values that print
// the same contribute the same bytes.
func (k Key) Update(name string, value any) Key {
	h := k.hash
	if k.count == 0 {
		h = offset64
	}
	h = hashString(h, name)
	h = hashByte(h, 0)
	h = hashString(h, fmt.Sprintf("%v", value))
	return Key{hash: h, count: k.count + 1}
}

// Count reports how many updates built this key.
func (k Key) Count() int {
	return int(k.count)
}

// Identifiable reports whether the key carries enough updates to act as a row
// identity. A key built from fewer than two updates never deduplicates.
func (k Key) Identifiable() bool {
	return k.count > 1
}

// String renders the key for error messages.
func (k Key) String() string {
	if !k.Identifiable() {
		return "identity(null)"
	}
	return fmt.Sprintf("identity(%x:%d)", k.hash, k.count)
}

// Combine merges a child row key with its parent row key for association
// stitching. Both keys must be identifiable, otherwise the combination
// collapses to NullKey, meaning do not deduplicate and do not stitch.
func Combine(child, parent Key) Key {
	if !child.Identifiable() || !parent.Identifiable() {
		return NullKey
	}
	h := child.hash
	for i := 0; i < 8; i++ {
		h = hashByte(h, byte(parent.hash>>(8*i)))
	}
	return Key{hash: h, count: child.count + parent.count}
}

func hashString(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h = hashByte(h, s[i])
	}
	return h
}

func hashByte(h uint64, b byte) uint64 {
	return (h ^ uint64(b)) * prime64
}
