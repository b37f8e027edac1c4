// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"fmt"

	"github.com/canonical/rowgraph/internal/rowset"
	"github.com/canonical/rowgraph/internal/spec"
)

// discriminated resolves the effective mapping for the current row by
// following discriminator cases until a mapping without one is reached, a
// case has no match or names an unknown mapping, or a mapping is revisited.
// Revisiting terminates at the revisited mapping, so a discriminator cycle
// cannot loop.
func (e *Engine) discriminated(w *rowset.Wrapper, m *spec.Mapping, prefix string) (*spec.Mapping, error) {
	seen := map[string]bool{m.ID: true}
	for m.Discriminator != nil {
		column := prependPrefix(m.Discriminator.Column, prefix)
		raw, err := w.Value(column)
		if err != nil {
			return nil, &ConfigError{Mapping: m.ID, Detail: fmt.Sprintf("discriminator column %q not in result set", column)}
		}
		targetID, ok := m.Discriminator.Cases[discriminatorCase(raw)]
		if !ok {
			break
		}
		target, ok := e.registry.Mapping(targetID)
		if !ok {
			// A case naming an unknown mapping stops resolution at the
			// mapping in hand.
			break
		}
		if seen[target.ID] {
			m = target
			break
		}
		seen[target.ID] = true
		m = target
	}
	return m, nil
}

// discriminatorCase renders a raw column value as a case label. Byte slices
// and null are normalised so drivers that return []byte for text still match
// string cases.
func discriminatorCase(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
