// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package engine

import (
	"fmt"
)

// ConfigError reports a mapping that cannot be applied as declared: a
// property with no matching accessor, a reference to an unregistered
// mapping, a target type that cannot be constructed. Configuration errors
// abort the current statement's result processing and are never retried.
type ConfigError struct {
	// Mapping is the id of the offending mapping.
	Mapping string
	Detail  string
}

func (e *ConfigError) Error() string {
	if e.Mapping == "" {
		return fmt.Sprintf("invalid mapping configuration: %s", e.Detail)
	}
	return fmt.Sprintf("invalid mapping %q: %s", e.Mapping, e.Detail)
}

// ConversionError reports a column value that could not be converted to the
// required target type.
type ConversionError struct {
	Mapping  string
	Column   string
	Property string
	Err      error
}

func (e *ConversionError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("mapping %q: cannot convert column %q for property %q: %s", e.Mapping, e.Column, e.Property, e.Err)
	}
	return fmt.Sprintf("mapping %q: cannot convert column %q: %s", e.Mapping, e.Column, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// CardinalityError reports a non-collection association target that
// received more than one matching child value.
type CardinalityError struct {
	Mapping  string
	Property string
	Count    int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("mapping %q: property %q expects one value, got %d", e.Mapping, e.Property, e.Count)
}
