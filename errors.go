// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowgraph

import (
	"github.com/canonical/rowgraph/internal/engine"
)

// ConfigError reports a mapping that cannot be applied as declared: a
// reference to an unregistered mapping, a target that cannot be built, a
// result set claimed by two properties.
type ConfigError = engine.ConfigError

// ConversionError reports a column value that could not be converted to the
// type a property requires. It unwraps to the converter's error.
type ConversionError = engine.ConversionError

// CardinalityError reports a nested statement that returned several values
// for a property that holds one.
type CardinalityError = engine.CardinalityError
