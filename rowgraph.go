// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package rowgraph

import (
	"reflect"

	"github.com/canonical/rowgraph/internal/engine"
	"github.com/canonical/rowgraph/internal/spec"
	"github.com/canonical/rowgraph/internal/typeconv"
)

// M is a convenience type for map targets and nested statement parameters.
// M is not a special type, any named map type with string keys can be a
// mapping target.
type M = map[string]any

// Converter turns a raw driver value into the value a property receives.
type Converter = typeconv.Converter

// ConverterFunc adapts a plain function into a [Converter].
type ConverterFunc = typeconv.ConverterFunc

// QueryRunner executes nested statements on behalf of a schema's
// materializers. Implementations bridge to whatever statement execution
// machinery the application uses; the schema itself never runs SQL.
type QueryRunner = engine.QueryRunner

// ProxyFactory wraps materialized values that carry lazily loaded
// properties. Most applications embed [LazyProperties] in their target types
// instead of providing one.
type ProxyFactory = engine.ProxyFactory

// Config carries the schema-wide materialization behaviour.
type Config struct {
	// AutoMapping controls mapping of columns no binding claims onto
	// properties with matching names. The zero value is [AutoMapPartial].
	AutoMapping AutoMapping
	// CallSettersOnNull assigns null column values to nullable properties,
	// so map targets carry the column's key with a nil value.
	CallSettersOnNull bool
	// ReturnInstanceForEmptyRow delivers a zero value instead of nil for
	// rows whose every mapped column is null.
	ReturnInstanceForEmptyRow bool
	// MapUnderscoreToCamel lets a column like parent_id match a property
	// like ParentID during automatic mapping.
	MapUnderscoreToCamel bool
}

// Option configures a [Schema].
type Option func(*Schema)

// WithQueryRunner supplies the executor used for nested statement bindings.
func WithQueryRunner(r QueryRunner) Option {
	return func(s *Schema) { s.queries = r }
}

// WithProxyFactory supplies the wrapper applied to values carrying lazily
// loaded properties that cannot receive them directly.
func WithProxyFactory(f ProxyFactory) Option {
	return func(s *Schema) { s.proxies = f }
}

// WithConverter registers a converter for the type of the sample value,
// replacing any default converter for it.
func WithConverter(sample any, c Converter) Option {
	return func(s *Schema) { s.converters.Register(reflect.TypeOf(sample), c) }
}

// Schema is a compiled set of mappings together with the collaborators and
// behaviour they are materialized with. A Schema is built once at start-up
// and is safe for concurrent use afterwards.
type Schema struct {
	registry   *spec.Registry
	converters *typeconv.Registry
	config     engine.Config
	queries    QueryRunner
	proxies    ProxyFactory
}

// NewSchema returns an empty schema with the given behaviour.
func NewSchema(config Config, options ...Option) *Schema {
	s := &Schema{
		registry:   spec.NewRegistry(),
		converters: typeconv.NewRegistry(),
		config:     compileConfig(config),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func compileConfig(config Config) engine.Config {
	out := engine.Config{
		CallSettersOnNull:         config.CallSettersOnNull,
		ReturnInstanceForEmptyRow: config.ReturnInstanceForEmptyRow,
		MapUnderscoreToCamel:      config.MapUnderscoreToCamel,
	}
	switch config.AutoMapping {
	case AutoMapNone:
		out.AutoMapping = spec.AutoNone
	case AutoMapFull:
		out.AutoMapping = spec.AutoFull
	default:
		out.AutoMapping = spec.AutoPartial
	}
	return out
}

// Add compiles and registers a mapping. Mappings may reference each other
// freely; references are resolved when rows are materialized, so
// registration order does not matter.
func (s *Schema) Add(m Mapping) error {
	compiled, err := compileMapping(m)
	if err != nil {
		return err
	}
	return s.registry.Add(compiled)
}

// MustAdd is like [Schema.Add] but panics on error, for registration at
// start-up.
func (s *Schema) MustAdd(m Mapping) {
	if err := s.Add(m); err != nil {
		panic(err)
	}
}

// RegisterConstructor registers a constructor function for its result type.
// The function must return the constructed value, optionally followed by an
// error. Mappings with constructor bindings call the registered constructor
// whose signature matches their declared argument types.
func (s *Schema) RegisterConstructor(fn any) error {
	return s.registry.RegisterConstructor(fn)
}

// RegisterConverter registers a converter for the type of the sample value.
func (s *Schema) RegisterConverter(sample any, c Converter) {
	s.converters.Register(reflect.TypeOf(sample), c)
}
