// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typeconv resolves value converters that turn raw column values, as
// produced by a database driver, into values of a Go target type. A Registry
// holds one converter per target type and can always fall back to a generic
// passthrough converter for targets it has no specific knowledge of.
package typeconv

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Converter converts a raw column value into a value assignable to the
// target type it was resolved for. A nil raw value converts to nil: deciding
// what to do with NULL is the caller's concern, not the converter's.
type Converter interface {
	Convert(raw any) (any, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(raw any) (any, error)

func (f ConverterFunc) Convert(raw any) (any, error) {
	return f(raw)
}

// Passthrough returns the raw value unchanged. It is the fallback used when
// no converter is registered for a required target type.
var Passthrough Converter = ConverterFunc(func(raw any) (any, error) {
	return raw, nil
})

// Registry maps target types to converters. The zero value is not usable,
// use NewRegistry to get a registry loaded with the built-in converters.
type Registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]Converter
}

// NewRegistry returns a registry with converters for the Go scalar types,
// []byte, time.Time, decimal.Decimal and uuid.UUID registered.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[reflect.Type]Converter)}
	for _, t := range []reflect.Type{
		reflect.TypeOf(int(0)),
		reflect.TypeOf(int8(0)),
		reflect.TypeOf(int16(0)),
		reflect.TypeOf(int32(0)),
		reflect.TypeOf(int64(0)),
		reflect.TypeOf(uint(0)),
		reflect.TypeOf(uint8(0)),
		reflect.TypeOf(uint16(0)),
		reflect.TypeOf(uint32(0)),
		reflect.TypeOf(uint64(0)),
		reflect.TypeOf(float32(0)),
		reflect.TypeOf(float64(0)),
		reflect.TypeOf(""),
		reflect.TypeOf(false),
		reflect.TypeOf([]byte(nil)),
	} {
		r.byType[t] = &scalarConverter{target: t}
	}
	r.byType[reflect.TypeOf(time.Time{})] = ConverterFunc(convertTime)
	r.byType[reflect.TypeOf(decimal.Decimal{})] = ConverterFunc(convertDecimal)
	r.byType[reflect.TypeOf(uuid.UUID{})] = ConverterFunc(convertUUID)
	return r
}

// Register adds or replaces the converter for a target type.
func (r *Registry) Register(target reflect.Type, c Converter) {
	r.mu.Lock()
	r.byType[target] = c
	r.mu.Unlock()
}

// HasConverter reports whether a converter is registered for the target
// type. The column hint is the declared database type of the column; an
// interface target is convertible whatever the hint says.
func (r *Registry) HasConverter(target reflect.Type, hint string) bool {
	if target == nil {
		return false
	}
	if target.Kind() == reflect.Interface {
		return true
	}
	r.mu.RLock()
	_, ok := r.byType[target]
	r.mu.RUnlock()
	return ok
}

// Converter returns the converter for the target type, or nil if none is
// registered. Interface targets get the passthrough converter.
func (r *Registry) Converter(target reflect.Type, hint string) Converter {
	if target == nil {
		return nil
	}
	if target.Kind() == reflect.Interface {
		return Passthrough
	}
	r.mu.RLock()
	c := r.byType[target]
	r.mu.RUnlock()
	return c
}

// scalarConverter coerces driver scalar values (int64, float64, string,
// []byte, bool) into a specific Go scalar type.
type scalarConverter struct {
	target reflect.Type
}

func (c *scalarConverter) Convert(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	v := reflect.ValueOf(raw)
	if v.Type() == c.target {
		return raw, nil
	}
	switch c.target.Kind() {
	case reflect.String:
		if b, ok := raw.([]byte); ok {
			return string(b), nil
		}
	case reflect.Slice:
		if c.target.Elem().Kind() == reflect.Uint8 {
			if s, ok := raw.(string); ok {
				return []byte(s), nil
			}
		}
	case reflect.Bool:
		switch n := raw.(type) {
		case int64:
			return n != 0, nil
		case string:
			b, err := strconv.ParseBool(n)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to bool", n)
			}
			return b, nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if s, ok := raw.(string); ok {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s", s, c.target)
			}
			v = reflect.ValueOf(f)
		}
	}
	if v.Type().ConvertibleTo(c.target) && convertibleKinds(v.Kind(), c.target.Kind()) {
		return v.Convert(c.target).Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", raw, c.target)
}

// convertibleKinds rules out the string/numeric conversions that Go's
// ConvertibleTo permits but that would mangle values, like int to string.
func convertibleKinds(from, to reflect.Kind) bool {
	if to == reflect.String {
		return from == reflect.String
	}
	if from == reflect.String {
		return to == reflect.String
	}
	return true
}

func convertTime(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to time.Time: %s", v, err)
		}
		return t, nil
	case []byte:
		return convertTime(string(v))
	}
	return nil, fmt.Errorf("cannot convert %T to time.Time", raw)
}

func convertDecimal(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		return v, nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to decimal: %s", v, err)
		}
		return d, nil
	case []byte:
		return convertDecimal(string(v))
	}
	return nil, fmt.Errorf("cannot convert %T to decimal", raw)
}

func convertUUID(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return v, nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to uuid: %s", v, err)
		}
		return id, nil
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return nil, fmt.Errorf("cannot convert bytes to uuid: %s", err)
			}
			return id, nil
		}
		return convertUUID(string(v))
	}
	return nil, fmt.Errorf("cannot convert %T to uuid", raw)
}
