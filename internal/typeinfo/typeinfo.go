// Copyright 2026 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typeinfo holds reflection information about materialization target
// types. Properties of a struct target are addressed by their "db" tag when
// one is present, falling back to the field name. Generated information is
// cached per type for the lifetime of the process.
package typeinfo

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// Field describes a single settable property of a struct target.
type Field struct {
	// Name is the member name within the struct.
	Name string
	// Index is the field's index for reflect.Value.Field.
	Index int
	// Type is the declared type of the field.
	Type reflect.Type
	// Tag is the "db" tag of the field, or "" when untagged.
	Tag string
}

// Property returns the name under which the field is addressed in mappings.
func (f Field) Property() string {
	if f.Tag != "" {
		return f.Tag
	}
	return f.Name
}

// Info is the reflection information generated for a struct target type.
type Info struct {
	Type reflect.Type

	// byName indexes fields by lower-cased tag and field name.
	byName map[string]Field
}

// GetInfo returns the Info for a type, generating and caching as required.
// The type may be given as a struct or a pointer to one.
func GetInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot reflect non-struct type %s", t)
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info = &Info{Type: t, byName: make(map[string]Field)}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		if idx := strings.IndexByte(tag, ','); idx >= 0 {
			tag = tag[:idx]
		}
		field := Field{Name: f.Name, Index: i, Type: f.Type, Tag: tag}
		if tag != "" {
			info.byName[strings.ToLower(tag)] = field
		}
		if _, taken := info.byName[strings.ToLower(f.Name)]; !taken {
			info.byName[strings.ToLower(f.Name)] = field
		}
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// FindField looks a property up by name, case-insensitively. When
// underscoreToCamel is set a column name like parent_id also matches a
// ParentID field.
func (info *Info) FindField(property string, underscoreToCamel bool) (Field, bool) {
	f, ok := info.byName[strings.ToLower(property)]
	if !ok && underscoreToCamel {
		f, ok = info.byName[strings.ToLower(strings.ReplaceAll(property, "_", ""))]
	}
	return f, ok
}

// IsCollection reports whether a type has a collection shape that nested
// association rows can be appended to.
func IsCollection(t reflect.Type) bool {
	if t == nil {
		return false
	}
	return t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8
}
