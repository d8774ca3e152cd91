// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hashmap

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// ReadOnlyAnyMap gives read access to a map without knowing its key and
// value types.
type ReadOnlyAnyMap interface {
	// Read returns the value stored for key. Keys of the wrong type are
	// never present.
	Read(key any) (value any, ok bool)
	ContainsKey(key any) bool
	Len() int
}

// AnyMap gives read and write access to a map without knowing its key and
// value types.
type AnyMap interface {
	ReadOnlyAnyMap
	// Write inserts or overwrites the entry for key, as Map.Remap does. It
	// returns false if key or value have the wrong type.
	Write(key, value any) bool
	// Erase removes the entry for key, as Map.Unmap does.
	Erase(key any) bool
}

type erasedMap[K comparable, V any] struct {
	m *Map[K, V]
}

// Erased returns a view of the map usable through the AnyMap interface.
func (m *Map[K, V]) Erased() AnyMap {
	return erasedMap[K, V]{m: m}
}

func (e erasedMap[K, V]) key(key any) (K, bool) {
	k, ok := key.(K)
	if !ok && debug {
		e.m.logger.Debug("key type mismatch", zap.String("type", typeName(key)))
	}
	return k, ok
}

func (e erasedMap[K, V]) Read(key any) (any, bool) {
	k, ok := e.key(key)
	if !ok {
		return nil, false
	}
	v, ok := e.m.Find(k)
	if !ok {
		return nil, false
	}
	return v, true
}

func (e erasedMap[K, V]) ContainsKey(key any) bool {
	k, ok := e.key(key)
	return ok && e.m.Contains(k)
}

func (e erasedMap[K, V]) Len() int {
	return e.m.Len()
}

func (e erasedMap[K, V]) Write(key, value any) bool {
	k, ok := e.key(key)
	if !ok {
		return false
	}
	v, ok := value.(V)
	if !ok && (value != nil || !nillable[V]()) {
		e.m.logger.Warn("value type mismatch", zap.String("type", typeName(value)))
		return false
	}
	return e.m.Remap(k, v)
}

func (e erasedMap[K, V]) Erase(key any) bool {
	k, ok := e.key(key)
	return ok && e.m.Unmap(k)
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

// nillable returns true if nil is a valid value of type T.
func nillable[T any]() bool {
	switch reflect.TypeOf((*T)(nil)).Elem().Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}
