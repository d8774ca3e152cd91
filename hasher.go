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
	"hash/maphash"
	"math/rand/v2"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// hashFn returns the hash of a key. Only the low 31 bits are used.
type hashFn[K comparable] func(key K) uint32

// fold mixes the high half of a 64-bit hash into the low half.
func fold(h uint64) uint32 {
	return uint32(h ^ (h >> 32))
}

// defaultHasher returns the hash function used for keys of type K when none
// is given with WithHash. Strings are hashed with xxhash under a per-map
// random seed; every other
// comparable type goes through maphash.Comparable, which hashes keys the
// same way the builtin map does.
func defaultHasher[K comparable]() hashFn[K] {
	var k K
	switch any(k).(type) {
	case string:
		// A Map is not goroutine-safe, so its hasher may reuse one digest.
		seed := rand.Uint64()
		d := xxhash.NewWithSeed(seed)
		return func(key K) uint32 {
			d.ResetWithSeed(seed)
			_, _ = d.WriteString(any(key).(string))
			return fold(d.Sum64())
		}
	default:
		seed := maphash.MakeSeed()
		return func(key K) uint32 {
			return fold(maphash.Comparable(seed, key))
		}
	}
}

func defaultEqual[K comparable](a, b K) bool {
	return a == b
}

// nilChecker returns a function reporting whether a key is nil, or nil if
// keys of type K can never be nil.
func nilChecker[K comparable]() func(key K) bool {
	t := reflect.TypeOf((*K)(nil)).Elem()
	switch t.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return func(key K) bool {
			return reflect.ValueOf(&key).Elem().IsNil()
		}
	case reflect.Interface:
		return func(key K) bool {
			return any(key) == nil
		}
	default:
		return nil
	}
}
