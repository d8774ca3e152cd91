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

import "go.uber.org/zap"

// Option configures a Map while it is being created.
type Option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash func(key K) uint32
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// Only the low 31 bits of the result are used. The hash function must be
// consistent with the key equality function.
func WithHash[K comparable, V any](hash func(key K) uint32) Option[K, V] {
	return hashOption[K, V]{hash}
}

type equalOption[K comparable, V any] struct {
	equal func(a, b K) bool
}

func (op equalOption[K, V]) apply(m *Map[K, V]) {
	m.equal = op.equal
}

// WithEqual is an option to specify the key equality function to use for a
// Map[K,V] in place of ==.
func WithEqual[K comparable, V any](equal func(a, b K) bool) Option[K, V] {
	return equalOption[K, V]{equal}
}

type valueEqualOption[K comparable, V any] struct {
	equal func(a, b V) bool
}

func (op valueEqualOption[K, V]) apply(m *Map[K, V]) {
	m.PushValueEqual(op.equal)
}

// WithValueEqual is an option to install an initial value equality
// function. See Map.PushValueEqual.
func WithValueEqual[K comparable, V any](equal func(a, b V) bool) Option[K, V] {
	return valueEqualOption[K, V]{equal}
}

type loggerOption[K comparable, V any] struct {
	logger *zap.Logger
}

func (op loggerOption[K, V]) apply(m *Map[K, V]) {
	if op.logger != nil {
		m.logger = op.logger
	}
}

// WithLogger is an option to specify the logger a Map reports misuse to.
// The default is the global zap logger, named "hashmap".
func WithLogger[K comparable, V any](logger *zap.Logger) Option[K, V] {
	return loggerOption[K, V]{logger}
}

type primesOption[K comparable, V any] struct {
	primes PrimePolicy
}

func (op primesOption[K, V]) apply(m *Map[K, V]) {
	m.params.Primes = op.primes
}

// WithPrimes is an option to specify the PrimePolicy used to size the
// bucket array. It overrides Params.Primes.
func WithPrimes[K comparable, V any](primes PrimePolicy) Option[K, V] {
	return primesOption[K, V]{primes}
}

// Allocator specifies an interface for allocating and releasing the bucket
// arrays used by a Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that bucket
// arrays be freed then Map.Close must be called in order to ensure
// FreeBuckets is called for the final array.
type Allocator[K comparable, V any] interface {
	// AllocBuckets should return a slice equivalent to
	// make([]Bucket[K,V], n).
	AllocBuckets(n int) []Bucket[K, V]

	// FreeBuckets can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets. The map no longer references it.
	FreeBuckets(v []Bucket[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocBuckets(n int) []Bucket[K, V] {
	return make([]Bucket[K, V], n)
}

func (defaultAllocator[K, V]) FreeBuckets(v []Bucket[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}
