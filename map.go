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

// Package hashmap is an open-addressing hash table using double hashing
// over a bucket array of prime length.
//
// # Probing
//
// Every key is reduced to a 31-bit hash h. Probing starts at bucket
// h % size and advances by a jump derived from a second hash,
//
//	jump := 1 + ((h * hashPrime) & 0x7FFFFFFF) % (size - 1)
//
// Because size is prime and jump lies in [1, size-1], jump and size are
// coprime and the probe sequence visits every bucket exactly once before it
// repeats. Keys that collide on their first bucket usually diverge after
// the first step, which avoids the clustering of linear probing. The table
// size must never equal hashPrime; the Params type takes care of choosing
// sizes that satisfy both constraints.
//
// # Dirty buckets
//
// Rather than a separate tombstone marker, each bucket carries a dirty flag
// packed into the sign bit of its stored hash. The flag is set on every
// bucket an insertion has to step past, and on every bucket whose entry is
// removed. A bucket that is not dirty therefore terminates every probe
// sequence that does not end at the bucket itself: no key was ever placed
// beyond it. Lookups stop at the first clean bucket, whether it is empty or
// holds a different key. Removal clears the entry and leaves the dirty flag
// set (the bucket is "smeared"), so lookups for keys placed beyond it keep
// probing. Insertions reuse the first smeared bucket on their probe
// sequence.
//
// The number of dirty buckets is tracked as the map's collision count. When
// it grows past the load limit on a map holding more than
// Params.RehashThreshold entries, the map rehashes at its current size to
// shed the accumulated dirt; growth past the load limit rehashes into a
// larger prime-sized array.
//
// # Iteration
//
// Every structural change bumps a version counter. Iteration captures the
// version and panics with ErrMutatedDuringIteration on the first step after
// the map has changed underneath it.
//
// A Map is NOT goroutine-safe. Callers sharing a Map between goroutines
// must provide their own synchronization.
package hashmap

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const debug = false

// TryResult is the outcome of Map.TryMap.
type TryResult int8

const (
	// TryError indicates the entry could not be inserted because of invalid
	// input or a map that cannot grow.
	TryError TryResult = iota - 1
	// TryAlreadyPresent indicates nothing was done because the key already
	// had an entry.
	TryAlreadyPresent
	// TryInserted indicates the entry was inserted.
	TryInserted
)

func (r TryResult) String() string {
	switch r {
	case TryError:
		return "error"
	case TryAlreadyPresent:
		return "already-present"
	case TryInserted:
		return "inserted"
	default:
		return fmt.Sprintf("TryResult(%d)", int8(r))
	}
}

// Map is an unordered map from keys to values. By default a Map[K,V] uses
// the key's builtin equality and a hash consistent with it, though both can
// be replaced using the WithHash and WithEqual options.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	hash  hashFn[K]
	equal func(a, b K) bool
	// valueEqual is a stack of value equality functions. The top one
	// decides whether Remap is a no-op.
	valueEqual []func(a, b V) bool
	// isNil is nil when keys of type K cannot be nil.
	isNil     func(key K) bool
	allocator Allocator[K, V]
	logger    *zap.Logger
	params    Params

	// buckets always has prime length.
	buckets []Bucket[K, V]
	// The number of live buckets.
	used uint32
	// The number of dirty buckets.
	collisions uint32
	// collisionFloor is the collision count the last rebuild produced.
	collisionFloor uint32
	// Inserting once used reaches loadLimit grows the map.
	loadLimit uint32
	version   uint64
}

// New constructs a new Map with the specified params. The zero Params
// selects DefaultParams. Params failing Params.Check are reported to the
// map's logger and replaced by DefaultParams.
func New[K comparable, V any](params Params, options ...Option[K, V]) *Map[K, V] {
	if params.isZero() {
		d := DefaultParams()
		d.Primes = params.Primes
		params = d
	}
	m := &Map[K, V]{
		hash:      defaultHasher[K](),
		equal:     defaultEqual[K],
		isNil:     nilChecker[K](),
		allocator: defaultAllocator[K, V]{},
		logger:    zap.L().Named("hashmap"),
		params:    params,
	}

	for _, op := range options {
		op.apply(m)
	}

	m.params = m.params.Sanitize(m.logger)
	m.reset(m.params.MinCapacity)
	m.checkInvariants()
	return m
}

func (p Params) isZero() bool {
	return p.MinCapacity == 0 && p.LoadFactor == 0 && p.GrowFactor == 0 && p.HashPrime == 0
}

// Close releases the bucket array back to the configured allocator. It is
// unnecessary to close a map using the default allocator. It is invalid to
// use a Map after it has been closed, though Close itself is idempotent.
func (m *Map[K, V]) Close() {
	if m.buckets != nil {
		m.allocator.FreeBuckets(m.buckets)
		m.buckets = nil
	}
	m.used = 0
	m.collisions = 0
}

// Find retrieves the value for the specified key, returning ok=false if the
// key is not present.
func (m *Map[K, V]) Find(key K) (value V, ok bool) {
	if m.nilKey(key) {
		return value, false
	}
	if i := m.lookup(m.hashKey(key), key); i >= 0 {
		return m.buckets[i].value, true
	}
	return value, false
}

// Contains returns true if the key is present.
func (m *Map[K, V]) Contains(key K) bool {
	if m.nilKey(key) {
		return false
	}
	return m.lookup(m.hashKey(key), key) >= 0
}

// Map inserts an entry if the key is not present. It returns false if the
// key was present or the entry could not be inserted.
func (m *Map[K, V]) Map(key K, value V) bool {
	r, _ := m.insert(key, value, false)
	return r == TryInserted
}

// TryMap inserts an entry if the key is not present. If it is present the
// existing value is returned along with TryAlreadyPresent. TryError is
// returned for nil keys, and for fixed size maps that are full.
func (m *Map[K, V]) TryMap(key K, value V) (TryResult, V) {
	return m.insert(key, value, false)
}

// Remap inserts an entry, overwriting the value of an existing entry with
// the same key. If a value equality function is installed and reports the
// new value equal to the existing one, nothing is changed and false is
// returned. Without one, overwriting always counts as a change.
func (m *Map[K, V]) Remap(key K, value V) bool {
	r, _ := m.insert(key, value, true)
	return r == TryInserted
}

// Unmap removes the entry for the specified key. It returns false, leaving
// the map untouched, if the key is not present.
func (m *Map[K, V]) Unmap(key K) bool {
	if m.nilKey(key) {
		return false
	}
	i := m.lookup(m.hashKey(key), key)
	if i < 0 {
		return false
	}
	if m.buckets[i].smear() {
		m.collisions++
	}
	m.used--
	m.version++
	if debug {
		m.logger.Debug("unmap", zap.Int("index", i), zap.Uint32("used", m.used))
	}
	m.checkInvariants()
	return true
}

// Set replaces the contents of the map with the positionally paired keys
// and values, building a fresh bucket array sized for them. Nil keys,
// duplicate keys (the first occurrence wins) and keys without a value are
// logged and skipped. Set returns the number of entries placed.
func (m *Map[K, V]) Set(keys []K, values []V) int {
	n := len(keys)
	if len(values) != n {
		m.logger.Warn("mismatched key and value counts, ignoring unpaired entries",
			zap.Int("keys", len(keys)), zap.Int("values", len(values)))
		n = min(n, len(values))
	}

	size := m.params.MinCapacity
	if !m.params.IsFixedSize() {
		if s := m.params.CalcRealCapacity(uint32(min(n, MaxPrimeCapacity))); s > size {
			size = s
		}
	}
	loadLimit := m.params.CalcLoadLimit(size)

	buckets := m.allocator.AllocBuckets(int(size))
	var used, collisions, skipped uint32
	for i := 0; i < n; i++ {
		key := keys[i]
		if m.isNil != nil && m.isNil(key) {
			m.logger.Warn("skipping nil key", zap.Int("index", i))
			continue
		}
		h := m.hashKey(key)
		seq := makeProbeSeq(h, m.params.CalcJump(h, size), size)
		if used >= loadLimit {
			if findIn(buckets, seq, h, key, m.equal) {
				m.logger.Warn("skipping duplicate key", zap.Int("index", i))
			} else {
				skipped++
			}
			continue
		}
		placed, dirtied := placeIn(buckets, seq, h, key, values[i], m.equal)
		collisions += dirtied
		if !placed {
			m.logger.Warn("skipping duplicate key", zap.Int("index", i))
			continue
		}
		used++
	}
	if skipped > 0 {
		m.logger.Warn("fixed size map full, skipped entries",
			zap.Uint32("skipped", skipped), zap.Uint32("load-limit", loadLimit))
	}

	m.install(buckets, used, collisions)
	m.loadLimit = loadLimit
	m.version++
	m.checkInvariants()
	return int(used)
}

// ClearSelective removes every entry for which pred returns true, returning
// the number removed. If no entries remain the bucket array is replaced by
// a fresh one of the initial size.
func (m *Map[K, V]) ClearSelective(pred func(key K, value V) bool) int {
	var removed int
	for i := len(m.buckets) - 1; i >= 0; i-- {
		b := &m.buckets[i]
		if !b.live || !pred(b.key, b.value) {
			continue
		}
		if b.smear() {
			m.collisions++
		}
		m.used--
		removed++
	}
	if removed == 0 {
		return 0
	}
	if m.used == 0 {
		m.reset(m.params.MinCapacity)
	}
	m.version++
	m.checkInvariants()
	return removed
}

// Clear removes all entries, resetting the bucket array to its initial size.
func (m *Map[K, V]) Clear() {
	m.reset(m.params.MinCapacity)
	m.version++
	m.checkInvariants()
}

// GrowTo makes room for at least capacity entries. The new bucket array
// length is found by growing repeatedly from the current one. If rehash is
// true the entries are moved into a new array of that length. Otherwise
// only the load limit is raised, up to the length of the current array,
// deferring the reallocation. GrowTo returns false if the map is already
// large enough or may not grow.
func (m *Map[K, V]) GrowTo(capacity int, rehash bool) bool {
	if m.params.IsFixedSize() {
		m.misuse("cannot grow fixed size map", ErrFixedSize, zap.Int("capacity", capacity))
		return false
	}
	if capacity <= 0 {
		return false
	}
	target := m.params.CalcRealCapacity(max(uint32(min(capacity, MaxPrimeCapacity)), m.used))
	size := uint32(len(m.buckets))
	if size >= target {
		return false
	}
	for i := 0; size < target; i++ {
		next, ok := m.params.CalcNextSize(size)
		if !ok || i == maxGrowSteps {
			// Degenerate grow factors or prime policies end up here. The
			// target is itself a valid size.
			m.logger.Warn("grow sequence exhausted, using target capacity",
				zap.Uint32("size", size), zap.Uint32("target", target), zap.Int("steps", i))
			size = target
			break
		}
		size = next
	}

	if rehash {
		m.rehash(size)
		return true
	}
	limit := min(m.params.CalcLoadLimit(size), uint32(len(m.buckets)))
	if limit <= m.loadLimit {
		return false
	}
	m.loadLimit = limit
	return true
}

// Rehash moves every entry into a new bucket array of the specified length,
// which must be a prime other than Params.HashPrime whose load limit can
// hold the current entries. It returns false if realSize is unacceptable.
func (m *Map[K, V]) Rehash(realSize int) bool {
	policy := m.params.primes()
	switch {
	case realSize < MinPrimeCapacity || realSize > MaxPrimeCapacity:
		m.misuse("rehash size out of range", ErrInvalidParams, zap.Int("size", realSize))
		return false
	case !policy.IsPrime(uint32(realSize)) || uint32(realSize) == m.params.HashPrime:
		m.misuse("rehash size is not hash safe", ErrInvalidParams, zap.Int("size", realSize))
		return false
	case m.params.CalcLoadLimit(uint32(realSize)) < m.used:
		m.misuse("rehash size too small", ErrInvalidParams,
			zap.Int("size", realSize), zap.Uint32("used", m.used))
		return false
	}
	m.rehash(uint32(realSize))
	return true
}

// PushValueEqual installs a value equality function consulted by Remap,
// shadowing the current one until PopValueEqual. Pushing nil disables the
// check.
func (m *Map[K, V]) PushValueEqual(equal func(a, b V) bool) {
	m.valueEqual = append(m.valueEqual, equal)
}

// PopValueEqual restores the value equality function that was installed
// before the last PushValueEqual. It returns false if the stack is empty.
func (m *Map[K, V]) PopValueEqual() bool {
	n := len(m.valueEqual)
	if n == 0 {
		return false
	}
	m.valueEqual[n-1] = nil
	m.valueEqual = m.valueEqual[:n-1]
	return true
}

// All calls yield sequentially for each key and value present in the map.
// If yield returns false, All stops the iteration. Mutating the map from
// yield panics with ErrMutatedDuringIteration once yield returns.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	version := m.version
	buckets := m.buckets
	for i := range buckets {
		b := &buckets[i]
		if !b.live {
			continue
		}
		if !yield(b.key, b.value) {
			return
		}
		if m.version != version {
			panic(ErrMutatedDuringIteration)
		}
	}
}

// Iterator steps through the entries of a Map. It is invalidated by any
// structural change of the map.
type Iterator[K comparable, V any] struct {
	m       *Map[K, V]
	buckets []Bucket[K, V]
	version uint64
	index   int
	key     K
	value   V
}

// Iter returns an iterator positioned before the first entry.
func (m *Map[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{
		m:       m,
		buckets: m.buckets,
		version: m.version,
		index:   -1,
	}
}

// Next advances to the next entry, returning false when there are no more.
// It panics with ErrMutatedDuringIteration if the map changed since the
// iterator was created.
func (it *Iterator[K, V]) Next() bool {
	if it.m.version != it.version {
		panic(ErrMutatedDuringIteration)
	}
	for it.index++; it.index < len(it.buckets); it.index++ {
		if b := &it.buckets[it.index]; b.live {
			it.key, it.value = b.key, b.value
			return true
		}
	}
	return false
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

// Export returns the entries as positionally paired key and value slices,
// the inverse of Set.
func (m *Map[K, V]) Export() ([]K, []V) {
	keys := make([]K, 0, m.used)
	values := make([]V, 0, m.used)
	m.All(func(k K, v V) bool {
		keys = append(keys, k)
		values = append(values, v)
		return true
	})
	return keys, values
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return int(m.used)
}

// Capacity returns the length of the bucket array.
func (m *Map[K, V]) Capacity() int {
	return len(m.buckets)
}

// LoadLimit returns the number of entries at which the map grows.
func (m *Map[K, V]) LoadLimit() int {
	return int(m.loadLimit)
}

// Collisions returns the number of dirty buckets.
func (m *Map[K, V]) Collisions() int {
	return int(m.collisions)
}

// Version returns a counter that changes with every structural change of
// the map.
func (m *Map[K, V]) Version() uint64 {
	return m.version
}

// Params returns the params in effect.
func (m *Map[K, V]) Params() Params {
	return m.params
}

func (m *Map[K, V]) hashKey(key K) uint32 {
	return m.hash(key) & hashMask
}

func (m *Map[K, V]) probeSeq(h uint32) probeSeq {
	size := uint32(len(m.buckets))
	return makeProbeSeq(h, m.params.CalcJump(h, size), size)
}

func (m *Map[K, V]) nilKey(key K) bool {
	if m.isNil == nil || !m.isNil(key) {
		return false
	}
	m.misuse("nil key", ErrNilKey)
	return true
}

func (m *Map[K, V]) valueEqualFn() func(a, b V) bool {
	if n := len(m.valueEqual); n > 0 {
		return m.valueEqual[n-1]
	}
	return nil
}

// lookup returns the index of the bucket holding key, or -1.
func (m *Map[K, V]) lookup(h uint32, key K) int {
	for seq := m.probeSeq(h); !seq.done(); seq = seq.next() {
		b := &m.buckets[seq.offset]
		if b.live && b.hash.hash31() == h && m.equal(b.key, key) {
			return int(seq.offset)
		}
		if !b.hash.dirty() {
			// Nothing was ever placed beyond a clean bucket.
			return -1
		}
	}
	return -1
}

// search walks the probe sequence of key. If key is present, found is the
// index of its bucket and slot is -1. Otherwise found is -1 and slot is the
// index of the bucket to insert key into, which is the first smeared bucket
// on the sequence if there is one. steps is the position of slot in the
// probe sequence. slot is -1 if the sequence has no free bucket at all.
func (m *Map[K, V]) search(h uint32, key K) (found, slot int, steps uint32) {
	found, slot = -1, -1
	seq := m.probeSeq(h)
	for ; !seq.done(); seq = seq.next() {
		b := &m.buckets[seq.offset]
		if b.live {
			if b.hash.hash31() == h && m.equal(b.key, key) {
				return int(seq.offset), -1, seq.index
			}
			if b.hash.dirty() {
				continue
			}
			// The key is absent. Keep walking to find a free bucket.
			break
		}
		if b.hash.dirty() {
			if slot < 0 {
				slot, steps = int(seq.offset), seq.index
			}
			continue
		}
		if slot < 0 {
			slot, steps = int(seq.offset), seq.index
		}
		return -1, slot, steps
	}
	if slot >= 0 {
		return -1, slot, steps
	}
	for ; !seq.done(); seq = seq.next() {
		if !m.buckets[seq.offset].live {
			return -1, int(seq.offset), seq.index
		}
	}
	return -1, -1, 0
}

func (m *Map[K, V]) insert(key K, value V, overwrite bool) (TryResult, V) {
	var zero V
	if m.nilKey(key) {
		return TryError, zero
	}
	h := m.hashKey(key)
	found, slot, steps := m.search(h, key)
	if debug {
		m.logger.Debug("insert", zap.Any("key", key), zap.Int("found", found),
			zap.Int("slot", slot), zap.Uint32("steps", steps))
	}

	if found >= 0 {
		b := &m.buckets[found]
		existing := b.value
		if !overwrite {
			return TryAlreadyPresent, existing
		}
		if eq := m.valueEqualFn(); eq != nil && eq(existing, value) {
			return TryAlreadyPresent, existing
		}
		b.value = value
		m.version++
		return TryInserted, existing
	}

	rebuilt, ok := m.maintain()
	if !ok {
		return TryError, zero
	}
	if rebuilt {
		_, slot, steps = m.search(h, key)
	}
	if slot < 0 {
		// Every bucket on the probe sequence is live, yet the load limit
		// guarantees a free one. The hash, equality or prime policy is
		// broken.
		m.misuse("probe sequence exhausted", errors.AssertionFailedf(
			"no free bucket for hash %08x among %d buckets holding %d entries",
			h, len(m.buckets), m.used))
		return TryError, zero
	}

	seq := m.probeSeq(h)
	for ; seq.index < steps; seq = seq.next() {
		if m.buckets[seq.offset].markDirty() {
			m.collisions++
		}
	}
	m.buckets[slot].fill(h, key, value)
	m.used++
	m.version++
	m.checkInvariants()
	return TryInserted, zero
}

// maintain grows or rehashes the map before an insertion of a new key.
// rebuilt is true if the bucket array was replaced. ok is false if the map
// is full and cannot grow.
func (m *Map[K, V]) maintain() (rebuilt, ok bool) {
	size := uint32(len(m.buckets))
	if m.used >= m.loadLimit {
		next, ok := m.growSize(size)
		if !ok {
			if debug || !m.params.IsFixedSize() {
				m.logger.Warn("map full", zap.Uint32("used", m.used),
					zap.Uint32("load-limit", m.loadLimit), zap.Uint32("size", size))
			}
			return false, false
		}
		m.rehash(next)
		return true, true
	}
	// A rehash at the current size only helps if the collisions were
	// accumulated since the last rebuild rather than produced by it.
	if m.collisions > m.loadLimit && m.collisions > 2*m.collisionFloor &&
		m.used > m.params.RehashThreshold() {
		m.rehash(size)
		return true, true
	}
	return false, true
}

// growSize returns the first size in the grow sequence after size whose
// load limit admits one more entry. Small load factors can need several
// steps. ok is false if the map may not grow.
func (m *Map[K, V]) growSize(size uint32) (next uint32, ok bool) {
	next = size
	for i := 0; m.params.CalcLoadLimit(next) <= m.used; i++ {
		n, grown := m.params.CalcNextSize(next)
		if !grown || i == maxGrowSteps {
			if next == size {
				return size, false
			}
			next = m.params.CalcRealCapacity(m.used + 1)
			return next, m.params.CalcLoadLimit(next) > m.used
		}
		next = n
	}
	return next, true
}

// rehash moves every entry into a new bucket array of length size.
func (m *Map[K, V]) rehash(size uint32) {
	if debug {
		m.logger.Debug("rehash", zap.Int("from", len(m.buckets)), zap.Uint32("to", size),
			zap.Uint32("used", m.used), zap.Uint32("collisions", m.collisions))
	}
	buckets := m.allocator.AllocBuckets(int(size))
	var used, collisions uint32
	for i := range m.buckets {
		b := &m.buckets[i]
		if !b.live {
			continue
		}
		h := b.hash.hash31()
		seq := makeProbeSeq(h, m.params.CalcJump(h, size), size)
		placed, dirtied := placeIn(buckets, seq, h, b.key, b.value, m.equal)
		collisions += dirtied
		if placed {
			used++
		}
	}
	if used != m.used {
		m.misuse("rehash lost entries", errors.AssertionFailedf(
			"rehash placed %d of %d entries", used, m.used))
	}

	m.install(buckets, used, collisions)
	m.loadLimit = m.params.CalcLoadLimit(size)
	m.version++
	m.checkInvariants()
}

// install replaces the bucket array, freeing the old one.
func (m *Map[K, V]) install(buckets []Bucket[K, V], used, collisions uint32) {
	old := m.buckets
	m.buckets = buckets
	m.used = used
	m.collisions = collisions
	m.collisionFloor = collisions
	if old != nil {
		m.allocator.FreeBuckets(old)
	}
}

// reset installs an empty bucket array of length size.
func (m *Map[K, V]) reset(size uint32) {
	m.install(m.allocator.AllocBuckets(int(size)), 0, 0)
	m.loadLimit = m.params.CalcLoadLimit(size)
}

// misuse reports a programmer error or broken invariant. Under the
// invariants build tag it panics; otherwise the caller falls back to a safe
// result.
func (m *Map[K, V]) misuse(msg string, err error, fields ...zap.Field) {
	m.logger.Error(msg, append(fields, zap.Error(err))...)
	if invariants {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "%s", msg))
	}
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		size := uint32(len(m.buckets))
		if !m.params.primes().IsPrime(size) || size == m.params.HashPrime {
			panic(fmt.Sprintf("invariant failed: bucket array length %d is not hash safe", size))
		}
		if m.loadLimit == 0 || m.loadLimit > size {
			panic(fmt.Sprintf("invariant failed: load limit %d for %d buckets", m.loadLimit, size))
		}
		if m.used > m.loadLimit {
			panic(fmt.Sprintf("invariant failed: %d entries exceed load limit %d", m.used, m.loadLimit))
		}

		var used, dirty uint32
		for i := range m.buckets {
			b := &m.buckets[i]
			if b.hash.dirty() {
				dirty++
			}
			if !b.live {
				continue
			}
			used++
			if j := m.lookup(b.hash.hash31(), b.key); j != i {
				panic(fmt.Sprintf("invariant failed: bucket(%d): %v found at %d\n%s",
					i, b.key, j, m.debugString()))
			}
		}
		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d live buckets, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
		if dirty != m.collisions {
			panic(fmt.Sprintf("invariant failed: found %d dirty buckets, but collision count is %d\n%s",
				dirty, m.collisions, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "size=%d  used=%d  collisions=%d  load-limit=%d\n",
		len(m.buckets), m.used, m.collisions, m.loadLimit)
	for i := range m.buckets {
		b := &m.buckets[i]
		switch s := b.state(); s {
		case bucketDefault:
			fmt.Fprintf(&buf, "  %4d: %s\n", i, s)
		case bucketSmeared:
			fmt.Fprintf(&buf, "  %4d: %s [hash=%s]\n", i, s, b.hash)
		default:
			fmt.Fprintf(&buf, "  %4d: %v [hash=%s]\n", i, b.key, b.hash)
		}
	}
	return buf.String()
}
