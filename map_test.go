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
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// toBuiltinMap returns the elements as a map[K]V. Useful for testing.
func (m *Map[K, V]) toBuiltinMap() map[K]V {
	r := make(map[K]V)
	m.All(func(k K, v V) bool {
		r[k] = v
		return true
	})
	return r
}

// randElement returns an element of the map, starting the search at a
// random bucket.
func (m *Map[K, V]) randElement() (key K, value V, ok bool) {
	n := len(m.buckets)
	start := rand.Intn(n)
	for i := 0; i < n; i++ {
		if b := &m.buckets[(start+i)%n]; b.live {
			return b.key, b.value, true
		}
	}
	return key, value, false
}

// dirtyBuckets counts the dirty buckets by inspection.
func (m *Map[K, V]) dirtyBuckets() int {
	var n int
	for i := range m.buckets {
		if m.buckets[i].hash.dirty() {
			n++
		}
	}
	return n
}

// mixHash is a deterministic hash for int keys.
func mixHash(k int) uint32 {
	return fold(uint64(k) * 0x9E3779B97F4A7C15)
}

func TestProbeSeq(t *testing.T) {
	p := DefaultParams()
	for _, size := range []uint32{3, 5, 7, 11, 13, 17, 23, 47, 97, 197, 1009} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			for i := 0; i < 100; i++ {
				h := rand.Uint32() & hashMask
				jump := p.CalcJump(h, size)
				require.GreaterOrEqual(t, jump, uint32(1))
				require.LessOrEqual(t, jump, size-1)

				// Every bucket is visited exactly once before the sequence
				// repeats.
				seq := makeProbeSeq(h, jump, size)
				vals := make([]uint32, 0, size)
				for ; !seq.done(); seq = seq.next() {
					vals = append(vals, seq.offset)
				}
				require.EqualValues(t, h%size, seq.offset)
				sort.Slice(vals, func(i, j int) bool {
					return vals[i] < vals[j]
				})
				for j := range vals {
					require.EqualValues(t, j, vals[j])
				}
			}
		})
	}
}

func TestInitialCapacity(t *testing.T) {
	testCases := []struct {
		params            Params
		expectedCapacity  int
		expectedLoadLimit int
	}{
		{Params{}, 11, 7},
		{DefaultParams(), 11, 7},
		{NewParams(0, 0.72, 2), 3, 2},
		{NewParams(1, 0.72, 2), 3, 2},
		{NewParams(10, 0.72, 2), 17, 12},
		// 101 is skipped as it equals the hash prime.
		{NewParams(70, 0.72, 2), 103, 74},
		{NewParams(100, 0.72, 2), 139, 100},
		{FixedParams(5, 1), 5, 5},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			m := New[int, int](c.params, WithLogger[int, int](zaptest.NewLogger(t)))
			require.EqualValues(t, c.expectedCapacity, m.Capacity())
			require.EqualValues(t, c.expectedLoadLimit, m.LoadLimit())
			require.EqualValues(t, 0, m.Len())
			require.EqualValues(t, 0, m.Collisions())
		})
	}
}

func TestBasic(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int]) {
		const count = 100

		e := make(map[int]int)
		require.EqualValues(t, 0, m.Len())

		// Non-existent.
		for i := 0; i < count; i++ {
			_, ok := m.Find(i)
			require.False(t, ok)
			require.False(t, m.Contains(i))
		}

		// Insert.
		for i := 0; i < count; i++ {
			require.True(t, m.Map(i, i+count))
			e[i] = i + count
			v, ok := m.Find(i)
			require.True(t, ok)
			require.EqualValues(t, i+count, v)
			require.EqualValues(t, i+1, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
			require.False(t, m.Map(i, 0))
		}

		// Update.
		for i := 0; i < count; i++ {
			require.True(t, m.Remap(i, i+2*count))
			e[i] = i + 2*count
			v, ok := m.Find(i)
			require.True(t, ok)
			require.EqualValues(t, i+2*count, v)
			require.EqualValues(t, count, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Delete.
		for i := 0; i < count; i++ {
			require.True(t, m.Unmap(i))
			delete(e, i)
			require.EqualValues(t, count-i-1, m.Len())
			_, ok := m.Find(i)
			require.False(t, ok)
			require.False(t, m.Unmap(i))
			require.Equal(t, e, m.toBuiltinMap())
		}
		require.Equal(t, m.dirtyBuckets(), m.Collisions())
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](Params{}))
	})

	t.Run("fixed", func(t *testing.T) {
		test(t, New[int, int](FixedParams(100, 0.8)))
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint32) {
			m := New[int, int](Params{},
				WithHash[int, int](func(key int) uint32 {
					return h
				}))
			test(t, m)
		}

		for _, v := range []uint32{0, hashMask, ^uint32(0)} {
			t.Run(fmt.Sprintf("%08x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
		for i := 0; i < 10; i++ {
			v := rand.Uint32()
			t.Run(fmt.Sprintf("%08x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
	})
}

func TestRandom(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int], ops int) {
		e := make(map[int]int)
		for i := 0; i < ops; i++ {
			switch r := rand.Float64(); {
			case r < 0.5: // 50% inserts
				k, v := rand.Int(), rand.Int()
				m.Remap(k, v)
				e[k] = v
			case r < 0.65: // 15% updates
				if k, _, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					v := rand.Int()
					m.Remap(k, v)
					e[k] = v
				}
			case r < 0.80: // 15% deletes
				if k, _, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.True(t, m.Unmap(k))
					delete(e, k)
				}
			case r < 0.95: // 15% lookups
				if k, v, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.EqualValues(t, e[k], v)
					found, ok := m.Find(k)
					require.True(t, ok)
					require.EqualValues(t, e[k], found)
				}
			default: // 5% rehash in place and iterate
				require.True(t, m.Rehash(m.Capacity()))
				require.Equal(t, e, m.toBuiltinMap())
			}
			require.EqualValues(t, len(e), m.Len())
		}
		require.Equal(t, e, m.toBuiltinMap())
		require.Equal(t, m.dirtyBuckets(), m.Collisions())
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](Params{}), 10000)
	})

	t.Run("low-load", func(t *testing.T) {
		test(t, New[int, int](NewParams(0, MinLoadFactor, MinGrowFactor)), 10000)
	})

	t.Run("full-load", func(t *testing.T) {
		test(t, New[int, int](NewParams(0, MaxLoadFactor, DefaultGrowFactor)), 10000)
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint32) {
			m := New[int, int](Params{},
				WithHash[int, int](func(key int) uint32 {
					return h
				}))
			test(t, m, 1000)
		}

		for _, v := range []uint32{0, hashMask} {
			t.Run(fmt.Sprintf("%08x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
	})
}

func TestExampleScenario(t *testing.T) {
	m := New[string, int](NewParams(10, 0.72, 2))
	require.True(t, m.Map("a", 1))
	require.True(t, m.Map("b", 2))
	require.True(t, m.Map("c", 3))
	require.EqualValues(t, 3, m.Len())

	require.True(t, m.Unmap("b"))
	require.EqualValues(t, 2, m.Len())
	_, ok := m.Find("b")
	require.False(t, ok)
	v, ok := m.Find("a")
	require.True(t, ok)
	require.EqualValues(t, 1, v)

	require.True(t, m.Map("d", 4))
	v, ok = m.Find("d")
	require.True(t, ok)
	require.EqualValues(t, 4, v)
	require.EqualValues(t, 17, m.Capacity())
}

func TestUnmapAbsent(t *testing.T) {
	m := New[string, int](Params{})
	require.True(t, m.Map("a", 1))
	version := m.Version()
	require.False(t, m.Unmap("b"))
	require.EqualValues(t, 1, m.Len())
	require.Equal(t, version, m.Version())

	require.True(t, m.Unmap("a"))
	version = m.Version()
	require.False(t, m.Unmap("a"))
	require.Equal(t, version, m.Version())
}

func TestTombstoneReuse(t *testing.T) {
	// All keys share one probe sequence.
	m := New[string, int](Params{}, WithHash[string, int](func(string) uint32 { return 5 }))
	require.True(t, m.Map("a", 1))
	require.True(t, m.Map("b", 2))
	aIndex := m.lookup(5, "a")
	bIndex := m.lookup(5, "b")
	require.NotEqual(t, aIndex, bIndex)
	require.Equal(t, bucketOccupiedDirty, m.buckets[aIndex].state())
	require.Equal(t, bucketOccupiedClean, m.buckets[bIndex].state())

	require.True(t, m.Unmap("a"))
	require.Equal(t, bucketSmeared, m.buckets[aIndex].state())
	v, ok := m.Find("b")
	require.True(t, ok)
	require.EqualValues(t, 2, v)

	// The new key probes through the smeared bucket and takes it over.
	capacity := m.Capacity()
	require.True(t, m.Map("c", 3))
	require.Equal(t, aIndex, m.lookup(5, "c"))
	require.Equal(t, bucketOccupiedDirty, m.buckets[aIndex].state())
	require.Equal(t, capacity, m.Capacity())
	for k, v := range map[string]int{"b": 2, "c": 3} {
		found, ok := m.Find(k)
		require.True(t, ok)
		require.EqualValues(t, v, found)
	}
	_, ok = m.Find("a")
	require.False(t, ok)
}

func TestTombstoneChurn(t *testing.T) {
	m := New[int, int](Params{}, WithHash[int, int](mixHash))
	capacity := m.Capacity()
	live := []int{-1, -2, -3}
	for _, k := range live {
		require.True(t, m.Map(k, k))
	}
	for i := 0; i < 1000; i++ {
		require.True(t, m.Map(i, i))
		require.True(t, m.Unmap(i))
		for _, k := range live {
			v, ok := m.Find(k)
			require.True(t, ok)
			require.EqualValues(t, k, v)
		}
	}
	require.EqualValues(t, len(live), m.Len())
	require.Equal(t, capacity, m.Capacity())
	require.Equal(t, m.dirtyBuckets(), m.Collisions())
}

func TestCapacityNeverLosesData(t *testing.T) {
	m := New[int, int](NewParams(0, DefaultLoadFactor, DefaultGrowFactor))
	keys := make(map[int]struct{})
	for i := 0; i < 5000; i++ {
		k := rand.Intn(3000)
		m.Remap(k, i)
		keys[k] = struct{}{}
	}
	require.EqualValues(t, len(keys), m.Len())
	for k := range keys {
		require.True(t, m.Contains(k))
	}
}

func TestLoadLimitHolds(t *testing.T) {
	testCases := []struct {
		name   string
		params Params
	}{
		{"low-load", NewParams(0, MinLoadFactor, MinGrowFactor)},
		{"default", DefaultParams()},
		{"full-load", NewParams(0, MaxLoadFactor, DefaultGrowFactor)},
		{"full-load-slow-growth", NewParams(0, MaxLoadFactor, MinGrowFactor)},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			m := New[int, int](c.params)
			for i := 0; i < 2000; i++ {
				require.True(t, m.Map(i, i))
				require.LessOrEqual(t, m.Len(), m.LoadLimit(), "after %d inserts", i+1)
				if i%97 == 0 {
					require.True(t, m.Rehash(m.Capacity()))
				}
			}
			for i := 0; i < 2000; i++ {
				require.True(t, m.Contains(i))
			}
		})
	}
}

func TestGrowSeveralSteps(t *testing.T) {
	m := New[int, int](NewParams(0, MinLoadFactor, MinGrowFactor))
	require.EqualValues(t, 3, m.Capacity())
	require.EqualValues(t, 1, m.LoadLimit())

	// Every size up to 23 still holds a single entry at this load factor.
	require.True(t, m.Map(1, 1))
	require.True(t, m.Map(2, 2))
	require.EqualValues(t, 23, m.Capacity())
	require.EqualValues(t, 2, m.LoadLimit())
	require.True(t, m.Map(3, 3))
	require.LessOrEqual(t, m.Len(), m.LoadLimit())
}

func TestProactiveRehash(t *testing.T) {
	m := New[int, int](NewParams(200, DefaultLoadFactor, DefaultGrowFactor),
		WithHash[int, int](mixHash))
	capacity := m.Capacity()
	require.EqualValues(t, 281, capacity)
	require.EqualValues(t, 202, m.LoadLimit())

	for i := 0; i < 150; i++ {
		require.True(t, m.Map(i, i))
	}
	require.Greater(t, uint32(m.Len()), m.Params().RehashThreshold())

	// Churning leaves smeared buckets behind until the collision count
	// passes the load limit and the map rehashes at its current size.
	var rehashed bool
	for i := 150; i < 5000; i++ {
		require.True(t, m.Unmap(i-150))
		before := m.Collisions()
		require.True(t, m.Map(i, i))
		if m.Collisions() < before {
			rehashed = true
		}
		require.Equal(t, capacity, m.Capacity())
	}
	require.True(t, rehashed)
	require.EqualValues(t, 150, m.Len())
	for i := 4850; i < 5000; i++ {
		require.True(t, m.Contains(i))
	}
	require.Equal(t, m.dirtyBuckets(), m.Collisions())
}

func TestTryMap(t *testing.T) {
	m := New[string, int](FixedParams(3, 1))
	r, _ := m.TryMap("a", 1)
	require.Equal(t, TryInserted, r)
	r, existing := m.TryMap("a", 2)
	require.Equal(t, TryAlreadyPresent, r)
	require.EqualValues(t, 1, existing)

	r, _ = m.TryMap("b", 2)
	require.Equal(t, TryInserted, r)
	r, _ = m.TryMap("c", 3)
	require.Equal(t, TryInserted, r)
	require.EqualValues(t, 3, m.Capacity())

	// The fixed size map is full.
	version := m.Version()
	r, _ = m.TryMap("d", 4)
	require.Equal(t, TryError, r)
	require.False(t, m.Map("d", 4))
	require.False(t, m.Remap("d", 4))
	require.Equal(t, version, m.Version())
	require.EqualValues(t, 3, m.Len())
	_, ok := m.Find("d")
	require.False(t, ok)

	require.Equal(t, "inserted", TryInserted.String())
	require.Equal(t, "already-present", TryAlreadyPresent.String())
	require.Equal(t, "error", TryError.String())
}

func TestRemapValueEqual(t *testing.T) {
	m := New[string, int](Params{})
	require.True(t, m.Remap("a", 1))

	// Without a value equality function every overwrite is a change.
	version := m.Version()
	require.True(t, m.Remap("a", 1))
	require.Equal(t, version+1, m.Version())

	m.PushValueEqual(func(a, b int) bool { return a == b })
	version = m.Version()
	require.False(t, m.Remap("a", 1))
	require.Equal(t, version, m.Version())
	require.True(t, m.Remap("a", 2))
	require.Equal(t, version+1, m.Version())

	// Pushing nil disables the check until popped.
	m.PushValueEqual(nil)
	require.True(t, m.Remap("a", 2))
	require.True(t, m.PopValueEqual())
	require.False(t, m.Remap("a", 2))

	require.True(t, m.PopValueEqual())
	require.False(t, m.PopValueEqual())
	require.True(t, m.Remap("a", 2))

	m2 := New[string, int](Params{},
		WithValueEqual[string, int](func(a, b int) bool { return a%10 == b%10 }))
	require.True(t, m2.Remap("x", 1))
	require.False(t, m2.Remap("x", 11))
	v, _ := m2.Find("x")
	require.EqualValues(t, 1, v)
}

func TestCustomEqual(t *testing.T) {
	m := New[string, int](Params{},
		WithHash[string, int](func(key string) uint32 {
			return fold(xxhash.Sum64String(strings.ToLower(key)))
		}),
		WithEqual[string, int](strings.EqualFold))
	require.True(t, m.Map("Foo", 1))
	require.False(t, m.Map("foo", 2))
	v, ok := m.Find("FOO")
	require.True(t, ok)
	require.EqualValues(t, 1, v)
	require.True(t, m.Unmap("fOO"))
	require.EqualValues(t, 0, m.Len())
}

func TestStringHashSeed(t *testing.T) {
	m1 := New[string, int](Params{})
	m2 := New[string, int](Params{})
	var differ bool
	for i := 0; i < 16; i++ {
		k := fmt.Sprint("key-", i)
		require.Equal(t, m1.hashKey(k), m1.hashKey(k))
		if m1.hashKey(k) != m2.hashKey(k) {
			differ = true
		}
	}
	require.True(t, differ)
}

func TestNilKey(t *testing.T) {
	if invariants {
		t.Skip("nil keys panic under invariants")
	}
	core, logs := observer.New(zap.ErrorLevel)
	m := New[*int, int](Params{}, WithLogger[*int, int](zap.New(core)))

	require.False(t, m.Map(nil, 1))
	r, _ := m.TryMap(nil, 1)
	require.Equal(t, TryError, r)
	require.False(t, m.Remap(nil, 1))
	require.False(t, m.Contains(nil))
	_, ok := m.Find(nil)
	require.False(t, ok)
	require.False(t, m.Unmap(nil))
	require.EqualValues(t, 0, m.Len())
	require.Equal(t, 6, logs.FilterMessage("nil key").Len())

	k := 1
	require.True(t, m.Map(&k, 1))
	require.True(t, m.Contains(&k))
}

func TestSet(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := New[string, int](Params{}, WithLogger[string, int](zap.New(core)))
	require.True(t, m.Map("z", 26))

	version := m.Version()
	n := m.Set([]string{"a", "b", "a", "c"}, []int{1, 2, 3})
	require.EqualValues(t, 2, n)
	require.EqualValues(t, 2, m.Len())
	require.Greater(t, m.Version(), version)
	require.Equal(t, map[string]int{"a": 1, "b": 2}, m.toBuiltinMap())
	require.Equal(t, 1, logs.FilterMessage("mismatched key and value counts, ignoring unpaired entries").Len())
	require.Equal(t, 1, logs.FilterMessage("skipping duplicate key").Len())
	require.Equal(t, m.dirtyBuckets(), m.Collisions())

	keys := make([]string, 1000)
	values := make([]int, 1000)
	for i := range keys {
		keys[i] = fmt.Sprint(i)
		values[i] = i
	}
	require.EqualValues(t, 1000, m.Set(keys, values))
	require.GreaterOrEqual(t, m.LoadLimit(), 1000)
	for i := range keys {
		v, ok := m.Find(keys[i])
		require.True(t, ok)
		require.EqualValues(t, i, v)
	}

	// Export followed by Set reproduces the map.
	m2 := New[string, int](Params{})
	require.EqualValues(t, 1000, m2.Set(m.Export()))
	require.Equal(t, m.toBuiltinMap(), m2.toBuiltinMap())

	// Nil keys are skipped.
	one, two := 1, 2
	pm := New[*int, string](Params{}, WithLogger[*int, string](zaptest.NewLogger(t)))
	require.EqualValues(t, 2, pm.Set([]*int{&one, nil, &two}, []string{"one", "nil", "two"}))
	require.EqualValues(t, 2, pm.Len())

	// A fixed size map keeps only what fits.
	fm := New[int, int](FixedParams(3, 1), WithLogger[int, int](zaptest.NewLogger(t)))
	require.EqualValues(t, 3, fm.Set([]int{1, 2, 3, 4, 5}, []int{1, 2, 3, 4, 5}))
	require.EqualValues(t, 3, fm.Capacity())
}

func TestSetFixedSizeFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := New[int, int](FixedParams(3, 1), WithLogger[int, int](zap.New(core)))
	require.EqualValues(t, 3, m.Set([]int{1, 2, 3, 1, 4, 2, 5}, []int{1, 2, 3, 4, 5, 6, 7}))
	require.Equal(t, map[int]int{1: 1, 2: 2, 3: 3}, m.toBuiltinMap())

	// Duplicates arriving after the map is full are still reported as such.
	require.Equal(t, 2, logs.FilterMessage("skipping duplicate key").Len())
	full := logs.FilterMessage("fixed size map full, skipped entries").All()
	require.Len(t, full, 1)
	require.EqualValues(t, 2, full[0].ContextMap()["skipped"])
}

func TestClearSelective(t *testing.T) {
	m := New[int, int](Params{})
	for i := 0; i < 100; i++ {
		m.Map(i, i)
	}
	version := m.Version()
	require.EqualValues(t, 0, m.ClearSelective(func(k, v int) bool { return k < 0 }))
	require.Equal(t, version, m.Version())

	require.EqualValues(t, 50, m.ClearSelective(func(k, v int) bool { return k%2 == 0 }))
	require.EqualValues(t, 50, m.Len())
	require.Greater(t, m.Version(), version)
	for i := 0; i < 100; i++ {
		require.Equal(t, i%2 == 1, m.Contains(i))
	}
	require.Equal(t, m.dirtyBuckets(), m.Collisions())

	require.EqualValues(t, 50, m.ClearSelective(func(k, v int) bool { return true }))
	require.EqualValues(t, 0, m.Len())
	require.EqualValues(t, m.Params().MinCapacity, m.Capacity())
	require.EqualValues(t, 0, m.Collisions())
}

func TestGrowTo(t *testing.T) {
	m := New[int, int](Params{})
	require.EqualValues(t, 11, m.Capacity())

	// 11 -> 23 -> 47 -> 97 -> 197, the first size holding 100 entries.
	require.True(t, m.GrowTo(100, true))
	require.EqualValues(t, 197, m.Capacity())
	require.False(t, m.GrowTo(50, true))
	require.False(t, m.GrowTo(0, true))
	require.EqualValues(t, 197, m.Capacity())

	// Without a rehash only the load limit is raised.
	m = New[int, int](Params{})
	require.True(t, m.GrowTo(100, false))
	require.EqualValues(t, 11, m.Capacity())
	require.EqualValues(t, 11, m.LoadLimit())
	for i := 0; i < 11; i++ {
		require.True(t, m.Map(i, i))
	}
	require.EqualValues(t, 11, m.Capacity())
	require.True(t, m.Map(11, 11))
	require.EqualValues(t, 23, m.Capacity())
	for i := 0; i < 12; i++ {
		require.True(t, m.Contains(i))
	}

	// A tiny grow factor exhausts the bounded grow sequence.
	m = New[int, int](NewParams(0, DefaultLoadFactor, MinGrowFactor))
	require.True(t, m.GrowTo(100000, true))
	require.EqualValues(t, m.Params().CalcRealCapacity(100000), m.Capacity())
}

func TestGrowToFixedSize(t *testing.T) {
	if invariants {
		t.Skip("growing a fixed size map panics under invariants")
	}
	core, logs := observer.New(zap.ErrorLevel)
	m := New[int, int](FixedParams(10, 0.5), WithLogger[int, int](zap.New(core)))
	capacity := m.Capacity()
	require.False(t, m.GrowTo(100, true))
	require.False(t, m.GrowTo(100, false))
	require.Equal(t, capacity, m.Capacity())
	require.Equal(t, 2, logs.FilterMessage("cannot grow fixed size map").Len())
}

func TestRehash(t *testing.T) {
	m := New[int, int](Params{})
	for i := 0; i < 10; i++ {
		m.Map(i, i)
	}
	version := m.Version()
	require.True(t, m.Rehash(53))
	require.EqualValues(t, 53, m.Capacity())
	require.EqualValues(t, 38, m.LoadLimit())
	require.Greater(t, m.Version(), version)
	require.EqualValues(t, 10, m.Len())
	require.Equal(t, m.dirtyBuckets(), m.Collisions())
	for i := 0; i < 10; i++ {
		v, ok := m.Find(i)
		require.True(t, ok)
		require.EqualValues(t, i, v)
	}

	if invariants {
		return
	}
	for _, size := range []int{0, 4, 101, 3, MaxPrimeCapacity + 1} {
		require.False(t, m.Rehash(size), "size=%d", size)
		require.EqualValues(t, 53, m.Capacity())
	}
}

func TestIterateMutate(t *testing.T) {
	m := New[int, int](Params{})
	for i := 0; i < 100; i++ {
		m.Map(i, i)
	}
	e := m.toBuiltinMap()
	require.EqualValues(t, 100, m.Len())
	require.EqualValues(t, 100, len(e))

	// Lookups and no-op mutations do not disturb iteration.
	m.PushValueEqual(func(a, b int) bool { return a == b })
	vals := make(map[int]int)
	m.All(func(k, v int) bool {
		require.True(t, m.Contains(k))
		require.False(t, m.Remap(k, v))
		require.False(t, m.Unmap(-1))
		vals[k] = v
		return true
	})
	require.EqualValues(t, e, vals)

	// A structural change fails the iteration on its next step.
	var steps int
	require.PanicsWithValue(t, ErrMutatedDuringIteration, func() {
		m.All(func(k, v int) bool {
			steps++
			m.Unmap(k)
			return true
		})
	})
	require.EqualValues(t, 1, steps)

	it := m.Iter()
	require.True(t, it.Next())
	require.True(t, m.Map(1000, 1000))
	require.PanicsWithValue(t, ErrMutatedDuringIteration, func() { it.Next() })
}

func TestIterator(t *testing.T) {
	m := New[int, int](Params{})
	for i := 0; i < 100; i++ {
		m.Map(i, -i)
	}
	vals := make(map[int]int)
	for it := m.Iter(); it.Next(); {
		vals[it.Key()] = it.Value()
	}
	require.Equal(t, m.toBuiltinMap(), vals)

	var n int
	m.All(func(k, v int) bool {
		n++
		return n < 10
	})
	require.EqualValues(t, 10, n)
}

func TestClear(t *testing.T) {
	testCases := []Params{
		DefaultParams(),
		FixedParams(1000, 0.9),
	}
	for _, params := range testCases {
		t.Run("", func(t *testing.T) {
			m := New[int, int](params)
			for i := 0; i < 1000; i++ {
				m.Map(i, i)
			}

			version := m.Version()
			m.Clear()
			require.EqualValues(t, 0, m.Len())
			require.EqualValues(t, 0, m.Collisions())
			require.EqualValues(t, m.Params().MinCapacity, m.Capacity())
			require.Greater(t, m.Version(), version)

			m.All(func(k, v int) bool {
				require.Fail(t, "should not iterate")
				return true
			})
		})
	}
}

func TestInvalidParams(t *testing.T) {
	if invariants {
		t.Skip("invalid params panic under invariants")
	}
	core, logs := observer.New(zap.ErrorLevel)
	m := New[int, int](Params{MinCapacity: 10, LoadFactor: 2, GrowFactor: 2, HashPrime: 101},
		WithLogger[int, int](zap.New(core)))
	require.Equal(t, DefaultParams(), m.Params())
	require.EqualValues(t, 11, m.Capacity())
	require.Equal(t, 1, logs.Len())
	require.True(t, m.Map(1, 1))
}

type countingAllocator[K comparable, V any] struct {
	alloc int
	free  int
}

func (a *countingAllocator[K, V]) AllocBuckets(n int) []Bucket[K, V] {
	a.alloc++
	return make([]Bucket[K, V], n)
}

func (a *countingAllocator[K, V]) FreeBuckets(_ []Bucket[K, V]) {
	a.free++
}

func TestAllocator(t *testing.T) {
	a := &countingAllocator[int, int]{}
	m := New[int, int](Params{}, WithAllocator[int, int](a))

	for i := 0; i < 100; i++ {
		m.Map(i, i)
	}

	// 11 -> 23 -> 47 -> 97 -> 197
	const expected = 5
	require.EqualValues(t, expected, a.alloc)
	require.EqualValues(t, expected-1, a.free)

	m.Close()
	require.EqualValues(t, expected, a.free)
	m.Close()
	require.EqualValues(t, expected, a.free)
}
