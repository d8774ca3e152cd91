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

import "fmt"

const (
	hashMask  = 0x7FFFFFFF
	dirtyMask = 0x80000000
)

// packedHash stores the low 31 bits of a key's hash together with the
// bucket's dirty flag in the sign bit:
//
//	d h h h ... h h h
//	^ dirty   ^ 31 hash bits
//
// A bucket is dirty once a probe has had to step past it, either because it
// was occupied by another key or because its entry was removed.
type packedHash uint32

func makePackedHash(h uint32) packedHash {
	return packedHash(h & hashMask)
}

func (p packedHash) hash31() uint32 {
	return uint32(p) & hashMask
}

func (p packedHash) dirty() bool {
	return p&dirtyMask != 0
}

func (p packedHash) withDirty() packedHash {
	return p | dirtyMask
}

// withHash replaces the hash bits, keeping the dirty flag.
func (p packedHash) withHash(h uint32) packedHash {
	return (p & dirtyMask) | packedHash(h&hashMask)
}

func (p packedHash) String() string {
	if p.dirty() {
		return fmt.Sprintf("%08x*", p.hash31())
	}
	return fmt.Sprintf("%08x", p.hash31())
}

// bucketState is the derived state of a Bucket. The states are mutually
// exclusive:
//
//	state          live  dirty
//	default        no    no     never written; probing stops here
//	smeared        no    yes    removed; probing continues
//	occupiedClean  yes   no     live entry
//	occupiedDirty  yes   yes    live entry another key has probed past
type bucketState uint8

const (
	bucketDefault bucketState = iota
	bucketSmeared
	bucketOccupiedClean
	bucketOccupiedDirty
)

func (s bucketState) String() string {
	switch s {
	case bucketDefault:
		return "default"
	case bucketSmeared:
		return "smeared"
	case bucketOccupiedClean:
		return "occupied"
	case bucketOccupiedDirty:
		return "occupied-dirty"
	default:
		return fmt.Sprintf("bucketState(%d)", s)
	}
}

// Bucket holds a key and value along with the packed hash and dirty flag.
type Bucket[K comparable, V any] struct {
	hash  packedHash
	live  bool
	key   K
	value V
}

func (b *Bucket[K, V]) state() bucketState {
	switch {
	case b.live && b.hash.dirty():
		return bucketOccupiedDirty
	case b.live:
		return bucketOccupiedClean
	case b.hash.dirty():
		return bucketSmeared
	default:
		return bucketDefault
	}
}

// isEnd returns true if the bucket terminates every probe sequence passing
// through it. Only a bucket that was never written and never stepped past
// qualifies.
func (b *Bucket[K, V]) isEnd() bool {
	return !b.live && !b.hash.dirty()
}

// isSmeared returns true if the bucket held an entry that was removed.
func (b *Bucket[K, V]) isSmeared() bool {
	return !b.live && b.hash.dirty()
}

// markDirty sets the dirty flag, returning true if it was not already set.
func (b *Bucket[K, V]) markDirty() bool {
	if b.hash.dirty() {
		return false
	}
	b.hash = b.hash.withDirty()
	return true
}

// fill stores an entry, keeping the dirty flag of the bucket.
func (b *Bucket[K, V]) fill(hash31 uint32, key K, value V) {
	b.hash = b.hash.withHash(hash31)
	b.live = true
	b.key = key
	b.value = value
}

// smear removes the entry, leaving a tombstone that probes continue past.
// It returns true if the bucket was not dirty before.
func (b *Bucket[K, V]) smear() bool {
	var zeroK K
	var zeroV V
	b.live = false
	b.key = zeroK
	b.value = zeroV
	return b.markDirty()
}

// probeSeq maintains the state for a double hashing probe sequence:
//
//	p(0)   := hash31 % size
//	p(i+1) := (p(i) + jump) % size
//
// Params.CalcJump returns a jump in [1, size-1]. When size is prime every
// such jump is coprime with size, so the sequence visits each bucket
// exactly once in its first size steps.
type probeSeq struct {
	size   uint32
	jump   uint32
	offset uint32
	index  uint32
}

func makeProbeSeq(hash31, jump, size uint32) probeSeq {
	return probeSeq{
		size:   size,
		jump:   jump,
		offset: hash31 % size,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	// offset and jump are both < size <= 2^31, so the sum cannot overflow.
	s.offset += s.jump
	if s.offset >= s.size {
		s.offset -= s.size
	}
	return s
}

// done returns true once the sequence has visited every bucket.
func (s probeSeq) done() bool {
	return s.index >= s.size
}

func (s probeSeq) String() string {
	return fmt.Sprintf("size=%d jump=%d offset=%d index=%d", s.size, s.jump, s.offset, s.index)
}

// findIn returns true if key is in a bucket array built by placeIn.
func findIn[K comparable, V any](
	buckets []Bucket[K, V], seq probeSeq, hash31 uint32, key K, eq func(a, b K) bool,
) bool {
	for ; !seq.done(); seq = seq.next() {
		b := &buckets[seq.offset]
		if b.live && b.hash.hash31() == hash31 && eq(b.key, key) {
			return true
		}
		if !b.hash.dirty() {
			return false
		}
	}
	return false
}

// placeIn inserts an entry into a bucket array that contains no smeared
// buckets, such as a freshly allocated one. Starting at seq it steps past
// occupied buckets, marking each one dirty, until it reaches a default
// bucket and stores the entry there. If a bucket with an equal key is found
// first the entry is not placed. dirtied is the number of buckets whose
// dirty flag was newly set; it is reported even when nothing is placed.
func placeIn[K comparable, V any](
	buckets []Bucket[K, V], seq probeSeq, hash31 uint32, key K, value V, eq func(a, b K) bool,
) (placed bool, dirtied uint32) {
	for ; !seq.done(); seq = seq.next() {
		b := &buckets[seq.offset]
		if b.isEnd() {
			b.fill(hash31, key, value)
			return true, dirtied
		}
		if b.live && b.hash.hash31() == hash31 && eq(b.key, key) {
			return false, dirtied
		}
		if b.markDirty() {
			dirtied++
		}
	}
	return false, dirtied
}
