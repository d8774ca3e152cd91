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

// Package primes supplies the prime numbers used to size double hashing
// tables. All values are computed by trial division; the sizes involved are
// small enough (< 2^31) that a sieve or lookup table buys nothing measurable
// next to the cost of allocating the table itself.
package primes

import "math"

// small holds the primes below 64 so the common small-table sizes never
// reach the trial division loop.
var small = [...]uint32{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61}

// IsPrime returns true if n is prime.
func IsPrime(n uint32) bool {
	if n < 64 {
		for _, p := range small {
			if p == n {
				return true
			}
		}
		return false
	}
	if n%2 == 0 || n%3 == 0 {
		return false
	}
	// Every prime > 3 is of the form 6k±1.
	v := uint64(n)
	for i := uint64(5); i*i <= v; i += 6 {
		if v%i == 0 || v%(i+2) == 0 {
			return false
		}
	}
	return true
}

// Next returns the smallest prime >= n. It returns 0 if no such prime fits
// in a uint32.
func Next(n uint32) uint32 {
	if n <= 2 {
		return 2
	}
	for v := uint64(n | 1); v <= math.MaxUint32; v += 2 {
		if IsPrime(uint32(v)) {
			return uint32(v)
		}
	}
	return 0
}

// Prev returns the largest prime <= n, or 0 if n < 2.
func Prev(n uint32) uint32 {
	if n < 2 {
		return 0
	}
	if n == 2 {
		return 2
	}
	if n%2 == 0 {
		n--
	}
	for v := n; v >= 3; v -= 2 {
		if IsPrime(v) {
			return v
		}
	}
	return 2
}

// NextHashSafe returns the smallest prime p in [max(start, lo), hi] with
// p != hashPrime. If there is none, the largest such prime <= hi is
// returned instead. A table whose size equals the hash prime would make
// every jump collapse onto the same residue, which is why that prime is
// excluded.
func NextHashSafe(start, hashPrime, lo, hi uint32) uint32 {
	if start < lo {
		start = lo
	}
	if start <= hi {
		for p := Next(start); p != 0 && p <= hi; p = Next(p + 1) {
			if p != hashPrime {
				return p
			}
		}
	}
	for p := Prev(hi); p >= lo && p >= 2; p = Prev(p - 1) {
		if p != hashPrime {
			return p
		}
		if p == 2 {
			break
		}
	}
	return Next(lo)
}

// GrowSize returns the table size that follows prev when growing by
// growFactor. The result is a hash-safe prime strictly greater than prev
// unless prev already is the largest hash-safe prime <= hi.
func GrowSize(prev, hashPrime uint32, growFactor float32, lo, hi uint32) uint32 {
	target := math.Ceil(float64(prev) * float64(growFactor))
	if target <= float64(prev) {
		target = float64(prev) + 1
	}
	if target > float64(hi) {
		target = float64(hi)
	}
	next := NextHashSafe(uint32(target), hashPrime, lo, hi)
	if next < prev {
		return prev
	}
	return next
}
