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
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/hashmap/internal/primes"
	"go.uber.org/zap"
)

const (
	// MinPrimeCapacity and MaxPrimeCapacity bound the length of a bucket
	// array. Both are prime.
	MinPrimeCapacity = 3
	MaxPrimeCapacity = 2146435069

	MinLoadFactor = 0.1
	MaxLoadFactor = 1.0

	// A GrowFactor of 0 marks a fixed size map. Any other value must lie in
	// [MinGrowFactor, MaxGrowFactor].
	MinGrowFactor = 1.1
	MaxGrowFactor = 8

	MinHashPrime = 3
	MaxHashPrime = 65521

	DefaultCapacity   = 7
	DefaultLoadFactor = 0.72
	DefaultGrowFactor = 2
	DefaultHashPrime  = 101

	// maxGrowSteps bounds the search for a bucket array size in GrowTo.
	// Doubling from MinPrimeCapacity reaches MaxPrimeCapacity in fewer
	// steps, so hitting the bound means the params are degenerate.
	maxGrowSteps = 31
)

// PrimePolicy supplies the primes used to size a bucket array. The default
// policy computes them on demand; see DefaultPrimes.
type PrimePolicy interface {
	// IsPrime returns true if n is prime.
	IsPrime(n uint32) bool
	// NextPrime returns the smallest prime >= n.
	NextPrime(n uint32) uint32
	// NextHashSafe returns a prime >= start, != hashPrime and within
	// [lo, hi]. If no prime above start qualifies, the largest qualifying
	// prime <= hi is returned.
	NextHashSafe(start, hashPrime, lo, hi uint32) uint32
	// GrowSize returns the bucket array size following prev. It must be
	// hash-safe and greater than prev unless prev cannot grow any further.
	GrowSize(prev, hashPrime uint32, growFactor float32) uint32
}

type defaultPrimes struct{}

// DefaultPrimes is the PrimePolicy used when Params.Primes is nil.
var DefaultPrimes PrimePolicy = defaultPrimes{}

func (defaultPrimes) IsPrime(n uint32) bool { return primes.IsPrime(n) }

func (defaultPrimes) NextPrime(n uint32) uint32 { return primes.Next(n) }

func (defaultPrimes) NextHashSafe(start, hashPrime, lo, hi uint32) uint32 {
	return primes.NextHashSafe(start, hashPrime, lo, hi)
}

func (defaultPrimes) GrowSize(prev, hashPrime uint32, growFactor float32) uint32 {
	return primes.GrowSize(prev, hashPrime, growFactor, MinPrimeCapacity, MaxPrimeCapacity)
}

// Params configures the sizing and probing behavior of a Map. MinCapacity
// is the real (prime) length of the bucket array the map starts out with,
// not the number of entries it can hold; use NewParams to derive it from an
// entry count.
type Params struct {
	MinCapacity uint32  `toml:"min_capacity"`
	LoadFactor  float32 `toml:"load_factor"`
	GrowFactor  float32 `toml:"grow_factor"`
	// HashPrime is multiplied into the hash to derive the probe jump. It
	// also defines the rehash threshold.
	HashPrime uint32 `toml:"hash_prime"`

	// Primes overrides the prime policy. Nil selects DefaultPrimes.
	Primes PrimePolicy `toml:"-"`
}

// DefaultParams returns the params used when none are given or the given
// ones fail Check.
func DefaultParams() Params {
	return NewParams(DefaultCapacity, DefaultLoadFactor, DefaultGrowFactor)
}

// NewParams returns growable params whose initial bucket array holds
// capacity entries before growing.
func NewParams(capacity uint32, loadFactor, growFactor float32) Params {
	p := Params{
		LoadFactor: loadFactor,
		GrowFactor: growFactor,
		HashPrime:  DefaultHashPrime,
	}
	p.MinCapacity = p.CalcRealCapacity(capacity)
	return p
}

// FixedParams returns params for a map that never grows: inserting beyond
// capacity entries fails.
func FixedParams(capacity uint32, loadFactor float32) Params {
	return NewParams(capacity, loadFactor, 0)
}

func (p Params) primes() PrimePolicy {
	if p.Primes == nil {
		return DefaultPrimes
	}
	return p.Primes
}

// IsFixedSize returns true if the map may not grow.
func (p Params) IsFixedSize() bool {
	return p.GrowFactor == 0
}

// RehashThreshold is the entry count above which an accumulation of
// collisions triggers a rehash at the current size.
func (p Params) RehashThreshold() uint32 {
	return p.HashPrime - 1
}

// CalcRealCapacity returns the bucket array length needed to hold
// userCapacity entries without exceeding the load factor.
func (p Params) CalcRealCapacity(userCapacity uint32) uint32 {
	lf := float64(p.LoadFactor)
	if lf < MinLoadFactor || lf > MaxLoadFactor || math.IsNaN(lf) {
		lf = DefaultLoadFactor
	}
	start := math.Ceil(float64(userCapacity) / lf)
	if start > MaxPrimeCapacity {
		start = MaxPrimeCapacity
	}
	policy := p.primes()
	size := policy.NextHashSafe(uint32(start), p.HashPrime, MinPrimeCapacity, MaxPrimeCapacity)
	// Rounding in the float math can leave the load limit one short.
	for p.CalcLoadLimit(size) < userCapacity && size < MaxPrimeCapacity {
		size = policy.NextHashSafe(size+1, p.HashPrime, MinPrimeCapacity, MaxPrimeCapacity)
	}
	return size
}

// CalcLoadLimit returns the number of entries a bucket array of length
// realSize holds before it must grow.
func (p Params) CalcLoadLimit(realSize uint32) uint32 {
	limit := uint32(float64(p.LoadFactor) * float64(realSize))
	if limit > realSize {
		limit = realSize
	}
	if limit == 0 {
		limit = 1
	}
	return limit
}

// CalcJump returns the probe step for a key with the given 31-bit hash in a
// bucket array of length size. The result lies in [1, size-1] and is
// therefore coprime with size when size is prime, which guarantees a probe
// sequence visits every bucket before repeating.
func (p Params) CalcJump(hash31, size uint32) uint32 {
	return 1 + ((hash31*p.HashPrime)&0x7FFFFFFF)%(size-1)
}

// CalcNextSize returns the bucket array length to grow to from prevSize.
// Fixed size params return false, as do params that cannot grow past
// prevSize.
func (p Params) CalcNextSize(prevSize uint32) (uint32, bool) {
	if p.IsFixedSize() {
		return 0, false
	}
	next := p.primes().GrowSize(prevSize, p.HashPrime, p.GrowFactor)
	if next <= prevSize {
		return prevSize, false
	}
	return next, true
}

// EnsureCapacity raises MinCapacity so that a freshly allocated bucket
// array holds at least userCapacity entries.
func (p *Params) EnsureCapacity(userCapacity uint32) {
	if size := p.CalcRealCapacity(userCapacity); size > p.MinCapacity {
		p.MinCapacity = size
	}
}

// Check returns an error describing the first bound violated by p.
func (p Params) Check() error {
	switch {
	case math.IsNaN(float64(p.LoadFactor)) || p.LoadFactor < MinLoadFactor || p.LoadFactor > MaxLoadFactor:
		return errors.Wrapf(ErrInvalidParams, "load factor %v outside [%v, %v]",
			p.LoadFactor, MinLoadFactor, MaxLoadFactor)
	case p.GrowFactor != 0 && (math.IsNaN(float64(p.GrowFactor)) ||
		p.GrowFactor < MinGrowFactor || p.GrowFactor > MaxGrowFactor):
		return errors.Wrapf(ErrInvalidParams, "grow factor %v neither 0 nor within [%v, %v]",
			p.GrowFactor, MinGrowFactor, MaxGrowFactor)
	case p.HashPrime < MinHashPrime || p.HashPrime > MaxHashPrime || !p.primes().IsPrime(p.HashPrime):
		return errors.Wrapf(ErrInvalidParams, "hash prime %d is not a prime within [%d, %d]",
			p.HashPrime, MinHashPrime, MaxHashPrime)
	case p.MinCapacity < MinPrimeCapacity || p.MinCapacity > MaxPrimeCapacity:
		return errors.Wrapf(ErrInvalidParams, "capacity %d outside [%d, %d]",
			p.MinCapacity, MinPrimeCapacity, MaxPrimeCapacity)
	case !p.primes().IsPrime(p.MinCapacity):
		return errors.Wrapf(ErrInvalidParams, "capacity %d is not prime", p.MinCapacity)
	case p.MinCapacity == p.HashPrime:
		return errors.Wrapf(ErrInvalidParams, "capacity %d equals the hash prime", p.MinCapacity)
	}
	return nil
}

// Sanitize returns p if it passes Check. Otherwise the failure is reported
// to logger and DefaultParams (keeping p's prime policy) is returned. Under
// the invariants build tag an invalid p panics instead.
func (p Params) Sanitize(logger *zap.Logger) Params {
	err := p.Check()
	if err == nil {
		return p
	}
	if logger == nil {
		logger = zap.L()
	}
	logger.Error("invalid hash map params, falling back to defaults",
		zap.Uint32("min-capacity", p.MinCapacity),
		zap.Float32("load-factor", p.LoadFactor),
		zap.Float32("grow-factor", p.GrowFactor),
		zap.Uint32("hash-prime", p.HashPrime),
		zap.Error(err))
	if invariants {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "invalid hash map params"))
	}
	d := DefaultParams()
	d.Primes = p.Primes
	return d
}
