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
	"io"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// paramsFile is the TOML representation of Params. Either capacity (a
// number of entries) or min_capacity (a bucket array length) may be given.
// Omitted keys take their default values.
type paramsFile struct {
	Capacity    uint32  `toml:"capacity"`
	MinCapacity uint32  `toml:"min_capacity"`
	LoadFactor  float32 `toml:"load_factor"`
	GrowFactor  float32 `toml:"grow_factor"`
	HashPrime   uint32  `toml:"hash_prime"`
}

// ParseParams decodes Params from a TOML document such as:
//
//	capacity    = 1000
//	load_factor = 0.72
//	grow_factor = 2.0
//	hash_prime  = 101
//
// The decoded params must pass Params.Check.
func ParseParams(data string) (Params, error) {
	var f paramsFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return Params{}, errors.Wrap(err, "decoding hash map params")
	}
	return f.params(md)
}

// LoadParams decodes Params from the TOML file at path. See ParseParams.
func LoadParams(path string) (Params, error) {
	var f paramsFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return Params{}, errors.Wrapf(err, "decoding hash map params from %s", path)
	}
	return f.params(md)
}

func (f paramsFile) params(md toml.MetaData) (Params, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Params{}, errors.Newf("unknown hash map params key %q", undecoded[0].String())
	}

	p := DefaultParams()
	if md.IsDefined("load_factor") {
		p.LoadFactor = f.LoadFactor
	}
	if md.IsDefined("grow_factor") {
		p.GrowFactor = f.GrowFactor
	}
	if md.IsDefined("hash_prime") {
		p.HashPrime = f.HashPrime
	}
	switch {
	case md.IsDefined("capacity") && md.IsDefined("min_capacity"):
		return Params{}, errors.New("capacity and min_capacity are mutually exclusive")
	case md.IsDefined("min_capacity"):
		p.MinCapacity = f.MinCapacity
	case md.IsDefined("capacity"):
		p.MinCapacity = p.CalcRealCapacity(f.Capacity)
	default:
		// The default capacity depends on the load factor and hash prime.
		p.MinCapacity = p.CalcRealCapacity(DefaultCapacity)
	}

	if err := p.Check(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// WriteTOML encodes p in the format read by ParseParams. The capacity is
// written as min_capacity. The prime policy is not encoded.
func (p Params) WriteTOML(w io.Writer) error {
	p.Primes = nil
	return toml.NewEncoder(w).Encode(p)
}
