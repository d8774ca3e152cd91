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

import "github.com/cockroachdb/errors"

var (
	// ErrMutatedDuringIteration is the panic value raised by an iteration
	// that observes a structural change of its map.
	ErrMutatedDuringIteration = errors.New("hashmap: map mutated during iteration")

	// ErrFixedSize is reported when a fixed size map would have to grow.
	ErrFixedSize = errors.New("hashmap: fixed size map cannot grow")

	// ErrNilKey is reported when a nil key is used.
	ErrNilKey = errors.New("hashmap: nil key")

	// ErrInvalidParams wraps every failure returned by Params.Check.
	ErrInvalidParams = errors.New("hashmap: invalid params")
)
