// Copyright 2016 The regionmaster Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// StartCodeGenerator issues the startCode component of a ServerName
// (spec §3: "the startCode distinguishes process incarnations on the
// same address; a restarted server is a different ServerName"). The
// production path is simply the process's wall-clock start timestamp,
// which is monotonic across real restarts. Tests that start many
// ServerNames in a tight loop can observe the same timestamp twice;
// StartCodeGenerator detects that collision and derives a
// disambiguator from a random UUID rather than silently handing out a
// duplicate startCode.
type StartCodeGenerator struct {
	mu   sync.Mutex
	last int64
}

// Next returns a startCode for the incarnation starting at now
// (typically time.Now().UnixNano()). If now does not advance past the
// previously issued value, it falls back to last+1 plus a small
// random jitter drawn from a UUID so concurrent callers in the same
// process don't collide with each other either.
func (g *StartCodeGenerator) Next(now int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now <= g.last {
		id := uuid.New()
		jitter := int64(binary.BigEndian.Uint16(id[:2]))
		now = g.last + 1 + jitter
	}
	g.last = now
	return now
}
