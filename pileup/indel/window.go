// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package indel

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Window holds the reads of one contig that may still matter: current
// overlaps the active candidate, next holds reads that start past it (or that
// overflowed the resident cap). It is owned by a single worker.
//
// Invariants, with c the active candidate:
//   - every read in current has End >= c.Start and Start <= c.End;
//   - a read evicted from both lists never returns.
type Window struct {
	maxResident int
	anchor      *Candidate

	current []*Read
	next    []*Read

	// diverted counts overlapping reads sent to next because current was
	// full; unused counts reads dropped from next without ever being
	// evaluated; requeued counts current reads moved back to next by a
	// nested candidate.
	diverted int
	unused   int
	requeued int
}

// NewWindow creates a window whose current pool holds at most maxResident
// reads.
func NewWindow(maxResident int) *Window {
	return &Window{maxResident: maxResident}
}

// Admit routes a read that ends at or after c.Start. It returns true when the
// read joined current. A false return means the read went to next, either
// because it starts after c or because current is at the cap; either way the
// caller must evaluate c before moving on.
func (w *Window) Admit(r *Read, c *Candidate) bool {
	if w.anchor == nil {
		w.anchor = c
	}
	if r.Start <= c.End {
		if len(w.current) < w.maxResident {
			w.current = append(w.current, r)
			return true
		}
		w.diverted++
		if w.diverted == 1 || w.diverted%10000 == 0 {
			log.Debug.Printf("%v: %d overlapping reads diverted at resident cap %d", c, w.diverted, w.maxResident)
		}
	}
	w.next = append(w.next, r)
	return false
}

// Advance re-anchors the window at c, which must not sort before the
// previously active candidate.
//
// Reads in current that end before c.Start are discarded. Reads in next that
// end before c.Start are discarded unused; reads in next that start at or
// before c.End move to current. A current read that starts after c.End can
// only occur when c lies inside the span of the previous candidate; it goes
// back to next.
func (w *Window) Advance(c *Candidate) error {
	if w.anchor != nil && c.compare(w.anchor) < 0 {
		return errors.E(errors.Precondition,
			fmt.Sprintf("candidate %v sorts before previous candidate %v", c, w.anchor))
	}
	prev := w.anchor
	w.anchor = c

	var deferred []*Read
	kept := w.current[:0]
	for _, r := range w.current {
		switch {
		case r.End < c.Start:
		case r.Start > c.End:
			w.requeued++
			log.Debug.Printf("%v: read %s at %d-%d starts past the candidate nested in %v; requeued",
				c, r.Name, r.Start, r.End, prev)
			deferred = append(deferred, r)
		default:
			kept = append(kept, r)
		}
	}
	clearTail(w.current, len(kept))
	w.current = kept

	remaining := deferred
	for _, r := range w.next {
		switch {
		case r.End < c.Start:
			w.unused++
		case r.Start <= c.End:
			w.current = append(w.current, r)
		default:
			remaining = append(remaining, r)
		}
	}
	clearTail(w.next, 0)
	w.next = remaining
	return nil
}

// clearTail drops references past n so evicted reads can be collected.
func clearTail(reads []*Read, n int) {
	for i := n; i < len(reads); i++ {
		reads[i] = nil
	}
}

// Current returns the reads overlapping the active candidate. The slice is
// only valid until the next Admit or Advance.
func (w *Window) Current() []*Read { return w.current }

// Next returns the reads held for later candidates.
func (w *Window) Next() []*Read { return w.next }

// Diverted returns the number of overlapping reads the cap pushed to next.
func (w *Window) Diverted() int { return w.diverted }

// Unused returns the number of reads discarded from next without being
// evaluated.
func (w *Window) Unused() int { return w.unused }

// Requeued returns the number of current reads sent back to next because a
// candidate nested inside the previous one ended before they start.
func (w *Window) Requeued() int { return w.requeued }
