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
)

// Evidence is the per-sample pileup summary for one candidate.
type Evidence struct {
	// Coverage is the depth: eligible reads, with each mate pair that
	// covers the candidate counted once.
	Coverage int
	// Informative is Support + Reference + Partial + Other.
	Informative int

	Support  int
	Forward  int
	Backward int
	// NovelStarts is the number of distinct alignment starts among support
	// units.
	NovelStarts int

	Partial   int
	Reference int
	Other     int

	// SameBasePairs counts concordant mate pairs merged into one unit;
	// DifferingPairs counts discordant pairs scored as a single Other unit.
	SameBasePairs  int
	DifferingPairs int

	// NearbyIndel counts eligible reads with a different indel near the
	// candidate. NearbySoftClip counts soft-clip boundaries near it.
	NearbyIndel    int
	NearbySoftClip int
}

// String renders the evidence as
// "novelStarts,coverage,informative,support[forward,backward],reference[other],partial,nearbyIndel,nearbySoftClip".
func (e *Evidence) String() string {
	return fmt.Sprintf("%d,%d,%d,%d[%d,%d],%d[%d],%d,%d,%d",
		e.NovelStarts, e.Coverage, e.Informative, e.Support, e.Forward, e.Backward,
		e.Reference, e.Other, e.Partial, e.NearbyIndel, e.NearbySoftClip)
}

type outcome int

const (
	outcomeSupport outcome = iota
	outcomeReference
	outcomePartial
	outcomeOther
)

// observation is the classification of one eligible read. bases is what the
// read shows over the candidate span and is used to compare mates.
type observation struct {
	read    *Read
	outcome outcome
	bases   string
}

func (o *observation) sameAs(p *observation) bool {
	return o.outcome == p.outcome && o.bases == p.bases
}

// evalFunc classifies r against c. ok is false for ineligible reads.
type evalFunc func(c *Candidate, r *Read, minBaseQual byte) (obs observation, ok bool)

// EvalParams are the per-evaluation settings taken from Opts.
type EvalParams struct {
	MinBaseQual          byte
	NearbyIndelWindow    int
	NearbySoftClipWindow int
}

// Evaluate computes the evidence for c from pool, the reads overlapping it.
// It does not modify pool or c, and the result does not depend on pool order.
func Evaluate(c *Candidate, pool []*Read, p EvalParams) Evidence {
	var ev Evidence
	ev.NearbySoftClip = nearbySoftClips(c, pool, p.NearbySoftClipWindow)

	obs := make([]observation, 0, len(pool))
	for _, r := range pool {
		if o, ok := c.eval(c, r, p.MinBaseQual); ok {
			obs = append(obs, o)
			if hasNearbyIndel(c, r, p.NearbyIndelWindow) {
				ev.NearbyIndel++
			}
		}
	}

	byName := make(map[string][]int, len(obs))
	for i := range obs {
		name := obs[i].read.Name
		byName[name] = append(byName[name], i)
	}
	novel := make(map[PosType]struct{})
	tally := func(o *observation) {
		switch o.outcome {
		case outcomeSupport:
			ev.Support++
			if o.read.Reverse {
				ev.Backward++
			} else {
				ev.Forward++
			}
			novel[o.read.Start] = struct{}{}
		case outcomeReference:
			ev.Reference++
		case outcomePartial:
			ev.Partial++
		default:
			ev.Other++
		}
	}
	for _, idx := range byName {
		if len(idx) == 2 && obs[idx[0]].read.mateOf(obs[idx[1]].read) {
			a, b := &obs[idx[0]], &obs[idx[1]]
			if a.sameAs(b) {
				ev.SameBasePairs++
				tally(representative(a, b))
			} else {
				ev.DifferingPairs++
				ev.Other++
			}
			continue
		}
		for _, i := range idx {
			tally(&obs[i])
		}
	}
	ev.NovelStarts = len(novel)
	ev.Coverage = len(obs) - ev.SameBasePairs - ev.DifferingPairs
	ev.Informative = ev.Support + ev.Reference + ev.Partial + ev.Other
	return ev
}

// representative picks the earlier-starting mate, R1 on a tie.
func representative(a, b *observation) *observation {
	switch {
	case a.read.Start < b.read.Start:
		return a
	case b.read.Start < a.read.Start:
		return b
	case a.read.Role == FirstOfPair:
		return a
	}
	return b
}

// evalSubstitution handles SNPs and MNPs. The read must align both ends of
// the span with base quality at least minBaseQual everywhere in it.
func evalSubstitution(c *Candidate, r *Read, minBaseQual byte) (observation, bool) {
	if r.Start > c.Start || r.End < c.End {
		return observation{}, false
	}
	buf := make([]byte, 0, c.End-c.Start+1)
	resolved := true
	for pos := c.Start; pos <= c.End; pos++ {
		off := r.OffsetAt(pos)
		if off < 0 {
			if pos == c.Start || pos == c.End {
				return observation{}, false
			}
			resolved = false
			buf = append(buf, '-')
			continue
		}
		if r.Qual(off) < minBaseQual {
			return observation{}, false
		}
		buf = append(buf, r.Base(off))
	}
	o := observation{read: r, bases: string(buf)}
	switch {
	case !resolved:
		o.outcome = outcomeOther
	case o.bases == c.Alt:
		o.outcome = outcomeSupport
	case o.bases == c.Ref:
		o.outcome = outcomeReference
	default:
		o.outcome = outcomeOther
	}
	return o, true
}

// evalDeletion compares the read distance between the anchor base before the
// deletion and the first base after it.
func evalDeletion(c *Candidate, r *Read, _ byte) (observation, bool) {
	left, right := c.Start-1, c.End+1
	if !spansIndel(r, left, right) {
		return observation{}, false
	}
	o := observation{read: r}
	lo, ro := r.OffsetAt(left), r.OffsetAt(right)
	if lo < 0 || ro < 0 {
		o.outcome = outcomePartial
		return o, true
	}
	gap := ro - lo
	o.bases = string(r.Bases(lo, ro+1))
	switch {
	case gap == 1:
		o.outcome = outcomeSupport
	case gap >= len(c.Ref):
		o.outcome = outcomeReference
	default:
		o.outcome = outcomePartial
	}
	return o, true
}

// evalInsertion compares the read bases between the two reference bases
// flanking the insertion point with the inserted motif.
func evalInsertion(c *Candidate, r *Read, _ byte) (observation, bool) {
	left, right := c.Start, c.End
	if !spansIndel(r, left, right) {
		return observation{}, false
	}
	o := observation{read: r}
	lo, ro := r.OffsetAt(left), r.OffsetAt(right)
	if lo < 0 || ro < 0 || ro-lo <= 1 {
		o.outcome = outcomeReference
		return o, true
	}
	inserted := r.Bases(lo+1, ro)
	for _, b := range inserted {
		if b == 'N' || b == 'n' {
			return observation{}, false
		}
	}
	o.bases = string(inserted)
	if o.bases == c.Motif() {
		o.outcome = outcomeSupport
	} else {
		o.outcome = outcomeOther
	}
	return o, true
}

// spansIndel reports whether r aligns at least one base past each of the
// anchors left and right. A read ending on an anchor cannot show the indel.
func spansIndel(r *Read, left, right PosType) bool {
	return r.Start < left && r.End > right
}

func evalUnknown(*Candidate, *Read, byte) (observation, bool) {
	return observation{}, false
}

// hasNearbyIndel reports whether r carries an insertion or deletion within
// window bases of c that is not c itself.
func hasNearbyIndel(c *Candidate, r *Read, window int) bool {
	lo, hi := c.Start-window, c.End+window
	for _, op := range r.indels {
		if op.insertion {
			// An insertion sits between refPos-1 and refPos.
			if c.Type == Insertion && op.refPos == c.End {
				continue
			}
			if c.Type == Deletion && op.refPos >= c.Start && op.refPos <= c.End {
				return true
			}
			if op.refPos > lo && op.refPos < hi {
				return true
			}
			continue
		}
		end := op.refPos + op.length - 1
		if c.Overlaps(op.refPos, end) {
			if c.Type == Deletion {
				continue
			}
			return true
		}
		if op.refPos <= hi && end >= lo {
			return true
		}
	}
	return false
}

// nearbySoftClips counts clip boundaries that fall within window of c.
func nearbySoftClips(c *Candidate, pool []*Read, window int) int {
	lo, hi := c.Start-window+1, c.End+window-1
	n := 0
	for _, r := range pool {
		if r.clipLeft {
			if p := r.Start - 1; p >= lo && p <= hi {
				n++
			}
		}
		if r.clipRight {
			if p := r.End + 1; p >= lo && p <= hi {
				n++
			}
		}
	}
	return n
}
