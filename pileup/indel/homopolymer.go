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
	"bytes"
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/indelpileup/encoding/fasta"
)

// RepeatTag classifies how a homopolymer run relates to a candidate.
type RepeatTag int

const (
	// NoRepeat means no run of two or more bases touches the candidate.
	NoRepeat RepeatTag = iota
	// Adjacent means a run touches the candidate without absorbing its motif.
	Adjacent
	// Contained means the deleted or substituted motif is part of the run.
	Contained
	// Embedded means an insertion sits inside a run that continues on both
	// sides of it.
	Embedded
)

var repeatTagNames = [...]string{"none", "adjacent", "contained", "embedded"}

func (t RepeatTag) String() string {
	if t < 0 || int(t) >= len(repeatTagNames) {
		return "RepeatTag(" + strconv.Itoa(int(t)) + ")"
	}
	return repeatTagNames[t]
}

// HomopolymerContext describes the repeat context of a candidate.
type HomopolymerContext struct {
	Candidate *Candidate
	// Motif is the repeated base, and UnitLen its length (always 1 for a
	// homopolymer). Both are empty for NoRepeat.
	Motif   string
	UnitLen int
	// Count is the run length in reference bases, 0 when there is no run.
	Count int
	Tag   RepeatTag
	// Sequence is the annotated flank when a repeat exists, and empty
	// otherwise.
	Sequence string
	// Flank is the annotated flank regardless of Tag: up to reportWindow
	// upstream bases, the motif (lower case, or '_' per deleted base), then
	// up to reportWindow downstream bases.
	Flank string
}

// String renders "count,flank".
func (h HomopolymerContext) String() string {
	return strconv.Itoa(h.Count) + "," + h.Flank
}

// Homopolymer computes the repeat context of c from ref, the whole contig
// sequence. window bounds how far the run search looks on each side, and
// reportWindow bounds the flank in the annotated sequence.
func Homopolymer(ref []byte, c *Candidate, window, reportWindow int) (HomopolymerContext, error) {
	upEnd, downStart, err := flankBounds(c, len(ref))
	if err != nil {
		return HomopolymerContext{}, err
	}
	lo, hi := maxInt(0, upEnd-window), minInt(len(ref), downStart+window)
	return homopolymer(ref[lo:upEnd], ref[downStart:hi], c, reportWindow), nil
}

// FetchHomopolymer is Homopolymer over the reference fa. Only the bases
// within window of c are read. It returns a NotExist error when c's contig is
// not in fa.
func FetchHomopolymer(fa fasta.Fasta, c *Candidate, window, reportWindow int) (HomopolymerContext, error) {
	n, err := fa.Len(c.Contig)
	if err != nil {
		return HomopolymerContext{}, errors.E(errors.NotExist, fmt.Sprintf("homopolymer: contig %s", c.Contig), err)
	}
	upEnd, downStart, err := flankBounds(c, int(n))
	if err != nil {
		return HomopolymerContext{}, err
	}
	lo, hi := maxInt(0, upEnd-window), minInt(int(n), downStart+window)
	seg, err := fa.Get(c.Contig, uint64(lo), uint64(hi))
	if err != nil {
		return HomopolymerContext{}, err
	}
	bases := []byte(seg)
	return homopolymer(bases[:upEnd-lo], bases[downStart-lo:], c, reportWindow), nil
}

// homopolymer builds the context from the upstream and downstream flanks.
func homopolymer(up, down []byte, c *Candidate, reportWindow int) HomopolymerContext {
	motif := c.Motif()
	count, left, right := findHomopolymer(up, down, motif, c.Type)
	h := HomopolymerContext{
		Candidate: c,
		Count:     count,
		Flank:     annotate(up, down, motif, c.Type, reportWindow),
	}
	if count == 0 {
		return h
	}
	h.Sequence = h.Flank
	h.UnitLen = 1
	upCount, downCount := runLength(up, true), runLength(down, false)
	switch {
	case len(down) == 0 || (len(up) > 0 && upCount+left >= downCount+right):
		h.Motif = string(up[len(up)-1])
	default:
		h.Motif = string(down[0])
	}
	switch {
	case c.Type == Insertion && len(up) > 0 && len(down) > 0 && up[len(up)-1] == down[0]:
		h.Tag = Embedded
	case c.Type != Insertion && (left == len(motif) || right == len(motif)):
		h.Tag = Contained
	default:
		h.Tag = Adjacent
	}
	return h
}

// flankBounds returns the 0-based end (exclusive) of the upstream flank and
// the start of the downstream flank of c on a contig of length contigLen. For
// indels the upstream side ends with the anchor base; for substitutions it
// ends just before the first substituted base.
func flankBounds(c *Candidate, contigLen int) (upEnd, downStart int, err error) {
	switch c.Type {
	case Insertion:
		upEnd, downStart = c.Pos, c.Pos
	case Deletion:
		upEnd, downStart = c.Pos, c.Pos+len(c.Ref)-1
	case SNP, MNP:
		upEnd, downStart = c.Pos-1, c.Pos+len(c.Ref)-1
	default:
		return 0, 0, errors.E(errors.Invalid, fmt.Sprintf("homopolymer: unsupported candidate %v", c))
	}
	if upEnd < 0 {
		return 0, 0, errors.E(errors.Invalid, fmt.Sprintf("homopolymer: %v starts before the contig", c))
	}
	if downStart > contigLen {
		return 0, 0, errors.E(errors.Invalid, fmt.Sprintf("homopolymer: %v ends past the contig end %d", c, contigLen))
	}
	return upEnd, downStart, nil
}

// runLength counts the run of identical bases at the end of s (fromEnd) or
// at its start. An empty side counts as 1.
func runLength(s []byte, fromEnd bool) int {
	n := 1
	if len(s) == 0 {
		return n
	}
	if fromEnd {
		for i := len(s) - 2; i >= 0 && s[i] == s[len(s)-1]; i-- {
			n++
		}
		return n
	}
	for i := 1; i < len(s) && s[i] == s[0]; i++ {
		n++
	}
	return n
}

// findHomopolymer returns the run length around the candidate, or 0 when the
// longest run is a single base. left and right are the number of motif bases
// that extend the upstream and downstream runs; they are always 0 for
// insertions.
func findHomopolymer(up, down []byte, motif string, t VariantType) (count, left, right int) {
	upCount, downCount := runLength(up, true), runLength(down, false)
	if t == Insertion {
		if len(up) > 0 && len(down) > 0 && up[len(up)-1] == down[0] {
			count = upCount + downCount
		} else {
			count = maxInt(upCount, downCount)
		}
	} else {
		if len(up) > 0 {
			for left < len(motif) && motif[left] == up[len(up)-1] {
				left++
			}
		}
		if len(down) > 0 {
			for right < len(motif) && motif[len(motif)-1-right] == down[0] {
				right++
			}
		}
		upCount += left
		downCount += right
		if left == len(motif) && right == len(motif) {
			count = upCount + downCount - len(motif)
		} else {
			count = maxInt(upCount, downCount)
		}
	}
	if count == 1 {
		count = 0
	}
	return count, left, right
}

// annotate renders the report flank around the motif.
func annotate(up, down []byte, motif string, t VariantType, reportWindow int) string {
	nUp, nDown := minInt(len(up), reportWindow), minInt(len(down), reportWindow)
	var buf bytes.Buffer
	buf.Grow(nUp + len(motif) + nDown)
	buf.Write(up[len(up)-nUp:])
	if t == Deletion {
		buf.Write(bytes.Repeat([]byte{'_'}, len(motif)))
	} else {
		buf.Write(bytes.ToLower([]byte(motif)))
	}
	buf.Write(down[:nDown])
	return buf.String()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
