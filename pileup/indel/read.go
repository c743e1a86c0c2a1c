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
	"github.com/grailbio/hts/sam"
)

// PairRole says which end of a read pair a read is.
type PairRole int

const (
	// Unpaired reads have no mate.
	Unpaired PairRole = iota
	// FirstOfPair is R1.
	FirstOfPair
	// SecondOfPair is R2.
	SecondOfPair
)

// Missing per-base qualities are stored as 0xff in BAM.
const qualMissing = 0xff

// alignBlock is a gapless M/=/X run.
type alignBlock struct {
	refStart  PosType
	readStart int
	length    int
}

// indelOp is an I or D cigar operation. For an insertion, refPos is the
// reference base immediately after the inserted sequence; for a deletion it
// is the first deleted base.
type indelOp struct {
	insertion bool
	refPos    PosType
	length    int
}

// Read is a read-only view of one aligned read. It copies what it needs out
// of the sam.Record, so the record may be recycled once the Read is built.
type Read struct {
	Name string
	// Start and End are the 1-based inclusive aligned reference span,
	// excluding clips.
	Start, End   PosType
	Reverse      bool
	Role         PairRole
	MateUnmapped bool
	Flags        sam.Flags

	seq       []byte
	qual      []byte
	blocks    []alignBlock
	indels    []indelOp
	clipLeft  bool
	clipRight bool
}

// NewRead builds the view of rec.
func NewRead(rec *sam.Record) *Read {
	r := &Read{
		Name:         rec.Name,
		Start:        rec.Pos + 1,
		Reverse:      rec.Flags&sam.Reverse != 0,
		MateUnmapped: rec.Flags&sam.MateUnmapped != 0,
		Flags:        rec.Flags,
		seq:          rec.Seq.Expand(),
	}
	if len(rec.Qual) > 0 && rec.Qual[0] != qualMissing {
		r.qual = append([]byte(nil), rec.Qual...)
	}
	switch {
	case rec.Flags&sam.Paired == 0:
		r.Role = Unpaired
	case rec.Flags&sam.Read1 != 0:
		r.Role = FirstOfPair
	case rec.Flags&sam.Read2 != 0:
		r.Role = SecondOfPair
	}

	refPos, readOff := r.Start, 0
	for i, co := range rec.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			r.blocks = append(r.blocks, alignBlock{refStart: refPos, readStart: readOff, length: n})
			refPos += n
			readOff += n
		case sam.CigarInsertion:
			r.indels = append(r.indels, indelOp{insertion: true, refPos: refPos, length: n})
			readOff += n
		case sam.CigarDeletion:
			r.indels = append(r.indels, indelOp{refPos: refPos, length: n})
			refPos += n
		case sam.CigarSkipped:
			refPos += n
		case sam.CigarSoftClipped:
			if len(r.blocks) == 0 {
				r.clipLeft = true
			}
			if i == len(rec.Cigar)-1 || (i == len(rec.Cigar)-2 && rec.Cigar[i+1].Type() == sam.CigarHardClipped) {
				r.clipRight = true
			}
			readOff += n
		}
	}
	r.End = refPos - 1
	return r
}

// OffsetAt returns the read offset aligned to the 1-based reference position
// pos, or -1 when pos falls in a deletion, a skip, or outside the read.
func (r *Read) OffsetAt(pos PosType) int {
	for _, b := range r.blocks {
		if pos < b.refStart {
			return -1
		}
		if pos < b.refStart+b.length {
			return b.readStart + (pos - b.refStart)
		}
	}
	return -1
}

// Base returns the upper-case base at read offset off.
func (r *Read) Base(off int) byte {
	b := r.seq[off]
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	return b
}

// Bases returns the bases in read offsets [start, end).
func (r *Read) Bases(start, end int) []byte {
	return r.seq[start:end]
}

// Qual returns the phred quality at read offset off. Reads without stored
// qualities report the maximum so that they are never rejected on quality.
func (r *Read) Qual(off int) byte {
	if r.qual == nil {
		return qualMissing
	}
	return r.qual[off]
}

// Len is the number of read bases, soft clips included.
func (r *Read) Len() int { return len(r.seq) }

// mateOf reports whether r and o are the two ends of one pair.
func (r *Read) mateOf(o *Read) bool {
	return r.Name == o.Name &&
		((r.Role == FirstOfPair && o.Role == SecondOfPair) || (r.Role == SecondOfPair && o.Role == FirstOfPair))
}
