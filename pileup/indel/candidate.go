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
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/indelpileup/pileup"
)

// PosType is the integer type used to represent genomic positions.
type PosType = pileup.PosType

// VariantType is the kind of change a Candidate describes.
type VariantType int

const (
	// Unknown covers symbolic, complex, and malformed alleles.
	Unknown VariantType = iota
	// SNP is a single-base substitution.
	SNP
	// MNP is a multi-base substitution of equal-length alleles.
	MNP
	// Insertion adds bases after the anchor base.
	Insertion
	// Deletion removes the bases after the anchor base.
	Deletion
)

var variantTypeNames = [...]string{"UNKNOWN", "SNP", "MNP", "INS", "DEL"}

func (t VariantType) String() string {
	if t < 0 || int(t) >= len(variantTypeNames) {
		return fmt.Sprintf("VariantType(%d)", int(t))
	}
	return variantTypeNames[t]
}

// Candidate is one single-allele variant to be tested against read evidence.
// It is immutable once created.
type Candidate struct {
	Contig string
	// Pos is the 1-based position of the first REF base, as written in the
	// candidate file.
	Pos PosType
	// Start and End are the 1-based inclusive reference span the evidence is
	// evaluated over. For an insertion they are the two bases flanking the
	// inserted sequence; for a deletion they are the deleted bases.
	Start, End PosType
	Ref, Alt   string
	Type       VariantType
	// SomaticHint is set when the candidate source marked the record as
	// somatic.
	SomaticHint bool

	eval evalFunc
}

// NewCandidate builds a Candidate from a VCF-style position and allele pair
// and binds its evaluation function. Unknown-type candidates are returned
// with a nil error so callers can count and skip them.
func NewCandidate(contig string, pos PosType, ref, alt string) (*Candidate, error) {
	if contig == "" {
		return nil, errors.E(errors.Invalid, "candidate: empty contig")
	}
	if pos < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("candidate: %s:%d: position must be >= 1", contig, pos))
	}
	ref, alt = strings.ToUpper(ref), strings.ToUpper(alt)
	if ref == "" || alt == "" {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("candidate: %s:%d: empty allele", contig, pos))
	}
	c := &Candidate{Contig: contig, Pos: pos, Ref: ref, Alt: alt, Type: variantType(ref, alt)}
	switch c.Type {
	case Insertion:
		c.Start, c.End = pos, pos+1
		c.eval = evalInsertion
	case Deletion:
		c.Start, c.End = pos+1, pos+len(ref)-1
		c.eval = evalDeletion
	case SNP, MNP:
		c.Start, c.End = pos, pos+len(ref)-1
		c.eval = evalSubstitution
	default:
		c.Start, c.End = pos, pos+len(ref)-1
		c.eval = evalUnknown
	}
	return c, nil
}

func variantType(ref, alt string) VariantType {
	if !isBases(ref) || !isBases(alt) {
		return Unknown
	}
	switch {
	case len(ref) == len(alt) && len(ref) == 1:
		return SNP
	case len(ref) == len(alt):
		return MNP
	case len(ref) == 1:
		return Insertion
	case len(alt) == 1:
		return Deletion
	}
	return Unknown
}

func isBases(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return false
		}
	}
	return true
}

// Motif returns the inserted bases of an insertion, the deleted bases of a
// deletion, and the reference allele otherwise.
func (c *Candidate) Motif() string {
	switch c.Type {
	case Insertion:
		return c.Alt[1:]
	case Deletion:
		return c.Ref[1:]
	}
	return c.Ref
}

// Overlaps reports whether [start, end] intersects the candidate span.
func (c *Candidate) Overlaps(start, end PosType) bool {
	return start <= c.End && end >= c.Start
}

// compare orders candidates of one contig by (start, end), then by alleles so
// that the order is total.
func (c *Candidate) compare(o *Candidate) int {
	switch {
	case c.Start != o.Start:
		return c.Start - o.Start
	case c.End != o.End:
		return c.End - o.End
	case c.Ref != o.Ref:
		return strings.Compare(c.Ref, o.Ref)
	}
	return strings.Compare(c.Alt, o.Alt)
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s:%d:%s>%s(%s %d-%d)", c.Contig, c.Pos, c.Ref, c.Alt, c.Type, c.Start, c.End)
}
