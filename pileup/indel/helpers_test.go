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
	"strings"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/require"
)

var (
	chr1, _       = sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _       = sam.NewReference("chr2", "", "", 1000, nil, nil)
	testHeader, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
)

// newRec builds a mapped record at the 1-based position pos. When seq is
// shorter than the cigar's query length it is padded with 'C'.
func newRec(t testing.TB, name string, ref *sam.Reference, pos int, cigar, seq string, flags sam.Flags) *sam.Record {
	co, err := sam.ParseCigar([]byte(cigar))
	require.NoError(t, err)
	_, qlen := co.Lengths()
	if len(seq) < qlen {
		seq += strings.Repeat("C", qlen-len(seq))
	}
	r, err := sam.NewRecord(name, ref, nil, pos-1, -1, 0, 60, co, []byte(seq), nil, nil)
	require.NoError(t, err)
	r.Flags = flags
	return r
}

// insSeq returns a read sequence with nLeft flank bases, then ins, then
// nRight flank bases.
func insSeq(nLeft int, ins string, nRight int) string {
	return strings.Repeat("C", nLeft) + ins + strings.Repeat("C", nRight)
}

func mustCandidate(t testing.TB, contig string, pos int, ref, alt string) *Candidate {
	c, err := NewCandidate(contig, pos, ref, alt)
	require.NoError(t, err)
	return c
}

// span builds a bare read covering [start, end] for window tests.
func span(name string, start, end int) *Read {
	return &Read{Name: name, Start: start, End: end}
}

func readNames(reads []*Read) []string {
	names := make([]string, len(reads))
	for i, r := range reads {
		names[i] = r.Name
	}
	return names
}
