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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/unsafe"
)

// CandidateSet holds loaded candidates grouped per contig, each group sorted
// by (start, end) without duplicates.
type CandidateSet struct {
	// Contigs lists contig names in order of first appearance.
	Contigs  []string
	ByContig map[string][]*Candidate

	// Complex counts alleles skipped because REF and ALT are both longer than
	// one base with different lengths; Unsupported counts symbolic or
	// otherwise unusable alleles; Duplicates counts collapsed repeats.
	Complex     int
	Unsupported int
	Duplicates  int
}

// Len returns the total number of candidates.
func (s *CandidateSet) Len() int {
	n := 0
	for _, cs := range s.ByContig {
		n += len(cs)
	}
	return n
}

const (
	vcfColChrom  = 0
	vcfColPos    = 1
	vcfColRef    = 3
	vcfColAlt    = 4
	vcfColFilter = 6
)

var somaticFilter = []byte("SOMATIC")

// LoadCandidates reads a VCF-like candidate file, decompressing it when
// needed.
func LoadCandidates(ctx context.Context, path string) (s *CandidateSet, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, _ := compress.NewReader(in.Reader(ctx))
	if r == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("candidates: %s: unreadable compressed input", path))
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if s, err = ReadCandidates(r); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("candidates: %s: %d candidates on %d contigs (%d complex, %d unsupported, %d duplicate alleles skipped)",
		path, s.Len(), len(s.Contigs), s.Complex, s.Unsupported, s.Duplicates)
	return s, nil
}

// ReadCandidates parses tab-separated CHROM POS ID REF ALT [QUAL FILTER ...]
// records. Header lines start with '#'. Multi-allelic ALT values give one
// candidate per allele.
func ReadCandidates(r io.Reader) (*CandidateSet, error) {
	s := &CandidateSet{ByContig: map[string][]*Candidate{}}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := bytes.Split(line, []byte{'\t'})
		if len(fields) <= vcfColAlt {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("line %d: expected at least %d columns, got %d", lineNum, vcfColAlt+1, len(fields)))
		}
		pos, err := strconv.Atoi(unsafe.BytesToString(fields[vcfColPos]))
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("line %d: bad POS %q", lineNum, fields[vcfColPos]), err)
		}
		contig := string(fields[vcfColChrom])
		ref := string(fields[vcfColRef])
		somatic := len(fields) > vcfColFilter && bytes.Equal(fields[vcfColFilter], somaticFilter)
		for _, alt := range bytes.Split(fields[vcfColAlt], []byte{','}) {
			if len(ref) > 1 && len(alt) > 1 && len(ref) != len(alt) {
				s.Complex++
				continue
			}
			c, err := NewCandidate(contig, pos, ref, string(alt))
			if err != nil {
				return nil, errors.E(fmt.Sprintf("line %d", lineNum), err)
			}
			if c.Type == Unknown {
				s.Unsupported++
				continue
			}
			c.SomaticHint = somatic
			if _, ok := s.ByContig[contig]; !ok {
				s.Contigs = append(s.Contigs, contig)
			}
			s.ByContig[contig] = append(s.ByContig[contig], c)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for contig, cs := range s.ByContig {
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].compare(cs[j]) < 0 })
		uniq := cs[:0]
		for _, c := range cs {
			if n := len(uniq); n > 0 && uniq[n-1].compare(c) == 0 {
				uniq[n-1].SomaticHint = uniq[n-1].SomaticHint || c.SomaticHint
				s.Duplicates++
				continue
			}
			uniq = append(uniq, c)
		}
		s.ByContig[contig] = uniq
	}
	return s, nil
}
