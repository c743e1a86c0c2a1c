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
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/indelpileup/encoding/bamprovider"
	"github.com/grailbio/indelpileup/encoding/fasta"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func runWorker(t *testing.T, recs []*sam.Record, cands []*Candidate, opts Opts) ([]evidenceRecord, *contigWorker, error) {
	var out []evidenceRecord
	w := &contigWorker{
		contig:     cands[0].Contig,
		role:       Test,
		provider:   bamprovider.NewFakeProvider(testHeader, recs),
		candidates: cands,
		opts:       &opts,
		emit:       func(rec evidenceRecord) { out = append(out, rec) },
	}
	expect.EQ(t, w.state, workerIdle)
	err := w.run(context.Background())
	return out, w, err
}

func TestWorkerStreamsAndDrains(t *testing.T) {
	recs := []*sam.Record{
		newRec(t, "a", chr1, 91, "10M2I10M", insSeq(10, "AA", 10), 0),
		newRec(t, "b", chr1, 92, "9M2I10M", insSeq(9, "AA", 10), sam.Reverse),
		newRec(t, "c", chr1, 95, "30M", "", 0),
		newRec(t, "d", chr1, 200, "30M", "", 0),
	}
	cands := []*Candidate{
		mustCandidate(t, "chr1", 100, "T", "TAA"),
		mustCandidate(t, "chr1", 210, "C", "CA"),
		mustCandidate(t, "chr1", 500, "C", "CA"),
	}
	out, w, err := runWorker(t, recs, cands, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, w.state, workerDone)
	assert.EQ(t, len(out), 3)
	for i, rec := range out {
		expect.True(t, rec.candidate == cands[i])
		expect.EQ(t, rec.role, Test)
	}
	expect.EQ(t, out[0].evidence.Coverage, 3)
	expect.EQ(t, out[0].evidence.Support, 2)
	expect.EQ(t, out[0].evidence.Reference, 1)
	expect.EQ(t, out[1].evidence.Coverage, 1)
	expect.EQ(t, out[2].evidence, Evidence{})
}

func TestWorkerResidentCap(t *testing.T) {
	var recs []*sam.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, newRec(t, fmt.Sprintf("a%d", i), chr1, 50, "101M", "", 0))
	}
	for i := 0; i < 2; i++ {
		recs = append(recs, newRec(t, fmt.Sprintf("b%d", i), chr1, 60, "241M", "", 0))
	}
	recs = append(recs, newRec(t, "trailing", chr1, 250, "101M", "", 0))
	cands := []*Candidate{
		mustCandidate(t, "chr1", 100, "C", "T"),
		mustCandidate(t, "chr1", 210, "C", "T"),
	}
	opts := DefaultOpts
	opts.MaxResidentReads = 5
	out, _, err := runWorker(t, recs, cands, opts)
	assert.NoError(t, err)
	assert.EQ(t, len(out), 2)
	// The reads past the cap only count toward the second candidate.
	expect.EQ(t, out[0].evidence.Coverage, 5)
	expect.EQ(t, out[0].evidence.Reference, 5)
	expect.EQ(t, out[1].evidence.Coverage, 2)
}

func TestWorkerFilters(t *testing.T) {
	recs := []*sam.Record{
		newRec(t, "dup", chr1, 91, "20M", "", sam.Duplicate),
		newRec(t, "secondary", chr1, 91, "20M", "", sam.Secondary),
		newRec(t, "lowmapq", chr1, 91, "20M", "", 0),
		newRec(t, "rejected", chr1, 91, "20M", "", 0),
		newRec(t, "kept", chr1, 91, "20M", "", 0),
	}
	recs[2].MapQ = 5
	opts := DefaultOpts
	opts.MinMapQ = 10
	opts.Filter = func(rec *sam.Record) bool { return rec.Name != "rejected" }
	out, w, err := runWorker(t, recs, []*Candidate{mustCandidate(t, "chr1", 100, "C", "T")}, opts)
	assert.NoError(t, err)
	expect.EQ(t, out[0].evidence.Coverage, 1)
	expect.EQ(t, w.nFiltered, 4)
}

func TestWorkerUnsortedReads(t *testing.T) {
	recs := []*sam.Record{
		newRec(t, "a", chr1, 95, "20M", "", 0),
		newRec(t, "b", chr1, 91, "20M", "", 0),
	}
	_, w, err := runWorker(t, recs, []*Candidate{mustCandidate(t, "chr1", 150, "C", "T")}, DefaultOpts)
	expect.True(t, errors.Is(errors.Precondition, err), "got %v", err)
	expect.EQ(t, w.state, workerFailed)
	expect.EQ(t, w.lastRead, "b")
}

func TestWorkerUnsortedCandidates(t *testing.T) {
	recs := []*sam.Record{
		newRec(t, "a", chr1, 91, "20M", "", 0),
		newRec(t, "b", chr1, 200, "20M", "", 0),
	}
	cands := []*Candidate{
		mustCandidate(t, "chr1", 100, "C", "T"),
		mustCandidate(t, "chr1", 50, "C", "T"),
	}
	_, w, err := runWorker(t, recs, cands, DefaultOpts)
	expect.True(t, errors.Is(errors.Precondition, err), "got %v", err)
	expect.EQ(t, w.state, workerFailed)
}

func TestWorkerMissingContig(t *testing.T) {
	w := &contigWorker{
		contig:     "chrUn",
		provider:   bamprovider.NewFakeProvider(testHeader, nil),
		candidates: []*Candidate{mustCandidate(t, "chrUn", 10, "C", "T")},
		opts:       &DefaultOpts,
	}
	var n int
	w.emit = func(evidenceRecord) { n++ }
	assert.NoError(t, w.run(context.Background()))
	expect.EQ(t, n, 1)
}

func twoContigCandidates(t *testing.T) *CandidateSet {
	s, err := ReadCandidates(strings.NewReader(
		"chr2\t100\t.\tC\tCAA\n" +
			"chr1\t100\t.\tC\tCAA\n" +
			"chr1\t50\t.\tC\tT\n"))
	assert.NoError(t, err)
	return s
}

func TestCoordinatorSortedMerge(t *testing.T) {
	recs := []*sam.Record{
		newRec(t, "a", chr1, 91, "10M2I10M", insSeq(10, "AA", 10), 0),
		newRec(t, "b", chr2, 91, "10M2I10M", insSeq(10, "AA", 10), 0),
	}
	p := bamprovider.NewFakeProvider(testHeader, recs)
	ref, err := fasta.New(strings.NewReader(">chr1\n" + strings.Repeat("ACGT", 50) + "\n>chr2\n" + strings.Repeat("C", 200) + "\n"))
	assert.NoError(t, err)
	opts := DefaultOpts
	opts.Parallelism = 3
	co, err := NewCoordinator(twoContigCandidates(t),
		[]Sample{{Role: Control, Provider: p}, {Role: Test, Provider: p}}, ref, opts)
	assert.NoError(t, err)
	sites, err := co.Run(context.Background())
	assert.NoError(t, err)
	assert.EQ(t, len(sites), 3)
	var got []string
	for _, s := range sites {
		got = append(got, s.Candidate.String())
		expect.NotNil(t, s.Control)
		expect.NotNil(t, s.Test)
		expect.NotNil(t, s.Hom)
	}
	expect.EQ(t, got, []string{
		"chr1:50:C>T(SNP 50-50)",
		"chr1:100:C>CAA(INS 100-101)",
		"chr2:100:C>CAA(INS 100-101)",
	})
	expect.EQ(t, sites[1].Test.Support, 1)
	expect.EQ(t, sites[1].Control.Support, 1)
	expect.False(t, sites[1].Decision.Somatic)
	expect.EQ(t, sites[2].Hom.Count, 200)
}

// failingProvider fails every iterator on one contig.
type failingProvider struct {
	bamprovider.Provider
	contig string
}

func (p *failingProvider) NewIterator(ref *sam.Reference, start, limit int) bamprovider.Iterator {
	if ref.Name() == p.contig {
		return bamprovider.NewErrorIterator(fmt.Errorf("injected failure on %s", p.contig))
	}
	return p.Provider.NewIterator(ref, start, limit)
}

func TestCoordinatorAbortsOnFailure(t *testing.T) {
	p := &failingProvider{Provider: bamprovider.NewFakeProvider(testHeader, nil), contig: "chr2"}
	co, err := NewCoordinator(twoContigCandidates(t), []Sample{{Role: Test, Provider: p}}, nil, DefaultOpts)
	assert.NoError(t, err)
	sites, err := co.Run(context.Background())
	expect.HasSubstr(t, fmt.Sprint(err), "injected failure on chr2")
	expect.Nil(t, sites)
}

// endlessIterator yields short reads at the start of chr1 forever.
type endlessIterator struct {
	rec *sam.Record
}

func (i *endlessIterator) Scan() bool {
	i.rec, _ = sam.NewRecord("r", chr1, nil, 0, -1, 0, 60, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 2)}, []byte("AC"), nil, nil)
	return true
}
func (i *endlessIterator) Record() *sam.Record { return i.rec }
func (i *endlessIterator) Err() error          { return nil }
func (i *endlessIterator) Close() error        { return nil }

type endlessProvider struct{ bamprovider.Provider }

func (p *endlessProvider) NewIterator(*sam.Reference, int, int) bamprovider.Iterator {
	return &endlessIterator{}
}

func TestCoordinatorTimeout(t *testing.T) {
	p := &endlessProvider{Provider: bamprovider.NewFakeProvider(testHeader, nil)}
	opts := DefaultOpts
	opts.Timeout = 50 * time.Millisecond
	co, err := NewCoordinator(twoContigCandidates(t), []Sample{{Role: Test, Provider: p}}, nil, opts)
	assert.NoError(t, err)
	_, err = co.Run(context.Background())
	expect.True(t, errors.Is(errors.Timeout, err), "got %v", err)
}

func TestNewCoordinatorErrors(t *testing.T) {
	p := bamprovider.NewFakeProvider(testHeader, nil)
	cands := twoContigCandidates(t)
	_, err := NewCoordinator(cands, nil, nil, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err), "got %v", err)
	_, err = NewCoordinator(cands, []Sample{{Role: Test, Provider: p}, {Role: Test, Provider: p}}, nil, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err), "got %v", err)
	opts := DefaultOpts
	opts.MaxResidentReads = 0
	_, err = NewCoordinator(cands, []Sample{{Role: Test, Provider: p}}, nil, opts)
	expect.True(t, errors.Is(errors.Invalid, err), "got %v", err)
}
