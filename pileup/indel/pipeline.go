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
	"time"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/indelpileup/encoding/bamprovider"
	"github.com/grailbio/indelpileup/encoding/fasta"
)

// SampleRole distinguishes the two samples of a paired run.
type SampleRole int

const (
	// Control is the normal sample.
	Control SampleRole = iota
	// Test is the tumour sample.
	Test
)

func (r SampleRole) String() string {
	if r == Control {
		return "control"
	}
	return "test"
}

// Sample is one alignment source. Its provider must hand out independent
// iterators, one per contig worker.
type Sample struct {
	Role     SampleRole
	Provider bamprovider.Provider
}

// Site is the merged result for one candidate.
type Site struct {
	Candidate *Candidate
	// Control and Test are nil when the sample was not run.
	Control, Test *Evidence
	// Hom is nil when no reference was supplied.
	Hom      *HomopolymerContext
	Decision FilterDecision

	rank int // contig rank
}

// Compare implements llrb.Comparable: contig rank, then candidate order.
func (s *Site) Compare(c llrb.Comparable) int {
	o := c.(*Site)
	if d := s.rank - o.rank; d != 0 {
		return d
	}
	return s.Candidate.compare(o.Candidate)
}

// Coordinator runs one worker per (sample, contig) on a bounded pool and
// merges their evidence into sorted sites.
type Coordinator struct {
	candidates *CandidateSet
	samples    []Sample
	ref        fasta.Fasta
	opts       Opts
}

// NewCoordinator validates opts and the sample list. ref may be nil, in which
// case no homopolymer context is computed.
func NewCoordinator(candidates *CandidateSet, samples []Sample, ref fasta.Fasta, opts Opts) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 || len(samples) > 2 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("indel: need one or two samples, got %d", len(samples)))
	}
	if len(samples) == 2 && samples[0].Role == samples[1].Role {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("indel: two %v samples", samples[0].Role))
	}
	return &Coordinator{candidates: candidates, samples: samples, ref: ref, opts: opts}, nil
}

type contigJob struct {
	sample Sample
	contig string
}

// contigRanks orders contigs as the first sample's header does. Contigs
// missing from the header sort after, in candidate-file order.
func (co *Coordinator) contigRanks() (map[string]int, []string, error) {
	header, err := co.samples[0].Provider.GetHeader()
	if err != nil {
		return nil, nil, err
	}
	ranks := map[string]int{}
	var order []string
	for _, ref := range header.Refs() {
		if _, ok := co.candidates.ByContig[ref.Name()]; ok {
			ranks[ref.Name()] = len(ranks)
			order = append(order, ref.Name())
		}
	}
	for _, contig := range co.candidates.Contigs {
		if _, ok := ranks[contig]; !ok {
			ranks[contig] = len(ranks)
			order = append(order, contig)
		}
	}
	return ranks, order, nil
}

// Run computes the evidence for every candidate and returns the sites in
// (contig, start, end) order. The first worker failure cancels the others and
// is returned; no sites are returned with an error.
func (co *Coordinator) Run(ctx context.Context) ([]*Site, error) {
	ranks, order, err := co.contigRanks()
	if err != nil {
		return nil, err
	}
	jobs := make(chan contigJob, len(order)*len(co.samples))
	for _, contig := range order {
		for _, s := range co.samples {
			jobs <- contigJob{sample: s, contig: contig}
		}
	}
	close(jobs)

	ctx, cancel := context.WithTimeout(ctx, co.opts.Timeout)
	defer cancel()

	results := make(chan evidenceRecord, 1024)
	tree := &llrb.Tree{}
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for rec := range results {
			key := &Site{Candidate: rec.candidate, rank: ranks[rec.candidate.Contig]}
			site, _ := tree.Get(key).(*Site)
			if site == nil {
				site = key
				tree.Insert(site)
			}
			ev := rec.evidence
			if rec.role == Control {
				site.Control = &ev
			} else {
				site.Test = &ev
			}
		}
	}()

	var failure errors.Once
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- traverse.Each(co.opts.parallelism(), func(int) error {
			for job := range jobs {
				if ctx.Err() != nil {
					return nil
				}
				w := &contigWorker{
					contig:     job.contig,
					role:       job.sample.Role,
					provider:   job.sample.Provider,
					candidates: co.candidates.ByContig[job.contig],
					opts:       &co.opts,
					emit:       func(rec evidenceRecord) { results <- rec },
				}
				if err := w.run(ctx); err != nil {
					failure.Set(err)
					cancel()
					return err
				}
				log.Debug.Printf("indel: %v %s done after %v", job.sample.Role, job.contig, time.Since(start))
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Workers poll ctx; wait for them so that no iterator outlives the run.
		<-done
	}
	close(results)
	<-collected

	if err := failure.Err(); err != nil && !errors.Is(errors.Canceled, err) {
		return nil, err
	}
	switch ctx.Err() {
	case nil:
	case context.DeadlineExceeded:
		return nil, errors.E(errors.Timeout, fmt.Sprintf("indel: run exceeded %v", co.opts.Timeout))
	default:
		return nil, errors.E(errors.Canceled, "indel: run canceled", ctx.Err())
	}
	log.Printf("indel: pileup of %d candidates on %d contigs finished in %v", tree.Len(), len(order), time.Since(start))
	return co.finish(tree)
}

// finish annotates and classifies the merged sites in order.
func (co *Coordinator) finish(tree *llrb.Tree) ([]*Site, error) {
	sites := make([]*Site, 0, tree.Len())
	var (
		missing string // last contig found absent from the reference
		err     error
	)
	tree.Do(func(c llrb.Comparable) (done bool) {
		s := c.(*Site)
		if co.ref != nil && s.Candidate.Contig != missing {
			h, e := FetchHomopolymer(co.ref, s.Candidate, co.opts.HomopolymerWindow, co.opts.HomopolymerReportWindow)
			switch {
			case e == nil:
				s.Hom = &h
			case errors.Is(errors.NotExist, e):
				missing = s.Candidate.Contig
				log.Printf("indel: warning: %s missing from reference; no homopolymer context", missing)
			default:
				err = e
				return true
			}
		}
		s.Decision = Classify(s.Test, s.Control, s.Candidate, co.opts.Thresholds)
		sites = append(sites, s)
		return false
	})
	if err != nil {
		return nil, err
	}
	return sites, nil
}
