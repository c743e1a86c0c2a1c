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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/indelpileup/encoding/bamprovider"
	"github.com/grailbio/indelpileup/encoding/fasta"
	"github.com/grailbio/indelpileup/pileup"
)

// Paths names the files a run reads and writes. Control and Test are BAM
// paths; at least one is required. Reference is optional.
type Paths struct {
	Candidates string
	Output     string
	Control    string
	Test       string
	Reference  string
	// IndexSuffix is appended to a BAM path to find its index; "" means
	// ".bai".
	IndexSuffix string
}

// Run loads the candidates, piles up every sample and writes the sorted
// sites to paths.Output. The output is not written when any step fails.
func Run(ctx context.Context, paths Paths, opts Opts) (err error) {
	if err = opts.Validate(); err != nil {
		return err
	}
	if paths.Control == "" && paths.Test == "" {
		return errors.E(errors.Invalid, "indel: a control or a test alignment is required")
	}
	if paths.Candidates == "" || paths.Output == "" {
		return errors.E(errors.Invalid, "indel: candidate and output paths are required")
	}
	candidates, err := LoadCandidates(ctx, paths.Candidates)
	if err != nil {
		return err
	}

	var samples []Sample
	for _, s := range []struct {
		role SampleRole
		path string
	}{{Control, paths.Control}, {Test, paths.Test}} {
		if s.path == "" {
			continue
		}
		p := bamprovider.NewProvider(s.path, bamprovider.ProviderOpts{IndexSuffix: paths.IndexSuffix})
		defer func() {
			if e := p.Close(); e != nil && err == nil {
				err = e
			}
		}()
		samples = append(samples, Sample{Role: s.role, Provider: p})
	}

	var ref fasta.Fasta
	if paths.Reference != "" {
		r, e := pileup.LoadFa(ctx, paths.Reference)
		if e != nil {
			return e
		}
		defer func() {
			if e := r.Close(); e != nil && err == nil {
				err = e
			}
		}()
		ref = r
	}

	co, err := NewCoordinator(candidates, samples, ref, opts)
	if err != nil {
		return err
	}
	sites, err := co.Run(ctx)
	if err != nil {
		return err
	}
	if err = WriteSites(ctx, paths.Output, sites, opts.Cols, opts.parallelism()); err != nil {
		return err
	}
	log.Printf("indel: wrote %d sites to %s", len(sites), paths.Output)
	return nil
}
