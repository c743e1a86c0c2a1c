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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/indelpileup/encoding/bamprovider"
)

type workerState int

const (
	workerIdle workerState = iota
	workerStreaming
	workerDraining
	workerDone
	workerFailed
)

var workerStateNames = [...]string{"idle", "streaming", "draining", "done", "failed"}

func (s workerState) String() string { return workerStateNames[s] }

// The context is polled once per this many records.
const ctxCheckInterval = 4096

// evidenceRecord is what a worker emits for one candidate.
type evidenceRecord struct {
	role      SampleRole
	candidate *Candidate
	evidence  Evidence
}

// contigWorker runs the window over the reads of one contig of one sample and
// emits one evidenceRecord per candidate, in candidate order.
type contigWorker struct {
	contig     string
	role       SampleRole
	provider   bamprovider.Provider
	candidates []*Candidate
	opts       *Opts
	emit       func(evidenceRecord)

	state workerState

	// Context for failure reports.
	active   *Candidate
	lastRead string

	nRecords, nFiltered int
}

func (w *contigWorker) run(ctx context.Context) (err error) {
	w.state = workerStreaming
	defer func() {
		if err != nil {
			w.state = workerFailed
			log.Error.Printf("indel: %v worker for %s failed at candidate %v, read %q: %v",
				w.role, w.contig, w.active, w.lastRead, err)
			return
		}
		w.state = workerDone
		log.Debug.Printf("indel: %v %s: %d candidates, %d records (%d filtered)",
			w.role, w.contig, len(w.candidates), w.nRecords, w.nFiltered)
	}()
	if len(w.candidates) == 0 {
		return nil
	}

	iter := bamprovider.NewContigIterator(w.provider, w.contig)
	defer func() {
		if e := iter.Close(); e != nil && err == nil && !errors.Is(errors.NotExist, e) {
			err = e
		}
	}()

	window := NewWindow(w.opts.MaxResidentReads)
	params := w.opts.evalParams()
	idx := 0
	w.active = w.candidates[0]
	// evaluate emits the active candidate and re-anchors the window on the
	// next one. It returns false once candidates are exhausted.
	evaluate := func() (bool, error) {
		c := w.candidates[idx]
		w.emit(evidenceRecord{role: w.role, candidate: c, evidence: Evaluate(c, window.Current(), params)})
		idx++
		if idx == len(w.candidates) {
			return false, nil
		}
		w.active = w.candidates[idx]
		return true, window.Advance(w.active)
	}

	lastPos := -1
	for idx < len(w.candidates) && iter.Scan() {
		rec := iter.Record()
		w.nRecords++
		if w.nRecords%ctxCheckInterval == 0 {
			if e := ctx.Err(); e != nil {
				return errors.E(errors.Canceled, fmt.Sprintf("indel: %s", w.contig), e)
			}
		}
		w.lastRead = rec.Name
		if rec.Pos < lastPos {
			return errors.E(errors.Precondition,
				fmt.Sprintf("indel: %s: read %s at %d follows a read at %d; input must be coordinate-sorted",
					w.contig, rec.Name, rec.Pos+1, lastPos+1))
		}
		lastPos = rec.Pos
		if !w.opts.usable(rec) {
			w.nFiltered++
			sam.PutInFreePool(rec)
			continue
		}
		r := NewRead(rec)
		sam.PutInFreePool(rec)
		if r.End < w.active.Start {
			continue
		}
		if window.Admit(r, w.active) {
			continue
		}
		// r starts past the active candidate or overflowed the cap, so the
		// active candidate has seen every read it will get.
		for {
			more, err := evaluate()
			if err != nil {
				return err
			}
			if !more || r.Start <= w.active.End {
				break
			}
		}
	}
	if err := iter.Err(); err != nil {
		if errors.Is(errors.NotExist, err) {
			log.Printf("indel: %v: %v; %s candidates get empty evidence", w.role, err, w.contig)
		} else {
			return err
		}
	}

	w.state = workerDraining
	for more := idx < len(w.candidates); more; {
		if more, err = evaluate(); err != nil {
			return err
		}
	}
	if d, u := window.Diverted(), window.Unused(); d > 0 || u > 0 {
		log.Printf("indel: %v %s: %d reads diverted at the resident cap, %d reads never evaluated", w.role, w.contig, d, u)
	}
	if n := window.Requeued(); n > 0 {
		log.Debug.Printf("indel: %v %s: %d reads requeued past nested candidates", w.role, w.contig, n)
	}
	return nil
}
