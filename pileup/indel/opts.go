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
	"runtime"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/indelpileup/pileup"
)

// ReadPredicate is an optional read-level filter, evaluated once per usable
// read before it enters the window. It must be safe for concurrent use.
type ReadPredicate func(rec *sam.Record) bool

// Opts configures a pileup run.
type Opts struct {
	// MaxResidentReads caps the reads evaluated for one candidate. Overlapping
	// reads past the cap are held back rather than evaluated.
	MaxResidentReads int
	MinBaseQual      int
	// MinMapQ drops reads whose mapping quality is lower.
	MinMapQ int
	// FlagExclude drops reads sharing a bit with it, on top of
	// pileup.UnusableFlags.
	FlagExclude int
	// Parallelism bounds the number of concurrent contig workers;
	// 0 = runtime.NumCPU().
	Parallelism int
	// Timeout bounds the whole run.
	Timeout time.Duration

	NearbyIndelWindow    int
	NearbySoftClipWindow int

	HomopolymerWindow       int
	HomopolymerReportWindow int

	// Cols is the output column-set descriptor; see ParseOutputCols.
	Cols string

	Thresholds Thresholds
	// Filter, when non-nil, is applied to every usable read.
	Filter ReadPredicate
}

// DefaultOpts holds the defaults used by the command line.
var DefaultOpts = Opts{
	MaxResidentReads:        5000,
	MinBaseQual:             10,
	Timeout:                 24 * time.Hour,
	NearbyIndelWindow:       3,
	NearbySoftClipWindow:    13,
	HomopolymerWindow:       100,
	HomopolymerReportWindow: 10,
	Thresholds:              DefaultThresholds,
}

// Validate checks opts before any worker starts.
func (o *Opts) Validate() error {
	switch {
	case o.MaxResidentReads <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("opts: max resident reads must be positive, got %d", o.MaxResidentReads))
	case o.MinBaseQual < 0 || o.MinBaseQual > 93:
		return errors.E(errors.Invalid, fmt.Sprintf("opts: min base quality %d out of range [0,93]", o.MinBaseQual))
	case o.MinMapQ < 0 || o.MinMapQ > 255:
		return errors.E(errors.Invalid, fmt.Sprintf("opts: min mapq %d out of range [0,255]", o.MinMapQ))
	case o.Parallelism < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("opts: negative parallelism %d", o.Parallelism))
	case o.Timeout <= 0:
		return errors.E(errors.Invalid, fmt.Sprintf("opts: timeout must be positive, got %v", o.Timeout))
	case o.NearbyIndelWindow < 0 || o.NearbySoftClipWindow < 0:
		return errors.E(errors.Invalid, "opts: nearby windows must not be negative")
	case o.HomopolymerWindow < 1 || o.HomopolymerReportWindow < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("opts: bad homopolymer windows %d/%d", o.HomopolymerWindow, o.HomopolymerReportWindow))
	}
	if _, err := ParseOutputCols(o.Cols); err != nil {
		return err
	}
	return o.Thresholds.Validate()
}

func (o *Opts) parallelism() int {
	if o.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return o.Parallelism
}

func (o *Opts) evalParams() EvalParams {
	return EvalParams{
		MinBaseQual:          byte(o.MinBaseQual),
		NearbyIndelWindow:    o.NearbyIndelWindow,
		NearbySoftClipWindow: o.NearbySoftClipWindow,
	}
}

// usable reports whether rec may enter the window at all.
func (o *Opts) usable(rec *sam.Record) bool {
	if rec.Flags&(pileup.UnusableFlags|sam.Flags(o.FlagExclude)) != 0 {
		return false
	}
	if int(rec.MapQ) < o.MinMapQ {
		return false
	}
	if o.Filter != nil && !o.Filter(rec) {
		return false
	}
	return true
}
