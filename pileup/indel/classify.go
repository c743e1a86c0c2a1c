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
)

// Filter names. They are part of the output format and must not change.
const (
	FilterPass = "PASS"
	// FilterHighCovTest and FilterHighCovControl replace every other flag when
	// a sample exceeds Thresholds.HighCoverage.
	FilterHighCovTest    = "HCOVT"
	FilterHighCovControl = "HCOVN"
	FilterCovTest        = "COVT"
	FilterCovControl12   = "COVN12"
	FilterCovControl8    = "COVN8"
	FilterPartialTest    = "TPART"
	FilterPartialControl = "NPART"
	FilterBiasTest       = "TBIAS"
	FilterBiasControl    = "NBIAS"
	// FilterMIN marks a somatic call with novel-start support in the control.
	FilterMIN = "MIN"
	// FilterNNS marks too few novel starts in the sample the call rests on.
	FilterNNS = "NNS"
)

// Thresholds is the classification threshold table. Counts are read counts,
// percents are in [0,100] and fractions in [0,1].
type Thresholds struct {
	// HighCoverage is the coverage above which a sample is not classified.
	HighCoverage int

	// MaxControlSupport and MaxControlSupportFraction bound the control
	// support a somatic call tolerates.
	MaxControlSupport         int
	MaxControlSupportFraction float64
	// RequireSomaticHint makes only candidates marked somatic by the source
	// eligible for a somatic call. Otherwise any candidate with test evidence
	// is.
	RequireSomaticHint bool

	MinTestCoverage           int
	MinControlCoverage        int
	MinControlCoverageSomatic int

	MinPartial            int
	MaxTestPartialPercent int
	MaxControlPartialPct  int

	MinStrandBiasSupport int
	TestStrandMin        float64
	TestStrandMax        float64
	ControlStrandMin     float64
	ControlStrandMax     float64

	MinNovelStarts int
}

// DefaultThresholds reproduces the historical table.
var DefaultThresholds = Thresholds{
	HighCoverage:              1000,
	MaxControlSupport:         3,
	MaxControlSupportFraction: 0.05,
	MinTestCoverage:           8,
	MinControlCoverage:        8,
	MinControlCoverageSomatic: 12,
	MinPartial:                3,
	MaxTestPartialPercent:     10,
	MaxControlPartialPct:      5,
	MinStrandBiasSupport:      3,
	TestStrandMin:             0.1,
	TestStrandMax:             0.9,
	ControlStrandMin:          0.05,
	ControlStrandMax:          0.95,
	MinNovelStarts:            4,
}

// Validate rejects negative counts, fractions outside [0,1], and strand
// bounds whose minimum exceeds their maximum.
func (t *Thresholds) Validate() error {
	counts := []struct {
		name string
		v    int
	}{
		{"HighCoverage", t.HighCoverage},
		{"MaxControlSupport", t.MaxControlSupport},
		{"MinTestCoverage", t.MinTestCoverage},
		{"MinControlCoverage", t.MinControlCoverage},
		{"MinControlCoverageSomatic", t.MinControlCoverageSomatic},
		{"MinPartial", t.MinPartial},
		{"MaxTestPartialPercent", t.MaxTestPartialPercent},
		{"MaxControlPartialPct", t.MaxControlPartialPct},
		{"MinStrandBiasSupport", t.MinStrandBiasSupport},
		{"MinNovelStarts", t.MinNovelStarts},
	}
	for _, c := range counts {
		if c.v < 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("thresholds: %s=%d must not be negative", c.name, c.v))
		}
	}
	if t.MaxTestPartialPercent > 100 || t.MaxControlPartialPct > 100 {
		return errors.E(errors.Invalid, "thresholds: partial percentages must be at most 100")
	}
	fractions := []struct {
		name string
		v    float64
	}{
		{"MaxControlSupportFraction", t.MaxControlSupportFraction},
		{"TestStrandMin", t.TestStrandMin},
		{"TestStrandMax", t.TestStrandMax},
		{"ControlStrandMin", t.ControlStrandMin},
		{"ControlStrandMax", t.ControlStrandMax},
	}
	for _, f := range fractions {
		if f.v < 0 || f.v > 1 {
			return errors.E(errors.Invalid, fmt.Sprintf("thresholds: %s=%g must be in [0,1]", f.name, f.v))
		}
	}
	if t.TestStrandMin > t.TestStrandMax {
		return errors.E(errors.Invalid, fmt.Sprintf("thresholds: test strand minimum %g above maximum %g", t.TestStrandMin, t.TestStrandMax))
	}
	if t.ControlStrandMin > t.ControlStrandMax {
		return errors.E(errors.Invalid, fmt.Sprintf("thresholds: control strand minimum %g above maximum %g", t.ControlStrandMin, t.ControlStrandMax))
	}
	return nil
}

// FilterDecision is the classification of one candidate.
type FilterDecision struct {
	Candidate *Candidate
	Somatic   bool
	// Flags holds the filter names that fired, in a fixed order. It is empty
	// for a passing candidate.
	Flags []string
	// NIOC is nearby-indel over coverage and SSOI support over informative,
	// both for the sample the call rests on.
	NIOC, SSOI float64
	// SuppressEvidence is set when a high-coverage sample short-circuits
	// classification; the evidence columns are then not reported.
	SuppressEvidence bool
}

// Filter joins the flags with ';', or returns PASS.
func (d *FilterDecision) Filter() string {
	if len(d.Flags) == 0 {
		return FilterPass
	}
	return strings.Join(d.Flags, ";")
}

// FormatRatio renders a ratio with three decimals, or "0" when it is zero.
func FormatRatio(v float64) string {
	if v == 0 {
		return "0"
	}
	return fmt.Sprintf("%.3f", v)
}

// Classify maps the evidence of the test and control samples for c to a
// decision. Either sample may be nil when it was not run.
func Classify(test, control *Evidence, c *Candidate, t Thresholds) FilterDecision {
	d := FilterDecision{Candidate: c}
	if test != nil && test.Coverage > t.HighCoverage {
		d.Flags = []string{FilterHighCovTest}
		d.SuppressEvidence = true
		return d
	}
	if control != nil && control.Coverage > t.HighCoverage {
		d.Flags = []string{FilterHighCovControl}
		d.SuppressEvidence = true
		return d
	}

	somatic := test != nil && (c.SomaticHint || !t.RequireSomaticHint)
	if somatic && control != nil {
		if control.Support > t.MaxControlSupport {
			somatic = false
		} else if control.Informative > 0 &&
			float64(100*control.Support)/float64(control.Informative) >= t.MaxControlSupportFraction*100 {
			somatic = false
		}
	}
	d.Somatic = somatic

	if test != nil {
		if !somatic && test.Coverage < t.MinTestCoverage {
			d.Flags = append(d.Flags, FilterCovTest)
		}
		if partialExceeds(test, t.MinPartial, t.MaxTestPartialPercent) {
			d.Flags = append(d.Flags, FilterPartialTest)
		}
		if somatic && hasStrandBias(test, t.MinStrandBiasSupport, t.TestStrandMin, t.TestStrandMax) {
			d.Flags = append(d.Flags, FilterBiasTest)
		}
	}
	if control != nil {
		if somatic && control.Coverage < t.MinControlCoverageSomatic {
			d.Flags = append(d.Flags, FilterCovControl12)
		}
		if !somatic && control.Coverage < t.MinControlCoverage {
			d.Flags = append(d.Flags, FilterCovControl8)
		}
		if somatic && control.NovelStarts > 0 {
			d.Flags = append(d.Flags, FilterMIN)
		}
		if partialExceeds(control, t.MinPartial, t.MaxControlPartialPct) {
			d.Flags = append(d.Flags, FilterPartialControl)
		}
		if !somatic && hasStrandBias(control, t.MinStrandBiasSupport, t.ControlStrandMin, t.ControlStrandMax) {
			d.Flags = append(d.Flags, FilterBiasControl)
		}
	}

	ev := control
	if somatic {
		ev = test
	}
	if ev != nil {
		if ev.NovelStarts < t.MinNovelStarts {
			d.Flags = append(d.Flags, FilterNNS)
		}
		if ev.Coverage > 0 {
			d.NIOC = float64(ev.NearbyIndel) / float64(ev.Coverage)
		}
		if ev.Informative > 0 {
			d.SSOI = float64(ev.Support) / float64(ev.Informative)
		}
	}
	return d
}

// partialExceeds uses integer percent arithmetic.
func partialExceeds(e *Evidence, minPartial, maxPercent int) bool {
	return e.Partial >= minPartial && e.Coverage > 0 && 100*e.Partial/e.Coverage > maxPercent
}

// hasStrandBias reports whether at least minSupport support reads are
// present and either strand is empty or holds a share outside [min,max].
func hasStrandBias(e *Evidence, minSupport int, min, max float64) bool {
	if e.Support < minSupport || e.Support == 0 {
		return false
	}
	if e.Forward == 0 || e.Backward == 0 {
		return true
	}
	fwd := float64(e.Forward) / float64(e.Support) * 100
	bwd := float64(e.Backward) / float64(e.Support) * 100
	lo, hi := min*100, max*100
	return fwd < lo || fwd > hi || bwd < lo || bwd > hi
}
