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
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestClassifyGermline(t *testing.T) {
	c := mustCandidate(t, "chr1", 100, "T", "TAA")
	control := &Evidence{Coverage: 1, Informative: 1, Support: 1, Forward: 1, NovelStarts: 1}
	test := &Evidence{Coverage: 20, Informative: 20, Support: 10, Forward: 5, Backward: 5, NovelStarts: 8}
	d := Classify(test, control, c, DefaultThresholds)
	expect.False(t, d.Somatic)
	expect.EQ(t, d.Flags, []string{FilterCovControl8, FilterNNS})
	expect.EQ(t, d.Filter(), "COVN8;NNS")
	expect.EQ(t, FormatRatio(d.NIOC), "0")
	expect.EQ(t, FormatRatio(d.SSOI), "1.000")
}

func TestClassifySomatic(t *testing.T) {
	c := mustCandidate(t, "chr1", 100, "T", "TAA")
	test := &Evidence{Coverage: 12, Informative: 11, Support: 3, Forward: 2, Backward: 1, NovelStarts: 3, NearbyIndel: 4}
	d := Classify(test, nil, c, DefaultThresholds)
	expect.True(t, d.Somatic)
	expect.EQ(t, FormatRatio(d.NIOC), "0.333")
	expect.EQ(t, FormatRatio(d.SSOI), "0.273")
	expect.EQ(t, d.Flags, []string{FilterNNS})

	test.NovelStarts = 4
	d = Classify(test, nil, c, DefaultThresholds)
	expect.EQ(t, d.Filter(), FilterPass)
}

func TestClassifyHighCoverage(t *testing.T) {
	c := mustCandidate(t, "chr1", 100, "T", "TAA")
	d := Classify(&Evidence{Coverage: 1001, Support: 1001}, &Evidence{Coverage: 2}, c, DefaultThresholds)
	expect.EQ(t, d.Flags, []string{FilterHighCovTest})
	expect.True(t, d.SuppressEvidence)
	expect.False(t, d.Somatic)

	d = Classify(&Evidence{Coverage: 10}, &Evidence{Coverage: 1500}, c, DefaultThresholds)
	expect.EQ(t, d.Flags, []string{FilterHighCovControl})
	expect.True(t, d.SuppressEvidence)

	d = Classify(&Evidence{Coverage: 1000, Informative: 1000, Support: 500, Forward: 250, Backward: 250, NovelStarts: 100}, nil, c, DefaultThresholds)
	expect.EQ(t, d.Filter(), FilterPass)
}

func TestClassifyFlags(t *testing.T) {
	c := mustCandidate(t, "chr1", 100, "T", "TAA")
	control := &Evidence{Coverage: 40, Informative: 37, Partial: 3}
	test := &Evidence{Coverage: 20, Informative: 17, Support: 5, Forward: 5, NovelStarts: 5, Partial: 3}
	d := Classify(test, control, c, DefaultThresholds)
	expect.True(t, d.Somatic)
	expect.EQ(t, d.Flags, []string{FilterPartialTest, FilterBiasTest, FilterPartialControl})

	// Control support that keeps the call somatic but shows novel starts.
	control = &Evidence{Coverage: 100, Informative: 100, Support: 1, Forward: 1, NovelStarts: 1}
	test = &Evidence{Coverage: 30, Informative: 30, Support: 10, Forward: 5, Backward: 5, NovelStarts: 9}
	d = Classify(test, control, c, DefaultThresholds)
	expect.True(t, d.Somatic)
	expect.EQ(t, d.Flags, []string{FilterMIN})

	// Too much control support.
	control.Support, control.Forward, control.Backward, control.NovelStarts = 4, 4, 0, 4
	d = Classify(test, control, c, DefaultThresholds)
	expect.False(t, d.Somatic)
	expect.EQ(t, d.Flags, []string{FilterBiasControl})

	// Somatic calls with a thin control.
	d = Classify(test, &Evidence{Coverage: 5, Informative: 5}, c, DefaultThresholds)
	expect.True(t, d.Somatic)
	expect.EQ(t, d.Flags, []string{FilterCovControl12})
}

func TestClassifySomaticHint(t *testing.T) {
	thresholds := DefaultThresholds
	thresholds.RequireSomaticHint = true
	c := mustCandidate(t, "chr1", 100, "T", "TAA")
	test := &Evidence{Coverage: 30, Informative: 30, Support: 10, Forward: 5, Backward: 5, NovelStarts: 9}
	d := Classify(test, nil, c, thresholds)
	expect.False(t, d.Somatic)
	c.SomaticHint = true
	d = Classify(test, nil, c, thresholds)
	expect.True(t, d.Somatic)
}

func TestHasStrandBias(t *testing.T) {
	for _, test := range []struct {
		fwd, bwd int
		want     bool
	}{
		{1, 1, false}, // below minimum support
		{3, 0, true},
		{0, 3, true},
		{1, 9, false},
		{1, 10, true},
		{5, 5, false},
	} {
		e := &Evidence{Support: test.fwd + test.bwd, Forward: test.fwd, Backward: test.bwd}
		expect.EQ(t, hasStrandBias(e, 3, 0.1, 0.9), test.want, "%+v", test)
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds.Validate())
	for _, mutate := range []func(*Thresholds){
		func(t *Thresholds) { t.TestStrandMin = 0.95 },
		func(t *Thresholds) { t.ControlStrandMax = 0.01 },
		func(t *Thresholds) { t.MinPartial = -1 },
		func(t *Thresholds) { t.MaxControlSupportFraction = 1.5 },
		func(t *Thresholds) { t.MaxTestPartialPercent = 101 },
	} {
		th := DefaultThresholds
		mutate(&th)
		err := th.Validate()
		expect.True(t, errors.Is(errors.Invalid, err), "got %v", err)
	}
}
