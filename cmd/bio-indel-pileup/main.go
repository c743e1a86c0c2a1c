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
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/indelpileup/pileup/indel"
)

var (
	controlPath      = flag.String("control", "", "Control (normal) BAM path")
	testPath         = flag.String("test", "", "Test (tumour) BAM path; this and/or -control required")
	indexSuffix      = flag.String("index-suffix", ".bai", "Suffix appended to a BAM path to find its index")
	refPath          = flag.String("ref", "", "Reference FASTA path; enables the HOM column. A .fai next to it is used when present")
	maxResidentReads = flag.Int("max-resident-reads", indel.DefaultOpts.MaxResidentReads, "Upper bound on the reads evaluated for one candidate; overlapping reads past it are held back")
	minBaseQual      = flag.Int("min-base-qual", indel.DefaultOpts.MinBaseQual, "Lower bound on base quality across a substitution")
	mapq             = flag.Int("mapq", indel.DefaultOpts.MinMapQ, "Reads with MAPQ below this level are skipped")
	flagExclude      = flag.Int("flag-exclude", indel.DefaultOpts.FlagExclude, "Reads with a FLAG bit intersecting this value are skipped, in addition to unmapped, secondary, supplementary, QC-fail and duplicate reads")
	parallelism      = flag.Int("parallelism", indel.DefaultOpts.Parallelism, "Maximum number of simultaneous contig jobs; 0 = runtime.NumCPU()")
	timeout          = flag.Duration("timeout", indel.DefaultOpts.Timeout, "Abort the run if it takes longer than this")
	homWindow        = flag.Int("hom-window", indel.DefaultOpts.HomopolymerWindow, "Reference bases searched on each side for a homopolymer run")
	homReportWindow  = flag.Int("hom-report-window", indel.DefaultOpts.HomopolymerReportWindow, "Reference bases shown on each side in the HOM column")
	nearbyIndel      = flag.Int("nearby-indel-window", indel.DefaultOpts.NearbyIndelWindow, "Distance within which another indel counts as nearby")
	nearbySoftClip   = flag.Int("nearby-softclip-window", indel.DefaultOpts.NearbySoftClipWindow, "Distance within which a soft-clip boundary counts as nearby")
	cols             = flag.String("cols", indel.DefaultOpts.Cols, "Output TSV column sets. #CHROM..SOMATIC are always present. Supported optional sets are 'ratios', 'hom' and 'evidence'; default is all three")

	highCoverage       = flag.Int("high-coverage", indel.DefaultThresholds.HighCoverage, "Coverage above which a sample is flagged HCOVT/HCOVN and not classified")
	maxControlSupport  = flag.Int("max-control-support", indel.DefaultThresholds.MaxControlSupport, "Control support reads above which a candidate is germline")
	maxControlFraction = flag.Float64("max-control-support-fraction", indel.DefaultThresholds.MaxControlSupportFraction, "Control support/informative fraction at or above which a candidate is germline")
	requireSomaticHint = flag.Bool("require-somatic-hint", indel.DefaultThresholds.RequireSomaticHint, "Only candidates with FILTER=SOMATIC may be called somatic")
	minNovelStarts     = flag.Int("min-novel-starts", indel.DefaultThresholds.MinNovelStarts, "Novel starts below which NNS is set")
)

func usage() {
	fmt.Printf("Usage: %s [OPTIONS] candidates.vcf out.tsv\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 2 {
		log.Fatalf("Expected candidates.vcf and out.tsv positional arguments; please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	thresholds := indel.DefaultThresholds
	thresholds.HighCoverage = *highCoverage
	thresholds.MaxControlSupport = *maxControlSupport
	thresholds.MaxControlSupportFraction = *maxControlFraction
	thresholds.RequireSomaticHint = *requireSomaticHint
	thresholds.MinNovelStarts = *minNovelStarts

	opts := indel.DefaultOpts
	opts.MaxResidentReads = *maxResidentReads
	opts.MinBaseQual = *minBaseQual
	opts.MinMapQ = *mapq
	opts.FlagExclude = *flagExclude
	opts.Parallelism = *parallelism
	opts.Timeout = *timeout
	opts.HomopolymerWindow = *homWindow
	opts.HomopolymerReportWindow = *homReportWindow
	opts.NearbyIndelWindow = *nearbyIndel
	opts.NearbySoftClipWindow = *nearbySoftClip
	opts.Cols = *cols
	opts.Thresholds = thresholds

	paths := indel.Paths{
		Candidates:  flag.Arg(0),
		Output:      flag.Arg(1),
		Control:     *controlPath,
		Test:        *testPath,
		Reference:   *refPath,
		IndexSuffix: *indexSuffix,
	}
	ctx := vcontext.Background()
	if err := indel.Run(ctx, paths, opts); err != nil {
		log.Fatalf("bio-indel-pileup: %v", err)
	}
	log.Debug.Printf("exiting")
}
