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

/*
bio-indel-pileup reports the read evidence for a list of candidate indels and
substitutions in a control (normal) and/or a test (tumour) BAM, and flags
each candidate with coverage, strand-bias and partial-support filters and a
somatic/germline call.

Candidates are read from a VCF-like file (only CHROM, POS, REF, ALT and
FILTER are used; a FILTER of SOMATIC marks a somatic hint). Multi-allelic
records are split; complex alleles are skipped.

Output columns are #CHROM POS END REF ALT TYPE FILTER SOMATIC, then NIOC/SSOI
("ratios"), HOM ("hom") and CONTROL/TEST evidence strings ("evidence"). The
evidence string is
  novelStarts,coverage,informative,support[forward,backward],reference[other],partial,nearbyIndel,nearbySoftClip
and HOM is "count,flank", with inserted bases in lower case and deleted bases
shown as '_'. An output path ending in .gz is bgzf-compressed.

Sample usage:
bio-indel-pileup \
    -control normal.bam \
    -test tumour.bam \
    -ref ref.fa \
    candidates.vcf \
    out.tsv.gz
*/
package main
