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

// Package indel computes read evidence for candidate indels and substitutions.
//
// Candidates of one contig are visited in (start, end) order while the
// contig's reads stream past in coordinate order. A Window keeps the reads
// overlapping the active candidate (current) and the reads that start after
// it (next); when a read lands in next, the active candidate is complete and
// is evaluated. The current pool is capped at Opts.MaxResidentReads.
// Overlapping reads past the cap are held back and only count toward later
// candidates, so coverage is under-reported at extreme depth.
//
// A Coordinator runs one worker per (sample, contig) on a bounded pool, merges
// the per-contig results into (contig, start, end) order, adds homopolymer
// context from the reference and classifies each site with Classify.
package indel
