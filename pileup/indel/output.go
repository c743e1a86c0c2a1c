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
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/indelpileup/pileup"
)

// Optional output column sets.
const (
	colBitRatios = 1 << iota
	colBitHom
	colBitEvidence
)

var colNameMap = map[string]int{
	"ratios":   colBitRatios,
	"hom":      colBitHom,
	"evidence": colBitEvidence,
}

const colBitsetDefault = colBitRatios | colBitHom | colBitEvidence

// ParseOutputCols parses a column-set descriptor such as "-hom" or
// "ratios,evidence". The empty descriptor selects every set.
func ParseOutputCols(cols string) (int, error) {
	return pileup.ParseCols(cols, colNameMap, colBitsetDefault)
}

// WriteSites writes sites to path as TSV. A ".gz" suffix selects bgzf
// compression. Nothing is left at path when writing fails.
func WriteSites(ctx context.Context, path string, sites []*Site, cols string, parallelism int) (err error) {
	colBitset, err := ParseOutputCols(cols)
	if err != nil {
		return err
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		file.CloseAndReport(ctx, out, &err)
		if err != nil {
			file.Remove(ctx, path) // nolint: errcheck
		}
	}()
	if !strings.HasSuffix(path, ".gz") {
		return writeSites(out.Writer(ctx), sites, colBitset)
	}
	bgzfWriter := bgzf.NewWriter(out.Writer(ctx), parallelism)
	if err = writeSites(bgzfWriter, sites, colBitset); err != nil {
		bgzfWriter.Close() // nolint: errcheck
		return err
	}
	return bgzfWriter.Close()
}

func writeSites(w io.Writer, sites []*Site, colBitset int) error {
	tsvw := tsv.NewWriter(w)
	tsvw.WriteString("#CHROM\tPOS\tEND\tREF\tALT\tTYPE\tFILTER\tSOMATIC")
	if colBitset&colBitRatios != 0 {
		tsvw.WriteString("NIOC\tSSOI")
	}
	if colBitset&colBitHom != 0 {
		tsvw.WriteString("HOM")
	}
	if colBitset&colBitEvidence != 0 {
		tsvw.WriteString("CONTROL\tTEST")
	}
	if err := tsvw.EndLine(); err != nil {
		return err
	}
	for _, s := range sites {
		c := s.Candidate
		tsvw.WriteString(c.Contig)
		tsvw.WriteUint32(uint32(c.Pos))
		tsvw.WriteUint32(uint32(c.End))
		tsvw.WriteString(c.Ref)
		tsvw.WriteString(c.Alt)
		tsvw.WriteString(c.Type.String())
		tsvw.WriteString(s.Decision.Filter())
		if s.Decision.Somatic {
			tsvw.WriteByte('1')
		} else {
			tsvw.WriteByte('0')
		}
		if colBitset&colBitRatios != 0 {
			tsvw.WriteString(FormatRatio(s.Decision.NIOC))
			tsvw.WriteString(FormatRatio(s.Decision.SSOI))
		}
		if colBitset&colBitHom != 0 {
			if s.Hom != nil {
				tsvw.WriteString(s.Hom.String())
			} else {
				tsvw.WriteByte('.')
			}
		}
		if colBitset&colBitEvidence != 0 {
			tsvw.WriteString(s.evidenceString(s.Control))
			tsvw.WriteString(s.evidenceString(s.Test))
		}
		if err := tsvw.EndLine(); err != nil {
			return err
		}
	}
	return tsvw.Flush()
}

// evidenceString renders e, or "." when the sample is absent, has no
// coverage, or was suppressed by a high-coverage decision.
func (s *Site) evidenceString(e *Evidence) string {
	if e == nil || e.Coverage == 0 || s.Decision.SuppressEvidence {
		return "."
	}
	return e.String()
}
