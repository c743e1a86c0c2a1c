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

// Package pileup holds components shared by the pileup commands.
package pileup

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/indelpileup/encoding/fasta"
)

// PosType is the integer type used to represent genomic positions.
type PosType = int

// UnusableFlags marks reads that never contribute evidence, whatever
// read-level predicate is configured.
const UnusableFlags = sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate | sam.Supplementary

// ParseCols parses a column-set descriptor given on the command line
// (colsParam) into a bitset. Either every term is prefixed with '+' or '-',
// patching defaultColBitset, or none is, replacing it.
func ParseCols(colsParam string, colNameMap map[string]int, defaultColBitset int) (int, error) {
	if colsParam == "" {
		return defaultColBitset, nil
	}
	parts := strings.Split(colsParam, ",")
	patch := parts[0] != "" && (parts[0][0] == '+' || parts[0][0] == '-')
	colBitset := 0
	if patch {
		colBitset = defaultColBitset
	}
	for _, part := range parts {
		if part == "" {
			return 0, fmt.Errorf("pileup.ParseCols: empty term in %q", colsParam)
		}
		signed := part[0] == '+' || part[0] == '-'
		if signed != patch {
			return 0, fmt.Errorf("pileup.ParseCols: either all terms in column set descriptor must be preceded by +/-, or none can be")
		}
		name := part
		if signed {
			name = part[1:]
		}
		v := colNameMap[name]
		if v == 0 {
			return 0, fmt.Errorf("pileup.ParseCols: %v not found", name)
		}
		if signed && part[0] == '-' {
			colBitset &= ^v
		} else {
			colBitset |= v
		}
	}
	return colBitset, nil
}

// Reference is an open FASTA. Close releases the underlying file.
type Reference struct {
	fasta.Fasta
	closers []func() error
}

// Close implements io.Closer.
func (r *Reference) Close() error {
	var err error
	for _, c := range r.closers {
		if e := c(); e != nil && err == nil {
			err = e
		}
	}
	r.closers = nil
	return err
}

// LoadFa opens the FASTA at fapath. When fapath+".fai" exists the file is
// read lazily through the index; otherwise it is decompressed if needed and
// loaded into memory.
func LoadFa(ctx context.Context, fapath string) (ref *Reference, err error) {
	if idx, e := file.Open(ctx, fapath+".fai"); e == nil {
		defer func() {
			if e := idx.Close(ctx); e != nil && err == nil {
				err = e
			}
		}()
		var in file.File
		if in, err = file.Open(ctx, fapath); err != nil {
			return nil, err
		}
		fa, e := fasta.NewIndexed(in.Reader(ctx), idx.Reader(ctx))
		if e != nil {
			in.Close(ctx) // nolint: errcheck
			return nil, e
		}
		log.Debug.Printf("pileup.LoadFa: %s: using index", fapath)
		return &Reference{Fasta: fa, closers: []func() error{func() error { return in.Close(ctx) }}}, nil
	}

	var in file.File
	if in, err = file.Open(ctx, fapath); err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var r io.ReadCloser
	if r, _ = compress.NewReader(in.Reader(ctx)); r == nil {
		return nil, fmt.Errorf("pileup.LoadFa: %s: unreadable compressed input", fapath)
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	fa, err := fasta.New(r)
	if err != nil {
		return nil, err
	}
	return &Reference{Fasta: fa}, nil
}
