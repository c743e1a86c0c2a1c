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

// Package fasta provides reference-genome access for the indel pileup.
//
// Sequence names are the header text up to the first whitespace, so
// '>chr1 assembled molecule' becomes 'chr1'. Bases are returned upper-cased;
// soft-masked (lower-case) reference regions would otherwise never compare
// equal to read bases.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Largest single FASTA line we accept.
const maxLineLen = 1 << 28

// Fasta is a set of named reference sequences.
type Fasta interface {
	// Get returns bases [start, end) of the named sequence, 0-based. It is
	// thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the named sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns sequence names in file order.
	SeqNames() []string
}

type memFasta struct {
	seqs     map[string]string
	seqNames []string
}

// New reads all of r into memory.
func New(r io.Reader) (Fasta, error) {
	f := &memFasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineLen)
	var (
		name    string
		started bool
		seq     strings.Builder
	)
	flush := func() error {
		if !started {
			if seq.Len() > 0 {
				return errors.Errorf("fasta: sequence data before first header")
			}
			return nil
		}
		if _, dup := f.seqs[name]; dup {
			return errors.Errorf("fasta: duplicate sequence %s", name)
		}
		f.seqs[name] = seq.String()
		f.seqNames = append(f.seqNames, name)
		seq.Reset()
		return nil
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, err
			}
			name = headerName(line)
			started = true
			continue
		}
		seq.WriteString(strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "fasta: read")
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(f.seqNames) == 0 {
		return nil, errors.New("fasta: no sequences")
	}
	return f, nil
}

func headerName(line string) string {
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Get implements Fasta.
func (f *memFasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("fasta: sequence not found: %s", seqName)
	}
	if err := checkRange(seqName, start, end, uint64(len(s))); err != nil {
		return "", err
	}
	return s[start:end], nil
}

// Len implements Fasta.
func (f *memFasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("fasta: sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.
func (f *memFasta) SeqNames() []string { return f.seqNames }

func checkRange(seqName string, start, end, length uint64) error {
	if end < start {
		return errors.Errorf("fasta: %s: start %d after end %d", seqName, start, end)
	}
	if end > length {
		return errors.Errorf("fasta: %s: range [%d,%d) exceeds length %d", seqName, start, end, length)
	}
	return nil
}
