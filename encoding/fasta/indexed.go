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

package fasta

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// faiEntry is one line of a .fai index: "<name>\t<length>\t<byte
// offset>\t<bases per line>\t<bytes per line>".
type faiEntry struct {
	length    uint64
	offset    uint64
	lineBases uint64
	lineBytes uint64
}

type indexedFasta struct {
	entries  map[string]faiEntry
	seqNames []string

	mu  sync.Mutex
	in  io.ReadSeeker
	buf []byte
}

// parseIndex reads a samtools-style .fai index.
func parseIndex(index io.Reader) (map[string]faiEntry, []string, error) {
	entries := make(map[string]faiEntry)
	var names []string
	scanner := bufio.NewScanner(index)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 5 {
			return nil, nil, errors.Errorf("fasta: index line %d: want 5 columns, got %d", lineno, len(cols))
		}
		var (
			ent  faiEntry
			vals [4]uint64
		)
		for i := range vals {
			v, err := strconv.ParseUint(cols[i+1], 10, 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "fasta: index line %d", lineno)
			}
			vals[i] = v
		}
		ent.length, ent.offset, ent.lineBases, ent.lineBytes = vals[0], vals[1], vals[2], vals[3]
		if ent.lineBases == 0 || ent.lineBytes < ent.lineBases {
			return nil, nil, errors.Errorf("fasta: index line %d: bad line geometry %d/%d", lineno, ent.lineBases, ent.lineBytes)
		}
		entries[cols[0]] = ent
		names = append(names, cols[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "fasta: read index")
	}
	return entries, names, nil
}

// NewIndexed creates a Fasta that seeks into in using the given .fai index
// instead of loading the whole file.
func NewIndexed(in io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, names, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	return &indexedFasta{entries: entries, seqNames: names, in: in}, nil
}

// Len implements Fasta.
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, ok := f.entries[seqName]
	if !ok {
		return 0, errors.Errorf("fasta: sequence not in index: %s", seqName)
	}
	return ent.length, nil
}

// SeqNames implements Fasta.
func (f *indexedFasta) SeqNames() []string { return f.seqNames }

// Get implements Fasta.
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	ent, ok := f.entries[seqName]
	if !ok {
		return "", errors.Errorf("fasta: sequence not in index: %s", seqName)
	}
	if err := checkRange(seqName, start, end, ent.length); err != nil {
		return "", err
	}
	if start == end {
		return "", nil
	}
	first := ent.offset + (start/ent.lineBases)*ent.lineBytes + start%ent.lineBases
	last := ent.offset + ((end-1)/ent.lineBases)*ent.lineBytes + (end-1)%ent.lineBases

	f.mu.Lock()
	defer f.mu.Unlock()
	n := int(last - first + 1)
	if cap(f.buf) < n {
		f.buf = make([]byte, n)
	}
	f.buf = f.buf[:n]
	if _, err := f.in.Seek(int64(first), io.SeekStart); err != nil {
		return "", errors.Wrapf(err, "fasta: seek %s:%d", seqName, start)
	}
	if _, err := io.ReadFull(f.in, f.buf); err != nil {
		return "", errors.Wrapf(err, "fasta: read %s:%d-%d (bad index?)", seqName, start, end)
	}
	out := make([]byte, 0, end-start)
	for _, b := range f.buf {
		if b == '\n' || b == '\r' {
			continue
		}
		out = append(out, b)
	}
	if uint64(len(out)) != end-start {
		return "", errors.Errorf("fasta: %s:%d-%d: read %d bases, index and file disagree", seqName, start, end, len(out))
	}
	return string(bytes.ToUpper(out)), nil
}
