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

package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for indexed BAM files. Both paths may be S3
// URLs.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of the *.bam.bai file.
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index

	// Contig and half-open 0-based start range to read.
	refID        int
	start, limit int

	active bool
	err    error
	rec    *sam.Record
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close() // nolint: errcheck
	b.header = reader.Header()
	return b.header, nil
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%s: %d iterators still active", b.Path, b.nActive)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	return b.err.Err()
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator(ref *sam.Reference, start, limit int) Iterator {
	iter := b.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.reset(ref, start, limit)
	return iter
}

// allocateIterator returns an idle iterator from the free list, or opens the
// BAM and its index for a new one. On error the returned iterator has a
// non-nil err.
func (b *BAMProvider) allocateIterator() *bamIterator {
	b.mu.Lock()
	b.nActive++
	if n := len(b.freeIters); n > 0 {
		iter := b.freeIters[n-1]
		b.freeIters = b.freeIters[:n-1]
		b.mu.Unlock()
		iter.active = true
		iter.err = nil
		iter.rec = nil
		return iter
	}
	b.mu.Unlock()

	iter := &bamIterator{provider: b, active: true}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return iter
	}
	var indexIn file.File
	if indexIn, iter.err = file.Open(ctx, b.Index); iter.err != nil {
		return iter
	}
	defer indexIn.Close(ctx) // nolint: errcheck
	if iter.index, iter.err = bam.ReadIndex(indexIn.Reader(ctx)); iter.err != nil {
		return iter
	}
	iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1)
	return iter
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatalf("%s: iterator closed twice", b.Path)
	}
	i.active = false
	reusable := i.err == nil || i.err == io.EOF
	if !reusable {
		i.internalClose()
	}
	b.mu.Lock()
	if reusable {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	b.mu.Unlock()
}

// reset positions the iterator at the first index chunk overlapping
// [start, limit) of ref.
func (i *bamIterator) reset(ref *sam.Reference, start, limit int) {
	if ref == nil {
		i.err = fmt.Errorf("bamprovider: nil reference")
		return
	}
	if start >= limit {
		i.err = fmt.Errorf("bamprovider: %s: start %d not before limit %d", ref.Name(), start, limit)
		return
	}
	i.refID, i.start, i.limit = ref.ID(), start, limit
	found, offset, err := i.findRecordOffset(ref, start, limit)
	if err != nil {
		i.err = err
		return
	}
	if !found {
		vlog.VI(1).Infof("%s: no index chunks for %s:%d-%d", i.provider.Path, ref.Name(), start, limit)
		i.err = io.EOF
		return
	}
	i.err = i.reader.Seek(offset)
}

// findRecordOffset returns the file offset of the first chunk that may hold
// a record in [startPos, endPos) of ref. The offset is conservative.
func (i *bamIterator) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := i.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		// No reads on this contig, or none in range.
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatalf("%s: scan on a closed iterator", i.provider.Path)
	}
	for i.err == nil {
		i.rec, i.err = i.reader.Read()
		if i.err != nil {
			return false
		}
		id := -1
		if i.rec.Ref != nil {
			id = i.rec.Ref.ID()
		}
		switch {
		case id == i.refID && i.rec.Pos < i.start:
			continue
		case id == i.refID && i.rec.Pos < i.limit:
			return true
		case id >= 0 && id < i.refID:
			// The index offset is conservative; skip earlier contigs.
			continue
		default:
			i.err = io.EOF
		}
	}
	return false
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.rec
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
