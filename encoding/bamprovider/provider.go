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
	"github.com/grailbio/hts/sam"
)

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index is the BAM index path. If empty, it defaults to path + IndexSuffix.
	Index string
	// IndexSuffix is appended to the BAM path when Index is empty. Defaults
	// to ".bai".
	IndexSuffix string
}

// Provider hands out independent iterators over a coordinate-sorted
// alignment file. Thread safe.
type Provider interface {
	// GetHeader returns the file header. The caller must not modify it.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over records of ref whose 0-based
	// alignment start lies in [start, limit). Each call returns a fresh
	// handle; iterators never share a cursor.
	//
	// REQUIRES: Close has not been called.
	NewIterator(ref *sam.Reference, start, limit int) Iterator

	// Close must be called exactly once, after every iterator has been
	// closed. It returns the first error seen by the provider or any of its
	// iterators.
	Close() error
}

// Iterator iterates over sam.Records in one contig range, in coordinate
// order. Thread compatible.
type Iterator interface {
	// Scan advances to the next record. It returns false at the end of the
	// range or on error; Err distinguishes the two.
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record. Valid only after Scan returned true.
	Record() *sam.Record

	// Err returns the error encountered during iteration, if any. io.EOF is
	// translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{IndexSuffix: ".bai"}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
		if o.IndexSuffix != "" {
			opts.IndexSuffix = o.IndexSuffix
		}
	}
	return opts
}

// NewProvider creates a Provider for the BAM file at path, which may be a
// local path or an S3 URL.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	index := opts.Index
	if index == "" {
		index = path + opts.IndexSuffix
	}
	return &BAMProvider{Path: path, Index: index}
}
