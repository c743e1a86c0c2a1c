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

package bamprovider_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/indelpileup/encoding/bamprovider"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

var (
	chr1, _   = sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 2000, nil, nil)
	chr3, _   = sam.NewReference("chr3", "", "", 3000, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2, chr3})
)

func newRecord(t *testing.T, name string, ref *sam.Reference, pos int) *sam.Record {
	cigar := []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)}
	r, err := sam.NewRecord(name, ref, nil, pos, -1, 0, 60, cigar, []byte("ACGTACGTAC"), nil, nil)
	require.NoError(t, err)
	return r
}

func testRecords(t *testing.T) []*sam.Record {
	return []*sam.Record{
		newRecord(t, "a", chr1, 0),
		newRecord(t, "b", chr1, 100),
		newRecord(t, "c", chr1, 990),
		newRecord(t, "d", chr3, 5),
		newRecord(t, "e", chr3, 2500),
	}
}

func readNames(t *testing.T, iter bamprovider.Iterator) []string {
	names := []string{}
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	require.NoError(t, iter.Err())
	require.NoError(t, iter.Close())
	return names
}

// writeIndexedBAM writes recs to dir/name.bam together with a .bai index.
func writeIndexedBAM(t *testing.T, dir string, recs []*sam.Record) string {
	path := filepath.Join(dir, "test.bam")
	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(out, header, 1)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())

	in, err := os.Open(path)
	require.NoError(t, err)
	reader, err := bam.NewReader(in, 1)
	require.NoError(t, err)
	var idx bam.Index
	for {
		r, err := reader.Read()
		if err != nil {
			break
		}
		require.NoError(t, idx.Add(r, reader.LastChunk()))
	}
	require.NoError(t, reader.Close())
	require.NoError(t, in.Close())

	bai, err := os.Create(path + ".bai")
	require.NoError(t, err)
	require.NoError(t, bam.WriteIndex(bai, &idx))
	require.NoError(t, bai.Close())
	return path
}

func TestFakeProvider(t *testing.T) {
	p := bamprovider.NewFakeProvider(header, testRecords(t))
	expect.EQ(t, readNames(t, p.NewIterator(chr1, 0, 1000)), []string{"a", "b", "c"})
	expect.EQ(t, readNames(t, p.NewIterator(chr1, 1, 991)), []string{"b", "c"})
	expect.EQ(t, readNames(t, p.NewIterator(chr2, 0, 2000)), []string{})
	expect.EQ(t, readNames(t, bamprovider.NewContigIterator(p, "chr3")), []string{"d", "e"})
	require.NoError(t, p.Close())
}

func TestFakeProviderRecordIsCopy(t *testing.T) {
	recs := testRecords(t)
	p := bamprovider.NewFakeProvider(header, recs)
	iter := p.NewIterator(chr1, 0, 1000)
	require.True(t, iter.Scan())
	iter.Record().Name = "mutated"
	require.NoError(t, iter.Close())
	expect.EQ(t, recs[0].Name, "a")
}

func TestContigIteratorMissingRef(t *testing.T) {
	p := bamprovider.NewFakeProvider(header, nil)
	iter := bamprovider.NewContigIterator(p, "chrUn")
	expect.False(t, iter.Scan())
	err := iter.Close()
	expect.True(t, errors.Is(errors.NotExist, err), "got %v", err)
}

func TestBAMProvider(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tempDir)
	path := writeIndexedBAM(t, tempDir, testRecords(t))

	p := bamprovider.NewProvider(path)
	h, err := p.GetHeader()
	require.NoError(t, err)
	expect.EQ(t, len(h.Refs()), 3)
	// Repeat to exercise iterator reuse.
	for i := 0; i < 3; i++ {
		refs := h.Refs()
		expect.EQ(t, readNames(t, p.NewIterator(refs[0], 0, 1000)), []string{"a", "b", "c"}, "pass %d", i)
		expect.EQ(t, readNames(t, p.NewIterator(refs[0], 50, 995)), []string{"b", "c"}, "pass %d", i)
		expect.EQ(t, readNames(t, p.NewIterator(refs[1], 0, 2000)), []string{}, "pass %d", i)
		expect.EQ(t, readNames(t, p.NewIterator(refs[2], 0, 3000)), []string{"d", "e"}, "pass %d", i)
	}
	require.NoError(t, p.Close())
}

func TestBAMProviderMissingFile(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	p := bamprovider.NewProvider(filepath.Join(tempDir, "nonexistent.bam"))
	_, err := p.GetHeader()
	expect.NotNil(t, err)
	iter := p.NewIterator(chr1, 0, 10)
	expect.False(t, iter.Scan())
	expect.NotNil(t, iter.Close())
	expect.NotNil(t, p.Close())
}

func TestBAMProviderBadRange(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := writeIndexedBAM(t, tempDir, testRecords(t))
	p := bamprovider.NewProvider(path, bamprovider.ProviderOpts{Index: path + ".bai"})
	h, err := p.GetHeader()
	require.NoError(t, err)
	iter := p.NewIterator(h.Refs()[0], 10, 10)
	expect.False(t, iter.Scan())
	err = iter.Close()
	expect.HasSubstr(t, fmt.Sprint(err), "not before limit")
	expect.NotNil(t, p.Close())
}
