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
package mplp

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestParseFormat(t *testing.T) {
	for s, want := range map[string]Format{"tsv": FormatTSV, "tsv-gz": FormatTSVGzip, "tsv-bgz": FormatTSVBGZF} {
		f, err := ParseFormat(s)
		assert.NoError(t, err)
		expect.EQ(t, f, want)
	}
	_, err := ParseFormat("vcf")
	expect.True(t, IsConfigError(err), "%v", err)
}

func testColumns(t *testing.T) []pileup.Column {
	recs := newReads(t,
		readSpec{name: "r1", ref: chr1, pos: 9, mapQ: 60, cigar: "1M1D1M", seq: "CG"},
		readSpec{name: "r2", ref: chr1, pos: 9, mapQ: 60, cigar: "1M", seq: "C", flags: sam.Reverse},
	)
	return collectColumns(t, testConfig(), []Source{fakeSource("a", recs)})
}

func TestColumnWriterTSV(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewColumnWriterTo(&buf, FormatTSV)
	assert.NoError(t, err)
	for _, col := range testColumns(t) {
		assert.NoError(t, w.Write(col))
	}
	assert.NoError(t, w.Close())
	expect.EQ(t, buf.String(), ColumnHeader+"\n"+
		"chr1\t10\t0\tN\t.\t2\t0\t2\t0\t0\t0\t0\t1\t0\t0\t0\t0\t1\t0\t0\t0\t2\t1\t0\t0\t1\t1\t0\n"+
		"chr1\t11\t0\tN\t.\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t0\t1\n"+
		"chr1\t12\t0\tN\t.\t1\t0\t0\t1\t0\t0\t0\t0\t1\t0\t0\t0\t0\t0\t0\t0\t0\t1\t0\t0\t0\t0\t0\n")
}

func TestColumnWriterCompressed(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()
	cols := testColumns(t)

	var plain bytes.Buffer
	w, err := NewColumnWriterTo(&plain, FormatTSV)
	assert.NoError(t, err)
	for _, col := range cols {
		assert.NoError(t, w.Write(col))
	}
	assert.NoError(t, w.Close())

	for _, format := range []Format{FormatTSVGzip, FormatTSVBGZF} {
		path := filepath.Join(tmpdir, "out.tsv.gz")
		w, err := NewColumnWriter(ctx, path, format)
		assert.NoError(t, err)
		for _, col := range cols {
			assert.NoError(t, w.Write(col))
		}
		assert.NoError(t, w.Close())

		in, err := file.Open(ctx, path)
		assert.NoError(t, err)
		r, compressed := compress.NewReader(in.Reader(ctx))
		expect.True(t, compressed)
		data, err := ioutil.ReadAll(r)
		assert.NoError(t, err)
		assert.NoError(t, r.Close())
		assert.NoError(t, in.Close(ctx))
		expect.EQ(t, string(data), plain.String())
		expect.True(t, strings.HasPrefix(string(data), "#CHROM\tPOS\t"))
	}
}

func TestColumnWriterBadFormat(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()
	path := filepath.Join(tmpdir, "out.tsv")
	w, err := NewColumnWriter(ctx, path, Format(99))
	expect.True(t, w == nil)
	expect.True(t, IsConfigError(err), "%v", err)
	// The destination is closed, which commits it in place.
	_, err = file.Stat(ctx, path)
	assert.NoError(t, err)
}
