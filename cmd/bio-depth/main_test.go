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
package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup/mplp"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func writeTestBAM(t *testing.T, path string) {
	ctx := context.Background()
	ref, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{ref})
	assert.NoError(t, err)
	cigar, err := sam.ParseCigar([]byte("4M"))
	assert.NoError(t, err)

	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out.Writer(ctx), header, 1)
	assert.NoError(t, err)
	for i, mapQ := range []byte{60, 60, 10, 60} {
		r := &sam.Record{
			Name:    "r",
			Ref:     ref,
			Pos:     10 + 2*(i/2),
			MapQ:    mapQ,
			Cigar:   cigar,
			Seq:     sam.NewSeq([]byte("ACGT")),
			Qual:    []byte{30, 30, 5, 30},
			MatePos: -1,
		}
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close(ctx))
}

func TestDepthMain(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := context.Background()
	bamPath := filepath.Join(tmpdir, "test.bam")
	writeTestBAM(t, bamPath)
	missingPath := filepath.Join(tmpdir, "missing.bam")

	// Reads cover [10,14) twice and [12,16) twice; positions 10-15.
	var out bytes.Buffer
	assert.NoError(t, depthMain(ctx, []string{missingPath, bamPath}, mplp.DepthOpts{}, &out))
	expect.EQ(t, out.String(), bamPath+" mean=2.67 based on 6 pos\n")

	// Base qualities of 5 at offset 2 drop out, as does the MAPQ 10 read.
	out.Reset()
	assert.NoError(t, depthMain(ctx, []string{bamPath}, mplp.DepthOpts{MinBQ: 20, MinMQ: 20}, &out))
	expect.EQ(t, out.String(), bamPath+" mean=1.50 based on 6 pos\n")

	out.Reset()
	err := depthMain(ctx, []string{bamPath}, mplp.DepthOpts{Region: "chr1:11-12"}, &out)
	expect.True(t, mplp.IsConfigError(err), "%v", err)
}
