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
	"context"
	"io"
	"strings"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
	"github.com/grailbio/testutil/assert"
)

var (
	chr1, _       = sam.NewReference("chr1", "", "", 1000, nil, nil)
	chr2, _       = sam.NewReference("chr2", "", "", 500, nil, nil)
	testHeader, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
)

// readSpec describes a synthetic read.  Seq defaults to all-A and Qual to 30
// everywhere.
type readSpec struct {
	name  string
	ref   *sam.Reference
	pos   int
	mapQ  byte
	flags sam.Flags
	cigar string
	seq   string
	qual  []byte
	aux   []sam.Aux
}

func queryLen(cigar sam.Cigar) int {
	n := 0
	for _, op := range cigar {
		if consumesQuery(op.Type()) {
			n += op.Len()
		}
	}
	return n
}

func newRead(t testing.TB, r readSpec) *sam.Record {
	cigar, err := sam.ParseCigar([]byte(r.cigar))
	assert.NoError(t, err)
	lSeq := queryLen(cigar)
	seq := r.seq
	if seq == "" {
		seq = strings.Repeat("A", lSeq)
	}
	qual := r.qual
	if qual == nil {
		qual = make([]byte, lSeq)
		for i := range qual {
			qual[i] = 30
		}
	}
	assert.EQ(t, len(seq), lSeq, "read %s: sequence length", r.name)
	assert.EQ(t, len(qual), lSeq, "read %s: quality length", r.name)
	return &sam.Record{
		Name:      r.name,
		Ref:       r.ref,
		Pos:       r.pos,
		MapQ:      r.mapQ,
		Flags:     r.flags,
		Cigar:     cigar,
		Seq:       sam.NewSeq([]byte(seq)),
		Qual:      qual,
		MateRef:   nil,
		MatePos:   -1,
		AuxFields: r.aux,
	}
}

func newReads(t testing.TB, specs ...readSpec) []*sam.Record {
	recs := make([]*sam.Record, len(specs))
	for i, s := range specs {
		recs[i] = newRead(t, s)
	}
	return recs
}

func fakeSource(name string, recs []*sam.Record) Source {
	return Source{Path: name, Provider: bamprovider.NewFakeProvider(testHeader, recs)}
}

func newAux(t testing.TB, tag string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(tag), val)
	assert.NoError(t, err)
	return aux
}

// collectColumns runs a pileup and returns deep copies of the columns.
func collectColumns(t testing.TB, cfg Config, srcs []Source, opts ...RunOpts) []pileup.Column {
	var cols []pileup.Column
	err := RunSources(context.Background(), cfg, srcs, func(col pileup.Column) error {
		cols = append(cols, col.Clone())
		return nil
	}, opts...)
	assert.NoError(t, err)
	return cols
}

// columnAt returns the column of source src at pos on ref, or nil.
func columnAt(cols []pileup.Column, refID int, pos pileup.PosType, src int) *pileup.Column {
	for i := range cols {
		if cols[i].RefID == refID && cols[i].Pos == pos && cols[i].Source == src {
			return &cols[i]
		}
	}
	return nil
}

// writeBAM writes recs to a new BAM file at path, without an index.
func writeBAM(t testing.TB, path string, header *sam.Header, recs []*sam.Record) {
	ctx := context.Background()
	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out.Writer(ctx), header, 1)
	assert.NoError(t, err)
	for _, r := range recs {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close(ctx))
}

// writeBAMIndex reads back the sorted BAM at path and writes its .bai index to
// indexPath.
func writeBAMIndex(t testing.TB, path, indexPath string) {
	ctx := context.Background()
	in, err := file.Open(ctx, path)
	assert.NoError(t, err)
	r, err := bam.NewReader(in.Reader(ctx), 1)
	assert.NoError(t, err)
	var idx bam.Index
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		assert.NoError(t, idx.Add(rec, r.LastChunk()))
	}
	assert.NoError(t, r.Close())
	assert.NoError(t, in.Close(ctx))

	out, err := file.Create(ctx, indexPath)
	assert.NoError(t, err)
	assert.NoError(t, bam.WriteIndex(out.Writer(ctx), &idx))
	assert.NoError(t, out.Close(ctx))
}

// writeFile creates path with the given contents.
func writeFile(t testing.TB, path, contents string) {
	ctx := context.Background()
	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	_, err = out.Writer(ctx).Write([]byte(contents))
	assert.NoError(t, err)
	assert.NoError(t, out.Close(ctx))
}

func testConfig() Config {
	cfg := DefaultConfig
	cfg.MinBQ = 0
	cfg.MaxMQ = 0
	return cfg
}
