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
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/mpileup/pileup"
	"github.com/klauspost/compress/gzip"
)

// Format is a column output format.
type Format int

const (
	// FormatTSV is uncompressed TSV.
	FormatTSV Format = iota
	// FormatTSVGzip is gzip-compressed TSV.
	FormatTSVGzip
	// FormatTSVBGZF is BGZF-compressed TSV, readable by tabix and friends.
	FormatTSVBGZF
)

// ParseFormat parses "tsv", "tsv-gz" or "tsv-bgz".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "tsv":
		return FormatTSV, nil
	case "tsv-gz":
		return FormatTSVGzip, nil
	case "tsv-bgz":
		return FormatTSVBGZF, nil
	}
	return FormatTSV, errors.E(errors.Invalid, fmt.Sprintf("mplp: unknown output format %q", s))
}

// ColumnHeader lists the fields written by ColumnWriter.
const ColumnHeader = "#CHROM\tPOS\tSOURCE\tREF\tCONS\tDP\tA\tC\tG\tT\tN\t" +
	"FW_A\tFW_C\tFW_G\tFW_T\tFW_N\tRV_A\tRV_C\tRV_G\tRV_T\tRV_N\t" +
	"HEADS\tTAILS\tINS\tSUM_INS\tDELS\tSUM_DELS\tEXCLUDED"

// ColumnWriter renders pileup columns as TSV, one line per column.
type ColumnWriter struct {
	ctx  context.Context
	dst  file.File
	zw   io.WriteCloser
	tsvw *tsv.Writer
}

// NewColumnWriter creates path and writes the header line to it.
func NewColumnWriter(ctx context.Context, path string, format Format) (w *ColumnWriter, err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return nil, err
	}
	if w, err = NewColumnWriterTo(dst.Writer(ctx), format); err != nil {
		file.CloseAndReport(ctx, dst, &err)
		return nil, err
	}
	w.ctx = ctx
	w.dst = dst
	return w, nil
}

// NewColumnWriterTo writes the header line to out and returns a writer for
// the columns.  Close does not close out.
func NewColumnWriterTo(out io.Writer, format Format) (*ColumnWriter, error) {
	w := &ColumnWriter{}
	switch format {
	case FormatTSV:
	case FormatTSVGzip:
		w.zw = gzip.NewWriter(out)
	case FormatTSVBGZF:
		w.zw = bgzf.NewWriter(out, 1)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("mplp: unknown output format %d", format))
	}
	if w.zw != nil {
		out = w.zw
	}
	w.tsvw = tsv.NewWriter(out)
	w.tsvw.WriteString(ColumnHeader)
	if err := w.tsvw.EndLine(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends one line for col.  POS is written 1-based.
func (w *ColumnWriter) Write(col pileup.Column) error {
	tsvw := w.tsvw
	tsvw.WriteString(col.RefName)
	tsvw.WriteUint32(uint32(col.Pos + 1))
	tsvw.WriteUint32(uint32(col.Source))
	tsvw.WriteByte(col.RefBase)
	if col.ConsBase == 0 {
		tsvw.WriteByte('.')
	} else {
		tsvw.WriteByte(col.ConsBase)
	}
	tsvw.WriteUint32(uint32(col.Coverage))
	for b := 0; b < pileup.NBaseEnum; b++ {
		tsvw.WriteUint32(uint32(col.Count(byte(b))))
	}
	for b := 0; b < pileup.NBaseEnum; b++ {
		tsvw.WriteUint32(uint32(col.FwCounts[b]))
	}
	for b := 0; b < pileup.NBaseEnum; b++ {
		tsvw.WriteUint32(uint32(col.RvCounts[b]))
	}
	tsvw.WriteUint32(uint32(col.NumHeads))
	tsvw.WriteUint32(uint32(col.NumTails))
	tsvw.WriteUint32(uint32(col.NumIns))
	tsvw.WriteUint32(uint32(col.SumIns))
	tsvw.WriteUint32(uint32(col.NumDels))
	tsvw.WriteUint32(uint32(col.SumDels))
	tsvw.WriteUint32(uint32(col.NumExcluded))
	return tsvw.EndLine()
}

// Close flushes the output, and closes the compressor and the file if
// NewColumnWriter created them.
func (w *ColumnWriter) Close() (err error) {
	err = w.tsvw.Flush()
	if w.zw != nil {
		if e := w.zw.Close(); e != nil && err == nil {
			err = e
		}
	}
	if w.dst != nil {
		if e := w.dst.Close(w.ctx); e != nil && err == nil {
			err = e
		}
	}
	return
}
