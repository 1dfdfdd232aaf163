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
package pileup

import (
	"context"
	"math"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bio/encoding/fasta"
	"github.com/grailbio/bio/interval"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// Common pileup components.

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// Nucleotide classes.  A/C/G/T use their natural 2-bit values; everything
// else (N, IUPAC ambiguity codes, '=') is lumped into BaseX.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX as well as the regular base types.
	NBaseEnum = 5
)

// Seq8ToEnumTable is the .bam seq nibble -> A/C/G/T/X enum mapping.
var Seq8ToEnumTable = [...]byte{BaseX, BaseA, BaseC, BaseX, BaseG, BaseX, BaseX, BaseX, BaseT, BaseX, BaseX, BaseX, BaseX, BaseX, BaseX, BaseX}

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// ASCIIToEnumTable is the ASCII -> A/C/G/T/X enum mapping.  Lowercase bases
// map to the same class as uppercase ones.
var ASCIIToEnumTable = func() (table [256]byte) {
	for i := range table {
		table[i] = BaseX
	}
	for enum, c := range EnumToASCIITable[:NBase] {
		table[c] = byte(enum)
		table[c+'a'-'A'] = byte(enum)
	}
	return
}()

// UpperBase returns the uppercase ASCII rendering of the nucleotide class of
// c; anything other than A/C/G/T (either case) becomes 'N'.
func UpperBase(c byte) byte {
	return EnumToASCIITable[ASCIIToEnumTable[c]]
}

// Strand indexes the per-strand count arrays.
type Strand int

const (
	// Fwd is the strand of reads without the 0x10 flag bit.
	Fwd Strand = iota
	// Rev is the strand of reads with the 0x10 flag bit.
	Rev
)

// ReadStrand returns the strand samr is aligned to.  Unlike the read-pair
// strand used by fragment-level tools, this looks at the read alone.
func ReadStrand(samr *sam.Record) Strand {
	if samr.Flags&sam.Reverse != 0 {
		return Rev
	}
	return Fwd
}

// LoadFa opens the (optionally compressed) FASTA at fapath and returns its
// contents.
func LoadFa(ctx context.Context, fapath string) (fa fasta.Fasta, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, fapath); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if fa, err = fasta.New(reader); err != nil {
		err = errors.Wrapf(err, "pileup.LoadFa: %s", fapath)
	}
	return
}

// RefSeqs returns the contents of fa as one uppercase string per header
// reference, in header order.  References absent from fa are left empty,
// which makes every RefBase lookup on them return 'N'.  Length mismatches
// between the header and fa are errors.
func RefSeqs(fa fasta.Fasta, headerRefs []*sam.Reference) ([]string, error) {
	refSeqs := make([]string, len(headerRefs))
	nMissingFromFa := 0
	for i, ref := range headerRefs {
		refName := ref.Name()
		refLen, e := fa.Len(refName)
		if e != nil {
			nMissingFromFa++
			continue
		}
		if refLen != uint64(ref.Len()) {
			return nil, errors.Errorf("pileup.RefSeqs: inconsistent lengths for contig %s (%d in BAM/PAM header, %d in .fa)", refName, ref.Len(), refLen)
		}
		seq, err := fa.Get(refName, 0, refLen)
		if err != nil {
			return nil, errors.Wrapf(err, "pileup.RefSeqs: contig %s", refName)
		}
		refSeqs[i] = strings.ToUpper(seq)
	}
	if nMissingFromFa != 0 {
		log.Printf("pileup.RefSeqs: warning: %d reference(s) present in BAM/PAM header but missing from .fa", nMissingFromFa)
	}
	return refSeqs, nil
}

// RefBase returns the uppercase reference base at pos, or 'N' if refSeq does
// not cover pos.
func RefBase(refSeq string, pos PosType) byte {
	if pos < 0 || int(pos) >= len(refSeq) {
		return 'N'
	}
	return UpperBase(refSeq[pos])
}
