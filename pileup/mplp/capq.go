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
	"math"

	"github.com/grailbio/hts/sam"
)

// asciiToNt16 maps an ASCII base to the 4-bit BAM encoding, where A/C/G/T
// occupy one bit each and N is 15.
var asciiToNt16 = func() (table [256]byte) {
	for i := range table {
		table[i] = 15
	}
	for i, c := range []byte("=ACMGRSVTWYHKDBN") {
		table[c] = byte(i)
		if c >= 'A' && c <= 'Z' {
			table[c+'a'-'A'] = byte(i)
		}
	}
	return
}()

// seqNibble returns the 4-bit encoded read base at query offset i, or 15 (N)
// past the end of the sequence.
func seqNibble(samr *sam.Record, i int) byte {
	if i >= samr.Seq.Length {
		return 15
	}
	d := byte(samr.Seq.Seq[i>>1])
	if i&1 == 0 {
		return d >> 4
	}
	return d & 15
}

// capMapQ computes the mapping quality cap for samr given its reference
// sequence: a read with many high-quality mismatches, or heavily clipped,
// gets a lower cap.  It returns -1 if the read should be dropped.
//
// This follows the "-C" adjustment of samtools mpileup.
func capMapQ(samr *sam.Record, refSeq string, thres int) int {
	var (
		nMismatch, sumQ, alnLen, clipQ int
		refPos                         = samr.Pos
		qPos                           int
	)
	qual := func(i int) int {
		if i < len(samr.Qual) {
			return int(samr.Qual[i])
		}
		return 0
	}
cigarLoop:
	for _, co := range samr.Cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for j := 0; j < n; j++ {
				if refPos+j >= len(refSeq) {
					break cigarLoop
				}
				z := qPos + j
				readNt := seqNibble(samr, z)
				refNt := asciiToNt16[refSeq[refPos+j]]
				if readNt == 15 || refNt == 15 || qual(z) < 13 {
					continue
				}
				if readNt&refNt == 0 {
					nMismatch++
					q := qual(z)
					if q > 33 {
						q = 33
					}
					sumQ += q
				}
			}
			refPos += n
			qPos += n
			alnLen += n
		case sam.CigarDeletion:
			if refPos+n > len(refSeq) {
				break cigarLoop
			}
			refPos += n
		case sam.CigarSoftClipped:
			for j := 0; j < n; j++ {
				clipQ += qual(qPos + j)
			}
			qPos += n
		case sam.CigarHardClipped:
			clipQ += 13 * n
		case sam.CigarInsertion:
			qPos += n
		case sam.CigarSkipped:
			refPos += n
		}
	}
	t := 1.0
	for i := 0; i < nMismatch; i++ {
		t *= float64(alnLen) / float64(i+1)
	}
	score := float64(sumQ) - 4.343*math.Log(t) + float64(clipQ)/5
	if score > float64(thres) {
		return -1
	}
	if score < 0 {
		score = 0
	}
	score = math.Sqrt((float64(thres)-score)/float64(thres)) * float64(thres)
	return int(score + .499)
}
