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
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestSeqNibble(t *testing.T) {
	samr := newRead(t, readSpec{name: "r", ref: chr1, pos: 0, mapQ: 60, cigar: "5M", seq: "ACGTN"})
	var got []byte
	for i := 0; i < 6; i++ {
		got = append(got, seqNibble(samr, i))
	}
	expect.EQ(t, got, []byte{1, 2, 4, 8, 15, 15})
	expect.EQ(t, asciiToNt16['g'], byte(4))
	expect.EQ(t, asciiToNt16['?'], byte(15))
}

func TestCapMapQ(t *testing.T) {
	const ref = "ACGTACGTACGTACGTACGT"
	tests := []struct {
		name  string
		pos   int
		cigar string
		seq   string
		qual  []byte
		want  int
	}{
		{"match", 0, "10M", "ACGTACGTAC", nil, 50},
		// A single q30 mismatch in 10 bases scores 30 - 4.343*ln(10) = 20.
		{"one-mismatch", 0, "10M", "ACGTTCGTAC", nil, 39},
		// Low-quality and N mismatches are ignored.
		{"low-qual-mismatch", 0, "4M", "ACGA", []byte{30, 30, 30, 12}, 50},
		{"n-mismatch", 0, "4M", "ACGN", nil, 50},
		{"all-mismatch", 0, "10M", "CATGCATGCA", nil, -1},
		// Clips add a fifth of their quality; hard-clipped bases count as q13.
		{"soft-clip", 0, "5S5M", "TTTTTACGTA", nil, 32},
		{"hard-clip", 0, "5H5M", "ACGTA", nil, 43},
		{"deletion", 0, "2M2D2M", "ACAC", nil, 50},
	}
	for _, test := range tests {
		samr := newRead(t, readSpec{name: test.name, ref: chr1, pos: test.pos, mapQ: 60, cigar: test.cigar, seq: test.seq, qual: test.qual})
		expect.EQ(t, capMapQ(samr, ref, 50), test.want, test.name)
	}
}
