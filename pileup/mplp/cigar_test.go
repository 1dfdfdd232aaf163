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

// cigarStep is the evidence expected at one reference position.
type cigarStep struct {
	pos   int
	qpos  int
	del   bool
	skip  bool
	indel int
}

func TestCigarCursor(t *testing.T) {
	tests := []struct {
		cigar string
		pos   int
		steps []cigarStep
	}{
		{"3M", 5, []cigarStep{{5, 0, false, false, 0}, {6, 1, false, false, 0}, {7, 2, false, false, 0}}},
		{"2S2M1S", 5, []cigarStep{{5, 2, false, false, 0}, {6, 3, false, false, 0}}},
		{"1M2I1M", 0, []cigarStep{{0, 0, false, false, 2}, {1, 3, false, false, 0}}},
		{"1M2D1M", 0, []cigarStep{{0, 0, false, false, -2}, {1, 1, true, false, 0}, {2, 1, true, false, 0}, {3, 1, false, false, 0}}},
		{"1M1N1M", 0, []cigarStep{{0, 0, false, false, 0}, {1, 1, false, true, 0}, {2, 1, false, false, 0}}},
		{"1M1P2I1P1I1M", 0, []cigarStep{{0, 0, false, false, 3}, {1, 4, false, false, 0}}},
		{"2H1=1X2H", 9, []cigarStep{{9, 0, false, false, 0}, {10, 1, false, false, 0}}},
	}
	for _, test := range tests {
		samr := newRead(t, readSpec{name: test.cigar, ref: chr1, pos: test.pos, mapQ: 60, cigar: test.cigar})
		expect.EQ(t, samr.End(), test.steps[len(test.steps)-1].pos+1, test.cigar)
		var c cigarCursor
		c.reset(samr)
		for _, step := range test.steps {
			var e BaseEvidence
			c.seek(step.pos)
			c.evidence(step.pos, &e)
			got := cigarStep{step.pos, e.QPos, e.Del, e.RefSkip, e.Indel}
			expect.EQ(t, got, step, test.cigar)
		}
	}
}

func TestCigarOps(t *testing.T) {
	samr := newRead(t, readSpec{name: "r", ref: chr1, pos: 0, mapQ: 60, cigar: "1S1M1I1D1N1=1X1H1P"})
	var refOps, queryOps []bool
	for _, op := range samr.Cigar {
		refOps = append(refOps, consumesRef(op.Type()))
		queryOps = append(queryOps, consumesQuery(op.Type()))
	}
	expect.EQ(t, refOps, []bool{false, true, false, true, true, true, true, false, false})
	expect.EQ(t, queryOps, []bool{true, true, true, false, false, true, true, false, false})
}
