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
	"fmt"
)

// Column holds the evidence aggregated from one alignment source at one
// reference position.
//
// The per-class quality lists are kept in full, rather than as histograms, so
// that consumers can filter on values (e.g. relative to a consensus base)
// that aren't known until the whole column has been seen.
type Column struct {
	// RefID is the sam.Header reference ID, and RefName its name.
	RefID   int
	RefName string
	// Pos is the 0-based reference position.
	Pos PosType
	// Source is the index of the alignment source this column was built from.
	Source int

	// RefBase is the uppercase reference base, or 'N' if no reference was
	// loaded.
	RefBase byte
	// ConsBase is the uppercase consensus base.  It is zero unless a consensus
	// hook was supplied to the scan.
	ConsBase byte

	// Coverage is the number of bases that passed the evidence filter.  It
	// does not include deletions, reference skips, or indel-only evidence.
	Coverage int
	// NumExcluded is the number of overlapping bases rejected by the evidence
	// filter.  Coverage + NumExcluded is the number of reads overlapping Pos
	// that passed the read-level filter.
	NumExcluded int

	// BaseQuals, MapQuals and SourceQuals are indexed by nucleotide class
	// (BaseA..BaseX), with one entry per retained base in read order.
	// SourceQuals only has entries for reads carrying a source quality.
	BaseQuals   [NBaseEnum][]byte
	MapQuals    [NBaseEnum][]byte
	SourceQuals [NBaseEnum][]byte
	// FwCounts[b] + RvCounts[b] == len(BaseQuals[b]).
	FwCounts [NBaseEnum]int64
	RvCounts [NBaseEnum]int64

	// NumHeads and NumTails count reads whose alignment starts or ends at Pos.
	NumHeads int
	NumTails int

	// Insertions and deletions anchored at Pos, i.e. immediately following
	// the aligned base at Pos.
	NumIns   int
	SumIns   int
	InsQuals []byte
	NumDels  int
	SumDels  int
	DelQuals []byte
}

// Reset clears c for reuse at a new position.  Slice capacity is retained.
func (c *Column) Reset(refID int, refName string, pos PosType, source int) {
	c.RefID = refID
	c.RefName = refName
	c.Pos = pos
	c.Source = source
	c.RefBase = 'N'
	c.ConsBase = 0
	c.Coverage = 0
	c.NumExcluded = 0
	for b := 0; b < NBaseEnum; b++ {
		c.BaseQuals[b] = c.BaseQuals[b][:0]
		c.MapQuals[b] = c.MapQuals[b][:0]
		c.SourceQuals[b] = c.SourceQuals[b][:0]
		c.FwCounts[b] = 0
		c.RvCounts[b] = 0
	}
	c.NumHeads = 0
	c.NumTails = 0
	c.NumIns = 0
	c.SumIns = 0
	c.InsQuals = c.InsQuals[:0]
	c.NumDels = 0
	c.SumDels = 0
	c.DelQuals = c.DelQuals[:0]
}

// AddBase records a retained base of class base (BaseA..BaseX).  sourceQual
// is appended only if hasSourceQual is set.
func (c *Column) AddBase(base byte, strand Strand, baseQual, mapQual byte, sourceQual byte, hasSourceQual bool) {
	c.Coverage++
	c.BaseQuals[base] = append(c.BaseQuals[base], baseQual)
	c.MapQuals[base] = append(c.MapQuals[base], mapQual)
	if hasSourceQual {
		c.SourceQuals[base] = append(c.SourceQuals[base], sourceQual)
	}
	if strand == Rev {
		c.RvCounts[base]++
	} else {
		c.FwCounts[base]++
	}
}

// AddIns records an insertion of length n anchored at c.Pos.
func (c *Column) AddIns(n int, qual byte) {
	c.NumIns++
	c.SumIns += n
	c.InsQuals = append(c.InsQuals, qual)
}

// AddDel records a deletion of length n anchored at c.Pos.
func (c *Column) AddDel(n int, qual byte) {
	c.NumDels++
	c.SumDels += n
	c.DelQuals = append(c.DelQuals, qual)
}

// Count returns the number of retained bases of class base.
func (c *Column) Count(base byte) int64 {
	return c.FwCounts[base] + c.RvCounts[base]
}

// Validate checks the count invariants of c.
func (c *Column) Validate() error {
	var total int64
	for b := 0; b < NBaseEnum; b++ {
		n := c.FwCounts[b] + c.RvCounts[b]
		if n != int64(len(c.BaseQuals[b])) {
			return fmt.Errorf("pileup.Column.Validate: %s:%d class %c has %d+%d strand counts but %d base qualities",
				c.RefName, c.Pos, EnumToASCIITable[b], c.FwCounts[b], c.RvCounts[b], len(c.BaseQuals[b]))
		}
		if len(c.MapQuals[b]) != len(c.BaseQuals[b]) {
			return fmt.Errorf("pileup.Column.Validate: %s:%d class %c has %d mapping qualities but %d base qualities",
				c.RefName, c.Pos, EnumToASCIITable[b], len(c.MapQuals[b]), len(c.BaseQuals[b]))
		}
		total += n
	}
	if total != int64(c.Coverage) {
		return fmt.Errorf("pileup.Column.Validate: %s:%d has coverage %d but %d classified bases", c.RefName, c.Pos, c.Coverage, total)
	}
	if c.NumIns != len(c.InsQuals) || c.NumDels != len(c.DelQuals) {
		return fmt.Errorf("pileup.Column.Validate: %s:%d indel counts (%d, %d) disagree with quality lists (%d, %d)",
			c.RefName, c.Pos, c.NumIns, c.NumDels, len(c.InsQuals), len(c.DelQuals))
	}
	return nil
}

// Clone returns a deep copy of c which does not share any slices with it.
func (c *Column) Clone() Column {
	cp := *c
	for b := 0; b < NBaseEnum; b++ {
		cp.BaseQuals[b] = append([]byte(nil), c.BaseQuals[b]...)
		cp.MapQuals[b] = append([]byte(nil), c.MapQuals[b]...)
		cp.SourceQuals[b] = append([]byte(nil), c.SourceQuals[b]...)
	}
	cp.InsQuals = append([]byte(nil), c.InsQuals...)
	cp.DelQuals = append([]byte(nil), c.DelQuals...)
	return cp
}
