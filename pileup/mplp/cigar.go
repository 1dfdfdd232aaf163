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
	"github.com/grailbio/hts/sam"
)

// BaseEvidence describes how one read relates to one reference position.
type BaseEvidence struct {
	Record *sam.Record
	// MapQ is the read's effective mapping quality, after capping.
	MapQ int
	// SourceQual is the read's source quality; it is only meaningful if
	// HasSourceQual is set.
	SourceQual    byte
	HasSourceQual bool
	// Base is the 4-bit encoded read base at QPos, or 15 (N) for deletions
	// and reference skips.
	Base byte
	// QPos is the query offset of the base aligned to the position.  For
	// deletions and reference skips it is the offset of the next query base.
	QPos int
	// Del is set if the position is inside a deletion (D) of the read, and
	// RefSkip if it's inside a reference skip (N).
	Del     bool
	RefSkip bool
	// Indel is the length of an insertion (> 0) or minus the length of a
	// deletion (< 0) immediately following this base, or 0.
	Indel int
	// Head and Tail are set if the read's alignment starts or ends here.
	Head bool
	Tail bool
}

func consumesRef(t sam.CigarOpType) bool {
	switch t {
	case sam.CigarMatch, sam.CigarDeletion, sam.CigarSkipped, sam.CigarEqual, sam.CigarMismatch:
		return true
	}
	return false
}

func consumesQuery(t sam.CigarOpType) bool {
	switch t {
	case sam.CigarMatch, sam.CigarInsertion, sam.CigarSoftClipped, sam.CigarEqual, sam.CigarMismatch:
		return true
	}
	return false
}

// cigarCursor walks a read's CIGAR forward, one reference position at a
// time.
type cigarCursor struct {
	cigar sam.Cigar
	// opIdx is the current operation; refStart and qStart are the reference
	// position and query offset at which it begins.
	opIdx    int
	refStart int
	qStart   int
}

func (c *cigarCursor) reset(samr *sam.Record) {
	c.cigar = samr.Cigar
	c.opIdx = 0
	c.refStart = samr.Pos
	c.qStart = 0
}

// seek moves the cursor to the operation covering reference position pos.
//
// REQUIRES: pos is inside the read's alignment, and is not smaller than the
// position passed to the previous call.
func (c *cigarCursor) seek(pos int) {
	for c.opIdx < len(c.cigar) {
		op := c.cigar[c.opIdx]
		t, n := op.Type(), op.Len()
		if consumesRef(t) {
			if c.refStart+n > pos {
				return
			}
			c.refStart += n
		}
		if consumesQuery(t) {
			c.qStart += n
		}
		c.opIdx++
	}
}

// evidence fills e for reference position pos.
//
// REQUIRES: seek(pos) has been called.
func (c *cigarCursor) evidence(pos int, e *BaseEvidence) {
	op := c.cigar[c.opIdx]
	e.Indel = 0
	e.Del = false
	e.RefSkip = false
	switch op.Type() {
	case sam.CigarDeletion:
		e.Del = true
		e.QPos = c.qStart
	case sam.CigarSkipped:
		e.RefSkip = true
		e.QPos = c.qStart
	default:
		e.QPos = c.qStart + (pos - c.refStart)
		if pos == c.refStart+op.Len()-1 {
			e.Indel = c.indelAfter()
		}
	}
}

// indelAfter returns the indel following the current operation: the total
// insertion length (padding skipped), or minus the deletion length.
func (c *cigarCursor) indelAfter() int {
	if c.opIdx+1 >= len(c.cigar) {
		return 0
	}
	next := c.cigar[c.opIdx+1]
	switch next.Type() {
	case sam.CigarDeletion:
		return -next.Len()
	case sam.CigarInsertion:
		return next.Len()
	case sam.CigarPadded:
		insLen := 0
		for _, op := range c.cigar[c.opIdx+2:] {
			t := op.Type()
			if t == sam.CigarInsertion {
				insLen += op.Len()
			} else if consumesRef(t) {
				break
			}
		}
		return insLen
	}
	return 0
}
