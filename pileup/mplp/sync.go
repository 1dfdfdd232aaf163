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
	"fmt"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	gunsafe "github.com/grailbio/base/unsafe"
	gbam "github.com/grailbio/bio/encoding/bam"
	"github.com/grailbio/bio/biosimd"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
	"v.io/x/lib/vlog"
)

// activeRead is a read overlapping the current position, with the state
// needed to classify it there.
type activeRead struct {
	samr *sam.Record
	// seq8 is the unpacked 4-bit sequence of samr.
	seq8          []byte
	mapQ          int
	sourceQual    byte
	hasSourceQual bool
	end           int
	cur           cigarCursor
}

// sourceCursor tracks the reads of one source around the current position.
type sourceCursor struct {
	idx      int
	path     string
	iter     recordIterator
	filter   *EvidenceFilter
	refSeqs  []string
	maxDepth int

	// pending is the next mapped record, not yet admitted.  pendingOK is
	// set if it passed the read filter.
	pending     *sam.Record
	pendingMapQ int
	pendingOK   bool
	// lastRef and lastPos are the coordinates of the last record read, for
	// detecting unsorted input.
	lastRef, lastPos int
	done             bool
	err              error

	// curRef is the reference of the reads in active.  active is in arrival
	// order, which is also alignment start order.
	curRef int
	active []*activeRead
	free   []*activeRead
	// excludedEnd is the largest alignment end of the reads on curRef that
	// were rejected by the read filter.  Such reads don't contribute evidence,
	// but the positions they overlap still count as covered.
	excludedEnd int
	// nDropped counts reads discarded because of maxDepth.
	nDropped int64

	// Key in the synchronizer tree.
	nextRef, nextPos int

	// evidence is the output for the current position.
	evidence []BaseEvidence
}

// Compare implements llrb.Comparable.
func (c *sourceCursor) Compare(c1 llrb.Comparable) int {
	o := c1.(*sourceCursor)
	if c.nextRef != o.nextRef {
		return c.nextRef - o.nextRef
	}
	if c.nextPos != o.nextPos {
		return c.nextPos - o.nextPos
	}
	return c.idx - o.idx
}

func (c *sourceCursor) refSeq(refID int) string {
	if refID < len(c.refSeqs) {
		return c.refSeqs[refID]
	}
	return ""
}

// fill reads the next mapped record with a non-empty alignment, unless the
// source is exhausted.  Unmapped reads sort last, so the first one ends the
// source.
func (c *sourceCursor) fill() {
	for c.pending == nil && !c.done {
		if !c.iter.Scan() {
			c.done = true
			if err := c.iter.Err(); err != nil {
				c.err = errors.E(errors.Integrity, "mplp: reading source", c.path, err)
			}
			return
		}
		samr := c.iter.Record()
		if samr.Ref == nil || samr.Ref.ID() < 0 {
			sam.PutInFreePool(samr)
			c.done = true
			return
		}
		refID := samr.Ref.ID()
		if refID < c.lastRef || (refID == c.lastRef && samr.Pos < c.lastPos) {
			c.err = errors.E(errors.Integrity, fmt.Sprintf("mplp: source %s is not coordinate-sorted: %s:%d follows %d:%d",
				c.path, samr.Ref.Name(), samr.Pos, c.lastRef, c.lastPos))
			sam.PutInFreePool(samr)
			c.done = true
			return
		}
		c.lastRef, c.lastPos = refID, samr.Pos
		if !c.filter.Structural(samr) || samr.End() <= samr.Pos {
			sam.PutInFreePool(samr)
			continue
		}
		c.pending = samr
		c.pendingMapQ, c.pendingOK = c.filter.IncludeRead(samr, c.refSeq(refID))
	}
}

// peek computes the next position at which the source has reads.  It returns
// false if there is none.
func (c *sourceCursor) peek(prevRef, prevPos int) bool {
	if len(c.active) > 0 || c.excludedEnd > prevPos+1 {
		c.nextRef, c.nextPos = prevRef, prevPos+1
		return true
	}
	if c.pending != nil {
		c.nextRef, c.nextPos = c.pending.Ref.ID(), c.pending.Pos
		return true
	}
	return false
}

func (c *sourceCursor) admit(samr *sam.Record, mapQ int) {
	var a *activeRead
	if n := len(c.free); n > 0 {
		a = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		a = &activeRead{}
	}
	a.samr = samr
	a.mapQ = mapQ
	a.sourceQual, a.hasSourceQual = c.filter.SourceQual(samr)
	a.end = samr.End()
	a.cur.reset(samr)
	lSeq := samr.Seq.Length
	if cap(a.seq8) < lSeq {
		a.seq8 = make([]byte, lSeq, lSeq*2)
	}
	gunsafe.ExtendBytes(&a.seq8, lSeq)
	if lSeq != 0 {
		biosimd.UnpackSeq(a.seq8, gbam.UnsafeDoubletsToBytes(samr.Seq.Seq))
	}
	c.active = append(c.active, a)
}

// retire drops the active reads that end at or before pos.
func (c *sourceCursor) retire(pos int) {
	n := 0
	for _, a := range c.active {
		if a.end > pos {
			c.active[n] = a
			n++
			continue
		}
		sam.PutInFreePool(a.samr)
		a.samr = nil
		c.free = append(c.free, a)
	}
	for i := n; i < len(c.active); i++ {
		c.active[i] = nil
	}
	c.active = c.active[:n]
}

// advance moves the cursor to (refID, pos), admitting the pending reads that
// start there, and computes the evidence of every active read.
func (c *sourceCursor) advance(refID, pos int) {
	if refID != c.curRef {
		c.retire(pileup.PosTypeMax)
		c.curRef = refID
		c.excludedEnd = 0
	}
	for c.pending != nil && c.pending.Ref.ID() == refID && c.pending.Pos <= pos {
		if !c.pendingOK {
			if end := c.pending.End(); end > c.excludedEnd {
				c.excludedEnd = end
			}
			sam.PutInFreePool(c.pending)
		} else if len(c.active) < c.maxDepth {
			c.admit(c.pending, c.pendingMapQ)
		} else {
			if c.nDropped == 0 {
				vlog.VI(1).Infof("%s: depth exceeds %d at %d:%d, dropping reads", c.path, c.maxDepth, refID, pos)
			}
			c.nDropped++
			sam.PutInFreePool(c.pending)
		}
		c.pending = nil
		c.fill()
	}
	c.evidence = c.evidence[:0]
	for _, a := range c.active {
		a.cur.seek(pos)
		c.evidence = append(c.evidence, BaseEvidence{
			Record:        a.samr,
			MapQ:          a.mapQ,
			SourceQual:    a.sourceQual,
			HasSourceQual: a.hasSourceQual,
			Head:          pos == a.samr.Pos,
			Tail:          pos == a.end-1,
		})
		e := &c.evidence[len(c.evidence)-1]
		a.cur.evidence(pos, e)
		e.Base = 15
		if !e.Del && !e.RefSkip && e.QPos < len(a.seq8) {
			e.Base = a.seq8[e.QPos]
		}
	}
}

// releaseAll returns every record held by c to the free pool.
func (c *sourceCursor) releaseAll() {
	c.retire(pileup.PosTypeMax)
	if c.pending != nil {
		sam.PutInFreePool(c.pending)
		c.pending = nil
	}
}

// synchronizer merges the sources position by position.  Sources are kept
// in an llrb tree ordered by the next position at which they have reads.
type synchronizer struct {
	cursors []*sourceCursor
	tree    llrb.Tree
	// touched lists the cursors that had reads at the current position.
	touched []*sourceCursor
	ref     int
	pos     int
	started bool
}

func newSynchronizer(cursors []*sourceCursor) *synchronizer {
	return &synchronizer{cursors: cursors}
}

func (s *synchronizer) insert(c *sourceCursor) error {
	if c.err != nil {
		return c.err
	}
	if c.peek(s.ref, s.pos) {
		s.tree.Insert(c)
	}
	return nil
}

// next moves to the next position covered by any source.  It returns false
// once all sources are exhausted.  After a true return, every cursor's
// evidence holds the reads overlapping (s.ref, s.pos); cursors without reads
// there have empty evidence.
func (s *synchronizer) next() (bool, error) {
	if !s.started {
		s.started = true
		for _, c := range s.cursors {
			c.curRef = -1
			c.lastRef = -1
			c.fill()
			if err := s.insert(c); err != nil {
				return false, err
			}
		}
	} else {
		for _, c := range s.touched {
			c.retire(s.pos + 1)
			if err := s.insert(c); err != nil {
				return false, err
			}
		}
	}
	s.touched = s.touched[:0]
	for _, c := range s.cursors {
		c.evidence = c.evidence[:0]
	}
	min := s.tree.Min()
	if min == nil {
		return false, nil
	}
	s.ref, s.pos = min.(*sourceCursor).nextRef, min.(*sourceCursor).nextPos
	for {
		top := s.tree.Min()
		if top == nil {
			break
		}
		c := top.(*sourceCursor)
		if c.nextRef != s.ref || c.nextPos != s.pos {
			break
		}
		s.tree.DeleteMin()
		c.advance(s.ref, s.pos)
		s.touched = append(s.touched, c)
	}
	return true, nil
}

// close returns all records to the free pool.
func (s *synchronizer) close() {
	for _, c := range s.cursors {
		c.releaseAll()
		if c.nDropped > 0 {
			vlog.VI(1).Infof("%s: %d reads dropped by the depth cap", c.path, c.nDropped)
		}
	}
}
