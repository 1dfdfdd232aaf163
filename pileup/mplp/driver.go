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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
	"v.io/x/lib/vlog"
)

// ColumnFunc receives one column per source per visited position.  The
// column's slices are only valid during the call; use Column.Clone to keep
// one.  Returning ErrStop ends the scan without error; any other error aborts
// it and is returned by the scan.
type ColumnFunc func(col pileup.Column) error

// ConsensusFunc picks the consensus base of a fully accumulated column.  col
// is only valid during the call and must not be retained.
type ConsensusFunc func(col *pileup.Column) byte

// RunOpts holds optional RunPileup parameters.
type RunOpts struct {
	// Consensus, if set, fills Column.ConsBase before the column is handed to
	// the ColumnFunc.
	Consensus ConsensusFunc
}

type driverState int

const (
	notStarted driverState = iota
	scanning
	exhausted
)

// Driver scans one or more alignment sources in lockstep.  A Driver runs a
// single scan; Close must be called afterwards on every path.
type Driver struct {
	cfg     Config
	header  *sam.Header
	region  RegionFilter
	filter  *EvidenceFilter
	refSeqs []string
	sources []*openSource
	sync    *synchronizer
	state   driverState
}

// NewDriver opens srcs and prepares a scan over them.  The region in cfg is
// resolved against the header of the first source; the other sources must
// have the same references.
func NewDriver(ctx context.Context, cfg Config, srcs []Source) (d *Driver, err error) {
	if len(srcs) == 0 {
		return nil, errors.E(errors.Invalid, "mplp: no alignment sources")
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	d = &Driver{cfg: cfg}
	defer func() {
		if err != nil {
			if e := d.Close(); e != nil {
				log.Error.Printf("mplp: close after failed open: %v", e)
			}
			d = nil
		}
	}()
	for _, src := range srcs {
		var s *openSource
		if s, err = open(ctx, src, &d.cfg); err != nil {
			return
		}
		d.sources = append(d.sources, s)
	}
	d.header = d.sources[0].header
	for _, s := range d.sources[1:] {
		if err = checkSameRefs(d.header, s.header); err != nil {
			err = errors.E(errors.Invalid, fmt.Sprintf("mplp: %s and %s", d.sources[0].path, s.path), err)
			return
		}
	}
	if d.region, err = NewRegionFilter(cfg.Region, cfg.BedPath, d.header); err != nil {
		return
	}
	if cfg.RefPath != "" {
		fa, e := pileup.LoadFa(ctx, cfg.RefPath)
		if e != nil {
			err = errors.E(errors.Invalid, "mplp: cannot load reference", cfg.RefPath, e)
			return
		}
		if d.refSeqs, e = pileup.RefSeqs(fa, d.header.Refs()); e != nil {
			err = errors.E(errors.Invalid, e)
			return
		}
	}
	d.filter = NewEvidenceFilter(&d.cfg)
	cursors := make([]*sourceCursor, len(d.sources))
	for i, s := range d.sources {
		if err = s.newIterator(ctx, &d.cfg, d.region.RefID, int(d.region.Beg), int(d.region.End)); err != nil {
			return
		}
		cursors[i] = &sourceCursor{
			idx:      i,
			path:     s.path,
			iter:     s.iter,
			filter:   d.filter,
			refSeqs:  d.refSeqs,
			maxDepth: d.cfg.maxDepth(),
		}
	}
	d.sync = newSynchronizer(cursors)
	vlog.VI(1).Infof("mplp: %d source(s), region %+v", len(d.sources), d.region)
	return d, nil
}

func checkSameRefs(h0, h1 *sam.Header) error {
	r0, r1 := h0.Refs(), h1.Refs()
	if len(r0) != len(r1) {
		return fmt.Errorf("headers have %d and %d references", len(r0), len(r1))
	}
	for i := range r0 {
		if r0[i].Name() != r1[i].Name() || r0[i].Len() != r1[i].Len() {
			return fmt.Errorf("reference %d differs: %s:%d vs %s:%d", i, r0[i].Name(), r0[i].Len(), r1[i].Name(), r1[i].Len())
		}
	}
	return nil
}

// Header returns the header of the first source.
func (d *Driver) Header() *sam.Header { return d.header }

// Close releases the iterators, then the sources, in reverse order of
// acquisition.  It returns the first error encountered.
func (d *Driver) Close() (err error) {
	if d.sync != nil {
		d.sync.close()
		d.sync = nil
	}
	for i := len(d.sources) - 1; i >= 0; i-- {
		if e := d.sources[i].closeIter(); e != nil && err == nil {
			err = e
		}
	}
	for i := len(d.sources) - 1; i >= 0; i-- {
		if e := d.sources[i].close(); e != nil && err == nil {
			err = e
		}
	}
	d.sources = nil
	d.state = exhausted
	return
}

// scan calls visit for every covered position inside the region filter,
// with the evidence of each source at that position.
func (d *Driver) scan(ctx context.Context, visit func(refID, pos int, evidence [][]BaseEvidence) error) error {
	if d.state != notStarted {
		return errors.E(errors.Precondition, "mplp: a Driver can only scan once")
	}
	d.state = scanning
	defer func() { d.state = exhausted }()
	evidence := make([][]BaseEvidence, len(d.sync.cursors))
	nPos := 0
	for {
		ok, err := d.sync.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		refID, pos := d.sync.ref, d.sync.pos
		if !d.region.Contains(refID, pileup.PosType(pos)) {
			continue
		}
		for i, c := range d.sync.cursors {
			evidence[i] = c.evidence
		}
		if err = visit(refID, pos, evidence); err != nil {
			if err == ErrStop {
				break
			}
			return err
		}
		nPos++
	}
	vlog.VI(1).Infof("mplp: visited %d positions", nPos)
	return nil
}

// Depth folds the retained depth of every source at every visited position
// into mean.  A position where every overlapping read was excluded still
// adds a zero.
func (d *Driver) Depth(ctx context.Context, mean *pileup.RunningMean) error {
	return d.scan(ctx, func(refID, pos int, evidence [][]BaseEvidence) error {
		for _, reads := range evidence {
			nExcluded := 0
			for i := range reads {
				if _, ok := d.filter.IncludeBase(&reads[i]); !ok {
					nExcluded++
				}
			}
			mean.Add(float64(len(reads) - nExcluded))
		}
		return nil
	})
}

// Columns builds a pileup.Column for every source at every visited position,
// and passes it to fn.
func (d *Driver) Columns(ctx context.Context, fn ColumnFunc, opts RunOpts) error {
	cols := make([]pileup.Column, len(d.sources))
	refs := d.header.Refs()
	return d.scan(ctx, func(refID, pos int, evidence [][]BaseEvidence) error {
		refName := refs[refID].Name()
		for i, reads := range evidence {
			col := &cols[i]
			col.Reset(refID, refName, pileup.PosType(pos), i)
			if d.refSeqs != nil {
				col.RefBase = pileup.RefBase(d.refSeqs[refID], pileup.PosType(pos))
			}
			for j := range reads {
				d.accumulate(col, &reads[j])
			}
			if opts.Consensus != nil {
				col.ConsBase = opts.Consensus(col)
			}
			if err := fn(*col); err != nil {
				return err
			}
		}
		return nil
	})
}

// accumulate adds the evidence of one read to col.
func (d *Driver) accumulate(col *pileup.Column, e *BaseEvidence) {
	if e.Head {
		col.NumHeads++
	}
	if e.Tail {
		col.NumTails++
	}
	if qual, ok := d.filter.IncludeBase(e); ok {
		mapQ := e.MapQ
		if mapQ > 255 {
			mapQ = 255
		}
		col.AddBase(pileup.Seq8ToEnumTable[e.Base], pileup.ReadStrand(e.Record), qual, byte(mapQ), e.SourceQual, e.HasSourceQual)
	} else {
		col.NumExcluded++
	}
	if e.Indel != 0 && !e.Del && !e.RefSkip {
		qual := d.filter.BaseQual(e.Record, e.QPos)
		if e.Indel > 0 {
			col.AddIns(e.Indel, qual)
		} else {
			col.AddDel(-e.Indel, qual)
		}
	}
}

// RunSources scans srcs and calls fn once per source for every covered
// position that passes the region and interval filters, in coordinate order.
func RunSources(ctx context.Context, cfg Config, srcs []Source, fn ColumnFunc, opts ...RunOpts) (err error) {
	var o RunOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	d, err := NewDriver(ctx, cfg, srcs)
	if err != nil {
		return err
	}
	defer func() {
		if e := d.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return d.Columns(ctx, fn, o)
}

// RunPileup is RunSources for BAM or PAM paths.
func RunPileup(ctx context.Context, cfg Config, paths []string, fn ColumnFunc, opts ...RunOpts) error {
	return RunSources(ctx, cfg, pathSources(paths), fn, opts...)
}

func pathSources(paths []string) []Source {
	srcs := make([]Source, len(paths))
	for i, path := range paths {
		srcs[i] = Source{Path: path}
	}
	return srcs
}
