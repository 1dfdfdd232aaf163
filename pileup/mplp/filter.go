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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bio/interval"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
)

// RegionFilter restricts a scan to a [Beg, End) window on one reference
// and/or to the positions covered by a BED file.
type RegionFilter struct {
	// RefID is the sam.Header reference ID of the window, or -1 if there is no
	// window.
	RefID int
	// Beg and End delimit the 0-based half-open window on RefID.
	Beg, End pileup.PosType
	// Bed is nil if there is no interval constraint.
	Bed *interval.BEDUnion
}

// NewRegionFilter resolves region against header and loads the BED file at
// bedPath.  Either may be empty.  All errors are configuration errors.
func NewRegionFilter(region, bedPath string, header *sam.Header) (f RegionFilter, err error) {
	f.RefID = -1
	if region != "" {
		var entry interval.Entry
		if entry, err = interval.ParseRegionString(region); err != nil {
			return f, errors.E(errors.Invalid, fmt.Sprintf("mplp: malformed region %q", region), err)
		}
		for _, ref := range header.Refs() {
			if ref.Name() == entry.RefName {
				f.RefID = ref.ID()
				break
			}
		}
		if f.RefID < 0 {
			return f, errors.E(errors.Invalid, fmt.Sprintf("mplp: region %q names a contig absent from the header", region))
		}
		f.Beg, f.End = entry.Start0, entry.End
		if refLen := pileup.PosType(header.Refs()[f.RefID].Len()); f.End > refLen {
			f.End = refLen
		}
		if f.Beg >= f.End {
			return f, errors.E(errors.Invalid, fmt.Sprintf("mplp: region %q is empty", region))
		}
	}
	if bedPath != "" {
		bed, err := interval.NewBEDUnionFromPath(bedPath, interval.NewBEDOpts{SAMHeader: header})
		if err != nil {
			return f, errors.E(errors.Invalid, fmt.Sprintf("mplp: cannot load interval file %s", bedPath), err)
		}
		f.Bed = &bed
	}
	return f, nil
}

// Clone returns a copy of f with its own BED search state, so that the copy
// can be used by another scan.
func (f *RegionFilter) Clone() RegionFilter {
	cp := *f
	if f.Bed != nil {
		bed := f.Bed.Clone()
		cp.Bed = &bed
	}
	return cp
}

// Contains returns true iff (refID, pos) is inside the window and the
// interval set.  Queries should be made in coordinate order.
func (f *RegionFilter) Contains(refID int, pos pileup.PosType) bool {
	if f.RefID >= 0 && (refID != f.RefID || pos < f.Beg || pos >= f.End) {
		return false
	}
	if f.Bed != nil && !f.Bed.ContainsByID(refID, pos) {
		return false
	}
	return true
}

// EvidenceFilter decides which reads, and which bases of those reads, count
// as evidence.  Read-level decisions are made once per read, when it enters
// the pileup; the record itself is never modified.
type EvidenceFilter struct {
	flagExclude sam.Flags
	minMQ       int
	maxMQ       int
	minBQ       int
	capQThres   int
	noOrphan    bool
	illumina13  bool
	readGroups  map[string]struct{}

	sourceQualTag    sam.Tag
	hasSourceQualTag bool
}

var rgTag = sam.NewTag("RG")

// NewEvidenceFilter creates an EvidenceFilter from cfg.
func NewEvidenceFilter(cfg *Config) *EvidenceFilter {
	f := &EvidenceFilter{
		flagExclude: cfg.flagExclude(),
		minMQ:       cfg.MinMQ,
		maxMQ:       cfg.MaxMQ,
		minBQ:       cfg.MinBQ,
		capQThres:   cfg.CapQThres,
		noOrphan:    cfg.Flags&NoOrphan != 0,
		illumina13:  cfg.Flags&Illumina13 != 0,
	}
	if len(cfg.ReadGroups) > 0 && cfg.Flags&IgnoreRG == 0 {
		f.readGroups = make(map[string]struct{}, len(cfg.ReadGroups))
		for _, rg := range cfg.ReadGroups {
			f.readGroups[rg] = struct{}{}
		}
	}
	if cfg.SourceQualTag != "" {
		f.sourceQualTag = sam.NewTag(cfg.SourceQualTag)
		f.hasSourceQualTag = true
	}
	return f
}

// Structural returns true iff samr is a placed alignment whose flags pass the
// exclusion mask.  Only such reads take part in the pileup; the others are
// invisible, even for deciding which positions are covered.
func (f *EvidenceFilter) Structural(samr *sam.Record) bool {
	return samr.Flags&f.flagExclude == 0 && samr.Ref != nil && samr.Ref.ID() >= 0 && len(samr.Cigar) > 0
}

// IncludeRead decides whether samr is used at all, and if so returns its
// effective mapping quality.  refSeq is the uppercase sequence of the read's
// reference, or empty if no reference was loaded; it is only needed for
// mapping-quality capping.
//
// Excluded reads never contribute to any count, including head/tail and
// indel counts.  The positions they overlap are still visited, with zero
// depth from them.
func (f *EvidenceFilter) IncludeRead(samr *sam.Record, refSeq string) (mapQ int, ok bool) {
	if !f.Structural(samr) {
		return 0, false
	}
	if f.noOrphan && samr.Flags&sam.Paired != 0 && samr.Flags&sam.ProperPair == 0 {
		return 0, false
	}
	if f.readGroups != nil {
		aux := samr.AuxFields.Get(rgTag)
		if aux == nil {
			return 0, false
		}
		rg, isString := aux.Value().(string)
		if !isString {
			return 0, false
		}
		if _, found := f.readGroups[rg]; !found {
			return 0, false
		}
	}
	mapQ = int(samr.MapQ)
	if f.capQThres > 10 && refSeq != "" {
		capped := capMapQ(samr, refSeq, f.capQThres)
		if capped < 0 {
			return 0, false
		}
		if capped < mapQ {
			mapQ = capped
		}
	}
	if mapQ < f.minMQ {
		return 0, false
	}
	if f.maxMQ > 0 && mapQ > f.maxMQ {
		mapQ = f.maxMQ
	}
	return mapQ, true
}

// SourceQual returns the per-read source quality of samr, if the filter was
// configured with a source quality tag and samr carries an integer value for
// it.
func (f *EvidenceFilter) SourceQual(samr *sam.Record) (byte, bool) {
	if !f.hasSourceQualTag {
		return 0, false
	}
	aux := samr.AuxFields.Get(f.sourceQualTag)
	if aux == nil {
		return 0, false
	}
	var v int64
	switch x := aux.Value().(type) {
	case int8:
		v = int64(x)
	case uint8:
		v = int64(x)
	case int16:
		v = int64(x)
	case uint16:
		v = int64(x)
	case int32:
		v = int64(x)
	case uint32:
		v = int64(x)
	default:
		return 0, false
	}
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return byte(v), true
}

// BaseQual returns the effective base quality at query offset qpos.
func (f *EvidenceFilter) BaseQual(samr *sam.Record, qpos int) byte {
	if qpos < 0 || qpos >= len(samr.Qual) {
		return 0xff
	}
	q := samr.Qual[qpos]
	if f.illumina13 {
		if q > 31 {
			return q - 31
		}
		return 0
	}
	return q
}

// IncludeBase decides whether the base of e counts toward coverage.  It
// returns the effective base quality, which is only meaningful if ok is set.
func (f *EvidenceFilter) IncludeBase(e *BaseEvidence) (qual byte, ok bool) {
	if e.Del || e.RefSkip {
		return 0, false
	}
	qual = f.BaseQual(e.Record, e.QPos)
	return qual, int(qual) >= f.minBQ
}
