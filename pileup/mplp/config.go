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

// Package mplp synchronizes one or more coordinate-sorted alignment sources
// position by position and aggregates the overlapping evidence into
// pileup.Column values or depth summaries.
package mplp

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Flag is a bitset of scan options.
type Flag int

const (
	// NoOrphan drops paired reads that are not properly paired.
	NoOrphan Flag = 0x10
	// Realign requests probabilistic realignment.  Not supported.
	Realign Flag = 0x20
	// ExtBAQ requests extended base alignment quality.  Not supported.
	ExtBAQ Flag = 0x40
	// Illumina13 interprets base qualities as Illumina 1.3+ (Phred+64) values.
	Illumina13 Flag = 0x80
	// IgnoreRG disables read-group filtering.
	IgnoreRG Flag = 0x100
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{NoOrphan, "no-orphan"},
	{Realign, "realign"},
	{ExtBAQ, "ext-baq"},
	{Illumina13, "illumina1.3"},
	{IgnoreRG, "ignore-rg"},
}

// String implements fmt.Stringer.
func (f Flag) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// DefaultFlagExclude is the read flag mask applied when Config.FlagExclude
// is zero.
const DefaultFlagExclude = sam.Unmapped | sam.Secondary | sam.QCFail | sam.Duplicate

// DefaultMaxDepth is the per-source, per-position read cap used when
// Config.MaxDepth is zero.
const DefaultMaxDepth = 8000

// Config holds the scan parameters.  It is read-only during a scan.
type Config struct {
	// MaxMQ caps the mapping quality reported in columns.  Zero disables the
	// cap.
	MaxMQ int
	// MinMQ is the minimum (capped) mapping quality for a read to be used.
	MinMQ int
	// MinBQ is the minimum base quality for a base to count toward coverage.
	MinBQ int
	// CapQThres enables mapping-quality capping against the reference when
	// greater than 10.  Requires RefPath.
	CapQThres int
	// MaxDepth is the maximum number of reads admitted per source at one
	// position.  Zero means DefaultMaxDepth.
	MaxDepth int

	// Region restricts the scan to "chr", "chr:beg" or "chr:beg-end"
	// (1-based, inclusive).
	Region string
	// BedPath, if set, restricts the scan to positions inside the intervals
	// of the given BED file.
	BedPath string
	// RefPath is an optional FASTA file supplying the reference bases.
	RefPath string
	// IndexPath overrides the BAM index location, path+".bai" by default.
	// Only consulted when Region is set.
	IndexPath string
	// MaxReadSpan is the padding applied to region queries so that reads
	// starting before the region but overlapping it are seen.
	MaxReadSpan int

	// Flags is a bitset of scan options.
	Flags Flag
	// FlagExclude is the read flag mask; reads with any of these bits set are
	// ignored.  Zero means DefaultFlagExclude.
	FlagExclude sam.Flags
	// ReadGroups, if non-empty, keeps only reads whose RG tag is listed,
	// unless the IgnoreRG flag is set.
	ReadGroups []string
	// SourceQualTag, if set, names a per-read integer aux tag whose value is
	// reported in Column.SourceQuals.
	SourceQualTag string
}

// DefaultConfig is the default scan configuration.
var DefaultConfig = Config{
	MaxMQ:       60,
	MinMQ:       0,
	MinBQ:       13,
	CapQThres:   0,
	MaxDepth:    DefaultMaxDepth,
	MaxReadSpan: 511,
	FlagExclude: DefaultFlagExclude,
}

// Validate checks cfg for configuration errors.  All errors are of kind
// errors.Invalid or errors.NotSupported.
func (cfg *Config) Validate() error {
	if cfg.Flags&(Realign|ExtBAQ) != 0 {
		return errors.E(errors.NotSupported, fmt.Sprintf("mplp: realignment flags (%v) are not supported", cfg.Flags&(Realign|ExtBAQ)))
	}
	if cfg.MinMQ < 0 || cfg.MinBQ < 0 || cfg.MaxMQ < 0 || cfg.CapQThres < 0 || cfg.MaxDepth < 0 || cfg.MaxReadSpan < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("mplp: negative threshold in %+v", *cfg))
	}
	if cfg.MaxMQ > 0 && cfg.MinMQ > cfg.MaxMQ {
		return errors.E(errors.Invalid, fmt.Sprintf("mplp: min mapping quality %d exceeds max mapping quality %d", cfg.MinMQ, cfg.MaxMQ))
	}
	if cfg.CapQThres > 10 && cfg.RefPath == "" {
		return errors.E(errors.Invalid, "mplp: mapping-quality capping requires a reference")
	}
	if tag := cfg.SourceQualTag; tag != "" && len(tag) != 2 {
		return errors.E(errors.Invalid, fmt.Sprintf("mplp: aux tag %q must have two characters", tag))
	}
	return nil
}

func (cfg *Config) maxDepth() int {
	if cfg.MaxDepth == 0 {
		return DefaultMaxDepth
	}
	return cfg.MaxDepth
}

func (cfg *Config) flagExclude() sam.Flags {
	if cfg.FlagExclude == 0 {
		return DefaultFlagExclude
	}
	return cfg.FlagExclude
}

// Dump writes a human-readable rendering of cfg to w.
func (cfg *Config) Dump(w io.Writer) error {
	orNone := func(s string) string {
		if s == "" {
			return "(none)"
		}
		return s
	}
	rgs := "(all)"
	if len(cfg.ReadGroups) > 0 {
		rgs = strings.Join(cfg.ReadGroups, ",")
	}
	_, err := fmt.Fprintf(w, `mplp config:
  max_mq         = %d
  min_mq         = %d
  min_bq         = %d
  capq_thres     = %d
  max_depth      = %d
  flags          = 0x%x (%v)
  flag_exclude   = 0x%x
  region         = %s
  bed            = %s
  reference      = %s
  index          = %s
  max_read_span  = %d
  read_groups    = %s
  source_qual    = %s
`,
		cfg.MaxMQ, cfg.MinMQ, cfg.MinBQ, cfg.CapQThres, cfg.maxDepth(),
		int(cfg.Flags), cfg.Flags, uint16(cfg.flagExclude()),
		orNone(cfg.Region), orNone(cfg.BedPath), orNone(cfg.RefPath), orNone(cfg.IndexPath),
		cfg.MaxReadSpan, rgs, orNone(cfg.SourceQualTag))
	return err
}
