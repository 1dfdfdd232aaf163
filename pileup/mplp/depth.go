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

	"github.com/grailbio/mpileup/pileup"
)

// DepthOpts holds the DepthStats parameters.  Zero values mean unset.
type DepthOpts struct {
	// Region is a "chr:beg-end" string.  Requires an index for BAM files.
	Region string
	// BedPath restricts the scan to the intervals of a BED file.
	BedPath string
	// IndexPath overrides the BAM index location.
	IndexPath string
	// MinBQ is the base quality threshold.
	MinBQ int
	// MinMQ is the mapping quality threshold.
	MinMQ int
}

// DepthResult summarizes the retained depth of a scan.
type DepthResult struct {
	// Mean is the mean retained depth over the visited positions.
	Mean float64
	// NumPos is the number of visited positions, i.e. positions covered by at
	// least one read in the region and intervals, whether or not any base
	// was retained there.
	NumPos int64
}

func (o DepthOpts) config() Config {
	return Config{
		MinMQ:       o.MinMQ,
		MinBQ:       o.MinBQ,
		MaxDepth:    DefaultMaxDepth,
		Region:      o.Region,
		BedPath:     o.BedPath,
		IndexPath:   o.IndexPath,
		MaxReadSpan: DefaultConfig.MaxReadSpan,
		FlagExclude: DefaultFlagExclude,
	}
}

// DepthStats computes the mean retained depth of the BAM or PAM file at
// path, over the positions covered by at least one read.
func DepthStats(ctx context.Context, path string, opts DepthOpts) (DepthResult, error) {
	return ScanDepth(ctx, opts.config(), []Source{{Path: path}})
}

// ScanDepth is the multi-source form of DepthStats.  All sources feed one
// mean, one sample per source per visited position.
func ScanDepth(ctx context.Context, cfg Config, srcs []Source) (res DepthResult, err error) {
	d, err := NewDriver(ctx, cfg, srcs)
	if err != nil {
		return res, err
	}
	defer func() {
		if e := d.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var mean pileup.RunningMean
	if err = d.Depth(ctx, &mean); err != nil {
		return res, err
	}
	return DepthResult{Mean: mean.Mean, NumPos: mean.N}, nil
}
