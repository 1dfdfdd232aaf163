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
package main

/*
bio-depth reports, for each BAM or PAM file given on the command line, the
mean filtered read depth over the positions covered by at least one read.
Output is one line per file:

  <path> mean=<depth> based on <n> pos

Files that do not exist are skipped with a warning.
*/

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/mpileup/pileup/mplp"
)

var (
	region       = flag.String("r", "", "Restrict the scan to a region, formatted as <contig>:<1-based first pos>-<last pos>. BAM inputs need an index")
	bedPath      = flag.String("b", "", "Restrict the scan to the intervals of a BED file")
	minBaseQual  = flag.Int("q", 0, "Bases with quality below this level are not counted")
	minMapQual   = flag.Int("Q", 0, "Reads with MAPQ below this level are not counted")
	bamIndexPath = flag.String("index", "", "Input BAM index path. Defaults to bampath + .bai")
)

func bioDepthUsage() {
	fmt.Printf("Usage: %s [OPTIONS] {b,p}ampath...\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// depthMain computes DepthStats for each path and writes the summary lines
// to out.  Missing inputs are logged and skipped; any other error ends the
// run.
func depthMain(ctx context.Context, paths []string, opts mplp.DepthOpts, out io.Writer) error {
	for _, path := range paths {
		res, err := mplp.DepthStats(ctx, path, opts)
		if err != nil {
			if errors.Is(errors.NotExist, err) {
				log.Error.Printf("skipping %s: %v", path, err)
				continue
			}
			return err
		}
		if _, err = fmt.Fprintf(out, "%s mean=%.2f based on %d pos\n", path, res.Mean, res.NumPos); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Usage = bioDepthUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() == 0 {
		log.Fatalf("Missing positional arguments ({b,p}ampath required)")
	}
	opts := mplp.DepthOpts{
		Region:    *region,
		BedPath:   *bedPath,
		IndexPath: *bamIndexPath,
		MinBQ:     *minBaseQual,
		MinMQ:     *minMapQual,
	}
	if err := depthMain(vcontext.Background(), flag.Args(), opts, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
