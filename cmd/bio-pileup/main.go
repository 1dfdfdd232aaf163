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

import (
	"flag"
	"fmt"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup/mplp"
	"v.io/x/lib/cmdline"
)

// configFlags holds the flags shared by all subcommands.
type configFlags struct {
	maxMQ, minMQ, minBQ, capQ  *int
	maxDepth, maxReadSpan      *int
	flagExclude                *int
	region, bed, ref, index    *string
	readGroups, sourceQualTag  *string
	noOrphan, illumina13, noRG *bool
	realign, extBAQ            *bool
}

func addConfigFlags(fs *flag.FlagSet) *configFlags {
	d := mplp.DefaultConfig
	return &configFlags{
		maxMQ:         fs.Int("max-mapq", d.MaxMQ, "Mapping qualities above this level are capped to it; 0 disables capping"),
		minMQ:         fs.Int("mapq", d.MinMQ, "Reads with MAPQ below this level are skipped"),
		minBQ:         fs.Int("min-base-qual", d.MinBQ, "Bases with quality below this level are not counted"),
		capQ:          fs.Int("adjust-mq", d.CapQThres, "Coefficient for downgrading the mapping quality of reads with excessive mismatches; 0 disables. Requires -ref"),
		maxDepth:      fs.Int("max-depth", d.MaxDepth, "Maximum number of reads per source per position"),
		maxReadSpan:   fs.Int("max-read-span", d.MaxReadSpan, "Upper bound on size of reference-genome region a read maps to"),
		flagExclude:   fs.Int("flag-exclude", int(d.FlagExclude), "Reads with a FLAG bit intersecting this value are skipped"),
		region:        fs.String("region", "", "Restrict the scan to a region, formatted as <contig>:<1-based first pos>-<last pos>. BAM inputs need an index"),
		bed:           fs.String("bed", "", "Restrict the scan to the intervals of a BED file"),
		ref:           fs.String("ref", "", "Reference FASTA path; fills the REF column"),
		index:         fs.String("index", "", "Input BAM index path. Defaults to bampath + .bai. Only meaningful with a single input"),
		readGroups:    fs.String("read-groups", "", "Comma-separated list of read groups to keep; empty keeps all reads"),
		sourceQualTag: fs.String("source-qual-tag", "", "Two-letter aux tag carrying a per-read source quality"),
		noOrphan:      fs.Bool("no-orphan", false, "Skip paired reads that are not properly paired"),
		illumina13:    fs.Bool("illumina1.3", false, "Base qualities are Illumina 1.3+ encoded"),
		noRG:          fs.Bool("ignore-rg", false, "Disable read-group filtering"),
		realign:       fs.Bool("realign", false, "Probabilistic realignment; not supported"),
		extBAQ:        fs.Bool("ext-baq", false, "Extended base alignment quality; not supported"),
	}
}

// config converts the flags into a validated mplp.Config.
func (f *configFlags) config() (mplp.Config, error) {
	cfg := mplp.Config{
		MaxMQ:         *f.maxMQ,
		MinMQ:         *f.minMQ,
		MinBQ:         *f.minBQ,
		CapQThres:     *f.capQ,
		MaxDepth:      *f.maxDepth,
		MaxReadSpan:   *f.maxReadSpan,
		FlagExclude:   sam.Flags(*f.flagExclude),
		Region:        *f.region,
		BedPath:       *f.bed,
		RefPath:       *f.ref,
		IndexPath:     *f.index,
		SourceQualTag: *f.sourceQualTag,
	}
	if *f.readGroups != "" {
		cfg.ReadGroups = strings.Split(*f.readGroups, ",")
	}
	for _, b := range []struct {
		set  bool
		flag mplp.Flag
	}{
		{*f.noOrphan, mplp.NoOrphan},
		{*f.illumina13, mplp.Illumina13},
		{*f.noRG, mplp.IgnoreRG},
		{*f.realign, mplp.Realign},
		{*f.extBAQ, mplp.ExtBAQ},
	} {
		if b.set {
			cfg.Flags |= b.flag
		}
	}
	return cfg, cfg.Validate()
}

func newCmdColumns() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "columns",
		Short:    "Write per-source pileup columns as TSV",
		ArgsName: "path...",
	}
	flags := addConfigFlags(&cmd.Flags)
	out := cmd.Flags.String("out", "bio-pileup.tsv", "Output path")
	format := cmd.Flags.String("format", "tsv", "Output format; 'tsv', 'tsv-gz' and 'tsv-bgz' supported")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("columns takes one or more pathname arguments")
		}
		cfg, err := flags.config()
		if err != nil {
			return err
		}
		f, err := mplp.ParseFormat(*format)
		if err != nil {
			return err
		}
		return columns(vcontext.Background(), cfg, argv, *out, f)
	})
	return cmd
}

func newCmdConfig() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "config",
		Short: "Print the effective scan configuration",
	}
	flags := addConfigFlags(&cmd.Flags)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("config takes no arguments, but got %v", argv)
		}
		cfg, err := flags.config()
		if err != nil {
			return err
		}
		return cfg.Dump(env.Stdout)
	})
	return cmd
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-pileup",
			Short:    "Multi-source pileup of BAM and PAM files",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdColumns(),
				newCmdConfig(),
			},
		})
}
