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
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/mpileup/pileup"
	"github.com/grailbio/mpileup/pileup/mplp"
)

// columns scans paths and writes every column to outPath.
func columns(ctx context.Context, cfg mplp.Config, paths []string, outPath string, format mplp.Format) (err error) {
	w, err := mplp.NewColumnWriter(ctx, outPath, format)
	if err != nil {
		return err
	}
	defer func() {
		if e := w.Close(); e != nil && err == nil {
			err = e
		}
	}()
	nCols := 0
	err = mplp.RunPileup(ctx, cfg, paths, func(col pileup.Column) error {
		nCols++
		return w.Write(col)
	})
	log.Printf("bio-pileup: wrote %d columns from %d source(s) to %s", nCols, len(paths), outPath)
	return err
}
