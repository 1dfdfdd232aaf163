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
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	gbam "github.com/grailbio/bio/encoding/bam"
	"github.com/grailbio/bio/encoding/bamprovider"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// Source is one alignment input.
type Source struct {
	// Path is the BAM or PAM path.  It is also used in error messages.
	Path string
	// Provider, if non-nil, supplies the records instead of Path.
	Provider bamprovider.Provider
}

// recordIterator is the subset of bamprovider.Iterator used by the
// synchronizer.
type recordIterator interface {
	Scan() bool
	Record() *sam.Record
	Err() error
	Close() error
}

// openSource is one source with its header read.  Either provider or seq is
// set.
type openSource struct {
	path     string
	provider bamprovider.Provider
	// ownProvider is set if provider was created here, and must be closed
	// here.
	ownProvider bool
	// seq reads a BAM file front to back without its index.
	seq    *bamIterator
	header *sam.Header
	iter   recordIterator
}

func isBAMPath(path string) bool {
	return bamprovider.GuessFileType(path) != bamprovider.PAM
}

// open reads the header of src.  Whole-file scans of BAM files go through a
// sequential reader so that no index is required.
func open(ctx context.Context, src Source, cfg *Config) (s *openSource, err error) {
	s = &openSource{path: src.Path, provider: src.Provider}
	if s.provider == nil {
		if isBAMPath(src.Path) {
			if _, err = file.Stat(ctx, src.Path); err != nil {
				return nil, errors.E(errors.NotExist, "mplp: cannot open source", src.Path, err)
			}
			if cfg.Region == "" {
				if s.seq, err = newBAMIterator(ctx, src.Path); err != nil {
					return nil, errors.E(errors.Integrity, "mplp: cannot read source", src.Path, err)
				}
				s.header = s.seq.r.Header()
				return s, nil
			}
		}
		s.provider = bamprovider.NewProvider(src.Path, bamprovider.ProviderOpts{Index: cfg.IndexPath})
		s.ownProvider = true
	}
	if s.header, err = s.provider.GetHeader(); err != nil {
		err = errors.E(errors.NotExist, "mplp: cannot read header of source", src.Path, err)
		if e := s.close(); e != nil {
			log.Error.Printf("%s: close: %v", src.Path, e)
		}
		return nil, err
	}
	return s, nil
}

// newIterator creates the record iterator for s.  refID < 0 means the whole
// source.
func (s *openSource) newIterator(ctx context.Context, cfg *Config, refID int, beg, end int) error {
	if s.seq != nil {
		s.iter = s.seq
		return nil
	}
	if refID < 0 {
		shards, err := s.provider.GetFileShards()
		if err != nil {
			return errors.E(errors.Integrity, "mplp: cannot list shards of source", s.path, err)
		}
		s.iter = &shardsIterator{provider: s.provider, shards: shards}
		return nil
	}
	if s.ownProvider && isBAMPath(s.path) {
		indexPath := cfg.IndexPath
		if indexPath == "" {
			indexPath = s.path + ".bai"
		}
		if _, err := file.Stat(ctx, indexPath); err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("mplp: region %q requires the index %s", cfg.Region, indexPath), err)
		}
	}
	ref := s.header.Refs()[refID]
	s.iter = s.provider.NewIterator(gbam.Shard{
		StartRef: ref,
		EndRef:   ref,
		Start:    beg,
		End:      end,
		Padding:  cfg.MaxReadSpan,
	})
	return nil
}

// closeIter closes the iterator of s, if any.
func (s *openSource) closeIter() error {
	if s.iter == nil || s.seq != nil {
		return nil
	}
	err := s.iter.Close()
	s.iter = nil
	return err
}

// close releases the file handles of s.  It must be called after closeIter.
func (s *openSource) close() (err error) {
	if s.seq != nil {
		err = s.seq.Close()
		s.seq = nil
	}
	if s.ownProvider && s.provider != nil {
		if e := s.provider.Close(); e != nil && err == nil {
			err = e
		}
		s.provider = nil
	}
	return
}

// bamIterator reads every record of a BAM file in file order.  It
// implements recordIterator.
type bamIterator struct {
	ctx  context.Context
	in   file.File
	r    *bam.Reader
	rec  *sam.Record
	err  error
	done bool
}

func newBAMIterator(ctx context.Context, path string) (*bamIterator, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		if e := in.Close(ctx); e != nil {
			log.Error.Printf("%s: close: %v", path, e)
		}
		return nil, err
	}
	return &bamIterator{ctx: ctx, in: in, r: r}, nil
}

// Scan implements recordIterator.
func (it *bamIterator) Scan() bool {
	if it.done {
		return false
	}
	if it.rec, it.err = it.r.Read(); it.err != nil {
		if it.err == io.EOF {
			it.err = nil
		}
		it.rec = nil
		it.done = true
		return false
	}
	return true
}

// Record implements recordIterator.
func (it *bamIterator) Record() *sam.Record { return it.rec }

// Err implements recordIterator.
func (it *bamIterator) Err() error { return it.err }

// Close implements recordIterator.
func (it *bamIterator) Close() error {
	err := it.r.Close()
	if e := it.in.Close(it.ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// shardsIterator chains the iterators of a provider's file shards, in order.
type shardsIterator struct {
	provider bamprovider.Provider
	shards   []gbam.Shard
	cur      bamprovider.Iterator
	err      error
}

// Scan implements recordIterator.
func (it *shardsIterator) Scan() bool {
	for it.err == nil {
		if it.cur == nil {
			if len(it.shards) == 0 {
				return false
			}
			it.cur = it.provider.NewIterator(it.shards[0])
			it.shards = it.shards[1:]
		}
		if it.cur.Scan() {
			return true
		}
		it.err = it.cur.Close()
		it.cur = nil
	}
	return false
}

// Record implements recordIterator.
func (it *shardsIterator) Record() *sam.Record { return it.cur.Record() }

// Err implements recordIterator.
func (it *shardsIterator) Err() error { return it.err }

// Close implements recordIterator.
func (it *shardsIterator) Close() error {
	if it.cur != nil {
		if e := it.cur.Close(); e != nil && it.err == nil {
			it.err = e
		}
		it.cur = nil
	}
	return it.err
}
