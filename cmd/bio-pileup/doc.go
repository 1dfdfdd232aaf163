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

/*
bio-pileup scans one or more BAM or PAM files in lockstep and reports, for
every position covered by at least one read, the filtered per-source evidence
at that position: base counts by strand, read starts and ends, indels
anchored at the position, and the number of overlapping bases that were
filtered out.  The filters are similar to those of "samtools mpileup".

  bio-pileup columns [OPTIONS] -out out.tsv {b,p}ampath...

writes one TSV line per source per position.

  bio-pileup config [OPTIONS]

prints the effective configuration without reading any input.
*/
package main
