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
package pileup

// RunningMean is an incrementally updated arithmetic mean.  The zero value
// is an empty accumulator.  The sum of the samples is never materialized.
type RunningMean struct {
	// Mean is the mean of all samples added so far, or 0 if there are none.
	Mean float64
	// N is the number of samples added so far.
	N int64
}

// Add folds v into the mean.
func (m *RunningMean) Add(v float64) {
	m.N++
	m.Mean += (v - m.Mean) / float64(m.N)
}
