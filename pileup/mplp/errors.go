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
	goerrors "errors"

	"github.com/grailbio/base/errors"
)

// ErrStop may be returned by a ColumnFunc to end a scan early.  The scan
// then returns nil after releasing all of its resources.
var ErrStop = goerrors.New("mplp: stop")

// IsConfigError reports whether err was caused by the scan parameters:
// a malformed region, an unknown contig, a missing index, an unreadable
// BED file, or an unsupported option.
func IsConfigError(err error) bool {
	return errors.Is(errors.Invalid, err) || errors.Is(errors.NotSupported, err)
}

// IsInputError reports whether err was caused by an alignment source that
// could not be opened or read.
func IsInputError(err error) bool {
	return errors.Is(errors.NotExist, err) || errors.Is(errors.Integrity, err)
}
