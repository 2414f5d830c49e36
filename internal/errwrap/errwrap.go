// Copyright the flakelock contributors
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package errwrap is a small wrapper around github.com/pkg/errors that
// rebuilds the contract the teacher's (unavailable in the retrieved pack)
// util/errwrap package is used with throughout awslabs-yesiscan: Wrapf adds
// context to an error while keeping it unwrappable, and Cause walks back to
// the innermost error for terse top-level error reporting.
package errwrap

import (
	"fmt"

	"github.com/pkg/errors"
)

// Wrapf annotates err with a message, in the style of fmt.Sprintf, and
// returns nil if err is nil so that callers can always write:
//
//	return errwrap.Wrapf(err, "doing thing %s", name)
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, fmt.Sprintf(format, args...))
}

// Cause returns the innermost error in err's wrap chain, same as
// github.com/pkg/errors.Cause.
func Cause(err error) error {
	return errors.Cause(err)
}
