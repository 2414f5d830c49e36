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

package flake

import (
	"github.com/purpleidea/flakelock/flakeref"
)

// NewNonFlake builds a NonFlake record for a fetched source that has no
// flake.nix (spec §4.7): it records only the alias, the resolved reference,
// and the store path, no metadata evaluation is attempted.
func NewNonFlake(alias string, ref flakeref.FlakeRef, storePath string) *NonFlake {
	return &NonFlake{
		Ref:   ref,
		Path:  storePath,
		Alias: alias,
	}
}
