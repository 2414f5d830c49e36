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

package registry

// Stack is the ordered list of registries assembled for one evaluation, in
// lookup priority: global, user, local, flag-supplied (spec §4.3). Earlier
// registries win.
type Stack struct {
	Global *Registry
	User   *Registry
	Local  *Registry
	Flag   *Registry
}

// NewStack builds a stack, substituting empty registries for any nil entry.
func NewStack(global, user, local, flag *Registry) *Stack {
	if global == nil {
		global = New()
	}
	if user == nil {
		user = New()
	}
	if local == nil {
		local = New()
	}
	if flag == nil {
		flag = New()
	}
	return &Stack{Global: global, User: user, Local: local, Flag: flag}
}

// Pure returns a stack suitable for pure evaluation: the global, user, and
// local registries are replaced by empty registries so that lookups can only
// resolve through explicit flag registry entries (spec §4.3).
func (s *Stack) Pure() *Stack {
	return &Stack{
		Global: New(),
		User:   New(),
		Local:  New(),
		Flag:   s.Flag,
	}
}

// Ordered returns the registries in lookup priority order.
func (s *Stack) Ordered() []*Registry {
	return []*Registry{s.Global, s.User, s.Local, s.Flag}
}
