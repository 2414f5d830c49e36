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

import (
	"fmt"
	"strings"

	"github.com/purpleidea/flakelock/flakeref"
)

// CycleError is raised when a registry lookup would revisit a reference
// already seen earlier in the same resolution (spec §7 CycleInRegistry).
type CycleError struct {
	Trail []flakeref.FlakeRef
}

// Error fulfills the error interface, listing the full trail per spec §7.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Trail))
	for i, r := range e.Trail {
		parts[i] = r.String()
	}
	return fmt.Sprintf("registry: cycle detected: %s", strings.Join(parts, " -> "))
}

// UnresolvedError is raised when no registry in the stack resolves an
// indirect (Alias) reference (spec §7 UnresolvedIndirectRef).
type UnresolvedError struct {
	Ref flakeref.FlakeRef
}

// Error fulfills the error interface, naming the offending alias.
func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("registry: unresolved indirect reference: %s", e.Ref.String())
}

// Resolve rewrites ref through the registry stack, following aliases until
// a direct reference is produced, detecting cycles along the way (spec
// §4.4, the lookupFlake algorithm).
func Resolve(ref flakeref.FlakeRef, stack *Stack) (flakeref.FlakeRef, error) {
	resolved, _, err := ResolveTrail(ref, stack)
	return resolved, err
}

// ResolveTrail behaves exactly like Resolve, but also returns every
// intermediate target visited along the way, in hop order, ending with the
// final resolved reference (the trail is empty when no registry entry
// matched ref at all). Resolve itself only needs the outcome; this
// variant exists for diagnostics that want to narrate each hop, not just
// the result (e.g. the `registry resolve` CLI subcommand).
func ResolveTrail(ref flakeref.FlakeRef, stack *Stack) (flakeref.FlakeRef, []flakeref.FlakeRef, error) {
	return resolve(ref, stack, nil)
}

func resolve(ref flakeref.FlakeRef, stack *Stack, trail []flakeref.FlakeRef) (flakeref.FlakeRef, []flakeref.FlakeRef, error) {
	var target flakeref.FlakeRef
	matched := false

	// Step 1: first registry in priority order that contains ref as a key
	// wins.
	for _, reg := range stack.Ordered() {
		if t, ok := reg.Lookup(ref); ok {
			target = t
			matched = true
			break
		}
	}

	if !matched {
		// Step 5/6: no registry matched.
		if ref.IsDirect() {
			return ref, trail, nil
		}
		return flakeref.FlakeRef{}, trail, &UnresolvedError{Ref: ref}
	}

	// Step 2: an alias-carried ref/rev refinement overrides the
	// registry's target, since user-supplied pinning wins.
	if ref.Kind() == flakeref.KindAlias {
		if ref.Ref() != "" {
			target = target.WithRef(ref.Ref())
		}
		if ref.Rev() != "" {
			target = target.WithRev(ref.Rev())
		}
	}

	// Step 3: cycle detection against the trail built so far.
	for _, seen := range trail {
		if seen.Equal(target) {
			return flakeref.FlakeRef{}, trail, &CycleError{Trail: append(append([]flakeref.FlakeRef{}, trail...), target)}
		}
	}

	// Step 4: append and recurse.
	nextTrail := append(append([]flakeref.FlakeRef{}, trail...), target)
	return resolve(target, stack, nextTrail)
}
