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

// Package closure implements flake value construction (spec §4.11): an
// adapter from a resolved Dependencies tree to the attribute set shape an
// evaluator expects to inject back into expression evaluation. It is
// explicitly called out in the spec as an adapter, not resolver core logic,
// which is why it lives under internal rather than alongside package
// resolve.
//
// Spec §9 flags the source's behavior here as a FIXME: it applies every
// dependency's provides function to the full closure attrset, when a
// correctness-preserving refinement would scope each provides application
// to only that dependency's own declared requires. Build implements the
// scoped version.
package closure

import (
	"github.com/purpleidea/flakelock/resolve"
)

// Entry is one flake's contribution to a constructed closure attrset.
type Entry struct {
	Description string
	OutPath     string
	RevCount    *int
	Provides    interface{}
}

// Build constructs the attribute set keyed by each of d's immediate
// dependency flakes' ids, applying each dependency's provides function only
// to its own declared dependency subset rather than d's full closure.
func Build(d *resolve.Dependencies) (map[string]*Entry, error) {
	out := make(map[string]*Entry, len(d.FlakeDeps))
	for _, child := range d.FlakeDeps {
		childClosure, err := Build(child)
		if err != nil {
			return nil, err
		}

		applied, err := child.Flake.Provides.Apply(toGenericMap(childClosure))
		if err != nil {
			return nil, err
		}

		out[child.Flake.ID] = &Entry{
			Description: child.Flake.Description,
			OutPath:     child.Flake.Path,
			RevCount:    child.Flake.RevCount,
			Provides:    applied,
		}
	}
	return out, nil
}

// toGenericMap adapts a typed closure into the opaque map shape the
// interfaces.Provides collaborator expects, since the resolver never
// inspects provides values itself.
func toGenericMap(m map[string]*Entry) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for id, e := range m {
		out[id] = map[string]interface{}{
			"description": e.Description,
			"outPath":     e.OutPath,
			"revCount":    e.RevCount,
			"provides":    e.Provides,
		}
	}
	return out
}
