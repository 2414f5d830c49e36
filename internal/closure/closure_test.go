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

package closure_test

import (
	"testing"

	"github.com/purpleidea/flakelock/flake"
	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/internal/closure"
	"github.com/purpleidea/flakelock/resolve"
)

// fakeProvides records the closure it was applied to, so tests can assert
// scoping without a real expression evaluator.
type fakeProvides struct {
	seen map[string]interface{}
}

func (p *fakeProvides) Apply(closure map[string]interface{}) (interface{}, error) {
	p.seen = closure
	return "applied", nil
}

// TestBuildScopesProvidesToOwnDependencies checks the §9 FIXME resolution:
// a dependency's provides is applied only to its own declared requires, not
// the whole root closure.
func TestBuildScopesProvidesToOwnDependencies(t *testing.T) {
	cRef, _ := flakeref.Parse("github:org/c?rev=cccccccccccccccccccccccccccccccccccccccc")
	bRef, _ := flakeref.Parse("github:org/b?rev=bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	aRef, _ := flakeref.Parse("github:org/a?rev=aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	cProvides := &fakeProvides{}
	bProvides := &fakeProvides{}

	leaf := &resolve.Dependencies{
		Flake: &flake.Flake{ID: "C", Ref: cRef, Provides: cProvides},
	}
	mid := &resolve.Dependencies{
		Flake:     &flake.Flake{ID: "B", Ref: bRef, Provides: bProvides},
		FlakeDeps: []*resolve.Dependencies{leaf},
	}
	// Build only applies a flake's provides when it shows up as someone
	// else's dependency, so the root under test needs its own parent.
	top := &resolve.Dependencies{
		Flake:     &flake.Flake{ID: "A", Ref: aRef},
		FlakeDeps: []*resolve.Dependencies{mid},
	}

	out, err := closure.Build(top)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	entry, ok := out["B"]
	if !ok {
		t.Fatalf("expected an entry keyed \"B\", got %+v", out)
	}
	if entry.Provides != "applied" {
		t.Fatalf("entry.Provides = %v, want \"applied\"", entry.Provides)
	}

	// B's provides must have been applied to C's closure (B's own
	// dependency), not to anything at the root level.
	if _, ok := bProvides.seen["C"]; !ok {
		t.Fatalf("B's provides was not applied to C's closure: %+v", bProvides.seen)
	}
	if len(bProvides.seen) != 1 {
		t.Fatalf("B's provides was applied to more than its own closure: %+v", bProvides.seen)
	}

	// C has no dependencies of its own, so its provides must see an empty
	// closure, not B's sibling entries.
	if len(cProvides.seen) != 0 {
		t.Fatalf("C's provides was applied to a non-empty closure: %+v", cProvides.seen)
	}
}
