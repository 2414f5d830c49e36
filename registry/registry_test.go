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

package registry_test

import (
	"strings"
	"testing"

	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/registry"
)

func mustParse(t *testing.T, s string) flakeref.FlakeRef {
	t.Helper()
	r, err := flakeref.Parse(s)
	if err != nil {
		t.Fatalf("parse(%q): %v", s, err)
	}
	return r
}

// TestResolveDirectPassesThrough covers S1: a direct, immutable reference
// with empty registries resolves to itself.
func TestResolveDirectPassesThrough(t *testing.T) {
	ref := mustParse(t, "github:alice/proj?rev=0123456789abcdef0123456789abcdef01234567")
	stack := registry.NewStack(nil, nil, nil, nil)

	resolved, err := registry.Resolve(ref, stack)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved.Equal(ref) {
		t.Fatalf("resolved = %q, want %q", resolved.String(), ref.String())
	}
}

// TestResolveAliasThroughUserRegistry covers S2.
func TestResolveAliasThroughUserRegistry(t *testing.T) {
	user := registry.New()
	user.Set(mustParse(t, "nixpkgs"), mustParse(t, "github:NixOS/nixpkgs"))
	stack := registry.NewStack(nil, user, nil, nil)

	resolved, err := registry.Resolve(mustParse(t, "nixpkgs"), stack)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Kind() != flakeref.KindGitHub || resolved.Owner() != "NixOS" || resolved.Repo() != "nixpkgs" {
		t.Fatalf("resolved = %q, want github:NixOS/nixpkgs", resolved.String())
	}
}

// TestResolveAliasRefinement covers S3: a ref refinement carried on the
// alias itself overrides whatever the registry's target specifies.
func TestResolveAliasRefinement(t *testing.T) {
	user := registry.New()
	user.Set(mustParse(t, "nixpkgs"), mustParse(t, "github:NixOS/nixpkgs"))
	stack := registry.NewStack(nil, user, nil, nil)

	resolved, err := registry.Resolve(mustParse(t, "nixpkgs/release-23.11"), stack)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Ref() != "release-23.11" {
		t.Fatalf("ref = %q, want release-23.11", resolved.Ref())
	}
	if resolved.Owner() != "NixOS" || resolved.Repo() != "nixpkgs" {
		t.Fatalf("resolved = %q", resolved.String())
	}
}

// TestResolveCycle covers S4.
func TestResolveCycle(t *testing.T) {
	user := registry.New()
	user.Set(mustParse(t, "a"), mustParse(t, "b"))
	user.Set(mustParse(t, "b"), mustParse(t, "a"))
	stack := registry.NewStack(nil, user, nil, nil)

	_, err := registry.Resolve(mustParse(t, "a"), stack)
	if err == nil {
		t.Fatalf("expected a CycleError, got none")
	}
	var cycleErr *registry.CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("expected a *registry.CycleError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Fatalf("cycle error %q does not mention both a and b", err.Error())
	}
}

func asCycleError(err error, target **registry.CycleError) bool {
	ce, ok := err.(*registry.CycleError)
	if ok {
		*target = ce
	}
	return ok
}

func TestResolveUnresolvedAlias(t *testing.T) {
	stack := registry.NewStack(nil, nil, nil, nil)
	_, err := registry.Resolve(mustParse(t, "nixpkgs"), stack)
	if err == nil {
		t.Fatalf("expected an UnresolvedError, got none")
	}
	if _, ok := err.(*registry.UnresolvedError); !ok {
		t.Fatalf("expected a *registry.UnresolvedError, got %T: %v", err, err)
	}
}

// TestPureStripsAmbientRegistries covers the pure-mode half of S6's setup:
// the global/user/local registries stop mattering once Pure() is applied,
// leaving only the flag registry.
func TestPureStripsAmbientRegistries(t *testing.T) {
	user := registry.New()
	user.Set(mustParse(t, "nixpkgs"), mustParse(t, "github:NixOS/nixpkgs"))
	stack := registry.NewStack(nil, user, nil, nil).Pure()

	_, err := registry.Resolve(mustParse(t, "nixpkgs"), stack)
	if err == nil {
		t.Fatalf("expected resolution through a stripped user registry to fail")
	}
}

func TestRegistryDelete(t *testing.T) {
	reg := registry.New()
	key := mustParse(t, "nixpkgs")
	reg.Set(key, mustParse(t, "github:NixOS/nixpkgs"))

	if !reg.Delete(key) {
		t.Fatalf("Delete reported no entry removed")
	}
	if _, ok := reg.Lookup(key); ok {
		t.Fatalf("entry still present after Delete")
	}
	if reg.Delete(key) {
		t.Fatalf("second Delete should report nothing removed")
	}
}
