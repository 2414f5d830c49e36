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

// Package resolve implements the dependency resolver (spec §4.8,
// resolveFlake): a recursive descent over a flake's requires/
// nonFlakeRequires that produces a Dependencies tree, and the lock-file
// update operation (spec §4.10, updateLockFile). It is the package that
// wires together registry, fetch, and flake into one end-to-end
// resolution, the way the teacher's lib.Core.Run wires together its
// parser, backends, and iterators into one scan.
package resolve

import (
	"context"
	"fmt"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/purpleidea/flakelock/flake"
	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/fetch"
	"github.com/purpleidea/flakelock/interfaces"
	"github.com/purpleidea/flakelock/internal/depresolve"
	"github.com/purpleidea/flakelock/internal/errwrap"
	"github.com/purpleidea/flakelock/internal/wellknown"
	"github.com/purpleidea/flakelock/lockfile"
	"github.com/purpleidea/flakelock/registry"
)

// UsageError is raised when updateLockFile is asked to update a non-local
// top reference (spec §7 UsageError).
type UsageError struct {
	Ref flakeref.FlakeRef
}

// Error fulfills the error interface.
func (e *UsageError) Error() string {
	return fmt.Sprintf("resolve: %s is not a local path reference; updating a GitHub or alias root is meaningless", e.Ref.String())
}

// Dependencies is the recursive tree produced by resolving a flake's
// closure (spec §3).
type Dependencies struct {
	Flake        *flake.Flake
	FlakeDeps    []*Dependencies
	NonFlakeDeps []*flake.NonFlake
}

// Resolver wires the registry stack, fetcher, and flake loader together to
// perform end-to-end resolution.
type Resolver struct {
	Stack   *registry.Stack
	Fetcher *fetch.Fetcher
	Loader  *flake.Loader

	Logf func(format string, v ...interface{})

	guard *depresolve.Guard
}

// NewResolver constructs a Resolver with its own cycle guard.
func NewResolver(stack *registry.Stack, fetcher *fetch.Fetcher, loader *flake.Loader) *Resolver {
	return &Resolver{
		Stack:   stack,
		Fetcher: fetcher,
		Loader:  loader,
		guard:   depresolve.NewGuard(),
	}
}

func (r *Resolver) logf(format string, v ...interface{}) {
	if r.Logf != nil {
		r.Logf(format, v...)
	}
}

// ResolveFlake recursively resolves ref into a Dependencies tree (spec
// §4.8). pure indicates whether pure evaluation is active for this whole
// resolution; impureTopLevel must be true only for the outermost call (the
// root of the recursion), matching the spec's "pass impureTopRef through
// only for the root call". Every recursive call made internally passes
// pure=true and impureTopLevel=false whatever the root was given, so every
// child is fetched under pure evaluation and must be immutable.
func (r *Resolver) ResolveFlake(ctx context.Context, ref flakeref.FlakeRef, pure, impureTopLevel bool) (*Dependencies, error) {
	target, err := registry.Resolve(ref, r.Stack)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error resolving reference %s", ref.String())
	}

	release, err := r.guard.Enter(interfaces.RefKey(target))
	if err != nil {
		return nil, err
	}
	defer release()

	info, err := r.Fetcher.Fetch(ctx, target, pure, impureTopLevel)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error fetching %s", target.String())
	}

	// Spec §4.6 step 3 / §3 invariant 2: a GitHub reference is rewritten
	// to carry the resolved rev so downstream consumers see a pinned
	// reference.
	pinned := target
	if target.Kind() == flakeref.KindGitHub && info.Rev != "" {
		pinned = target.BaseRef().WithRev(info.Rev)
		if target.Ref() != "" {
			pinned = pinned.WithRef(target.Ref())
		}
	}

	f, err := r.Loader.Load(info.StorePath, pinned, info.RevCount)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error loading flake at %s", info.StorePath)
	}

	nonFlakeDeps := make([]*flake.NonFlake, 0, len(f.NonFlakeRequires))
	for alias, nfRef := range f.NonFlakeRequires {
		nf, err := r.getNonFlake(ctx, alias, nfRef)
		if err != nil {
			return nil, errwrap.Wrapf(err, "error resolving non-flake requirement %q of %s", alias, f.ID)
		}
		nonFlakeDeps = append(nonFlakeDeps, nf)
	}

	var merr *multierror.Error
	flakeDeps := make([]*Dependencies, 0, len(f.Requires))
	for _, childRef := range f.Requires {
		r.logf("resolve: %s requires %s", f.ID, childRef.String())
		child, err := r.ResolveFlake(ctx, childRef, true, false)
		if err != nil {
			merr = multierror.Append(merr, errwrap.Wrapf(err, "error resolving requirement %s of %s", childRef.String(), f.ID))
			continue
		}
		flakeDeps = append(flakeDeps, child)
	}
	if merr != nil {
		return nil, merr.ErrorOrNil()
	}

	return &Dependencies{
		Flake:        f,
		FlakeDeps:    flakeDeps,
		NonFlakeDeps: nonFlakeDeps,
	}, nil
}

// getNonFlake resolves and fetches a non-flake requirement (spec §4.7,
// getNonFlake). Non-flake fetches are always pure child fetches; they can
// never be the impure top-level call.
func (r *Resolver) getNonFlake(ctx context.Context, alias string, ref flakeref.FlakeRef) (*flake.NonFlake, error) {
	target, err := registry.Resolve(ref, r.Stack)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error resolving non-flake reference %s", ref.String())
	}

	info, err := r.Fetcher.Fetch(ctx, target, true, false)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error fetching non-flake %s", target.String())
	}

	pinned := target
	if target.Kind() == flakeref.KindGitHub && info.Rev != "" {
		pinned = target.BaseRef().WithRev(info.Rev)
		if target.Ref() != "" {
			pinned = pinned.WithRef(target.Ref())
		}
	}

	return flake.NewNonFlake(alias, pinned, info.StorePath), nil
}

// ToLockFile walks a Dependencies tree into a LockFile, keyed at each level
// by the child flake's id or the non-flake's alias (spec §4.9).
func ToLockFile(d *Dependencies) *lockfile.LockFile {
	requires := make(map[string]*lockfile.FlakeEntry, len(d.FlakeDeps))
	for _, child := range d.FlakeDeps {
		requires[child.Flake.ID] = toFlakeEntry(child)
	}
	nonFlakeRequires := make(map[string]flakeref.FlakeRef, len(d.NonFlakeDeps))
	for _, nf := range d.NonFlakeDeps {
		nonFlakeRequires[nf.Alias] = nf.Ref
	}
	return &lockfile.LockFile{
		NonFlakeRequires: nonFlakeRequires,
		Requires:         requires,
	}
}

func toFlakeEntry(d *Dependencies) *lockfile.FlakeEntry {
	requires := make(map[string]*lockfile.FlakeEntry, len(d.FlakeDeps))
	for _, child := range d.FlakeDeps {
		requires[child.Flake.ID] = toFlakeEntry(child)
	}
	nonFlakeRequires := make(map[string]flakeref.FlakeRef, len(d.NonFlakeDeps))
	for _, nf := range d.NonFlakeDeps {
		nonFlakeRequires[nf.Alias] = nf.Ref
	}
	return &lockfile.FlakeEntry{
		Ref:              d.Flake.Ref,
		NonFlakeRequires: nonFlakeRequires,
		Requires:         requires,
	}
}

// UpdateLockFile implements the lock-file update operation (spec §4.10): it
// constructs a Path-variant FlakeRef from path, resolves it with the top
// call marked impure, and writes the resulting lock file to
// {path}/flake.lock. Any top reference that doesn't parse to a local Path
// is rejected before resolution, since updating a GitHub or alias root has no meaning (there
// is nowhere on disk to write the result back to).
func (r *Resolver) UpdateLockFile(ctx context.Context, path string) error {
	ref, err := flakeref.Parse(path)
	if err != nil {
		return errwrap.Wrapf(err, "error parsing %s", path)
	}
	if ref.Kind() != flakeref.KindPath {
		return &UsageError{Ref: ref}
	}

	deps, err := r.ResolveFlake(ctx, ref, false, true)
	if err != nil {
		return errwrap.Wrapf(err, "error resolving %s", path)
	}

	lock := ToLockFile(deps)
	lockPath := wellknown.LockFilePath(path)
	if err := lockfile.WriteAtomic(lock, lockPath); err != nil {
		return errwrap.Wrapf(err, "error writing %s", lockPath)
	}
	return nil
}
