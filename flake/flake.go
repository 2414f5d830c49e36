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

// Package flake implements the flake loader (spec §4.6, getFlake) and the
// non-flake loader (spec §4.7, getNonFlake): given an already-fetched store
// path, it evaluates flake.nix through the Evaluator collaborator and reads
// an embedded flake.lock, if any.
package flake

import (
	"errors"
	"fmt"
	"os"

	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/interfaces"
	"github.com/purpleidea/flakelock/internal/errwrap"
	"github.com/purpleidea/flakelock/internal/safepath"
	"github.com/purpleidea/flakelock/internal/wellknown"
	"github.com/purpleidea/flakelock/lockfile"
)

// MissingAttributeError is raised when a required flake.nix attribute is
// absent (spec §7 MissingFlakeAttribute).
type MissingAttributeError struct {
	Path      string
	Attribute string
}

// Error fulfills the error interface.
func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("flake: %s: missing required attribute %q", e.Path, e.Attribute)
}

// Flake is the metadata extracted from a materialized source tree (spec
// §3).
type Flake struct {
	ID               string
	Ref              flakeref.FlakeRef
	Path             string
	Description      string
	Requires         []flakeref.FlakeRef
	NonFlakeRequires map[string]flakeref.FlakeRef
	Provides         interfaces.Provides
	RevCount         *int
	LockFile         *lockfile.LockFile
}

// NonFlake is a fetched source without a flake.nix: it carries only its
// store path and the alias name under which a parent required it (spec
// §3).
type NonFlake struct {
	Ref   flakeref.FlakeRef
	Path  string
	Alias string
}

// Loader evaluates a materialized store path's flake.nix and flake.lock.
type Loader struct {
	Evaluator interfaces.Evaluator
}

// Load evaluates {storePath}/flake.nix and reads {storePath}/flake.lock if
// present (spec §4.6 steps 4-7). ref is the already-resolved, pinned
// FlakeRef for this source (its rev/ref have already been set by the
// fetcher and, for GitHub refs, rewritten to the resolved rev per spec §4.6
// step 3 - that rewriting happens in the caller, since it needs the fetch
// result, not just the evaluated attrset).
func (l *Loader) Load(storePath string, ref flakeref.FlakeRef, revCount *int) (*Flake, error) {
	flakeNixPath := wellknown.FlakeFilePath(storePath)

	nixFile, err := safepath.OpenNoSymlink(safepath.NewAbsDir(storePath), "flake.nix")
	if err != nil {
		return nil, errwrap.Wrapf(err, "error opening %s", flakeNixPath)
	}
	nixFile.Close()

	attrs, err := l.Evaluator.EvalFile(flakeNixPath)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error evaluating %s", flakeNixPath)
	}

	id, ok, err := attrs.String("name")
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading name attribute of %s", flakeNixPath)
	}
	if !ok || id == "" {
		return nil, &MissingAttributeError{Path: flakeNixPath, Attribute: "name"}
	}

	description, _, err := attrs.String("description")
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading description attribute of %s", flakeNixPath)
	}

	requiresStrs, _, err := attrs.StringList("requires")
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading requires attribute of %s", flakeNixPath)
	}
	requires := make([]flakeref.FlakeRef, 0, len(requiresStrs))
	for _, s := range requiresStrs {
		r, err := flakeref.Parse(s)
		if err != nil {
			return nil, errwrap.Wrapf(err, "error parsing requires entry %q of %s", s, flakeNixPath)
		}
		requires = append(requires, r)
	}

	nonFlakeStrs, _, err := attrs.StringMap("nonFlakeRequires")
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading nonFlakeRequires attribute of %s", flakeNixPath)
	}
	nonFlakeRequires := make(map[string]flakeref.FlakeRef, len(nonFlakeStrs))
	for alias, s := range nonFlakeStrs {
		r, err := flakeref.Parse(s)
		if err != nil {
			return nil, errwrap.Wrapf(err, "error parsing nonFlakeRequires entry %q of %s", s, flakeNixPath)
		}
		nonFlakeRequires[alias] = r
	}

	provides, ok, err := attrs.Provides()
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading provides attribute of %s", flakeNixPath)
	}
	if !ok {
		return nil, &MissingAttributeError{Path: flakeNixPath, Attribute: "provides"}
	}

	lock, err := l.loadEmbeddedLockFile(storePath)
	if err != nil {
		return nil, err
	}

	return &Flake{
		ID:               id,
		Ref:              ref,
		Path:             storePath,
		Description:      description,
		Requires:         requires,
		NonFlakeRequires: nonFlakeRequires,
		Provides:         provides,
		RevCount:         revCount,
		LockFile:         lock,
	}, nil
}

// loadEmbeddedLockFile reads {storePath}/flake.lock if present (spec §4.6
// step 7). Absence yields an empty LockFile, not an error. Both flake.nix
// and flake.lock live inside a fetched, attacker-influenced tree, so both
// pass through safepath's symlink-refusing open: flake.lock is read with it
// here, and Load opens flake.nix with it before handing the path to the
// evaluator (spec §9).
func (l *Loader) loadEmbeddedLockFile(storePath string) (*lockfile.LockFile, error) {
	base := safepath.NewAbsDir(storePath)
	data, err := safepath.ReadFileNoSymlink(base, "flake.lock")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lockfile.Empty(), nil
		}
		return nil, errwrap.Wrapf(err, "error reading embedded flake.lock under %s", storePath)
	}
	lock, err := lockfile.Decode(data)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error decoding embedded flake.lock under %s", storePath)
	}
	return lock, nil
}
