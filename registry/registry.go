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

// Package registry implements the in-memory registry store (spec §3, §4.2),
// the ordered registry stack (§4.3), and the reference resolver / lookupFlake
// algorithm (§4.4). The on-disk codec mirrors the teacher's config-loading
// style in cmd/yesiscan/main.go (os.ReadFile + JSON decoding, a missing file
// is not an error). Callers supply the file path; this package does no
// home-directory lookup of its own.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/internal/errwrap"
)

// Version is the only registry schema version this implementation
// understands.
const Version = 1

// entry is the on-disk shape of one registry entry: {"uri": "<refStr>"}.
type entry struct {
	URI string `json:"uri"`
}

// fileFormat is the on-disk shape of a registry.json file.
type fileFormat struct {
	Version int              `json:"version"`
	Flakes  map[string]entry `json:"flakes"`
}

// Registry is an in-memory mapping of FlakeRef -> FlakeRef, typically from
// an alias to its redirection target. Insertion order is irrelevant; lookup
// is by structural equality on the key's base reference (see Set).
type Registry struct {
	// Path is where this registry was loaded from, if any. Used only for
	// error messages.
	Path string

	entries map[string]mapping // keyed by key.String() for lookup
}

type mapping struct {
	key    flakeref.FlakeRef
	target flakeref.FlakeRef
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]mapping)}
}

// Set inserts or replaces the mapping key -> target. Keys are indexed by
// their base reference (ref/rev stripped) since a lookup must match
// regardless of any ref/rev refinement the caller's reference carries; those
// refinements are applied as overrides after a match is found (spec §4.4
// step 2), not used to narrow the match itself.
func (r *Registry) Set(key, target flakeref.FlakeRef) {
	if r.entries == nil {
		r.entries = make(map[string]mapping)
	}
	r.entries[key.BaseRef().String()] = mapping{key: key, target: target}
}

// Lookup returns the target that key maps to in this registry, and whether
// an entry was found. Lookup is by value equality of the key's base
// reference (spec §4.4).
func (r *Registry) Lookup(key flakeref.FlakeRef) (flakeref.FlakeRef, bool) {
	m, ok := r.entries[key.BaseRef().String()]
	if !ok {
		return flakeref.FlakeRef{}, false
	}
	return m.target, true
}

// Delete removes the mapping for key, if one exists, reporting whether
// anything was removed.
func (r *Registry) Delete(key flakeref.FlakeRef) bool {
	k := key.BaseRef().String()
	if _, ok := r.entries[k]; !ok {
		return false
	}
	delete(r.entries, k)
	return true
}

// Entries returns a stable, sorted-by-key copy of this registry's mappings.
func (r *Registry) Entries() []struct {
	Key    flakeref.FlakeRef
	Target flakeref.FlakeRef
} {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]struct {
		Key    flakeref.FlakeRef
		Target flakeref.FlakeRef
	}, 0, len(keys))
	for _, k := range keys {
		m := r.entries[k]
		out = append(out, struct {
			Key    flakeref.FlakeRef
			Target flakeref.FlakeRef
		}{Key: m.key, Target: m.target})
	}
	return out
}

// Load reads a registry JSON file from path. A missing file yields an empty
// registry, not an error, matching the teacher's GetConfig "no config, no
// error" convention. Any version other than 1 is rejected with an error
// naming the path (spec §4.2, §7 VersionMismatch).
func Load(path string) (*Registry, error) {
	reg := New()
	reg.Path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading registry file %s", path)
	}

	if len(data) == 0 {
		return reg, nil
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, errwrap.Wrapf(err, "error decoding registry file %s", path)
	}
	if ff.Version != Version {
		return nil, fmt.Errorf("registry %s: unsupported version %d (want %d)", path, ff.Version, Version)
	}

	for keyStr, e := range ff.Flakes {
		key, err := flakeref.Parse(keyStr)
		if err != nil {
			return nil, errwrap.Wrapf(err, "registry %s: invalid key %q", path, keyStr)
		}
		target, err := flakeref.Parse(e.URI)
		if err != nil {
			return nil, errwrap.Wrapf(err, "registry %s: invalid target %q", path, e.URI)
		}
		reg.Set(key, target)
	}

	return reg, nil
}

// Write serializes the registry to path as 4-space-indented JSON, creating
// parent directories as needed (spec §4.2, §6).
func (r *Registry) Write(path string) error {
	ff := fileFormat{
		Version: Version,
		Flakes:  make(map[string]entry, len(r.entries)),
	}
	for _, m := range r.entries {
		ff.Flakes[m.key.String()] = entry{URI: m.target.String()}
	}

	data, err := json.MarshalIndent(ff, "", "    ")
	if err != nil {
		return errwrap.Wrapf(err, "error encoding registry")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return errwrap.Wrapf(err, "error creating registry directory %s", dir)
		}
	}

	return os.WriteFile(path, data, 0640)
}
