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

// Package lockfile implements the lock-file codec (spec §4.9): the
// recursive, canonical JSON serialization of a resolved dependency closure,
// and its deserialization, which enforces that every uri is immutable (spec
// §3 invariant 1). Writes are atomic (temp file + rename), following the
// spec §5/§9 requirement that the one output side-effect of this module
// must survive a crash without leaving a truncated file - a generalization
// of the teacher's os.MkdirAll(prefix, interfaces.Umask)-before-write
// convention to a file write.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/internal/errwrap"
)

// Version is the only lock-file schema version this implementation
// understands.
const Version = 1

// VersionMismatchError is raised when a lock file's version field isn't 1
// (spec §7 VersionMismatch).
type VersionMismatchError struct {
	Path string
	Got  int
}

// Error fulfills the error interface, naming Path. Decode works on bytes and
// leaves Path empty; its callers add the file's location when wrapping.
func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("lockfile: %s: unsupported version %d (want %d)", e.Path, e.Got, Version)
}

// NotImmutableError is raised when a lock file contains a uri that isn't
// immutable (spec §3 invariant 1, §7).
type NotImmutableError struct {
	URI string
}

// Error fulfills the error interface.
func (e *NotImmutableError) Error() string {
	return fmt.Sprintf("lockfile: reference %q is not immutable (missing rev)", e.URI)
}

// FlakeEntry is one node of the recursive lock-file tree: a pinned
// reference plus its own dependency entries (spec §4.9).
type FlakeEntry struct {
	Ref              flakeref.FlakeRef
	NonFlakeRequires map[string]flakeref.FlakeRef
	Requires         map[string]*FlakeEntry
}

// LockFile is the root of a resolved dependency closure (spec §3).
type LockFile struct {
	NonFlakeRequires map[string]flakeref.FlakeRef
	Requires         map[string]*FlakeEntry
}

// Empty returns a LockFile with no entries, used whenever a flake has no
// embedded flake.lock (spec §4.6 step 7).
func Empty() *LockFile {
	return &LockFile{
		NonFlakeRequires: map[string]flakeref.FlakeRef{},
		Requires:         map[string]*FlakeEntry{},
	}
}

// Equal reports deep structural equality between two lock files, used by
// the round-trip property test (spec §8 property 2).
func (l *LockFile) Equal(o *LockFile) bool {
	if l == nil || o == nil {
		return l == o
	}
	return equalNonFlakeMap(l.NonFlakeRequires, o.NonFlakeRequires) &&
		equalEntryMap(l.Requires, o.Requires)
}

// Equal reports deep structural equality between two flake entries.
func (e *FlakeEntry) Equal(o *FlakeEntry) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Ref.Equal(o.Ref) &&
		equalNonFlakeMap(e.NonFlakeRequires, o.NonFlakeRequires) &&
		equalEntryMap(e.Requires, o.Requires)
}

func equalNonFlakeMap(a, b map[string]flakeref.FlakeRef) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func equalEntryMap(a, b map[string]*FlakeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// --- on-disk JSON shape (spec §4.9) ---

type wireRef struct {
	URI string `json:"uri"`
}

type wireEntry struct {
	URI              string                `json:"uri"`
	NonFlakeRequires map[string]wireRef    `json:"nonFlakeRequires,omitempty"`
	Requires         map[string]*wireEntry `json:"requires,omitempty"`
}

type wireFile struct {
	Version          int                   `json:"version"`
	NonFlakeRequires map[string]wireRef    `json:"nonFlakeRequires,omitempty"`
	Requires         map[string]*wireEntry `json:"requires,omitempty"`
}

// Encode serializes l to canonical, 4-space-indented JSON (spec §4.9).
// Go's encoding/json sorts map keys when marshaling, which by itself
// satisfies the spec §9 open question's resolution ("adopt sorted-by-key
// output for determinism").
func Encode(l *LockFile) ([]byte, error) {
	wf, err := toWireFile(l)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(wf, "", "    ")
}

// Decode parses canonical JSON into a LockFile, rejecting any version other
// than 1 and any non-immutable uri (spec §3 invariant 1, §4.9, §7).
func Decode(data []byte) (*LockFile, error) {
	var wf wireFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, errwrap.Wrapf(err, "error decoding lock file")
	}
	if wf.Version != Version {
		return nil, &VersionMismatchError{Got: wf.Version}
	}
	return fromWireFile(&wf)
}

func toWireFile(l *LockFile) (*wireFile, error) {
	nonFlakes, err := toWireNonFlakeMap(l.NonFlakeRequires)
	if err != nil {
		return nil, err
	}
	entries, err := toWireEntryMap(l.Requires)
	if err != nil {
		return nil, err
	}
	return &wireFile{
		Version:          Version,
		NonFlakeRequires: nonFlakes,
		Requires:         entries,
	}, nil
}

func toWireEntry(e *FlakeEntry) (*wireEntry, error) {
	if !e.Ref.IsImmutable() {
		return nil, &NotImmutableError{URI: e.Ref.String()}
	}
	nonFlakes, err := toWireNonFlakeMap(e.NonFlakeRequires)
	if err != nil {
		return nil, err
	}
	entries, err := toWireEntryMap(e.Requires)
	if err != nil {
		return nil, err
	}
	return &wireEntry{
		URI:              e.Ref.String(),
		NonFlakeRequires: nonFlakes,
		Requires:         entries,
	}, nil
}

func toWireNonFlakeMap(m map[string]flakeref.FlakeRef) (map[string]wireRef, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]wireRef, len(m))
	for alias, ref := range m {
		if !ref.IsImmutable() {
			return nil, &NotImmutableError{URI: ref.String()}
		}
		out[alias] = wireRef{URI: ref.String()}
	}
	return out, nil
}

func toWireEntryMap(m map[string]*FlakeEntry) (map[string]*wireEntry, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]*wireEntry, len(m))
	for id, e := range m {
		we, err := toWireEntry(e)
		if err != nil {
			return nil, err
		}
		out[id] = we
	}
	return out, nil
}

func fromWireFile(wf *wireFile) (*LockFile, error) {
	nonFlakes, err := fromWireNonFlakeMap(wf.NonFlakeRequires)
	if err != nil {
		return nil, err
	}
	entries, err := fromWireEntryMap(wf.Requires)
	if err != nil {
		return nil, err
	}
	if nonFlakes == nil {
		nonFlakes = map[string]flakeref.FlakeRef{}
	}
	if entries == nil {
		entries = map[string]*FlakeEntry{}
	}
	return &LockFile{NonFlakeRequires: nonFlakes, Requires: entries}, nil
}

func fromWireEntry(we *wireEntry) (*FlakeEntry, error) {
	ref, err := flakeref.Parse(we.URI)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error parsing uri %q", we.URI)
	}
	if !ref.IsImmutable() {
		return nil, &NotImmutableError{URI: we.URI}
	}
	nonFlakes, err := fromWireNonFlakeMap(we.NonFlakeRequires)
	if err != nil {
		return nil, err
	}
	entries, err := fromWireEntryMap(we.Requires)
	if err != nil {
		return nil, err
	}
	if nonFlakes == nil {
		nonFlakes = map[string]flakeref.FlakeRef{}
	}
	if entries == nil {
		entries = map[string]*FlakeEntry{}
	}
	return &FlakeEntry{Ref: ref, NonFlakeRequires: nonFlakes, Requires: entries}, nil
}

func fromWireNonFlakeMap(m map[string]wireRef) (map[string]flakeref.FlakeRef, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]flakeref.FlakeRef, len(m))
	for alias, wr := range m {
		ref, err := flakeref.Parse(wr.URI)
		if err != nil {
			return nil, errwrap.Wrapf(err, "error parsing uri %q", wr.URI)
		}
		if !ref.IsImmutable() {
			return nil, &NotImmutableError{URI: wr.URI}
		}
		out[alias] = ref
	}
	return out, nil
}

func fromWireEntryMap(m map[string]*wireEntry) (map[string]*FlakeEntry, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]*FlakeEntry, len(m))
	for id, we := range m {
		e, err := fromWireEntry(we)
		if err != nil {
			return nil, err
		}
		out[id] = e
	}
	return out, nil
}

// WriteAtomic serializes l and writes it to path, creating parent
// directories as needed, via a temp-file-then-rename so a crash mid-write
// never leaves a truncated lock file (spec §5, §9).
func WriteAtomic(l *LockFile, path string) error {
	data, err := Encode(l)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0770); err != nil {
			return errwrap.Wrapf(err, "error creating directory %s", dir)
		}
	}

	tmp, err := os.CreateTemp(dir, ".flake.lock.*.tmp")
	if err != nil {
		return errwrap.Wrapf(err, "error creating temp file in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errwrap.Wrapf(err, "error writing temp lock file %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errwrap.Wrapf(err, "error syncing temp lock file %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errwrap.Wrapf(err, "error closing temp lock file %s", tmpName)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return errwrap.Wrapf(err, "error renaming %s to %s", tmpName, path)
	}
	return nil
}
