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

package lockfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/lockfile"
)

func mustParse(t *testing.T, s string) flakeref.FlakeRef {
	t.Helper()
	r, err := flakeref.Parse(s)
	if err != nil {
		t.Fatalf("parse(%q): %v", s, err)
	}
	return r
}

// buildSample constructs the S5 scenario: root A pins B@rev1 and non-flake
// src@rev2; B pins C@rev3.
func buildSample(t *testing.T) *lockfile.LockFile {
	t.Helper()
	c := mustParse(t, "github:org/c?rev=cccccccccccccccccccccccccccccccccccccccc")
	b := mustParse(t, "github:org/b?rev=bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	src := mustParse(t, "github:org/src?rev=dddddddddddddddddddddddddddddddddddddddd")

	bEntry := &lockfile.FlakeEntry{
		Ref:              b,
		NonFlakeRequires: map[string]flakeref.FlakeRef{},
		Requires: map[string]*lockfile.FlakeEntry{
			"C": {
				Ref:              c,
				NonFlakeRequires: map[string]flakeref.FlakeRef{},
				Requires:         map[string]*lockfile.FlakeEntry{},
			},
		},
	}

	return &lockfile.LockFile{
		NonFlakeRequires: map[string]flakeref.FlakeRef{"src": src},
		Requires:         map[string]*lockfile.FlakeEntry{"B": bEntry},
	}
}

// TestRoundTrip implements scenario S5 and testable property 2: parsing a
// serialized lock file must yield a structurally equal tree.
func TestRoundTrip(t *testing.T) {
	original := buildSample(t)

	data, err := lockfile.Encode(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := lockfile.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !original.Equal(decoded) {
		t.Fatalf("round-trip mismatch:\noriginal: %+v\ndecoded:  %+v", original, decoded)
	}
}

// TestDecodeRejectsMutableURI implements testable property 3: every uri in
// a lock file must be immutable.
func TestDecodeRejectsMutableURI(t *testing.T) {
	data := []byte(`{"version":1,"requires":{"B":{"uri":"github:org/b"}}}`)
	if _, err := lockfile.Decode(data); err == nil {
		t.Fatalf("expected an error decoding a lock file with a mutable uri")
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	data := []byte(`{"version":2,"requires":{}}`)
	if _, err := lockfile.Decode(data); err == nil {
		t.Fatalf("expected an error decoding a lock file with version != 1")
	}
}

func TestEmpty(t *testing.T) {
	e := lockfile.Empty()
	if len(e.Requires) != 0 || len(e.NonFlakeRequires) != 0 {
		t.Fatalf("Empty() is not empty: %+v", e)
	}
}

func TestWriteAtomicCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "flake.lock")

	if err := lockfile.WriteAtomic(lockfile.Empty(), path); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	decoded, err := lockfile.Decode(data)
	if err != nil {
		t.Fatalf("decode written file: %v", err)
	}
	if !decoded.Equal(lockfile.Empty()) {
		t.Fatalf("written file did not round-trip to an empty lock file")
	}
}
