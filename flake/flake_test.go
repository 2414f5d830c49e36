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

package flake_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/purpleidea/flakelock/flake"
	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/internal/evalstub"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0640); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestLoadWithoutEmbeddedLockFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flake.nix", `{"name":"myflake","requires":[],"nonFlakeRequires":{},"provides":{}}`)

	loader := &flake.Loader{Evaluator: evalstub.Evaluator{}}
	ref, err := flakeref.Parse("github:org/myflake?rev=0123456789abcdef0123456789abcdef01234567")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	f, err := loader.Load(dir, ref, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.ID != "myflake" {
		t.Fatalf("ID = %q, want myflake", f.ID)
	}
	if f.LockFile == nil || len(f.LockFile.Requires) != 0 {
		t.Fatalf("expected an empty LockFile, got %+v", f.LockFile)
	}
}

func TestLoadMissingNameIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flake.nix", `{"provides":{}}`)

	loader := &flake.Loader{Evaluator: evalstub.Evaluator{}}
	ref := flakeref.GitHub("org", "myflake")

	_, err := loader.Load(dir, ref, nil)
	if err == nil {
		t.Fatalf("expected a MissingAttributeError for a missing name attribute")
	}
}

func TestLoadMissingProvidesIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flake.nix", `{"name":"myflake"}`)

	loader := &flake.Loader{Evaluator: evalstub.Evaluator{}}
	ref := flakeref.GitHub("org", "myflake")

	_, err := loader.Load(dir, ref, nil)
	if err == nil {
		t.Fatalf("expected a MissingAttributeError for a missing provides attribute")
	}
}

func TestLoadReadsEmbeddedLockFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "flake.nix", `{"name":"myflake","provides":{}}`)
	writeFile(t, dir, "flake.lock", `{"version":1,"requires":{"dep":{"uri":"github:org/dep?rev=0123456789abcdef0123456789abcdef01234567"}}}`)

	loader := &flake.Loader{Evaluator: evalstub.Evaluator{}}
	ref := flakeref.GitHub("org", "myflake")

	f, err := loader.Load(dir, ref, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.LockFile.Requires) != 1 {
		t.Fatalf("expected one embedded lock-file requirement, got %d", len(f.LockFile.Requires))
	}
}
