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

package fetch_test

import (
	"context"
	"testing"

	"github.com/purpleidea/flakelock/fetch"
	"github.com/purpleidea/flakelock/flakeref"
)

// TestPureRejectsMutableReference covers S6: pure mode with no impure
// top-level override must reject a non-immutable reference before any
// collaborator is touched.
func TestPureRejectsMutableReference(t *testing.T) {
	f := &fetch.Fetcher{} // no collaborators wired; a network call would panic
	ref, err := flakeref.Parse("github:alice/proj")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	_, err = f.Fetch(context.Background(), ref, true, false)
	if err == nil {
		t.Fatalf("expected a PurityError")
	}
	if _, ok := err.(*fetch.PurityError); !ok {
		t.Fatalf("expected *fetch.PurityError, got %T: %v", err, err)
	}
}

func TestNotAGitRepoForPathWithoutDotGit(t *testing.T) {
	dir := t.TempDir()
	f := &fetch.Fetcher{}
	ref := flakeref.Path(dir)

	_, err := f.Fetch(context.Background(), ref, false, false)
	if err == nil {
		t.Fatalf("expected a NotAGitRepoError for a directory without .git")
	}
	if _, ok := err.(*fetch.NotAGitRepoError); !ok {
		t.Fatalf("expected *fetch.NotAGitRepoError, got %T: %v", err, err)
	}
}
