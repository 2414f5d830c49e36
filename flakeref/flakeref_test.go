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

package flakeref_test

import (
	"testing"

	"github.com/purpleidea/flakelock/flakeref"
)

// TestParseRoundTrip checks parse(r.String()) == r for a representative
// input from every variant.
func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"github:alice/proj",
		"github:alice/proj/release-23.11",
		"github:alice/proj?rev=0123456789abcdef0123456789abcdef01234567",
		"github:alice/proj/release-23.11?rev=0123456789abcdef0123456789abcdef01234567",
		"git+https://example.com/repo.git",
		"git+https://example.com/repo.git?ref=main",
		"git+https://example.com/repo.git?rev=0123456789abcdef0123456789abcdef01234567",
		"git://example.com/repo.git",
		"file:///home/user/flake",
		"/home/user/flake",
		"./relative/flake",
		"../relative/flake",
		"nixpkgs",
		"nixpkgs/release-23.11",
		"nixpkgs?rev=0123456789abcdef0123456789abcdef01234567",
	}

	for _, in := range inputs {
		r, err := flakeref.Parse(in)
		if err != nil {
			t.Errorf("parse(%q): unexpected error: %v", in, err)
			continue
		}
		r2, err := flakeref.Parse(r.String())
		if err != nil {
			t.Errorf("parse(%q).String() = %q: reparse error: %v", in, r.String(), err)
			continue
		}
		if !r.Equal(r2) {
			t.Errorf("round-trip mismatch for %q: first=%q second=%q", in, r.String(), r2.String())
		}
	}
}

func TestParseGitHub(t *testing.T) {
	r, err := flakeref.Parse("github:NixOS/nixpkgs/release-23.11?rev=0123456789abcdef0123456789abcdef01234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Kind() != flakeref.KindGitHub {
		t.Fatalf("kind = %v, want KindGitHub", r.Kind())
	}
	if r.Owner() != "NixOS" || r.Repo() != "nixpkgs" {
		t.Fatalf("owner/repo = %s/%s, want NixOS/nixpkgs", r.Owner(), r.Repo())
	}
	if r.Ref() != "release-23.11" {
		t.Fatalf("ref = %q, want release-23.11", r.Ref())
	}
	if r.Rev() != "0123456789abcdef0123456789abcdef01234567" {
		t.Fatalf("rev = %q", r.Rev())
	}
	if !r.IsImmutable() {
		t.Fatalf("expected IsImmutable() to be true")
	}
}

func TestIsImmutableAndIsDirect(t *testing.T) {
	tests := []struct {
		ref           string
		wantImmutable bool
		wantDirect    bool
	}{
		{"github:alice/proj", false, true},
		{"nixpkgs", false, false},
		{"github:alice/proj?rev=0123456789abcdef0123456789abcdef01234567", true, true},
		{"git+https://example.com/repo.git", false, true},
		{"/home/user/flake", false, true},
	}
	for _, tt := range tests {
		r, err := flakeref.Parse(tt.ref)
		if err != nil {
			t.Fatalf("parse(%q): %v", tt.ref, err)
		}
		if r.IsImmutable() != tt.wantImmutable {
			t.Errorf("%q: IsImmutable() = %v, want %v", tt.ref, r.IsImmutable(), tt.wantImmutable)
		}
		if r.IsDirect() != tt.wantDirect {
			t.Errorf("%q: IsDirect() = %v, want %v", tt.ref, r.IsDirect(), tt.wantDirect)
		}
	}
}

func TestBaseRef(t *testing.T) {
	r, err := flakeref.Parse("nixpkgs/release-23.11?rev=0123456789abcdef0123456789abcdef01234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	base := r.BaseRef()
	if base.Ref() != "" || base.Rev() != "" {
		t.Fatalf("baseRef still carries a refinement: ref=%q rev=%q", base.Ref(), base.Rev())
	}
	if base.Name() != "nixpkgs" {
		t.Fatalf("baseRef changed the name: %q", base.Name())
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []string{
		"",
		"github:alice",
		"github:/proj",
	}
	for _, in := range tests {
		if _, err := flakeref.Parse(in); err == nil {
			t.Errorf("parse(%q): expected error, got none", in)
		}
	}
}
