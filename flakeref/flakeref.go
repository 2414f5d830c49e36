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

// Package flakeref implements the small polymorphic reference algebra that
// every other package in this module builds on: a FlakeRef is a tagged sum
// with four variants (Alias, GitHub, Git, Path), each of which can carry a
// `ref` and/or `rev` refinement. Pattern-matching fetch dispatch is
// preferred here over an interface-per-variant virtual dispatch, because the
// variant set is closed and small (see spec §9).
package flakeref

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Kind identifies which of the four variants a FlakeRef holds.
type Kind int

const (
	// KindAlias is an indirect name resolved through registries.
	KindAlias Kind = iota
	// KindGitHub is a hosted git repository fetched via tarball archive.
	KindGitHub
	// KindGit is an arbitrary git URL fetched by cloning.
	KindGit
	// KindPath is a local directory containing a .git subdirectory.
	KindPath
)

// String returns a debug name for the kind.
func (k Kind) String() string {
	switch k {
	case KindAlias:
		return "alias"
	case KindGitHub:
		return "github"
	case KindGit:
		return "git"
	case KindPath:
		return "path"
	default:
		return "unknown"
	}
}

// revRegexp matches a 40-hex-character SHA-1 commit hash.
var revRegexp = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// IsRev returns whether s looks like a 40-hex-character commit hash.
func IsRev(s string) bool {
	return revRegexp.MatchString(s)
}

// FlakeRef is a polymorphic reference to a flake or non-flake source. It may
// be indirect (an Alias) or direct (GitHub, Git, or Path). FlakeRef values
// are immutable; every method that "modifies" a FlakeRef returns a new one.
type FlakeRef struct {
	kind Kind

	// Name is set only for KindAlias.
	name string

	// Owner and Repo are set only for KindGitHub.
	owner string
	repo  string

	// URI is set only for KindGit.
	uri string

	// Path is set only for KindPath.
	path string

	// ref is the optional branch/tag refinement, common to all variants.
	ref string

	// rev is the optional 40-hex commit hash refinement, common to all
	// variants.
	rev string
}

// Alias constructs an indirect reference by name.
func Alias(name string) FlakeRef {
	return FlakeRef{kind: KindAlias, name: name}
}

// GitHub constructs a hosted-git-repository reference.
func GitHub(owner, repo string) FlakeRef {
	return FlakeRef{kind: KindGitHub, owner: owner, repo: repo}
}

// Git constructs an arbitrary git URL reference.
func Git(uri string) FlakeRef {
	return FlakeRef{kind: KindGit, uri: uri}
}

// Path constructs a local directory reference.
func Path(path string) FlakeRef {
	return FlakeRef{kind: KindPath, path: path}
}

// Kind returns which variant this FlakeRef holds.
func (r FlakeRef) Kind() Kind { return r.kind }

// Name returns the alias name. Only meaningful when Kind() == KindAlias.
func (r FlakeRef) Name() string { return r.name }

// Owner returns the GitHub owner. Only meaningful when Kind() == KindGitHub.
func (r FlakeRef) Owner() string { return r.owner }

// Repo returns the GitHub repo. Only meaningful when Kind() == KindGitHub.
func (r FlakeRef) Repo() string { return r.repo }

// URI returns the git URL. Only meaningful when Kind() == KindGit.
func (r FlakeRef) URI() string { return r.uri }

// PathStr returns the local directory path. Only meaningful when Kind() ==
// KindPath.
func (r FlakeRef) PathStr() string { return r.path }

// Ref returns the branch/tag refinement, or "" if unset.
func (r FlakeRef) Ref() string { return r.ref }

// Rev returns the commit-hash refinement, or "" if unset.
func (r FlakeRef) Rev() string { return r.rev }

// WithRef returns a copy of r with the ref refinement set.
func (r FlakeRef) WithRef(ref string) FlakeRef {
	r.ref = ref
	return r
}

// WithRev returns a copy of r with the rev refinement set.
func (r FlakeRef) WithRev(rev string) FlakeRef {
	r.rev = rev
	return r
}

// IsImmutable reports whether this reference carries a resolved commit
// hash. Per spec §3 invariant: isImmutable() ≡ rev.isSome().
func (r FlakeRef) IsImmutable() bool {
	return r.rev != ""
}

// IsDirect reports whether this reference can be fetched without going
// through a registry. Every variant except Alias is direct, even without a
// rev (spec §3).
func (r FlakeRef) IsDirect() bool {
	return r.kind != KindAlias
}

// BaseRef returns this reference stripped of its ref/rev refinements.
func (r FlakeRef) BaseRef() FlakeRef {
	r.ref = ""
	r.rev = ""
	return r
}

// Equal reports structural equality between two FlakeRefs.
func (r FlakeRef) Equal(o FlakeRef) bool {
	return r.kind == o.kind &&
		r.name == o.name &&
		r.owner == o.owner &&
		r.repo == o.repo &&
		r.uri == o.uri &&
		r.path == o.path &&
		r.ref == o.ref &&
		r.rev == o.rev
}

// String renders the canonical, round-trippable URI form of this reference:
//
//	github:OWNER/REPO[/REF][?rev=HEX]
//	git+URL[?ref=REF][&rev=HEX] (a parsed git://URL renders as git+git://URL)
//	file://PATH[?ref=REF][&rev=HEX]
//	ALIAS[/REF][?rev=HEX]
func (r FlakeRef) String() string {
	switch r.kind {
	case KindGitHub:
		s := fmt.Sprintf("github:%s/%s", r.owner, r.repo)
		if r.ref != "" {
			s += "/" + r.ref
		}
		if r.rev != "" {
			s += "?rev=" + r.rev
		}
		return s
	case KindGit:
		s := "git+" + r.uri
		return appendQuery(s, r.ref, r.rev)
	case KindPath:
		s := "file://" + r.path
		return appendQuery(s, r.ref, r.rev)
	case KindAlias:
		fallthrough
	default:
		s := r.name
		if r.ref != "" {
			s += "/" + r.ref
		}
		if r.rev != "" {
			s += "?rev=" + r.rev
		}
		return s
	}
}

// appendQuery appends ref/rev as a query string, used by the Git and Path
// variants whose base form already contains a URI that may itself have a
// scheme separator.
func appendQuery(base, ref, rev string) string {
	var parts []string
	if ref != "" {
		parts = append(parts, "ref="+ref)
	}
	if rev != "" {
		parts = append(parts, "rev="+rev)
	}
	if len(parts) == 0 {
		return base
	}
	sort.Strings(parts) // deterministic ordering: "ref=" sorts before "rev="
	return base + "?" + strings.Join(parts, "&")
}

// Parse parses a URI-like string into a FlakeRef. See spec §4.1 for the
// parse rules. Parse and String are inverses: Parse(r.String()) == r for
// every FlakeRef r produced by this package.
func Parse(s string) (FlakeRef, error) {
	if s == "" {
		return FlakeRef{}, fmt.Errorf("flakeref: empty input")
	}

	if strings.HasPrefix(s, "github:") {
		return parseGitHub(s)
	}

	if strings.HasPrefix(s, "git+") {
		rest := strings.TrimPrefix(s, "git+")
		uri, ref, rev, err := splitQuery(rest)
		if err != nil {
			return FlakeRef{}, err
		}
		return FlakeRef{kind: KindGit, uri: uri, ref: ref, rev: rev}, nil
	}

	if strings.HasPrefix(s, "git://") {
		uri, ref, rev, err := splitQuery(s)
		if err != nil {
			return FlakeRef{}, err
		}
		return FlakeRef{kind: KindGit, uri: uri, ref: ref, rev: rev}, nil
	}

	if strings.HasPrefix(s, "file://") {
		rest := strings.TrimPrefix(s, "file://")
		p, ref, rev, err := splitQuery(rest)
		if err != nil {
			return FlakeRef{}, err
		}
		return FlakeRef{kind: KindPath, path: p, ref: ref, rev: rev}, nil
	}

	// bare path: absolute or starting with ./ or ../
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") {
		p, ref, rev, err := splitQuery(s)
		if err != nil {
			return FlakeRef{}, err
		}
		return FlakeRef{kind: KindPath, path: p, ref: ref, rev: rev}, nil
	}

	// otherwise, an alias. it may itself carry a /ref or ?rev= refinement.
	name, ref, rev, err := splitQuery(s)
	if err != nil {
		return FlakeRef{}, err
	}
	if idx := strings.Index(name, "/"); idx >= 0 {
		ref = name[idx+1:]
		name = name[:idx]
	}
	return FlakeRef{kind: KindAlias, name: name, ref: ref, rev: rev}, nil
}

// parseGitHub parses github:OWNER/REPO[/REF][?rev=HASH].
func parseGitHub(s string) (FlakeRef, error) {
	rest := strings.TrimPrefix(s, "github:")
	rest, ref, rev, err := splitQuery(rest)
	if err != nil {
		return FlakeRef{}, err
	}

	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return FlakeRef{}, fmt.Errorf("flakeref: malformed github reference: %s", s)
	}
	owner, repo := parts[0], parts[1]
	if len(parts) == 3 && parts[2] != "" {
		if ref != "" {
			return FlakeRef{}, fmt.Errorf("flakeref: ambiguous ref in: %s", s)
		}
		ref = parts[2]
	}

	return FlakeRef{kind: KindGitHub, owner: owner, repo: repo, ref: ref, rev: rev}, nil
}

// splitQuery splits a string of the form BASE[?k=v&k=v...] and extracts the
// "ref" and "rev" query parameters, returning the base with the query
// stripped.
func splitQuery(s string) (base, ref, rev string, err error) {
	idx := strings.Index(s, "?")
	if idx < 0 {
		return s, "", "", nil
	}
	base = s[:idx]
	values, err := url.ParseQuery(s[idx+1:])
	if err != nil {
		return "", "", "", fmt.Errorf("flakeref: malformed query in %q: %w", s, err)
	}
	return base, values.Get("ref"), values.Get("rev"), nil
}
