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

// Package fetch implements the fetcher (spec §4.5): it dispatches on a
// FlakeRef's variant to one of the downloader (GitHub tarballs) or git
// exporter (Git, Path) collaborators named in spec §6, and enforces the
// purity rule before any network activity. Dispatch is a plain type switch,
// following the teacher's parser.TrivialURIParser, which picks an iterator
// by inspecting the parsed URL rather than using virtual dispatch across an
// open set of handlers.
package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/interfaces"
	"github.com/purpleidea/flakelock/internal/errwrap"
)

// GitHubTarballTTL is the cache TTL, in seconds, applied to a GitHub tarball
// fetch when no rev is pinned. When a rev is pinned, the fetch is immutable
// and the effective TTL is infinite (spec §4.5).
const GitHubTarballTTL = 60 * 60 // one hour, matching common substituter defaults

// PurityError is raised when pure evaluation forbids fetching a
// non-immutable reference (spec §7 PurityViolation).
type PurityError struct {
	Ref flakeref.FlakeRef
}

// Error fulfills the error interface, naming the offending reference.
func (e *PurityError) Error() string {
	return fmt.Sprintf("fetch: in pure evaluation mode, %q must be immutable (carry a rev)", e.Ref.String())
}

// MalformedETagError is raised when a GitHub tarball response's ETag header
// is missing or not a 42-character quoted hex string (spec §7
// MalformedETag).
type MalformedETagError struct {
	Ref  flakeref.FlakeRef
	ETag string
}

// Error fulfills the error interface.
func (e *MalformedETagError) Error() string {
	return fmt.Sprintf("fetch: malformed ETag %q fetching %s", e.ETag, e.Ref.String())
}

// NotAGitRepoError is raised when a local Path reference doesn't contain a
// .git entry (spec §7 NotAGitRepo).
type NotAGitRepoError struct {
	Path string
}

// Error fulfills the error interface.
func (e *NotAGitRepoError) Error() string {
	return fmt.Sprintf("fetch: %s is not a git repository (no .git found)", e.Path)
}

// SourceInfo is the result of a successful fetch (spec §4.5
// FlakeSourceInfo).
type SourceInfo struct {
	StorePath string
	Rev       string // "" if unavailable (GitHub without a resolvable commit, which cannot happen on success)
	RevCount  *int   // nil for GitHub-tarball fetches; never set per spec §4.5
}

// Fetcher dispatches an already-resolved FlakeRef to the collaborator
// appropriate for its variant.
type Fetcher struct {
	Downloader  interfaces.Downloader
	GitExporter interfaces.GitExporter
	Store       interfaces.Store

	Logf func(format string, v ...interface{})
}

// Fetch materializes ref's source tree and returns its store path and
// resolved revision info. pure indicates whether pure evaluation is active;
// impureTopLevel indicates this particular call is the one, designated
// impure top-level fetch (spec §4.5, §4.6). Only the impure top-level call
// may fetch a non-immutable reference while pure is true.
func (f *Fetcher) Fetch(ctx context.Context, ref flakeref.FlakeRef, pure, impureTopLevel bool) (*SourceInfo, error) {
	if pure && !impureTopLevel && !ref.IsImmutable() {
		return nil, &PurityError{Ref: ref}
	}

	switch ref.Kind() {
	case flakeref.KindGitHub:
		return f.fetchGitHub(ctx, ref)
	case flakeref.KindGit:
		return f.fetchGit(ctx, ref)
	case flakeref.KindPath:
		return f.fetchPath(ctx, ref)
	default:
		return nil, fmt.Errorf("fetch: cannot fetch an indirect reference %q; it must be resolved through the registry stack first", ref.String())
	}
}

func (f *Fetcher) logf(format string, v ...interface{}) {
	if f.Logf != nil {
		f.Logf(format, v...)
	}
}

// fetchGitHub constructs the tarball archive URL and delegates to the
// downloader, extracting the resolved commit hash from the response's ETag
// (spec §4.5).
func (f *Fetcher) fetchGitHub(ctx context.Context, ref flakeref.FlakeRef) (*SourceInfo, error) {
	revOrRef := ref.Rev()
	if revOrRef == "" {
		revOrRef = ref.Ref()
	}
	if revOrRef == "" {
		revOrRef = interfaces.DefaultRef
	}

	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/tarball/%s", ref.Owner(), ref.Repo(), revOrRef)

	ttl := int64(GitHubTarballTTL)
	cached := true
	if ref.IsImmutable() {
		ttl = 0 // infinite
	}

	f.logf("fetch: github tarball %s", url)
	storePath, etag, err := f.Downloader.Download(ctx, url, cached, fmt.Sprintf("%s-%s", ref.Owner(), ref.Repo()), ttl)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error downloading %s", url)
	}

	rev, err := parseETag(etag)
	if err != nil {
		return nil, &MalformedETagError{Ref: ref, ETag: etag}
	}

	if f.Store != nil {
		f.Store.InsertAllowedPath(storePath)
	}

	return &SourceInfo{StorePath: storePath, Rev: rev, RevCount: nil}, nil
}

// parseETag extracts a 40-hex commit hash from a GitHub tarball response's
// ETag, which must be exactly 42 characters: a double-quote, 40 hex
// characters, and a closing double-quote (spec §4.5, §7 MalformedETag).
func parseETag(etag string) (string, error) {
	if len(etag) != 42 || etag[0] != '"' || etag[41] != '"' {
		return "", fmt.Errorf("malformed etag")
	}
	hex := etag[1:41]
	if !flakeref.IsRev(hex) {
		return "", fmt.Errorf("malformed etag")
	}
	return hex, nil
}

// fetchGit delegates to the git exporter with the reference's uri/ref/rev
// (spec §4.5).
func (f *Fetcher) fetchGit(ctx context.Context, ref flakeref.FlakeRef) (*SourceInfo, error) {
	name := sanitizeName(ref.URI())
	f.logf("fetch: git %s", ref.String())
	storePath, rev, revCount, err := f.GitExporter.ExportGit(ctx, ref.URI(), ref.Ref(), ref.Rev(), name)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error exporting git repository %s", ref.URI())
	}
	if f.Store != nil {
		f.Store.InsertAllowedPath(storePath)
	}
	return &SourceInfo{StorePath: storePath, Rev: rev, RevCount: revCount}, nil
}

// fetchPath verifies the directory is a git repository and delegates to the
// git exporter with empty ref/rev so the working tree's current commit is
// exported (spec §4.5).
func (f *Fetcher) fetchPath(ctx context.Context, ref flakeref.FlakeRef) (*SourceInfo, error) {
	gitDir := filepath.Join(ref.PathStr(), ".git")
	if _, err := os.Stat(gitDir); err != nil {
		return nil, &NotAGitRepoError{Path: ref.PathStr()}
	}

	name := sanitizeName(ref.PathStr())
	f.logf("fetch: path %s", ref.String())
	storePath, rev, revCount, err := f.GitExporter.ExportGit(ctx, ref.PathStr(), "", "", name)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error exporting local repository %s", ref.PathStr())
	}
	if f.Store != nil {
		f.Store.InsertAllowedPath(storePath)
	}
	return &SourceInfo{StorePath: storePath, Rev: rev, RevCount: revCount}, nil
}

// sanitizeName derives a short, filesystem-friendly name from a URI or path
// for use as a cache/store hint.
func sanitizeName(s string) string {
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		s = s[idx+1:]
	}
	if s == "" {
		return "source"
	}
	return s
}
