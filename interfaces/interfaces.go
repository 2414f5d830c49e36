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

// Package interfaces has the common interfaces that describe the resolver's
// external collaborators. It must not import any packages other than stdlib
// and the flakeref package. This is so that we avoid dependency loops between
// the packages that implement these collaborators and the packages that
// consume them.
package interfaces

import (
	"context"

	"github.com/purpleidea/flakelock/flakeref"
)

// Error is a constant error type that implements error.
type Error string

// Error fulfills the error interface of this type.
func (e Error) Error() string { return string(e) }

const (
	// Umask is the value used whenever we need to make a directory in the
	// store or cache.
	Umask = 0770

	// DefaultRef is used whenever a FlakeRef doesn't specify a ref.
	DefaultRef = "master"
)

// Downloader fetches an arbitrary URL with ETag-aware caching. It is the
// external collaborator named in spec §6: "HTTP GET with ETag-based
// caching". Its implementation lives outside the resolver's core; the
// resolver consumes only this contract.
type Downloader interface {
	// Download fetches url into the store and returns the resulting store
	// path along with the response's ETag header, if any. If cached is
	// true and a cached copy satisfies ttl, no network request is made. A
	// ttl of zero means "cache forever" (used for immutable, rev-pinned
	// fetches).
	Download(ctx context.Context, url string, cached bool, name string, ttl int64) (storePath string, etag string, err error)
}

// GitExporter clones or opens a git repository and exports a tree at a given
// ref/rev into the store. It is the external collaborator named in spec §6.
type GitExporter interface {
	// ExportGit exports uri (or a local path, when uri is a filesystem
	// path) at ref or rev (at most one of which should be set; if neither
	// is set, the current HEAD/working tree is used) into the store, and
	// returns the resulting store path, the resolved commit hash, and an
	// optional commit depth.
	ExportGit(ctx context.Context, uri, ref, rev, name string) (storePath string, resolvedRev string, revCount *int, err error)
}

// Store is the content-addressed store collaborator named in spec §6. The
// fetcher inserts every path it has fetched into the allow-list; nothing in
// the resolver calls AssertStorePath.
type Store interface {
	// AssertStorePath checks that path is a valid, present store path.
	AssertStorePath(path string) error

	// InsertAllowedPath records path as allowed to be read during this
	// evaluation. Used for purity sandboxing; a no-op store may ignore it.
	InsertAllowedPath(path string)
}

// Evaluator evaluates a flake's declarative metadata file and exposes the
// attribute coercions the flake loader needs. It is the external expression
// language collaborator named in spec §6; the resolver never interprets the
// file format itself.
type Evaluator interface {
	// EvalFile evaluates the file at path and returns an opaque attrset
	// handle.
	EvalFile(path string) (AttrSet, error)
}

// AttrSet is an opaque attribute set returned by an Evaluator. The resolver
// only ever projects a handful of named attributes out of it and coerces
// them to strings, lists of strings, or leaves them as an opaque callable.
type AttrSet interface {
	// String looks up a string-valued attribute.
	String(name string) (string, bool, error)

	// StringList looks up a list-of-strings-valued attribute.
	StringList(name string) ([]string, bool, error)

	// StringMap looks up an attrset-of-strings-valued attribute (used for
	// nonFlakeRequires, whose values are alias -> URI string).
	StringMap(name string) (map[string]string, bool, error)

	// Provides looks up the required `provides` attribute and returns it
	// unevaluated, as an opaque callable value.
	Provides() (Provides, bool, error)
}

// Provides is an opaque callable value supplied by a flake. The resolver
// never inspects it; it only threads it through to the closure adapter
// (spec §4.11), which partially applies it to the flake's dependency
// closure.
type Provides interface {
	// Apply partially applies the provides function to the given closure
	// attrset (keyed by dependency flake id) and returns the resulting
	// value, still opaque to the resolver.
	Apply(closure map[string]interface{}) (interface{}, error)
}

// RefKey returns the canonical string used to key caches and maps by
// FlakeRef. It's declared here, rather than in flakeref, only so that
// Store/Downloader implementations built outside this module can key their
// own caches the same way the resolver does.
func RefKey(ref flakeref.FlakeRef) string {
	return ref.String()
}
