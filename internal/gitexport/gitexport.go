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

// Package gitexport implements the git exporter collaborator named in spec
// §6 on top of github.com/go-git/go-git/v5. It is adapted directly from the
// teacher's iterator/git.go: the same plain-clone-or-open, hash/ref/rev
// resolution, and "ask origin for its HEAD branch" fallback when nothing is
// pinned.
package gitexport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/purpleidea/flakelock/internal/errwrap"
)

// GitProgram is the name of the git executable, needed for the one
// operation (discovering the remote's default branch) that isn't cleanly
// exposed by the go-git API.
const GitProgram = "git"

// Exporter implements interfaces.GitExporter by cloning (or opening an
// existing clone of) a repository under CacheDir, checking out the
// requested ref/rev, and returning the resulting working tree path.
type Exporter struct {
	// CacheDir is the root directory under which per-repository clones are
	// kept, keyed by a hash of their URI. Analogous to the teacher's
	// Prefix + "git/" convention in iterator/git.go.
	CacheDir string

	Logf func(format string, v ...interface{})

	mu    sync.Mutex
	byURI map[string]*sync.Mutex
}

func (e *Exporter) logf(format string, v ...interface{}) {
	if e.Logf != nil {
		e.Logf(format, v...)
	}
}

// lockFor returns (creating if necessary) the per-URI mutex that serializes
// clones/checkouts of the same repository, mirroring the teacher's
// gitMutexes map in iterator/git.go.
func (e *Exporter) lockFor(uri string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byURI == nil {
		e.byURI = make(map[string]*sync.Mutex)
	}
	mu, ok := e.byURI[uri]
	if !ok {
		mu = &sync.Mutex{}
		e.byURI[uri] = mu
	}
	return mu
}

// ExportGit clones or opens uri, checks out ref or rev (or the repository's
// default HEAD if neither is given, which is also the case for a local Path
// export of a working tree), and returns the resulting directory, the
// resolved commit hash, and a commit-depth count.
func (e *Exporter) ExportGit(ctx context.Context, uri, ref, rev, name string) (string, string, *int, error) {
	mu := e.lockFor(uri)
	mu.Lock()
	defer mu.Unlock()

	sum := sha256.Sum256([]byte(uri))
	dir := filepath.Join(e.CacheDir, fmt.Sprintf("%x", sum))
	if err := os.MkdirAll(filepath.Dir(dir), 0770); err != nil {
		return "", "", nil, err
	}

	isLocalWorkingTree := ref == "" && rev == "" && isLocalPath(uri)

	e.logf("gitexport: cloning/opening %s into %s", uri, dir)
	repository, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:               uri,
		RecurseSubmodules: git.NoRecurseSubmodules,
	})
	if err == git.ErrRepositoryAlreadyExists {
		repository, err = git.PlainOpen(dir)
		if err != nil {
			return "", "", nil, errwrap.Wrapf(err, "error opening repository at %s", dir)
		}
	} else if err != nil {
		return "", "", nil, errwrap.Wrapf(err, "error cloning %s", uri)
	}

	var hash plumbing.Hash
	switch {
	case rev != "":
		pHash, err := repository.ResolveRevision(plumbing.Revision(rev))
		if err != nil {
			return "", "", nil, errwrap.Wrapf(err, "error resolving rev %s", rev)
		}
		hash = *pHash
	case ref != "":
		h, err := getCommitFromRef(repository, plumbing.ReferenceName(ref))
		if err != nil {
			return "", "", nil, errwrap.Wrapf(err, "error resolving ref %s", ref)
		}
		hash = h
	case isLocalWorkingTree:
		head, err := repository.Head()
		if err != nil {
			return "", "", nil, errwrap.Wrapf(err, "error reading HEAD of %s", uri)
		}
		hash = head.Hash()
	default:
		h, err := defaultBranchHash(ctx, repository, dir, e.logf)
		if err != nil {
			return "", "", nil, err
		}
		hash = h
	}

	if !isLocalWorkingTree {
		head, err := repository.Head()
		if err != nil {
			return "", "", nil, errwrap.Wrapf(err, "error reading HEAD of %s", uri)
		}
		if hash.String() != head.Hash().String() {
			worktree, err := repository.Worktree()
			if err != nil {
				return "", "", nil, errwrap.Wrapf(err, "error opening worktree of %s", uri)
			}
			if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash}); err != nil {
				return "", "", nil, errwrap.Wrapf(err, "error checking out %s", hash.String())
			}
		}
	}

	revCount, err := commitDepth(repository, hash)
	if err != nil {
		return "", "", nil, errwrap.Wrapf(err, "error counting commits reachable from %s", hash.String())
	}

	return dir, hash.String(), &revCount, nil
}

// getCommitFromRef resolves a reference name to a commit hash, dereferencing
// annotated tag objects to the commit they point at (adapted from the
// teacher's getCommitFromRef in iterator/git.go). A lightweight tag or
// branch ref's hash is already a commit hash; an annotated tag's hash names
// a tag object, which must be unwrapped to reach the commit it tags.
func getCommitFromRef(repository *git.Repository, name plumbing.ReferenceName) (plumbing.Hash, error) {
	b, err := repository.Reference(name, true)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if !b.Name().IsTag() {
		return b.Hash(), nil
	}

	o, err := repository.Object(plumbing.AnyObject, b.Hash())
	if err != nil {
		return plumbing.ZeroHash, err
	}

	switch o := o.(type) {
	case *object.Tag:
		if o.TargetType != plumbing.CommitObject {
			return plumbing.ZeroHash, fmt.Errorf("unsupported tag object target %q", o.TargetType)
		}
		return o.Target, nil
	case *object.Commit:
		return o.Hash, nil
	}

	return plumbing.ZeroHash, fmt.Errorf("unsupported tag target %q", o.Type())
}

// defaultBranchHash shells out to `git remote show origin` to find the
// remote's default branch, the same workaround the teacher uses in
// iterator/git.go because go-git doesn't expose this cleanly.
func defaultBranchHash(ctx context.Context, repository *git.Repository, dir string, logf func(string, ...interface{})) (plumbing.Hash, error) {
	args := []string{"remote", "show", "origin"}
	cmd := exec.CommandContext(ctx, GitProgram, args...)
	cmd.Dir = dir
	cmd.Env = []string{}

	out, err := cmd.Output()
	if err != nil {
		return plumbing.ZeroHash, errwrap.Wrapf(err, "error running: %s %s", GitProgram, strings.Join(args, " "))
	}

	scanner := bufio.NewScanner(bytes.NewBuffer(out))
	prefix := "HEAD branch: "
	branch := ""
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(s, prefix) {
			branch = s[len(prefix):]
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return plumbing.ZeroHash, errwrap.Wrapf(err, "could not read git command output")
	}
	if branch == "" {
		return plumbing.ZeroHash, fmt.Errorf("could not find default HEAD in remote origin list")
	}
	if logf != nil {
		logf("gitexport: default HEAD is at %s", branch)
	}

	return getCommitFromRef(repository, plumbing.NewRemoteReferenceName("origin", branch))
}

// commitDepth counts the number of commits reachable from hash, used as the
// revCount field of the fetch result (spec §3 Flake.revCount).
func commitDepth(repository *git.Repository, hash plumbing.Hash) (int, error) {
	iter, err := repository.Log(&git.LogOptions{From: hash})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	err = iter.ForEach(func(_ *object.Commit) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// isLocalPath reports whether uri looks like a local filesystem path rather
// than a remote git URL.
func isLocalPath(uri string) bool {
	return strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "./") || strings.HasPrefix(uri, "../")
}
