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

package depresolve_test

import (
	"testing"

	"github.com/purpleidea/flakelock/internal/depresolve"
)

func TestEnterReleaseAllowsReentryAfterRelease(t *testing.T) {
	g := depresolve.NewGuard()

	release, err := g.Enter("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()

	release2, err := g.Enter("a")
	if err != nil {
		t.Fatalf("unexpected error re-entering after release: %v", err)
	}
	release2()
}

func TestEnterDetectsCycle(t *testing.T) {
	g := depresolve.NewGuard()

	release, err := g.Enter("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	if _, err := g.Enter("a"); err == nil {
		t.Fatalf("expected a CycleError re-entering an in-progress key")
	} else if _, ok := err.(*depresolve.CycleError); !ok {
		t.Fatalf("expected *depresolve.CycleError, got %T: %v", err, err)
	}
}

func TestEnterDistinctKeysDoNotConflict(t *testing.T) {
	g := depresolve.NewGuard()

	releaseA, err := g.Enter("a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer releaseA()

	releaseB, err := g.Enter("b")
	if err != nil {
		t.Fatalf("unexpected error entering a distinct key: %v", err)
	}
	releaseB()
}
