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

// Package evalstub is a reference implementation of the expression
// evaluator collaborator named in spec §6. The real Nix expression
// evaluator is explicitly out of scope (spec §1); this package evaluates a
// JSON-encoded subset of flake.nix attributes instead, sufficient to
// exercise the flake loader (§4.6) end to end without a real evaluator
// present. It is the flake-loader's equivalent of the teacher's
// parser.TrivialURIParser: a small, concrete default standing in for an
// interface the core never assumes a single implementation of.
package evalstub

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/purpleidea/flakelock/interfaces"
	"github.com/purpleidea/flakelock/internal/errwrap"
)

// wireFlake is the on-disk shape a flake.nix file takes under this
// evaluator: plain JSON rather than the Nix expression language.
type wireFlake struct {
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Requires         []string          `json:"requires"`
	NonFlakeRequires map[string]string `json:"nonFlakeRequires"`
	Provides         json.RawMessage   `json:"provides"`
}

// Evaluator implements interfaces.Evaluator by decoding a flake.nix file as
// JSON.
type Evaluator struct{}

// EvalFile reads and decodes path as a wireFlake, returning it wrapped as
// an AttrSet.
func (Evaluator) EvalFile(path string) (interfaces.AttrSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading %s", path)
	}

	var wf wireFlake
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, errwrap.Wrapf(err, "error decoding %s as JSON flake metadata", path)
	}

	return &AttrSet{wf: wf}, nil
}

// AttrSet implements interfaces.AttrSet over a decoded wireFlake.
type AttrSet struct {
	wf wireFlake
}

// String looks up a string-valued attribute. Only "name" and "description"
// are recognized.
func (a *AttrSet) String(name string) (string, bool, error) {
	switch name {
	case "name":
		return a.wf.Name, a.wf.Name != "", nil
	case "description":
		return a.wf.Description, a.wf.Description != "", nil
	default:
		return "", false, nil
	}
}

// StringList looks up a list-of-strings-valued attribute. Only "requires"
// is recognized.
func (a *AttrSet) StringList(name string) ([]string, bool, error) {
	if name != "requires" {
		return nil, false, nil
	}
	return a.wf.Requires, len(a.wf.Requires) > 0, nil
}

// StringMap looks up an attrset-of-strings-valued attribute. Only
// "nonFlakeRequires" is recognized.
func (a *AttrSet) StringMap(name string) (map[string]string, bool, error) {
	if name != "nonFlakeRequires" {
		return nil, false, nil
	}
	return a.wf.NonFlakeRequires, len(a.wf.NonFlakeRequires) > 0, nil
}

// Provides returns the required provides attribute, decoded as an opaque
// JSON value and wrapped so it can later be partially applied to a
// dependency closure.
func (a *AttrSet) Provides() (interfaces.Provides, bool, error) {
	if len(a.wf.Provides) == 0 {
		return nil, false, nil
	}
	var v interface{}
	if err := json.Unmarshal(a.wf.Provides, &v); err != nil {
		return nil, false, errwrap.Wrapf(err, "error decoding provides attribute")
	}
	return &Provides{value: v}, true, nil
}

// Provides is an opaque callable value, standing in for a real Nix
// function. Apply merges the caller's dependency closure into the stored
// value rather than truly evaluating a function, which is the best this
// stub can do without a real expression evaluator.
type Provides struct {
	value interface{}
}

// Apply partially applies this provides value to closure, returning a
// combined value. Since this stub has no function semantics to evaluate,
// it returns a record pairing the flake's own declared value with the
// dependency closure it was given, which is exactly the shape a real
// evaluator's partial application would need to expose to the caller.
func (p *Provides) Apply(closure map[string]interface{}) (interface{}, error) {
	if p == nil {
		return nil, fmt.Errorf("evalstub: provides value is nil")
	}
	return map[string]interface{}{
		"value":        p.value,
		"dependencies": closure,
	}, nil
}
