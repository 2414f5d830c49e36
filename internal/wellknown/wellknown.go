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

// Package wellknown resolves the fixed filesystem locations named in spec
// §6, using github.com/mitchellh/go-homedir for the home directory lookup
// instead of the teacher's os.UserHomeDir() call in cmd/yesiscan/main.go, so
// that it keeps working under misconfigured or cross-compiled environments
// where $HOME / os/user can't be resolved via cgo.
package wellknown

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// ProgramName is used to namespace the config and cache directories.
const ProgramName = "flakelock"

// UserRegistryPath returns $HOME/.config/nix/registry.json (spec §6).
func UserRegistryPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "nix", "registry.json"), nil
}

// SystemRegistryPath returns <dataDir>/nix/flake-registry.json (spec §6).
// dataDir defaults to /etc/xdg when unset, matching common XDG conventions.
func SystemRegistryPath(dataDir string) string {
	if dataDir == "" {
		dataDir = "/etc/xdg"
	}
	return filepath.Join(dataDir, "nix", "flake-registry.json")
}

// LocalRegistryPath returns <flakeDir>/registry.json (spec §4.3's "local"
// entry in the global < user < local < flag stack): a registry a flake may
// ship alongside its own flake.nix to vendor or override alias targets for
// anyone resolving that flake, without touching the user's own registry.
func LocalRegistryPath(flakeDir string) string {
	return filepath.Join(flakeDir, "registry.json")
}

// ConfigPath returns $HOME/.config/flakelock/config.json.
func ConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", ProgramName, "config.json"), nil
}

// LockFilePath returns {flakePath}/flake.lock (spec §6).
func LockFilePath(flakePath string) string {
	return filepath.Join(flakePath, "flake.lock")
}

// FlakeFilePath returns {flakePath}/flake.nix.
func FlakeFilePath(flakePath string) string {
	return filepath.Join(flakePath, "flake.nix")
}
