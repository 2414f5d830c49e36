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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	cli "github.com/urfave/cli/v2" // imports as package "cli"

	"github.com/purpleidea/flakelock/fetch"
	"github.com/purpleidea/flakelock/flake"
	"github.com/purpleidea/flakelock/flakeref"
	"github.com/purpleidea/flakelock/internal/ansi"
	"github.com/purpleidea/flakelock/internal/errwrap"
	"github.com/purpleidea/flakelock/internal/evalstub"
	"github.com/purpleidea/flakelock/internal/gitexport"
	"github.com/purpleidea/flakelock/internal/httpdl"
	"github.com/purpleidea/flakelock/internal/storepath"
	"github.com/purpleidea/flakelock/internal/wellknown"
	"github.com/purpleidea/flakelock/registry"
	"github.com/purpleidea/flakelock/resolve"
)

// Program names this binary, used to namespace its config/cache directories.
const Program = wellknown.ProgramName

// Version is a fixed build identifier; unlike the teacher's go:generate/
// go:embed pair (.program/.version populated from git describe), this repo
// has no release-tagging infrastructure yet, so it's a plain constant.
const Version = "0.1.0"

// Config mirrors the teacher's Config struct in cmd/yesiscan/main.go: a
// pointer-per-field shape so the zero value of each field is
// distinguishable from "explicitly set to the zero value" when layering
// flags on top of a loaded file.
type Config struct {
	// Pure disables the global/user/local registries, matching spec §4.3.
	Pure *bool `json:"pure"`

	// RegistryPath is the flag-supplied registry file (spec §4.3, highest
	// priority).
	RegistryPath *string `json:"registry-path"`

	// CacheDir is the root directory for downloaded tarballs and git
	// clones.
	CacheDir *string `json:"cache-dir"`

	// StoreRoot is the root directory the reference store implementation
	// restricts paths to.
	StoreRoot *string `json:"store-root"`
}

// GetConfig loads the config file data into a struct, following the
// teacher's "no config, no error" convention in GetConfig.
func GetConfig(configPath string) (*Config, error) {
	if configPath == "" {
		p, err := wellknown.ConfigPath()
		if err != nil {
			return nil, errwrap.Wrapf(err, "error finding config path")
		}
		configPath = p
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, nil // no config, no error
	}
	if err != nil {
		return nil, errwrap.Wrapf(err, "error reading config file")
	}

	buffer := bytes.NewBuffer(data)
	if buffer.Len() == 0 {
		return nil, fmt.Errorf("empty config file: %s", configPath)
	}

	var configData Config
	if err := json.NewDecoder(buffer).Decode(&configData); err != nil {
		return nil, errwrap.Wrapf(err, "error decoding json config: %s", configPath)
	}
	return &configData, nil
}

// env bundles the collaborators every subcommand needs, assembled once from
// flags/config.
type env struct {
	pure      bool
	globalReg *registry.Registry
	userReg   *registry.Registry
	flagReg   *registry.Registry
	cacheDir  string
	storeRoot string
	logf      func(format string, v ...interface{})
}

func buildEnv(c *cli.Context, logf func(format string, v ...interface{})) (*env, error) {
	config, err := GetConfig(c.String("config-path"))
	if err != nil {
		return nil, err
	}

	pure := false
	registryPath := ""
	cacheDir := ""
	storeRoot := ""
	if config != nil {
		if config.Pure != nil {
			pure = *config.Pure
		}
		if config.RegistryPath != nil {
			registryPath = *config.RegistryPath
		}
		if config.CacheDir != nil {
			cacheDir = *config.CacheDir
		}
		if config.StoreRoot != nil {
			storeRoot = *config.StoreRoot
		}
	}

	if c.IsSet("pure") {
		pure = c.Bool("pure")
	}
	if c.IsSet("registry-path") {
		registryPath = c.String("registry-path")
	}
	if c.IsSet("cache-dir") {
		cacheDir = c.String("cache-dir")
	}
	if c.IsSet("store-root") {
		storeRoot = c.String("store-root")
	}

	if cacheDir == "" {
		home, err := os.UserCacheDir()
		if err != nil {
			return nil, errwrap.Wrapf(err, "error finding cache directory")
		}
		cacheDir = filepath.Join(home, Program)
	}
	if storeRoot == "" {
		storeRoot = filepath.Join(cacheDir, "store")
	}

	globalRegPath := wellknown.SystemRegistryPath(os.Getenv("XDG_DATA_HOME"))
	globalReg, err := registry.Load(globalRegPath)
	if err != nil {
		return nil, err
	}

	userRegPath, err := wellknown.UserRegistryPath()
	if err != nil {
		return nil, err
	}
	userReg, err := registry.Load(userRegPath)
	if err != nil {
		return nil, err
	}

	flagReg := registry.New()
	if registryPath != "" {
		flagReg, err = registry.Load(registryPath)
		if err != nil {
			return nil, err
		}
	}

	return &env{
		pure:      pure,
		globalReg: globalReg,
		userReg:   userReg,
		flagReg:   flagReg,
		cacheDir:  cacheDir,
		storeRoot: storeRoot,
		logf:      logf,
	}, nil
}

// stack assembles the full global < user < local < flag registry stack
// (spec §4.3). localDir is the directory of the flake being resolved, whose
// sibling registry.json (if any) becomes the local registry; callers with
// no specific flake in scope (e.g. the standalone `registry resolve`
// diagnostic) pass the current working directory.
func (e *env) stack(localDir string) (*registry.Stack, error) {
	localReg, err := registry.Load(wellknown.LocalRegistryPath(localDir))
	if err != nil {
		return nil, err
	}

	s := registry.NewStack(e.globalReg, e.userReg, localReg, e.flagReg)
	if e.pure {
		return s.Pure(), nil
	}
	return s, nil
}

func (e *env) resolver(localDir string) (*resolve.Resolver, error) {
	stack, err := e.stack(localDir)
	if err != nil {
		return nil, err
	}

	store := &storepath.Store{Root: e.storeRoot}
	downloader := &httpdl.Downloader{CacheDir: filepath.Join(e.cacheDir, "http"), Logf: e.logf}
	exporter := &gitexport.Exporter{CacheDir: filepath.Join(e.cacheDir, "git"), Logf: e.logf}

	fetcher := &fetch.Fetcher{
		Downloader:  downloader,
		GitExporter: exporter,
		Store:       store,
		Logf:        e.logf,
	}
	loader := &flake.Loader{Evaluator: evalstub.Evaluator{}}

	r := resolve.NewResolver(stack, fetcher, loader)
	r.Logf = e.logf
	return r, nil
}

// CLI is the entry point for the CLI frontend, directly modeled on the
// teacher's cmd/yesiscan/main.go CLI function: one *cli.App with a root
// action and a handful of subcommands, flags layered over a JSON config
// file.
func CLI(logf func(format string, v ...interface{})) error {
	flags := []cli.Flag{
		&cli.BoolFlag{Name: "pure"},
		&cli.StringFlag{Name: "config-path"},
		&cli.StringFlag{Name: "registry-path"},
		&cli.StringFlag{Name: "cache-dir"},
		&cli.StringFlag{Name: "store-root"},
	}

	app := &cli.App{
		Name:                 Program,
		Usage:                "resolve a flake and its dependency closure into a lock file",
		Version:              Version,
		Flags:                flags,
		EnableBashCompletion: true,

		Commands: []*cli.Command{
			{
				Name:  "lock",
				Usage: "resolve a local flake's dependency closure and write flake.lock",
				Flags: flags,
				Action: func(c *cli.Context) error {
					path := c.Args().Get(0)
					if path == "" {
						path = "."
					}
					abs, err := filepath.Abs(path)
					if err != nil {
						return errwrap.Wrapf(err, "error resolving path %s", path)
					}

					e, err := buildEnv(c, logf)
					if err != nil {
						return err
					}

					ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
					defer stop()

					r, err := e.resolver(abs)
					if err != nil {
						return err
					}
					if err := r.UpdateLockFile(ctx, abs); err != nil {
						return err
					}
					logf("lock: wrote %s", wellknown.LockFilePath(abs))
					return nil
				},
			},
			{
				Name:  "registry",
				Usage: "inspect or modify the user registry",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "add or replace an alias mapping in the user registry",
						ArgsUsage: "<alias> <target>",
						Flags:     flags,
						Action: func(c *cli.Context) error {
							if c.NArg() < 2 {
								return fmt.Errorf("registry add requires an alias and a target reference")
							}
							key, err := flakeref.Parse(c.Args().Get(0))
							if err != nil {
								return err
							}
							target, err := flakeref.Parse(c.Args().Get(1))
							if err != nil {
								return err
							}

							path, err := wellknown.UserRegistryPath()
							if err != nil {
								return err
							}
							reg, err := registry.Load(path)
							if err != nil {
								return err
							}
							reg.Set(key, target)
							return reg.Write(path)
						},
					},
					{
						Name:  "list",
						Usage: "list the user registry's entries",
						Flags: flags,
						Action: func(c *cli.Context) error {
							path, err := wellknown.UserRegistryPath()
							if err != nil {
								return err
							}
							reg, err := registry.Load(path)
							if err != nil {
								return err
							}
							for _, m := range reg.Entries() {
								fmt.Printf("%s -> %s\n", m.Key.String(), m.Target.String())
							}
							return nil
						},
					},
					{
						Name:      "remove",
						Usage:     "remove an alias mapping from the user registry",
						ArgsUsage: "<alias>",
						Flags:     flags,
						Action: func(c *cli.Context) error {
							if c.NArg() < 1 {
								return fmt.Errorf("registry remove requires an alias")
							}
							key, err := flakeref.Parse(c.Args().Get(0))
							if err != nil {
								return err
							}

							path, err := wellknown.UserRegistryPath()
							if err != nil {
								return err
							}
							reg, err := registry.Load(path)
							if err != nil {
								return err
							}
							if !reg.Delete(key) {
								return fmt.Errorf("no such entry: %s", key.String())
							}
							return reg.Write(path)
						},
					},
					{
						Name:      "resolve",
						Usage:     "print the registry resolution trail for a reference, without fetching it",
						ArgsUsage: "<ref>",
						Flags:     flags,
						Action: func(c *cli.Context) error {
							if c.NArg() < 1 {
								return fmt.Errorf("registry resolve requires a reference")
							}
							ref, err := flakeref.Parse(c.Args().Get(0))
							if err != nil {
								return err
							}

							e, err := buildEnv(c, logf)
							if err != nil {
								return err
							}

							cwd, err := os.Getwd()
							if err != nil {
								return errwrap.Wrapf(err, "error finding working directory")
							}
							stack, err := e.stack(cwd)
							if err != nil {
								return err
							}

							var trail ansi.Logf
							trail.Init()
							trailf := trail.Trailf

							resolved, hops, err := registry.ResolveTrail(ref, stack)
							trailf("registry: %s", ref.String())
							for _, hop := range hops {
								trailf("  -> %s", hop.String())
							}
							if err != nil {
								trailf("registry: %s did not resolve: %v", ref.String(), err)
								return err
							}
							fmt.Println(resolved.String())
							return nil
						},
					},
				},
			},
		},
	}

	return app.Run(os.Args)
}

func main() {
	var l ansi.Logf
	l.Prefix = "flakelock: "
	logf := l.Init()

	if err := CLI(logf); err != nil {
		l.Errorf("failed: %+v", errwrap.Cause(err))
		os.Exit(1)
	}
	os.Exit(0)
}
