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

// Package ansi is a colourized terminal Logf, adapted from the teacher's
// util/ansi.Logf: same Init()-returns-the-Logf-func shape and the same
// term.IsTerminal check to decide whether to bother with escape sequences
// at all, extended with github.com/fatih/color so that registry trails and
// error kinds are visually distinguishable on a terminal.
package ansi

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Logf prints diagnostic messages to stderr, colourizing them when stderr is
// a terminal and leaving them plain otherwise (e.g. when piped to a log
// file).
type Logf struct {
	// Prefix is prepended to every message. May be empty.
	Prefix string

	mutex      sync.Mutex
	isTerminal bool
	once       sync.Once
}

// Init must be called once before the returned function is used. As a
// convenience, it returns the Logf function itself, mirroring the teacher's
// Logf.Init() signature.
func (l *Logf) Init() func(format string, v ...interface{}) {
	l.once.Do(func() {
		l.isTerminal = term.IsTerminal(int(os.Stderr.Fd()))
	})
	return l.Logf
}

// Logf prints a plain, uncoloured message.
func (l *Logf) Logf(format string, v ...interface{}) {
	l.print(nil, format, v...)
}

// Errorf prints a message in red, used for error kinds named in spec §7.
func (l *Logf) Errorf(format string, v ...interface{}) {
	l.print(color.New(color.FgRed, color.Bold), format, v...)
}

// Warnf prints a message in yellow.
func (l *Logf) Warnf(format string, v ...interface{}) {
	l.print(color.New(color.FgYellow), format, v...)
}

// Trailf prints a registry resolution trail in cyan, used by the
// `registry resolve` diagnostic command.
func (l *Logf) Trailf(format string, v ...interface{}) {
	l.print(color.New(color.FgCyan), format, v...)
}

func (l *Logf) print(c *color.Color, format string, v ...interface{}) {
	s := fmt.Sprintf(format, v...)

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if c == nil || !l.isTerminal {
		fmt.Fprintln(os.Stderr, l.Prefix+s)
		return
	}
	c.Fprintln(os.Stderr, l.Prefix+s)
}
