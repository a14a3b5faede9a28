// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mfrc522

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"github.com/sirupsen/logrus"
)

// sessionLog is a file that receives every log entry, whatever the console
// level, while it is open.
type sessionLog struct {
	w    io.Writer
	file *os.File
	path string
	mu   syncutil.Mutex
}

var session sessionLog

// sessionWriter returns the open session file or nil.
func sessionWriter() io.Writer {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.w
}

// InitSessionLog opens a new session log in the current directory and
// returns its path.
func InitSessionLog() (string, error) {
	return InitSessionLogIn(".")
}

// InitSessionLogIn opens a new session log in dir. A session that is
// already open is closed first.
func InitSessionLogIn(dir string) (string, error) {
	name := fmt.Sprintf("mfrc522_%s.log", time.Now().Format("20060102_150405"))
	path := name
	if dir != "." && dir != "" {
		path = filepath.Join(dir, name)
	}

	file, err := os.Create(path) //nolint:gosec // name is generated here
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.file != nil {
		closeSessionLocked()
	}
	writeSessionEntry(file, "debug session started", sessionFields())
	session.w = file
	session.file = file
	session.path = path
	return path, nil
}

// CloseSessionLog writes the closing entry and closes the session log.
// It is a no-op when no session is open.
func CloseSessionLog() error {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.file == nil {
		return nil
	}
	if err := closeSessionLocked(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the path of the open session log, or "".
func GetSessionLogPath() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.path
}

func closeSessionLocked() error {
	writeSessionEntry(session.file, "debug session ended", nil)
	err := session.file.Close()
	session.w = nil
	session.file = nil
	session.path = ""
	return err
}

func sessionFields() logrus.Fields {
	fields := logrus.Fields{
		"pid":  os.Getpid(),
		"os":   runtime.GOOS + "/" + runtime.GOARCH,
		"go":   runtime.Version(),
		"args": strings.Join(os.Args, " "),
	}
	if exe, err := os.Executable(); err == nil {
		fields["exe"] = exe
	}
	return fields
}

// writeSessionEntry formats an info entry with the shared formatter and
// writes it to w only, bypassing the console.
func writeSessionEntry(w io.Writer, msg string, fields logrus.Fields) {
	entry := logrus.NewEntry(logger).WithFields(fields)
	entry.Time = time.Now()
	entry.Level = logrus.InfoLevel
	entry.Message = msg
	b, err := logger.Formatter.Format(entry)
	if err != nil {
		return
	}
	_, _ = w.Write(b)
}
