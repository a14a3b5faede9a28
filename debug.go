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
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// debugEnabled controls whether debug output also goes to the console.
// The session log, when open, receives every entry regardless.
var debugEnabled atomic.Bool

var logger = newLogger()

func init() {
	level := os.Getenv("MFRC522_DEBUG")
	if level == "" {
		level = os.Getenv("DEBUG")
	}
	if level != "" {
		debugEnabled.Store(true)
	}
	if strings.EqualFold(level, "trace") {
		logger.SetLevel(logrus.TraceLevel)
	}
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(debugSink{})
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// debugSink routes formatted entries to the session log and, when debugging
// is enabled, to stdout.
type debugSink struct{}

func (debugSink) Write(p []byte) (int, error) {
	if w := sessionWriter(); w != nil {
		_, _ = w.Write(p)
	}
	if debugEnabled.Load() {
		_, _ = os.Stdout.Write(p)
	}
	return len(p), nil
}

// Logger returns the shared logger so other packages log through the same sinks.
func Logger() *logrus.Logger {
	return logger
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}

// Debugln logs its operands as a debug message.
func Debugln(args ...any) {
	logger.Debugln(args...)
}

// Tracef logs register-level traffic. It is only emitted at trace level
// (MFRC522_DEBUG=trace or SetTraceEnabled).
func Tracef(format string, args ...any) {
	logger.Tracef(format, args...)
}

// SetDebugEnabled allows programmatic control of console debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// SetTraceEnabled switches register-level tracing on or off.
func SetTraceEnabled(enabled bool) {
	if enabled {
		logger.SetLevel(logrus.TraceLevel)
		return
	}
	logger.SetLevel(logrus.DebugLevel)
}

// traceEnabled avoids formatting register traffic that would be discarded.
func traceEnabled() bool {
	return logger.IsLevelEnabled(logrus.TraceLevel)
}

var _ io.Writer = debugSink{}
