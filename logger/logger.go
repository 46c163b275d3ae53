/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package logger

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the capability every other package of this module depends on
// for structured, trace-correlated logging (component C1).
type Logger interface {
	Entry(lvl Level, message string) *Entry
	SetLevel(lvl Level)
	GetLevel() Level
	WithField(key string, val string) Logger
}

type logger struct {
	mu  sync.RWMutex
	lg  *logrus.Logger
	lvl Level
	def Fields
}

// New returns a Logger writing JSON-formatted entries to stderr.
func New(lvl Level) Logger {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)
	lg.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	lg.SetLevel(lvl.Logrus())

	return &logger{
		lg:  lg,
		lvl: lvl,
		def: NewFields(),
	}
}

func (l *logger) get() *logrus.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lg
}

func (l *logger) Entry(lvl Level, message string) *Entry {
	return &Entry{
		log:     l.get,
		Time:    time.Now(),
		Level:   lvl,
		Message: message,
		Fields:  l.defaultFields(),
	}
}

func (l *logger) defaultFields() Fields {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.def
}

func (l *logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lvl = lvl
	l.lg.SetLevel(lvl.Logrus())
}

func (l *logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lvl
}

// WithField returns a derived Logger that stamps every entry with key/val,
// e.g. WithField("component", "connpool").
func (l *logger) WithField(key string, val string) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return &logger{
		lg:  l.lg,
		lvl: l.lvl,
		def: l.def.Add(key, val),
	}
}

var (
	defaultOnce sync.Once
	defaultInst Logger
)

// Default returns the process-wide Logger, created lazily at InfoLevel.
func Default() Logger {
	defaultOnce.Do(func() {
		defaultInst = New(InfoLevel)
	})
	return defaultInst
}

// SetDefault overrides the process-wide Logger returned by Default.
func SetDefault(l Logger) {
	defaultOnce.Do(func() {})
	defaultInst = l
}
