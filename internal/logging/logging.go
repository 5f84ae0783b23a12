// Package logging sets up the subsystem loggers. A single backend writes to
// the command's output and, optionally, a rotated log file; every subsystem
// logger is created from it.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// Subsystem identifiers.
const (
	SubRandomX = "RNDX"
	SubMiner   = "MINR"
	SubJobs    = "JOBS"
	SubCPU     = "CPUT"
	SubConfig  = "CONF"
)

// Rotation parameters: roll at 10 MiB, keep 3 old files.
const (
	rotateThresholdKB = 10 * 1024
	rotateKeep        = 3
)

// ErrInvalidLevel indicates a debug level spec that does not parse.
var ErrInvalidLevel = errors.New("logging: invalid debug level")

// Logging owns the backend and its subsystem loggers. Loggers are handed to
// components explicitly; there are no package globals.
type Logging struct {
	backend *btclog.Backend
	rotator *rotator.Rotator

	mu      sync.Mutex
	loggers map[string]btclog.Logger
}

// Options configure [New].
type Options struct {
	// Out receives every log line. Nil discards console output.
	Out io.Writer

	// File, if set, additionally receives log lines, rotated by size.
	File string

	// Level is a debug level spec, see [Logging.SetLevels].
	Level string
}

// New creates the backend and every known subsystem logger.
func New(opts Options) (*Logging, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	l := &Logging{loggers: make(map[string]btclog.Logger)}

	if opts.File != "" {
		err := os.MkdirAll(filepath.Dir(opts.File), 0o700)
		if err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		r, err := rotator.New(opts.File, rotateThresholdKB, false, rotateKeep)
		if err != nil {
			return nil, fmt.Errorf("create file rotator: %w", err)
		}

		l.rotator = r
		out = teeWriter{out, r}
	}

	l.backend = btclog.NewBackend(out)

	for _, sub := range Subsystems() {
		l.loggers[sub] = l.backend.Logger(sub)
	}

	level := opts.Level
	if level == "" {
		level = "info"
	}

	err := l.SetLevels(level)
	if err != nil {
		_ = l.Close()

		return nil, err
	}

	return l, nil
}

// Subsystems returns the known subsystem identifiers, sorted.
func Subsystems() []string {
	subs := []string{SubRandomX, SubMiner, SubJobs, SubCPU, SubConfig}
	slices.Sort(subs)

	return subs
}

// Logger returns the logger for sub. Unknown subsystems are created on
// demand at the info level.
func (l *Logging) Logger(sub string) btclog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	lg, ok := l.loggers[sub]
	if !ok {
		lg = l.backend.Logger(sub)
		lg.SetLevel(btclog.LevelInfo)
		l.loggers[sub] = lg
	}

	return lg
}

// SetLevels applies a level spec: either a single level for every subsystem
// ("debug") or comma separated SUB=level pairs ("RNDX=debug,MINR=trace").
func (l *Logging) SetLevels(spec string) error {
	levels, err := ParseLevels(spec)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if lvl, ok := levels[""]; ok {
		for _, lg := range l.loggers {
			lg.SetLevel(lvl)
		}
	}

	for sub, lvl := range levels {
		if sub == "" {
			continue
		}

		l.loggers[sub].SetLevel(lvl)
	}

	return nil
}

// ParseLevels validates a level spec. A bare level is returned under the
// empty key.
func ParseLevels(spec string) (map[string]btclog.Level, error) {
	out := make(map[string]btclog.Level)

	if !strings.Contains(spec, "=") && !strings.Contains(spec, ",") {
		lvl, ok := btclog.LevelFromString(spec)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, spec)
		}

		out[""] = lvl

		return out, nil
	}

	for pair := range strings.SplitSeq(spec, ",") {
		sub, name, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not SUB=level", ErrInvalidLevel, pair)
		}

		if !slices.Contains(Subsystems(), sub) {
			return nil, fmt.Errorf("%w: unknown subsystem %q (supported: %s)",
				ErrInvalidLevel, sub, strings.Join(Subsystems(), ", "))
		}

		lvl, ok := btclog.LevelFromString(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, name)
		}

		out[sub] = lvl
	}

	return out, nil
}

// Close closes the log file, if any.
func (l *Logging) Close() error {
	if l.rotator == nil {
		return nil
	}

	return l.rotator.Close()
}

type teeWriter struct {
	console io.Writer
	file    io.Writer
}

func (w teeWriter) Write(p []byte) (int, error) {
	_, _ = w.console.Write(p)
	_, _ = w.file.Write(p)

	return len(p), nil
}
