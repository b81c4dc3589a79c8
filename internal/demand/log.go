// Package demand records consumer selections in an append-only JSON log and
// aggregates them for the supplier dashboard.
//
// The log file is a single JSON array. Writers serialise on an advisory flock
// held on a sibling "<path>.lock" file, read the whole array, append, write a
// temporary file in the same directory and rename it over the target. Readers
// never lock: rename is atomic, so a reader sees either the old or the new array.
package demand

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mealsense/mealsense_core/internal/models"
	"golang.org/x/sys/unix"
)

// TimestampLayout is the on-disk timestamp format (UTC, second precision)
const TimestampLayout = time.RFC3339

// ErrLogCorrupt means the log file exists but is not a JSON array of entries
var ErrLogCorrupt = errors.New("demand log is corrupt")

// ReadError wraps a failure to read the log
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read demand log %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// AppendError wraps a failure to append to the log
type AppendError struct {
	Path string
	Err  error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append to demand log %s: %v", e.Path, e.Err)
}

func (e *AppendError) Unwrap() error {
	return e.Err
}

// Log is a file-backed demand log. Multiple Log values, in this or other
// processes, may share one path.
type Log struct {
	path string
	now  func() time.Time
}

// LogOption configures a Log
type LogOption func(*Log)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) {
		l.now = now
	}
}

// NewLog returns a Log for path. The file is created on first append.
func NewLog(path string, opts ...LogOption) *Log {
	l := &Log{path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path
func (l *Log) Path() string {
	return l.path
}

// ReadAll returns every entry in append order. A missing file is an empty log.
func (l *Log) ReadAll() ([]models.DemandLogEntry, error) {
	entries, err := readEntries(l.path)
	if err != nil {
		return nil, &ReadError{Path: l.path, Err: err}
	}
	return entries, nil
}

// Append records one selection stamped with the current UTC time.
// Transient I/O failures are retried once; a corrupt log is never overwritten.
func (l *Log) Append(food, originQuery, destQuery string) (models.DemandLogEntry, error) {
	entry := models.DemandLogEntry{
		Timestamp:   l.now().UTC().Truncate(time.Second).Format(TimestampLayout),
		Food:        food,
		Origin:      originQuery,
		Destination: destQuery,
	}

	err := l.appendOnce(entry)
	if err != nil && !errors.Is(err, ErrLogCorrupt) {
		err = l.appendOnce(entry)
	}
	if err != nil {
		return models.DemandLogEntry{}, &AppendError{Path: l.path, Err: err}
	}
	return entry, nil
}

func (l *Log) appendOnce(entry models.DemandLogEntry) error {
	unlock, err := lockFile(l.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := readEntries(l.path)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode entries: %w", err)
	}
	data = append(data, '\n')

	return writeAtomic(l.path, data)
}

func readEntries(path string) ([]models.DemandLogEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.DemandLogEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.DemandLogEntry{}, nil
	}

	var entries []models.DemandLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLogCorrupt, err)
	}
	if entries == nil {
		entries = []models.DemandLogEntry{}
	}
	return entries, nil
}

// lockFile takes an exclusive flock on path, creating it if needed
func lockFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// writeAtomic writes data to a temporary sibling of path and renames it into place
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("failed to write temp file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("failed to sync temp file: %w", err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return cleanup(fmt.Errorf("failed to chmod temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace log: %w", err)
	}
	return nil
}
