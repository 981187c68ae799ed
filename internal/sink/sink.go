// Package sink writes collected telemetry to the filesystem, one
// self-contained JSON document per stat per poll:
//
//	<root>/<device>/<stat>/<YYYYmmdd_HHMMSS>.json
//	<root>/<device>/events/events.json   (client event history)
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// fileStamp names poll documents.
	fileStamp = "20060102_150405"
	// noteStamp prefixes README notes.
	noteStamp = "20060102 150405"

	eventsDir  = "events"
	eventsFile = "events.json"
	readmeFile = "README.txt"
)

// Config holds the sink settings.
type Config struct {
	Root string `mapstructure:"root"`
}

// DefaultConfig returns the default sink settings.
func DefaultConfig() Config {
	return Config{Root: "devices"}
}

// Record is the document written for one stat of one poll. Exactly one of
// Result and Error is set.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// FileSink stores records under a root directory.
type FileSink struct {
	root   string
	now    func() time.Time
	logger *zap.Logger

	mu sync.Mutex // serializes events.json read-modify-write
}

// New creates a file sink rooted at cfg.Root.
func New(cfg Config, logger *zap.Logger) *FileSink {
	root := cfg.Root
	if root == "" {
		root = DefaultConfig().Root
	}
	return &FileSink{root: root, now: time.Now, logger: logger}
}

// Root returns the root directory.
func (s *FileSink) Root() string { return s.root }

// Dir returns the directory holding stat documents for a device.
func (s *FileSink) Dir(deviceID, stat string) string {
	return filepath.Join(s.root, deviceID, stat)
}

// Prepare creates the stat directories of a device and, when note is not
// empty, appends it to each directory's README.txt with a timestamp.
func (s *FileSink) Prepare(deviceID string, stats []string, note string) error {
	for _, stat := range stats {
		dir := s.Dir(deviceID, stat)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create stat dir: %w", err)
		}
		if note == "" {
			continue
		}
		if err := s.appendNote(filepath.Join(dir, readmeFile), note); err != nil {
			return err
		}
	}
	s.logger.Debug("sink prepared",
		zap.String("device", deviceID),
		zap.Strings("stats", stats),
	)
	return nil
}

func (s *FileSink) appendNote(path, note string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open readme: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s: %s\n", s.now().Format(noteStamp), note); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	return nil
}

// Store writes one record for stat. polledAt names the file so every stat
// of one poll shares the same name; the record timestamp is the write time.
// A non-nil resultErr is stored in place of result. Store returns the path
// written.
func (s *FileSink) Store(deviceID, stat string, polledAt time.Time, result any, resultErr error) (string, error) {
	rec := Record{Timestamp: s.now()}
	if resultErr != nil {
		rec.Error = resultErr.Error()
	} else {
		rec.Result = result
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal %s record: %w", stat, err)
	}

	path := filepath.Join(s.Dir(deviceID, stat), polledAt.Format(fileStamp)+".json")
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	s.logger.Debug("stored record",
		zap.String("device", deviceID),
		zap.String("stat", stat),
		zap.String("path", path),
	)
	return path, nil
}

// AppendEvents appends entries to the device's event history file, which
// holds a single JSON array.
func (s *FileSink) AppendEvents(deviceID string, entries ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.Dir(deviceID, eventsDir), eventsFile)

	var history []json.RawMessage
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read event history: %w", err)
	default:
		if err := json.Unmarshal(data, &history); err != nil {
			return fmt.Errorf("decode event history %s: %w", path, err)
		}
	}

	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		history = append(history, raw)
	}

	out, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event history: %w", err)
	}
	if err := writeFileAtomic(path, out); err != nil {
		return err
	}
	s.logger.Debug("appended events",
		zap.String("device", deviceID),
		zap.Int("appended", len(entries)),
		zap.Int("total", len(history)),
	)
	return nil
}

// writeFileAtomic writes data next to path and renames it into place so a
// reader never sees a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
