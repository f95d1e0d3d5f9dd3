package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// appendRetries bounds retry of transient write failures. Anything
// still failing after this is surfaced to the caller.
const appendRetries = 3

// Log is an append-only JSONL audit log with SHA-256 hash chaining.
// All appends go through a single mutex so prev_hash linkage is never
// ambiguous under concurrency.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	seq      int64
	now      func() time.Time
	mu       sync.Mutex
}

// Open opens (or creates) an audit log for appending. Chain state is
// recovered from the tail of the file without reading the whole log.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	tail, err := LastEntry(path)
	if err != nil {
		return nil, fmt.Errorf("audit: recover chain tail: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	l := &Log{
		path:     path,
		file:     file,
		prevHash: GenesisHash,
		now:      time.Now,
	}
	if tail != nil {
		l.prevHash = tail.Hash
		l.seq = tail.Seq
	}
	return l, nil
}

// WithClock overrides the time source. Tests only.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Append assigns seq, timestamp, prev_hash, and hash, writes the entry
// and returns the stored form. Transient write errors are retried a
// bounded number of times before being surfaced.
func (l *Log) Append(e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = l.seq + 1
	if e.Timestamp == "" {
		e.Timestamp = l.now().UTC().Format(TimestampFormat)
	}
	e.PrevHash = l.prevHash

	hash, err := ComputeHash(e)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: hash entry: %w", err)
	}
	e.Hash = hash

	line, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal entry: %w", err)
	}

	if err := l.writeLine(append(line, '\n')); err != nil {
		return Entry{}, err
	}

	l.seq = e.Seq
	l.prevHash = e.Hash
	return e, nil
}

func (l *Log) writeLine(line []byte) error {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		if _, err := l.file.Write(line); err != nil {
			lastErr = fmt.Errorf("audit: write entry: %w", err)
			continue
		}
		if err := l.file.Sync(); err != nil {
			lastErr = fmt.Errorf("audit: sync: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
