// Package walshim owns log.log, the persisted-layout file spec.md §6
// lists but explicitly puts out of scope ("owned by out-of-scope log
// manager"). This module implements no recovery protocol, so the file
// carries no replayable records — only a magic header plus one
// append-only line per INSERT/UPDATE/DELETE statement, kept for the same reason a
// teaching engine keeps one at all: `CREATE STATIC_CHECKPOINT` needs a
// concrete file to flush-and-truncate against (SPEC_FULL.md §6/§9).
//
// Grounded on the teacher's _examples/askorykh-goDB/internal/storage/
// filestore/wal.go (magic-header-then-append-mode file, mutex-guarded
// writes, Sync/Close), stripped of its record-replay format since
// spec.md's Non-goals exclude crash recovery — only the "append under
// a lock, sync, truncate" shape survives.
package walshim

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/llll-debug/rucbase-go/internal/dberr"
)

const magic = "RUCBASELOG1"

// Log is the best-effort statement log backing log.log.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open opens or creates dir/log.log, writing the magic header once.
func Open(dir string) (*Log, error) {
	path := filepath.Join(dir, "log.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, dberr.NewUnixError("open log.log", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberr.NewUnixError("stat log.log", err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(magic + "\n"); err != nil {
			f.Close()
			return nil, dberr.NewUnixError("write log.log header", err)
		}
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, dberr.NewUnixError("seek log.log", err)
	}
	return &Log{f: f, path: path}, nil
}

// Append records one statement's kind and affected table, best-effort
// and never replayed — a marker for `SHOW`-style diagnostics, not a
// durability guarantee.
func (l *Log) Append(kind, table string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	line := fmt.Sprintf("%d %s %s\n", time.Now().UnixNano(), kind, table)
	if _, err := l.f.WriteString(line); err != nil {
		return dberr.NewUnixError("append log.log", err)
	}
	return nil
}

// Truncate is `CREATE STATIC_CHECKPOINT`'s best-effort flush-and-
// truncate (spec.md §9: no checkpoint record, no crash-consistency
// guarantee relative to the truncation point).
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	if err := l.f.Sync(); err != nil {
		return dberr.NewUnixError("sync log.log", err)
	}
	if err := l.f.Truncate(0); err != nil {
		return dberr.NewUnixError("truncate log.log", err)
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return dberr.NewUnixError("seek log.log", err)
	}
	if _, err := l.f.WriteString(magic + "\n"); err != nil {
		return dberr.NewUnixError("rewrite log.log header", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
