package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupLayout timestamps rotated files; it sorts lexically by age
const backupLayout = "20060102-150405"

// RotatingFileWriter implements a file writer with size-based rotation
type RotatingFileWriter struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	size       int64
	now        func() time.Time
}

// NewRotatingFileWriter creates a new rotating file writer. A maxSize of 0
// disables rotation; maxBackups of 0 keeps every backup.
func NewRotatingFileWriter(filePath string, maxSize int64, maxBackups int) (*RotatingFileWriter, error) {
	w := &RotatingFileWriter{
		filePath:   filePath,
		maxSize:    maxSize,
		maxBackups: maxBackups,
		now:        time.Now,
	}

	if err := w.openFile(); err != nil {
		return nil, err
	}

	info, err := w.file.Stat()
	if err != nil {
		_ = w.file.Close()
		return nil, err
	}
	w.size = info.Size()

	return w, nil
}

// Write implements io.Writer
func (w *RotatingFileWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	// An oversized record still goes to a fresh file
	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the file
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// openFile opens the log file for writing
func (w *RotatingFileWriter) openFile() error {
	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	w.file = file
	return nil
}

// rotate moves the current file to a timestamped backup and prunes old ones
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	if err := os.Rename(w.filePath, w.backupName()); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := w.openFile(); err != nil {
		return err
	}
	w.size = 0

	return w.prune()
}

// backupName returns an unused backup path for the current time
func (w *RotatingFileWriter) backupName() string {
	prefix, ext := w.backupParts()
	stamp := w.now().Format(backupLayout)

	name := prefix + stamp + ext
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s%s.%d%s", prefix, stamp, i, ext)
	}
}

// backups lists existing backups, oldest first
func (w *RotatingFileWriter) backups() ([]string, error) {
	prefix, ext := w.backupParts()
	matches, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil, err
	}

	out := matches[:0]
	for _, m := range matches {
		if strings.TrimSuffix(strings.TrimPrefix(m, prefix), ext) != "" {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// prune removes the oldest backups beyond maxBackups
func (w *RotatingFileWriter) prune() error {
	if w.maxBackups <= 0 {
		return nil
	}
	backups, err := w.backups()
	if err != nil {
		return err
	}
	for len(backups) > w.maxBackups {
		if err := os.Remove(backups[0]); err != nil && !os.IsNotExist(err) {
			return err
		}
		backups = backups[1:]
	}
	return nil
}

// backupParts splits the log path into the backup prefix and extension,
// e.g. "logs/app-" and ".log"
func (w *RotatingFileWriter) backupParts() (prefix, ext string) {
	ext = filepath.Ext(w.filePath)
	return strings.TrimSuffix(w.filePath, ext) + "-", ext
}

// Ensure RotatingFileWriter implements io.WriteCloser
var _ io.WriteCloser = (*RotatingFileWriter)(nil)
