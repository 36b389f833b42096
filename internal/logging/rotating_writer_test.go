package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestWriter(t *testing.T, maxSize int64, maxBackups int) (*RotatingFileWriter, string) {
	t.Helper()
	logFile := filepath.Join(t.TempDir(), "app.log")
	w, err := NewRotatingFileWriter(logFile, maxSize, maxBackups)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, logFile
}

// steppedClock returns one second later on every call
func steppedClock() func() time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestRotatingFileWriter_Write(t *testing.T) {
	w, logFile := newTestWriter(t, 100, 3)

	data := []byte("This is a test log message\n")
	n, err := w.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("content = %q, want %q", content, data)
	}
}

func TestRotatingFileWriter_AppendsToExisting(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(logFile, []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer w.Close()

	if w.size != 10 {
		t.Errorf("size = %d, want 10 from existing file", w.size)
	}
}

func TestRotatingFileWriter_Rotation(t *testing.T) {
	w, logFile := newTestWriter(t, 50, 3)
	w.now = steppedClock()

	line := []byte(strings.Repeat("x", 29) + "\n") // 30 bytes
	for i := 0; i < 3; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	backups, err := w.backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Fatalf("backups = %v, want 2", backups)
	}
	for _, b := range backups {
		if !strings.HasPrefix(filepath.Base(b), "app-20260301-") || filepath.Ext(b) != ".log" {
			t.Errorf("unexpected backup name %q", b)
		}
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(content) != len(line) {
		t.Errorf("current file holds %d bytes, want %d", len(content), len(line))
	}
}

func TestRotatingFileWriter_PrunesOldBackups(t *testing.T) {
	w, _ := newTestWriter(t, 10, 2)
	w.now = steppedClock()

	for i := 0; i < 6; i++ {
		if _, err := fmt.Fprintf(w, "record %02d\n", i); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	backups, err := w.backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Fatalf("backups = %v, want 2 after pruning", backups)
	}

	// The newest backups survive
	newest, err := os.ReadFile(backups[1])
	if err != nil {
		t.Fatal(err)
	}
	if string(newest) != "record 04\n" {
		t.Errorf("newest backup = %q, want record 04", newest)
	}
}

func TestRotatingFileWriter_SameSecondBackups(t *testing.T) {
	w, _ := newTestWriter(t, 10, 0)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	for i := 0; i < 4; i++ {
		if _, err := fmt.Fprintf(w, "record %02d\n", i); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	backups, err := w.backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 3 {
		t.Fatalf("backups = %v, want 3 distinct names", backups)
	}
}

func TestRotatingFileWriter_NoRotationWhenUnbounded(t *testing.T) {
	w, _ := newTestWriter(t, 0, 3)

	for i := 0; i < 100; i++ {
		if _, err := w.Write([]byte("line\n")); err != nil {
			t.Fatal(err)
		}
	}
	backups, err := w.backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 0 {
		t.Errorf("backups = %v, want none", backups)
	}
}

func TestRotatingFileWriter_WriteAfterClose(t *testing.T) {
	w, _ := newTestWriter(t, 100, 3)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("expected error writing to closed writer")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}
