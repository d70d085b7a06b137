// Package logs provides a per-counterparty rotating audit log: each message
// passed to Write is appended as one readable line, and rotated-out files
// are compressed in place (A4). session.Manager writes only inbound
// application messages to it.
package logs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"github.com/glennswest/fixgw/fix"
)

// Writer appends one line per FIX message to a per-counterparty log file,
// rotating and gzip-compressing on request and pruning files older than
// retentionDays.
type Writer struct {
	basePath      string
	retentionDays int

	mu           sync.Mutex
	files        map[string]*os.File
	lastRotation map[string]time.Time
}

func NewWriter(basePath string, retentionDays int) *Writer {
	return &Writer{
		basePath:      basePath,
		retentionDays: retentionDays,
		files:         make(map[string]*os.File),
		lastRotation:  make(map[string]time.Time),
	}
}

// Direction labels an audit line as inbound or outbound.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Write appends one audit line for a message: a UTC timestamp, direction,
// and the message rendered with '|' in place of SOH so the file stays
// grep-able.
func (w *Writer) Write(counterparty string, dir Direction, raw []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.getOrCreateFile(counterparty)
	if err != nil {
		return err
	}

	rendered := bytes.ReplaceAll(raw, []byte{fix.SOH}, []byte("|"))
	line := fmt.Sprintf("%s %s %s\n", time.Now().UTC().Format(time.RFC3339Nano), dir, rendered)
	_, err = f.WriteString(line)
	return err
}

func (w *Writer) getOrCreateFile(counterparty string) (*os.File, error) {
	if f, ok := w.files[counterparty]; ok {
		return f, nil
	}

	dir := filepath.Join(w.basePath, counterparty)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	symlinkPath := filepath.Join(dir, "current.log")
	if target, err := os.Readlink(symlinkPath); err == nil {
		existingPath := filepath.Join(dir, target)
		if f, err := os.OpenFile(existingPath, os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			w.files[counterparty] = f
			return f, nil
		}
	}

	filename := time.Now().Format("2006-01-02_15-04-05") + ".log"
	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	w.files[counterparty] = f
	os.Remove(symlinkPath)
	os.Symlink(filename, symlinkPath)
	return f, nil
}

// CanRotate reports whether enough time has passed since the last rotation
// to avoid thrashing small files under a flapping connection.
func (w *Writer) CanRotate(counterparty string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastRotation[counterparty]; ok {
		return time.Since(last) >= 2*time.Minute
	}
	return true
}

// Rotate closes the counterparty's current log file, gzip-compresses it in
// place, and opens a fresh one.
func (w *Writer) Rotate(counterparty string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.basePath, counterparty)
	symlinkPath := filepath.Join(dir, "current.log")

	if f, exists := w.files[counterparty]; exists {
		target, _ := os.Readlink(symlinkPath)
		f.Close()
		delete(w.files, counterparty)
		if target != "" {
			if err := compressAndRemove(filepath.Join(dir, target)); err != nil {
				log.Warnf("failed to compress rotated log for %s: %v", counterparty, err)
			}
		}
	}

	os.Remove(symlinkPath)
	w.lastRotation[counterparty] = time.Now()

	_, err := w.getOrCreateFile(counterparty)
	return err
}

func compressAndRemove(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// ListLogs returns archived log file names (newest first) for a counterparty.
func (w *Writer) ListLogs(counterparty string) ([]string, error) {
	dir := filepath.Join(w.basePath, counterparty)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	type entry struct {
		name    string
		modTime time.Time
	}
	var found []entry
	for _, e := range entries {
		if e.IsDir() || e.Name() == "current.log" {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".log" && ext != ".gz" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, entry{e.Name(), info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].modTime.After(found[j].modTime) })

	names := make([]string, len(found))
	for i, e := range found {
		names[i] = e.name
	}
	return names, nil
}

func (w *Writer) GetLogPath(counterparty, filename string) string {
	return filepath.Join(w.basePath, counterparty, filename)
}

// Cleanup deletes archived logs older than retentionDays.
func (w *Writer) Cleanup() {
	if w.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	entries, err := os.ReadDir(w.basePath)
	if err != nil {
		return
	}
	for _, cpDir := range entries {
		if !cpDir.IsDir() {
			continue
		}
		cpPath := filepath.Join(w.basePath, cpDir.Name())
		files, err := os.ReadDir(cpPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || f.Name() == "current.log" {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(cpPath, f.Name())
				if err := os.Remove(path); err == nil {
					log.Infof("cleaned up old audit log: %s", path)
				}
			}
		}
	}
}

func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		f.Close()
	}
	w.files = make(map[string]*os.File)
}
