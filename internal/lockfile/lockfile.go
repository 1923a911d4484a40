// Package lockfile guards the state directory against a second bot instance.
//
// Two processes sharing one WhatsApp device store or SQLite database corrupt each other's
// state, so the serve command takes an flock on a file in the state directory. The kernel
// drops the lock when the process exits, however it exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "logibot.lock"

// Info is the holder description written into the lock file.
type Info struct {
	PID       int
	Transport string
	Started   time.Time
}

func (i Info) String() string {
	var parts []string
	if i.PID > 0 {
		state := "not running, stale lock"
		if isProcessRunning(i.PID) {
			state = "running"
		}
		parts = append(parts, fmt.Sprintf("PID %d (%s)", i.PID, state))
	}
	if i.Transport != "" {
		parts = append(parts, "transport "+i.Transport)
	}
	if !i.Started.IsZero() {
		parts = append(parts, "since "+i.Started.Format(time.RFC3339))
	}
	return strings.Join(parts, ", ")
}

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock on stateDir, creating the directory if needed.
// A *LockError is returned when another process holds it.
func Acquire(stateDir, transport string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)

	// O_TRUNC would wipe the holder's info before we know whether we win the lock.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder, _ := ReadInfo(path)
		slog.Error("Lockfile Acquire: state directory is locked", "path", path, "holder", holder.String())
		return nil, &LockError{Path: path, Holder: holder, Cause: err}
	}

	info := Info{PID: os.Getpid(), Transport: transport, Started: time.Now().UTC()}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}

	slog.Info("Lockfile acquired", "path", path, "pid", info.PID)
	return &Lock{file: file, path: path}, nil
}

// Release unlocks and removes the lock file. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lockfile Release: unlock failed", "path", l.path, "error", err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile Release: remove failed", "path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lockfile released", "path", l.path)
	return err
}

// LockError reports a lock held by another process.
type LockError struct {
	Path   string
	Holder Info
	Cause  error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another logibot instance is using this state directory (lock file %s)", e.Path)
	if h := e.Holder.String(); h != "" {
		msg += ": " + h
	}
	return msg + "; remove the lock file only if that process is gone"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

func writeInfo(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\ntransport=%s\nstarted=%s\n", info.PID, info.Transport, info.Started.Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		return err
	}
	return f.Sync()
}

// ReadInfo parses the key=value lines of a lock file. Unknown keys are ignored.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	var info Info
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "transport":
			info.Transport = value
		case "started":
			info.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return info, sc.Err()
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
