// Package lockfile guards the FolioPipe state directory.
//
// The WhatsApp device store and the SQLite session database must not be opened
// by two processes at once. The lock is an flock on a file in the state
// directory; the kernel releases it when the process exits, however it exits.
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

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "foliopipe.lock"

// Info describes the process holding a lock.
type Info struct {
	PID       int
	StartedAt time.Time
	Owner     string // what the process uses the directory for, e.g. "serve whatsapp,telegram"
}

func (i Info) encode() string {
	return fmt.Sprintf("pid=%d\nstarted_at=%s\nowner=%s\n", i.PID, i.StartedAt.UTC().Format(time.RFC3339), i.Owner)
}

// parseInfo reads the key=value lines written by encode. Unknown keys are ignored.
func parseInfo(content string) Info {
	var info Info
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "pid":
			info.PID, _ = strconv.Atoi(strings.TrimSpace(value))
		case "started_at":
			info.StartedAt, _ = time.Parse(time.RFC3339, strings.TrimSpace(value))
		case "owner":
			info.Owner = strings.TrimSpace(value)
		}
	}
	return info
}

// Lock represents an active directory lock
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes an exclusive lock on stateDir for owner. It fails
// immediately with a *LockError when another process holds the lock.
func AcquireLock(stateDir, owner string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Attempting to acquire lock", "lock_path", lockPath, "owner", owner)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC is not used: the holder's info must stay readable until we own the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		lockErr := &LockError{LockPath: lockPath, Holder: describeHolder(lockPath), Cause: err}
		slog.Error("Failed to acquire lock - another FolioPipe instance is running",
			"lock_path", lockPath, "holder", lockErr.Holder)
		return nil, lockErr
	}

	info := Info{PID: os.Getpid(), StartedAt: time.Now(), Owner: owner}
	if err := writeInfo(file, info); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Acquired state directory lock", "lock_path", lockPath, "pid", info.PID)
	return &Lock{file: file, path: lockPath}, nil
}

func writeInfo(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(info.encode()), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("Failed to sync lock file", "error", err, "lock_path", f.Name())
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock and removes the lock file. It is safe to call
// more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	// Remove while still holding the flock so a waiting process never reads
	// our info as its own.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove lock file", "error", err, "lock_path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Failed to release flock", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()
	l.file = nil

	slog.Info("Released state directory lock", "lock_path", l.path)
	if err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	return nil
}

// LockError is returned when another process holds the lock.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another FolioPipe instance is using this state directory (lock file: %s)", e.LockPath)
	if e.Holder != "" {
		msg += "; holder: " + e.Holder
	}
	return msg + ". If no other instance is running, remove the lock file and retry"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder summarizes the lock file of the current holder.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unable to read lock file information"
	}
	if len(data) == 0 {
		return "lock file exists but contains no process information"
	}

	info := parseInfo(string(data))
	if info.PID <= 0 {
		return fmt.Sprintf("process information: %q", strings.TrimSpace(string(data)))
	}

	state := "running"
	if !isProcessRunning(info.PID) {
		state = "not running - stale lock"
	}
	desc := fmt.Sprintf("PID %d (%s)", info.PID, state)
	if info.Owner != "" {
		desc += ", " + info.Owner
	}
	if !info.StartedAt.IsZero() {
		desc += ", since " + info.StartedAt.Format(time.RFC3339)
	}
	return desc
}

// isProcessRunning sends signal 0, which checks for existence without delivering anything.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
