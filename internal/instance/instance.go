// Package instance keeps a single host running per user: an advisory file
// lock guards the backend, and a PID file records who holds it.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned by Acquire when another host holds the lock.
var ErrAlreadyRunning = errors.New("another tysttext host is already running")

// Lock is the host's single-instance lock.
type Lock struct {
	lock    *flock.Flock
	pidPath string
}

// New returns an unacquired lock on lockPath that records its PID at pidPath.
func New(lockPath, pidPath string) *Lock {
	return &Lock{
		lock:    flock.New(lockPath),
		pidPath: pidPath,
	}
}

// Acquire takes the lock without blocking and writes the PID file.
// If another process holds the lock, the returned error wraps
// ErrAlreadyRunning and names its PID when known.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0o700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		if pid, err := ReadPID(l.pidPath); err == nil && IsProcessRunning(pid) {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return ErrAlreadyRunning
	}

	if err := WritePID(l.pidPath); err != nil {
		_ = l.lock.Unlock()
		return err
	}
	return nil
}

// Release removes the PID file and unlocks.
func (l *Lock) Release() error {
	pidErr := RemovePID(l.pidPath)
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return pidErr
}

// Locked reports whether this Lock currently holds the lock.
func (l *Lock) Locked() bool {
	return l.lock.Locked()
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.lock.Path()
}

// WritePID writes the current process ID to path, creating the parent
// directory if needed.
func WritePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPID reads the process ID from path.
// A missing file returns an error satisfying os.IsNotExist.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid: %w", err)
	}
	return pid, nil
}

// RemovePID removes the PID file. It returns nil if the file doesn't exist.
func RemovePID(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// IsProcessRunning checks if a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes for existence without delivering anything.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}

// Running reports whether a host is running according to the PID file.
func Running(pidPath string) (bool, int) {
	pid, err := ReadPID(pidPath)
	if err != nil || !IsProcessRunning(pid) {
		return false, 0
	}
	return true, pid
}
