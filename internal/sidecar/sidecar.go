// Package sidecar locates the backend executable shipped next to the host.
package sidecar

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrNotFound is returned when no candidate executable exists.
var ErrNotFound = errors.New("sidecar executable not found")

// Resolver maps a logical sidecar name to an executable path.
//
// Candidates are tried in order: the explicit Path, then the directory of the
// host executable (plain name, name with the target triple suffix, each with
// the platform extension), then $PATH.
type Resolver struct {
	// Name is the logical sidecar name, e.g. "tysttext-backend".
	Name string
	// Path overrides resolution when set.
	Path string

	// Dir returns the directory searched before $PATH. Defaults to the
	// directory of the running executable.
	Dir func() (string, error)
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Resolve returns the absolute path of the executable.
func (r *Resolver) Resolve() (string, error) {
	if r.Path != "" {
		if err := checkExecutable(r.Path); err != nil {
			return "", fmt.Errorf("sidecar path %s: %w", r.Path, err)
		}
		return filepath.Abs(r.Path)
	}
	if r.Name == "" {
		return "", errors.New("sidecar name is empty")
	}

	dirFn := r.Dir
	if dirFn == nil {
		dirFn = executableDir
	}
	if dir, err := dirFn(); err == nil && dir != "" {
		for _, name := range Candidates(r.Name) {
			p := filepath.Join(dir, name)
			if checkExecutable(p) == nil {
				return p, nil
			}
		}
	}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if p, err := lookPath(r.Name); err == nil {
		return filepath.Abs(p)
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, r.Name)
}

// Candidates lists the file names searched for next to the host executable.
func Candidates(name string) []string {
	ext := ""
	if runtime.GOOS == "windows" {
		ext = ".exe"
	}
	return []string{
		name + ext,
		name + "-" + TargetTriple() + ext,
	}
}

// TargetTriple names the current platform the way bundled sidecars are
// suffixed, e.g. "x86_64-unknown-linux-gnu".
func TargetTriple() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}

	switch runtime.GOOS {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	case "linux":
		return arch + "-unknown-linux-gnu"
	default:
		return arch + "-unknown-" + runtime.GOOS
	}
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return errors.New("not executable")
	}
	return nil
}
