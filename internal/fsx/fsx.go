// Package fsx provides the path and filesystem primitives shared by
// the repository manager and the pipe manager: directory creation with
// permission bits, YAML and raw file IO, advisory file locking, and
// shell-outs to chown/chmod/ln.
package fsx

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/pipebase/pipebased/internal/pipeerr"
)

// CreateDirectory recursively creates path, succeeding if it already
// exists.
func CreateDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return pipeerr.IO(err)
	}
	return nil
}

// CreateRecursiveDirectoryWithPermission progressively creates each
// path segment joined from segments, chmod-ing only the segments it
// newly creates to mode. Segments that already existed are left alone.
func CreateRecursiveDirectoryWithPermission(segments []string, mode string) error {
	current := ""
	for i, seg := range segments {
		if i == 0 {
			current = seg
		} else {
			current = filepath.Join(current, seg)
		}
		_, err := os.Stat(current)
		switch {
		case err == nil:
			continue
		case os.IsNotExist(err):
			if mkErr := os.Mkdir(current, 0o755); mkErr != nil && !os.IsExist(mkErr) {
				return pipeerr.IO(mkErr)
			}
			if err := Chmod(mode, current, false); err != nil {
				return err
			}
		default:
			return pipeerr.IO(err)
		}
	}
	return nil
}

// WriteYAML marshals v and writes it to path, creating or truncating
// the file, buffered and flushed before returning.
func WriteYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return pipeerr.Yaml(err)
	}
	return WriteFile(path, data)
}

// ReadYAML reads path and unmarshals it into v.
func ReadYAML(path string, v any) error {
	data, err := ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return pipeerr.Yaml(err)
	}
	return nil
}

// WriteFile creates or truncates path and writes buffer to it,
// buffered and flushed before returning.
func WriteFile(path string, buffer []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return pipeerr.IO(err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := w.Write(buffer); err != nil {
		return pipeerr.IO(err)
	}
	if err := w.Flush(); err != nil {
		return pipeerr.IO(err)
	}
	return nil
}

// ReadFile reads the full contents of path.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pipeerr.IO(err)
	}
	return data, nil
}

// Link shells out to `ln` (optionally `-s` for a symbolic link),
// returning a structured Link error with the command's stderr on
// failure.
func Link(from, to string, soft bool) error {
	args := []string{}
	if soft {
		args = append(args, "-s")
	}
	args = append(args, from, to)
	out, err := exec.Command("ln", args...).CombinedOutput()
	if err != nil {
		return pipeerr.Link(from, to, string(out))
	}
	return nil
}

// Chown shells out to `chown user:group path` (optionally -R).
func Chown(user, group, path string, recursive bool) error {
	args := []string{}
	if recursive {
		args = append(args, "-R")
	}
	args = append(args, fmt.Sprintf("%s:%s", user, group), path)
	out, err := exec.Command("chown", args...).CombinedOutput()
	if err != nil {
		return pipeerr.Chown(user, group, path, string(out))
	}
	return nil
}

// Chmod shells out to `chmod permission path` (optionally -R).
func Chmod(permission, path string, recursive bool) error {
	args := []string{}
	if recursive {
		args = append(args, "-R")
	}
	args = append(args, permission, path)
	out, err := exec.Command("chmod", args...).CombinedOutput()
	if err != nil {
		return pipeerr.Chmod(permission, path, string(out))
	}
	return nil
}

// LockFile is an advisory, exclusive, process-wide file lock used to
// serialize mutations on one of the three on-disk roots (app
// directory, catalogs directory, pipe workspace). Callers should
// `defer lf.Unlock()` immediately after a successful Lock.
type LockFile struct {
	fl *flock.Flock
}

// OpenLockFile opens (creating if absent) the advisory lock file at
// path. The returned handle is not yet locked; call Lock.
func OpenLockFile(path string) (*LockFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pipeerr.IO(err)
	}
	return &LockFile{fl: flock.New(path)}, nil
}

// Lock blocks the calling goroutine until an exclusive lock on the
// file is granted.
func (l *LockFile) Lock() error {
	if err := l.fl.Lock(); err != nil {
		return pipeerr.IO(err)
	}
	return nil
}

// Unlock releases the lock. Safe to call even if Lock failed.
func (l *LockFile) Unlock() error {
	if err := l.fl.Unlock(); err != nil {
		return pipeerr.IO(err)
	}
	return nil
}
