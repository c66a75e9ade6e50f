package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// LockName is the lock file created inside a locked directory.
const LockName = ".iso-manager.lock"

// ErrLocked is returned when another process holds a directory lock.
var ErrLocked = errors.New("directory is locked by another process")

// IsSubPath checks if the target path is a subpath of the base path
func IsSubPath(base, target string) (bool, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false, err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return false, err
	}
	// rel == "." means same dir, rel starting with ".." means not subpath
	if rel == "." {
		return true, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return false, nil
	}
	return true, nil
}

// EnsureDir creates dir and its parents if missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// RenameWithFallback attempts to rename a file, falling back to copying
// when src and dst are on different devices.
func RenameWithFallback(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return errors.Wrapf(err, "cannot stat %s", src)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	return renameFallback(err, src, dst)
}

func renameFallback(err error, src, dst string) error {
	terr, ok := err.(*os.LinkError)
	if !ok {
		return err
	}
	if terr.Err != syscall.EXDEV {
		return errors.Wrapf(terr, "link error: cannot rename %s to %s", src, dst)
	}

	info, serr := os.Stat(src)
	if serr != nil {
		return errors.Wrapf(serr, "cannot stat %s", src)
	}
	if info.IsDir() {
		return errors.Errorf("cannot move directory %s across devices", src)
	}

	if cerr := CopyFile(src, dst); cerr != nil {
		return errors.Wrapf(cerr, "copying %s to %s after failed rename", src, dst)
	}
	return errors.Wrapf(os.Remove(src), "cannot delete %s", src)
}

// CopyFile copies the contents and mode of src to dst, replacing dst.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// DirLock is an advisory lock on a directory shared between processes.
type DirLock struct {
	lock *flock.Flock
}

// LockDir takes an exclusive lock on dir, creating the directory if
// needed. It retries until timeout and returns ErrLocked if the lock is
// still held by someone else.
func LockDir(ctx context.Context, dir string, timeout time.Duration) (*DirLock, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(dir, LockName))
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, 200*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Wrapf(err, "locking %s", dir)
	}
	if !locked {
		return nil, errors.Wrap(ErrLocked, dir)
	}
	return &DirLock{lock: fl}, nil
}

// Unlock releases the lock. The lock file itself is left in place.
func (l *DirLock) Unlock() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
