package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkPolicy defines how symlinked config and descriptor files are treated.
type SymlinkPolicy int

const (
	RejectSymlinks SymlinkPolicy = iota
	ResolveSymlinks
	AllowSymlinks
)

// SafeFileInfo describes a path after symlink checks.
type SafeFileInfo struct {
	OriginalPath string
	ResolvedPath string
	IsSymlink    bool
	FileInfo     os.FileInfo
}

// CheckSymlink validates path according to policy.
func CheckSymlink(path string, policy SymlinkPolicy) (*SafeFileInfo, error) {
	if policy < RejectSymlinks || policy > AllowSymlinks {
		return nil, fmt.Errorf("invalid symlink policy: %d", policy)
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info for %s: %w", path, err)
	}

	info := &SafeFileInfo{
		OriginalPath: path,
		ResolvedPath: path,
		IsSymlink:    fi.Mode()&os.ModeSymlink != 0,
		FileInfo:     fi,
	}
	if !info.IsSymlink {
		return info, nil
	}

	switch policy {
	case RejectSymlinks:
		return nil, fmt.Errorf("symlinks are not allowed: %s", path)
	case ResolveSymlinks:
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve symlink %s: %w", path, err)
		}
		target, err := os.Stat(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to access symlink target %s: %w", resolved, err)
		}
		info.ResolvedPath = resolved
		info.FileInfo = target
	}
	return info, nil
}

// SafeReadFile reads path after symlink checks.
func SafeReadFile(path string, policy SymlinkPolicy) ([]byte, error) {
	info, err := CheckSymlink(path, policy)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(info.ResolvedPath)
}

// SafeWriteFile writes data to path after checking the file (if present)
// and its parent directory for symlinks.
func SafeWriteFile(path string, data []byte, perm os.FileMode, policy SymlinkPolicy) error {
	if _, err := os.Lstat(path); err == nil {
		info, err := CheckSymlink(path, policy)
		if err != nil {
			return fmt.Errorf("existing file symlink check failed: %w", err)
		}
		path = info.ResolvedPath
	}

	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		info, err := CheckSymlink(dir, policy)
		if err != nil {
			return fmt.Errorf("parent directory symlink check failed: %w", err)
		}
		if info.ResolvedPath != dir {
			path = filepath.Join(info.ResolvedPath, filepath.Base(path))
		}
	}

	return os.WriteFile(path, data, perm)
}
