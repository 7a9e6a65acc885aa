// Package localfs is the local-filesystem adapter the receiver uses to
// realize wire messages on disk, and the one the initial-exchange scanner
// uses to stat the destination tree. It generalizes the teacher's
// fileinfo.go (stat -> FileInfo, FileInfo.ApplyChanges) from "mirror a
// remote FileInfo fetched over RPC" to "apply a decoded wire.FileEntry",
// and keeps the teacher's platform split (fileinfo_unix.go/fileinfo_windows.go,
// platform_atim.go/platform_atimespec.go) for native stat field extraction.
package localfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/pkg/xattr"
)

var (
	// ErrNotSupportedByPlatform mirrors the teacher's sentinel for metadata
	// operations that have no equivalent on the current OS (e.g. POSIX
	// ownership on Windows).
	ErrNotSupportedByPlatform = errors.New("not supported on this platform")
)

// Info is the local analogue of a FileEntry/DestFileEntry: everything the
// receiver or the initial-exchange scanner needs to know about a path on
// disk, independent of the wire encoding.
type Info struct {
	Path  string
	Mode  fs.FileMode
	Size  int64
	IsDir bool

	Permissions uint32
	Owner       uint32
	Group       uint32
	Inode       uint64
	Nlink       uint64
	Dev         uint64

	LinkTo string // symlink target, set iff Mode&fs.ModeSymlink != 0

	Atim, Mtim, Ctim syscall.Timespec

	Xattrs map[string][]byte
}

// Stat lstats path and extracts everything Info needs, including
// platform-native fields (inode, device, timestamps) and xattrs when
// supported.
func Stat(path string) (Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Info{}, err
	}
	return fromFileInfo(fi, path)
}

func fromFileInfo(fi os.FileInfo, path string) (Info, error) {
	info := Info{
		Path:  path,
		Mode:  fi.Mode(),
		Size:  fi.Size(),
		IsDir: fi.IsDir(),
	}

	if info.Mode&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return info, err
		}
		info.LinkTo = target
	}

	if info.Mode&os.ModeSymlink == 0 && xattr.XATTR_SUPPORTED {
		names, _ := xattr.LList(path)
		// A list error here (e.g. filesystem mounted without xattr
		// support) is not fatal per spec's per-file IO error policy; the
		// file just gets treated as having no extended attributes.
		if len(names) > 0 {
			info.Xattrs = make(map[string][]byte, len(names))
			for _, name := range names {
				value, err := xattr.LGet(path, name)
				if err == nil {
					info.Xattrs[name] = value
				}
			}
		}
	}

	if err := extractNativeInfo(&info, fi); err != nil && !errors.Is(err, ErrNotSupportedByPlatform) {
		return info, err
	}
	return info, nil
}

// StagingPath returns a same-directory temporary path for finalPath, so the
// eventual rename is guaranteed to be on the same filesystem (spec §4.3,
// "the destination's local-filesystem contract": "create staging file in
// the same directory as the final path").
func StagingPath(finalPath string) string {
	dir := filepath.Dir(finalPath)
	base := filepath.Base(finalPath)
	return filepath.Join(dir, "."+base+".sytmp")
}

// CreateStaging opens a fresh staging file for writing, truncating any
// leftover staging file from a previous aborted run.
func CreateStaging(stagingPath string, mode fs.FileMode) (*os.File, error) {
	return os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
}

// DiscardStaging removes a staging file. It is safe to call even if the
// file was never created or already removed; callers use this on every
// error/abort path to satisfy spec Testable Property #6 ("no orphan
// staging").
func DiscardStaging(stagingPath string) {
	_ = os.Remove(stagingPath)
}

// Commit renames staging over finalPath, the atomic replace spec §4.3/§4.7
// requires on DataEnd(status=OK).
func Commit(stagingPath, finalPath string) error {
	return os.Rename(stagingPath, finalPath)
}

// EnsureDir creates path and any missing ancestors, then sets mode on path
// itself (Mkdir never touches ancestor modes it didn't create).
func EnsureDir(path string, mode fs.FileMode) error {
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return err
	}
	return os.Chmod(path, mode.Perm())
}

// ReplaceSymlink removes any existing entry at path and creates a new
// symlink to target, per spec §4.7 ("Symlink: remove any existing entry at
// the path, create symlink with the given target").
func ReplaceSymlink(path, target string) error {
	if target == "" {
		return errors.New("empty symlink target")
	}
	if _, err := os.Lstat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return os.Symlink(target, path)
}

// CreateHardlink creates path as a hard link to existingPath, replacing any
// existing entry at path first.
func CreateHardlink(path, existingPath string) error {
	if _, err := os.Lstat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return os.Link(existingPath, path)
}

// RemovePath unlinks a file or recursively removes a directory, for the
// Delete message (spec §4.7). Directory removal is best-effort (spec §9's
// resolved open question): errors for individual children do not abort the
// whole deletion.
func RemovePath(path string, isDir bool) error {
	if isDir {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// ApplyMetadata applies mode and mtime to path (ownership is not changed),
// following the teacher's FileInfo.ApplyChanges but driven by the
// independently-decoded fields of a wire message rather than a full remote
// FileInfo snapshot.
func ApplyMetadata(path string, mode fs.FileMode, mtimeUnix int64) error {
	if mode&fs.ModeSymlink == 0 {
		if err := os.Chmod(path, mode.Perm()); err != nil {
			return err
		}
	}
	return setMtime(path, mtimeUnix)
}

// ApplyXattrs reconciles path's extended attributes with want, deleting any
// attribute not present in want and setting the rest, mirroring
// FileInfo.ApplyChanges's xattr diff loop.
func ApplyXattrs(path string, want map[string][]byte) error {
	if !xattr.XATTR_SUPPORTED || want == nil {
		return nil
	}
	existing, err := xattr.LList(path)
	if err != nil {
		return err
	}
	existingSet := make(map[string][]byte, len(existing))
	for _, name := range existing {
		if v, err := xattr.LGet(path, name); err == nil {
			existingSet[name] = v
		}
	}
	for name := range existingSet {
		if _, found := want[name]; !found {
			if err := xattr.LRemove(path, name); err != nil {
				return err
			}
		}
	}
	for name, value := range want {
		if cur, found := existingSet[name]; found && slices.Equal(cur, value) {
			continue
		}
		if err := xattr.LSet(path, name, value); err != nil {
			return err
		}
	}
	return nil
}
