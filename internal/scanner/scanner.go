// Package scanner walks a directory tree in the stable, lazy order both
// the generator (source scan) and the receiver (destination scan during
// initial exchange) depend on to agree on "the same file", grounded on
// the teacher's directory-queue traversal in client.go's directory
// workers, generalized from stat-over-RPC to stat-over-os.Lstat.
package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Xiechengqi/sy/internal/localfs"
)

type Kind uint8

const (
	KindRegular Kind = iota
	KindDirectory
	KindSymlink
	KindHardlink // a prior-seen inode under this scan root
)

// Entry is one source or destination tree entry, in the order described
// by spec 4.2: depth-first, parents before children, siblings in
// lexicographic order on the raw path bytes.
type Entry struct {
	RelPath string
	Info    localfs.Info
	Kind    Kind
	// LinkTarget holds the symlink target (Kind == KindSymlink) or the
	// relative path of the first-seen file sharing this inode
	// (Kind == KindHardlink).
	LinkTarget string
	// Err is set when this entry represents a failure to stat or read a
	// directory rather than a real tree entry; scanning continues past it.
	Err error
}

type Options struct {
	IncludeHidden  bool
	FollowSymlinks bool
	Ignore         IgnoreSet
}

// IgnoreSet matches relative paths against glob/gitignore-style patterns
// supplied by the caller.
type IgnoreSet interface {
	Match(relPath string, isDir bool) bool
}

type pendingDir struct {
	relPath string
	abs     string
}

// Scan walks root and streams Entry values on the returned channel. The
// channel is closed once the walk completes; callers must drain it. A
// caller that stops receiving early leaves the walking goroutine blocked
// on its next send.
func Scan(root string, opts Options) <-chan Entry {
	out := make(chan Entry, 64)
	go func() {
		defer close(out)
		w := &walker{root: root, opts: opts, out: out, seenInodes: map[uint64]string{}}
		w.run()
	}()
	return out
}

type walker struct {
	root       string
	opts       Options
	out        chan Entry
	seenInodes map[uint64]string // dev<<40 ^ inode -> first-seen relative path
}

func (w *walker) run() {
	rootInfo, err := localfs.Stat(w.root)
	if err != nil {
		w.out <- Entry{RelPath: ".", Err: err}
		return
	}
	if !rootInfo.IsDir {
		w.emitFile(".", rootInfo)
		return
	}
	w.walkDir(".", w.root)
}

// walkDir processes one directory's children in lexicographic order,
// emitting directories before recursing into them depth-first - the
// "parents before children" guarantee.
func (w *walker) walkDir(relPath, absPath string) {
	names, err := w.readSortedDir(absPath)
	if err != nil {
		w.out <- Entry{RelPath: relPath, Err: err}
		return
	}
	for _, name := range names {
		childRel := joinRel(relPath, name)
		childAbs := filepath.Join(absPath, name)
		if !w.opts.IncludeHidden && isHidden(name) {
			continue
		}

		info, err := localfs.Stat(childAbs)
		if err != nil {
			w.out <- Entry{RelPath: childRel, Err: err}
			continue
		}
		if w.opts.Ignore != nil && w.opts.Ignore.Match(childRel, info.IsDir) {
			continue
		}

		switch {
		case info.LinkTo != "" && !w.opts.FollowSymlinks:
			w.out <- Entry{RelPath: childRel, Info: info, Kind: KindSymlink, LinkTarget: info.LinkTo}
		case info.IsDir:
			w.out <- Entry{RelPath: childRel, Info: info, Kind: KindDirectory}
			w.walkDir(childRel, childAbs)
		default:
			w.emitFile(childRel, info)
		}
	}
}

func (w *walker) emitFile(relPath string, info localfs.Info) {
	if info.Nlink > 1 {
		key := info.Dev<<40 ^ info.Inode
		if first, ok := w.seenInodes[key]; ok {
			w.out <- Entry{RelPath: relPath, Info: info, Kind: KindHardlink, LinkTarget: first}
			return
		}
		w.seenInodes[key] = relPath
	}
	w.out <- Entry{RelPath: relPath, Info: info, Kind: KindRegular}
}

func (w *walker) readSortedDir(absPath string) ([]string, error) {
	dirEntries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(dirEntries))
	for i, e := range dirEntries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func joinRel(relPath, name string) string {
	if relPath == "." {
		return name
	}
	return relPath + "/" + name
}
