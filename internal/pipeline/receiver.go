package pipeline

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Xiechengqi/sy/internal/checksum"
	"github.com/Xiechengqi/sy/internal/deltaengine"
	"github.com/Xiechengqi/sy/internal/localfs"
	"github.com/Xiechengqi/sy/internal/syncstats"
	"github.com/Xiechengqi/sy/internal/wire"
)

// ReceiverConfig mirrors the teacher's per-stage config struct style.
type ReceiverConfig struct {
	Root        string
	ApplyXattrs bool
	ApplyACLs   bool
}

// pendingFile tracks one in-flight transfer between its FileEntry and its
// DataEnd, the receiver's only piece of cross-frame state (spec 4.7's
// idle -> open -> writing -> finalizing -> idle per-file state machine).
type pendingFile struct {
	relPath    string
	fullPath   string
	mode       fs.FileMode
	mtime      int64
	isHardlink bool
	linkTarget string

	stagingPath string
	staging     *os.File

	decidedKind bool // set once the first Data frame has told us delta vs full
	isDelta     bool
	deltaBuf    []byte // raw encoded ops, accumulated across chunked Data frames

	original *os.File // opened once, when the final delta Data frame arrives; earlier delta frames are only buffered

	pendingXattrs map[string][]byte

	wantWholeHash bool
	wholeHash     wire.StrongHash
}

// RunReceiver reads frames from r until FileEnd (and DeleteEnd, if deletion
// was negotiated) has been processed, or a Fatal/protocol error ends the
// stream early. It realizes every FileEntry/Mkdir/Symlink/Data/DataEnd/
// Delete message on disk under cfg.Root and returns the stats it
// accumulated along the way.
func RunReceiver(cfg ReceiverConfig, r io.Reader, expectDeletes bool) (*syncstats.Stats, error) {
	stats := syncstats.New()
	pending := make(map[string]*pendingFile)
	// Whatever is still pending when the loop ends never reached a
	// successful DataEnd: close its handles and unlink its staging file.
	defer func() {
		for _, pf := range pending {
			if pf.original != nil {
				pf.original.Close()
			}
			if pf.staging != nil {
				pf.staging.Close()
				localfs.DiscardStaging(pf.stagingPath)
			}
		}
	}()

	sawFileEnd := false
	sawDeleteEnd := !expectDeletes

	for {
		msgType, payload, err := wire.ReadFrame(r)
		if err != nil {
			if err == io.EOF {
				return stats, nil
			}
			return stats, err
		}

		msg, err := wire.Decode(msgType, payload)
		if err != nil {
			return stats, err
		}

		switch m := msg.(type) {
		case wire.FileEntry:
			handleFileEntry(cfg, pending, m)

		case wire.Mkdir:
			handleMkdir(cfg, stats, m)

		case wire.Symlink:
			handleSymlink(cfg, stats, m)

		case wire.Data:
			if err := handleData(pending, m); err != nil {
				return stats, err
			}

		case wire.DataEnd:
			if _, ok := pending[m.Path]; !ok {
				return stats, wire.NewProtocolError(wire.ErrCodeProtocol, "DataEnd for %q with no open FileEntry", m.Path)
			}
			handleDataEnd(cfg, stats, pending, m)

		case wire.Xattr:
			handleXattr(cfg, pending, m)

		case wire.Delete:
			handleDelete(cfg, stats, m)

		case wire.DeleteEnd:
			stats.Add(syncstats.FilesDeleted, m.Count)
			sawDeleteEnd = true

		case wire.FileEnd:
			sawFileEnd = true

		case wire.Error:
			// Per-path error reported by the sender. For a file transfer it
			// is followed by DataEnd(status=error), which is what gets
			// counted; a source scan error has no DataEnd and is not counted
			// on this side.

		case wire.Fatal:
			return stats, wire.NewProtocolError(m.Code, "remote fatal: %s", m.Message)

		default:
			return stats, wire.NewProtocolError(wire.ErrCodeProtocol, "unexpected message %s in streaming phase", msgType)
		}

		if sawFileEnd && sawDeleteEnd {
			return stats, nil
		}
	}
}

func handleFileEntry(cfg ReceiverConfig, pending map[string]*pendingFile, m wire.FileEntry) {
	pf := &pendingFile{
		relPath:       m.Path,
		fullPath:      filepath.Join(cfg.Root, m.Path),
		mode:          fs.FileMode(m.Mode),
		mtime:         m.Mtime,
		isHardlink:    m.Flags&wire.FileFlagHardlink != 0,
		linkTarget:    m.LinkTarget,
		wantWholeHash: m.Flags&wire.FileFlagWholeHash != 0,
		wholeHash:     m.WholeHash,
	}
	if !pf.isHardlink {
		pf.stagingPath = localfs.StagingPath(pf.fullPath)
	}
	pending[m.Path] = pf
}

func handleMkdir(cfg ReceiverConfig, stats *syncstats.Stats, m wire.Mkdir) {
	path := filepath.Join(cfg.Root, m.Path)
	if err := localfs.EnsureDir(path, fs.FileMode(m.Mode)); err != nil {
		stats.Inc(syncstats.FilesErr)
		return
	}
	stats.Inc(syncstats.DirsCreated)
}

func handleSymlink(cfg ReceiverConfig, stats *syncstats.Stats, m wire.Symlink) {
	path := filepath.Join(cfg.Root, m.Path)
	if err := localfs.ReplaceSymlink(path, m.Target); err != nil {
		stats.Inc(syncstats.FilesErr)
		return
	}
	stats.Inc(syncstats.SymlinksCreated)
}

func handleDelete(cfg ReceiverConfig, stats *syncstats.Stats, m wire.Delete) {
	path := filepath.Join(cfg.Root, m.Path)
	// Best-effort (spec 9's resolved open question): a failed removal
	// does not abort the sync. FilesDeleted is taken from DeleteEnd's
	// count, so a failed removal is still included in it.
	_ = localfs.RemovePath(path, m.IsDir)
}

func handleData(pending map[string]*pendingFile, m wire.Data) error {
	pf, ok := pending[m.Path]
	if !ok {
		return wire.NewProtocolError(wire.ErrCodeProtocol, "Data for %q with no open FileEntry", m.Path)
	}
	if pf.isHardlink {
		return wire.NewProtocolError(wire.ErrCodeProtocol, "Data frame for hardlinked path %q", m.Path)
	}

	if !pf.decidedKind {
		pf.decidedKind = true
		pf.isDelta = m.Flags&wire.DataFlagDelta != 0
	}

	payload := m.Bytes
	if m.Flags&wire.DataFlagCompressed != 0 {
		decoded, err := decompressPayload(payload)
		if err != nil {
			return wire.NewProtocolError(wire.ErrCodeProtocol, "decompressing Data for %q: %v", m.Path, err)
		}
		payload = decoded
	}

	if pf.isDelta {
		pf.deltaBuf = append(pf.deltaBuf, payload...)
		if m.Flags&wire.DataFlagFinal == 0 {
			return nil
		}
		return applyDelta(pf)
	}

	if pf.staging == nil {
		f, err := localfs.CreateStaging(pf.stagingPath, pf.mode)
		if err != nil {
			return err
		}
		pf.staging = f
	}
	if len(payload) > 0 {
		if _, err := pf.staging.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// applyDelta decodes the accumulated op stream and applies it against the
// original file on disk, writing the reconstructed bytes to staging. The
// original file handle is opened once per path and held until DataEnd, per
// spec 4.3's "the original handle is held for the entire file's delta
// application and closed once" discipline.
func applyDelta(pf *pendingFile) error {
	ops, err := deltaengine.DecodeOps(pf.deltaBuf)
	if err != nil {
		return err
	}

	original, err := os.Open(pf.fullPath)
	if err != nil {
		return err
	}
	pf.original = original

	staging, err := localfs.CreateStaging(pf.stagingPath, pf.mode)
	if err != nil {
		original.Close()
		return err
	}
	pf.staging = staging

	// The copy buffer's size only bounds how much of each Copy op is read
	// per ReadAt/Write pair; it need not match the block size the sender
	// used to generate the ops, so the maximum is a safe, simple choice.
	applier := deltaengine.NewApplier(original, staging, deltaengine.MaxBlockSize)
	for _, op := range ops {
		if err := applier.Apply(op); err != nil {
			return err
		}
	}
	return nil
}

func handleDataEnd(cfg ReceiverConfig, stats *syncstats.Stats, pending map[string]*pendingFile, m wire.DataEnd) {
	pf, ok := pending[m.Path]
	if !ok {
		stats.Inc(syncstats.FilesErr)
		return
	}
	delete(pending, m.Path)

	if pf.original != nil {
		pf.original.Close()
	}

	if m.Status != wire.StatusOK {
		if pf.staging != nil {
			pf.staging.Close()
			localfs.DiscardStaging(pf.stagingPath)
		}
		stats.Inc(syncstats.FilesErr)
		return
	}

	if pf.isHardlink {
		existing := filepath.Join(cfg.Root, pf.linkTarget)
		if err := localfs.CreateHardlink(pf.fullPath, existing); err != nil {
			stats.Inc(syncstats.FilesErr)
			return
		}
		stats.Inc(syncstats.HardlinksCreated)
		stats.Inc(syncstats.FilesOK)
		return
	}

	if pf.staging == nil {
		// No Data frame ever arrived to create the staging file. This
		// module's sender always sends a final Data frame, so this only
		// happens with a peer that ends a zero-byte file with DataEnd alone.
		f, err := localfs.CreateStaging(pf.stagingPath, pf.mode)
		if err != nil {
			stats.Inc(syncstats.FilesErr)
			return
		}
		pf.staging = f
	}

	if err := pf.staging.Close(); err != nil {
		localfs.DiscardStaging(pf.stagingPath)
		stats.Inc(syncstats.FilesErr)
		return
	}

	if pf.wantWholeHash {
		ok, err := verifyWholeHash(pf.stagingPath, pf.wholeHash)
		if err != nil || !ok {
			localfs.DiscardStaging(pf.stagingPath)
			stats.Inc(syncstats.FilesErr)
			return
		}
	}

	// Metadata, ACL and xattrs are applied to the staging file, not the
	// final path: spec 4.3 wants them in place before the atomic replace,
	// so a reader can never observe the new content with stale attributes.
	if err := localfs.ApplyMetadata(pf.stagingPath, pf.mode, pf.mtime); err != nil {
		localfs.DiscardStaging(pf.stagingPath)
		stats.Inc(syncstats.FilesErr)
		return
	}

	if pf.pendingXattrs != nil {
		acl, hasACL := pf.pendingXattrs[localfs.ACLXattrName]
		if cfg.ApplyACLs && hasACL {
			if err := localfs.ApplyACL(pf.stagingPath, acl); err != nil {
				localfs.DiscardStaging(pf.stagingPath)
				stats.Inc(syncstats.FilesErr)
				return
			}
		}
		if cfg.ApplyXattrs {
			rest := pf.pendingXattrs
			if hasACL {
				rest = make(map[string][]byte, len(pf.pendingXattrs)-1)
				for name, value := range pf.pendingXattrs {
					if name != localfs.ACLXattrName {
						rest[name] = value
					}
				}
			}
			if err := localfs.ApplyXattrs(pf.stagingPath, rest); err != nil {
				localfs.DiscardStaging(pf.stagingPath)
				stats.Inc(syncstats.FilesErr)
				return
			}
		}
	}

	if err := localfs.Commit(pf.stagingPath, pf.fullPath); err != nil {
		localfs.DiscardStaging(pf.stagingPath)
		stats.Inc(syncstats.FilesErr)
		return
	}

	stats.Inc(syncstats.FilesOK)
	stats.Inc(syncstats.FilesCreated)
}

// verifyWholeHash recomputes the strong hash of the staged file's content
// and compares it against the hash the sender attached to the FileEntry,
// spec 4.3's want_checksum safety check against in-flight corruption.
func verifyWholeHash(stagingPath string, want wire.StrongHash) (bool, error) {
	content, err := os.ReadFile(stagingPath)
	if err != nil {
		return false, err
	}
	got := checksum.Sum(content)
	return wire.StrongHash(got) == want, nil
}

func handleXattr(cfg ReceiverConfig, pending map[string]*pendingFile, m wire.Xattr) {
	if !cfg.ApplyXattrs && !cfg.ApplyACLs {
		return
	}
	values := make(map[string][]byte, len(m.Entries))
	for _, ent := range m.Entries {
		values[ent.Name] = ent.Value
	}

	if pf, ok := pending[m.Path]; ok {
		pf.pendingXattrs = values
		return
	}

	// Path already finalized (directory, symlink, or an earlier file):
	// apply immediately rather than treating this as a protocol error,
	// since Xattr can legitimately target any already-created entry.
	path := filepath.Join(cfg.Root, m.Path)
	if acl, ok := values[localfs.ACLXattrName]; ok {
		if cfg.ApplyACLs {
			_ = localfs.ApplyACL(path, acl)
		}
		delete(values, localfs.ACLXattrName)
	}
	if cfg.ApplyXattrs {
		_ = localfs.ApplyXattrs(path, values)
	}
}
