package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Xiechengqi/sy/internal/checksum"
	"github.com/Xiechengqi/sy/internal/deltaengine"
	"github.com/Xiechengqi/sy/internal/faststore"
	"github.com/Xiechengqi/sy/internal/localfs"
	"github.com/Xiechengqi/sy/internal/syncstats"
	"github.com/Xiechengqi/sy/internal/wire"
)

// SenderConfig mirrors the teacher's per-stage config struct style.
type SenderConfig struct {
	Root      string
	ChunkSize int // DATA_CHUNK_SIZE, spec 4.6's fixed-size full-transfer chunk

	SendXattrs bool // negotiated want_xattrs: attach ordinary xattrs
	SendACLs   bool // negotiated want_acls: attach the POSIX ACL pseudo-xattr

	// WantChecksum gates the optional whole-file-hash safety check (spec
	// 4.3): a FileEntry carries the source's strong hash of the entire
	// file, and the receiver recomputes and compares it before Commit.
	// This is independent of the generator's local always-resend knob
	// (GeneratorConfig.AlwaysChecksum) - the two used to be conflated
	// behind the same flag, which is wrong: one is a wire safety check,
	// the other is a local idempotence override that never leaves this
	// process.
	WantChecksum bool

	// FastStore caches whole-file strong hashes across runs so
	// WantChecksum doesn't have to re-hash an unchanged file every time
	// sy runs against the same tree.
	FastStore *faststore.Store
}

// RunSender consumes the generator's channel and encodes each message
// into the wire messages spec 4.6 describes, queuing them on fw. It
// returns once in is closed and every message has been flushed, or on
// the first unrecoverable I/O error writing to the transport.
func RunSender(cfg SenderConfig, in <-chan GeneratorMessage, fw *wire.FrameWriter, stats *syncstats.Stats) error {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 256 * 1024
	}
	readBuf := make([]byte, cfg.ChunkSize)

	for msg := range in {
		var err error
		switch msg.Cmd {
		case CmdMkdir:
			err = fw.Queue(wire.Mkdir{Path: msg.MkdirPath, Mode: msg.MkdirMode}.Encode())
			stats.Inc(syncstats.DirsCreated)
		case CmdSymlink:
			err = fw.Queue(wire.Symlink{Path: msg.SymlinkPath, Target: msg.SymlinkTarget}.Encode())
			stats.Inc(syncstats.SymlinksCreated)
		case CmdDelete:
			err = fw.Queue(wire.Delete{Path: msg.DeletePath, IsDir: msg.DeleteIsDir}.Encode())
		case CmdFileEnd:
			err = fw.Queue(wire.FileEnd{TotalFiles: msg.TotalFiles, TotalBytes: msg.TotalBytes}.Encode())
		case CmdDeleteEnd:
			err = fw.Queue(wire.DeleteEnd{Count: msg.DeleteCount}.Encode())
			stats.Add(syncstats.FilesDeleted, msg.DeleteCount)
		case CmdScanError:
			err = fw.Queue(wire.Error{Path: msg.ScanErrorPath, Code: wire.ErrCodeIO, Message: msg.ScanError.Error()}.Encode())
		case CmdFile:
			err = sendFile(cfg, fw, msg.File, readBuf, stats)
		}
		if err != nil {
			return err
		}
		if err := fw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func sendFile(cfg SenderConfig, fw *wire.FrameWriter, job FileJob, readBuf []byte, stats *syncstats.Stats) error {
	fullPath := filepath.Join(cfg.Root, job.Path)

	flags := wire.FileFlags(0)
	if job.IsHardlink {
		flags |= wire.FileFlagHardlink
	}
	entry := wire.FileEntry{
		Path:       job.Path,
		Size:       job.Size,
		Mtime:      job.Mtime,
		Mode:       job.Mode,
		Inode:      job.Inode,
		Flags:      flags,
		LinkTarget: job.LinkTarget,
	}

	var f *os.File
	if !job.IsHardlink {
		var err error
		f, err = os.Open(fullPath)
		if err != nil {
			if err := fw.Queue(entry.Encode()); err != nil {
				return err
			}
			if qerr := fw.Queue(wire.Error{Path: job.Path, Code: wire.ErrCodeIO, Message: err.Error()}.Encode()); qerr != nil {
				return qerr
			}
			stats.Inc(syncstats.FilesErr)
			return fw.Queue(wire.DataEnd{Path: job.Path, Status: wire.StatusError}.Encode())
		}
		defer f.Close()

		if cfg.WantChecksum {
			hash, err := wholeFileHash(cfg.FastStore, fullPath, job.Mtime, job.Size, f)
			if err != nil {
				if err := fw.Queue(entry.Encode()); err != nil {
					return err
				}
				if qerr := fw.Queue(wire.Error{Path: job.Path, Code: wire.ErrCodeIO, Message: err.Error()}.Encode()); qerr != nil {
					return qerr
				}
				stats.Inc(syncstats.FilesErr)
				return fw.Queue(wire.DataEnd{Path: job.Path, Status: wire.StatusError}.Encode())
			}
			entry.Flags |= wire.FileFlagWholeHash
			entry.WholeHash = wire.StrongHash(hash)
		}
	}

	if err := fw.Queue(entry.Encode()); err != nil {
		return err
	}

	if job.IsHardlink {
		return fw.Queue(wire.DataEnd{Path: job.Path, Status: wire.StatusOK}.Encode())
	}

	if cfg.SendXattrs || cfg.SendACLs {
		if err := sendXattrs(cfg, fw, job.Path, fullPath); err != nil {
			return err
		}
	}

	status := wire.StatusOK
	compressible := cfg.ChunkSize > 0 && compressibleExtension(job.Path)
	if job.NeedDelta {
		ops, genErr := deltaengine.GenerateDelta(f, job.DeltaChecksums, job.DeltaBlock)
		if genErr != nil {
			status = wire.StatusError
			if qerr := fw.Queue(wire.Error{Path: job.Path, Code: wire.ErrCodeIO, Message: genErr.Error()}.Encode()); qerr != nil {
				return qerr
			}
		} else {
			payload := deltaengine.EncodeOps(ops)
			copyBytes, litBytes := opByteCounts(ops)
			if err := queueDataChunks(fw, job.Path, payload, wire.DataFlagDelta, cfg.ChunkSize, compressible); err != nil {
				return err
			}
			stats.Add(syncstats.BytesMatchedByDelta, copyBytes)
			stats.Add(syncstats.BytesTransferred, litBytes)
		}
	} else {
		if err := streamFullFile(fw, job.Path, f, readBuf, compressible); err != nil {
			status = wire.StatusError
			if qerr := fw.Queue(wire.Error{Path: job.Path, Code: wire.ErrCodeIO, Message: err.Error()}.Encode()); qerr != nil {
				return qerr
			}
		} else {
			stats.Add(syncstats.BytesTransferred, job.Size)
		}
	}

	if status == wire.StatusOK {
		stats.Inc(syncstats.FilesOK)
	} else {
		stats.Inc(syncstats.FilesErr)
	}
	return fw.Queue(wire.DataEnd{Path: job.Path, Status: status}.Encode())
}

// wholeFileHash returns the strong hash of the full content of f, per spec
// 4.3's optional whole-file safety check. It consults store first so an
// unchanged file (same path/mtime/size as a previous run) doesn't have to
// be re-read and re-hashed.
func wholeFileHash(store *faststore.Store, fullPath string, mtime int64, size uint64, f *os.File) (checksum.Strong, error) {
	if store != nil {
		if cached, ok := store.Lookup(fullPath, mtime, size); ok {
			return checksum.Strong(cached), nil
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return checksum.Strong{}, fmt.Errorf("seeking %s for whole-file hash: %w", fullPath, err)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return checksum.Strong{}, fmt.Errorf("reading %s for whole-file hash: %w", fullPath, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return checksum.Strong{}, fmt.Errorf("rewinding %s after whole-file hash: %w", fullPath, err)
	}

	hash := checksum.Sum(content)
	if store != nil {
		store.Put(fullPath, mtime, size, wire.StrongHash(hash))
	}
	return hash, nil
}

// sendXattrs gathers path's extended attributes (and, when negotiated, its
// POSIX ACL) into a single Xattr message. It is a no-op (sends nothing) for
// a path with neither ordinary xattrs nor an ACL to report.
func sendXattrs(cfg SenderConfig, fw *wire.FrameWriter, relPath, fullPath string) error {
	var entries []wire.XattrEntry

	if cfg.SendXattrs {
		info, err := localfs.Stat(fullPath)
		if err == nil {
			for name, value := range info.Xattrs {
				if localfs.IsACLXattr(name) {
					continue
				}
				entries = append(entries, wire.XattrEntry{Name: name, Value: value})
			}
		}
	}

	if cfg.SendACLs {
		if acl, err := localfs.GetACL(fullPath); err == nil {
			if b := []byte(acl); len(b) > 0 {
				entries = append(entries, wire.XattrEntry{Name: localfs.ACLXattrName, Value: b})
			}
		}
	}

	if len(entries) == 0 {
		return nil
	}
	return fw.Queue(wire.Xattr{Path: relPath, Entries: entries}.Encode())
}

func opByteCounts(ops []deltaengine.Op) (copyBytes, literalBytes uint64) {
	for _, op := range ops {
		switch op.Kind {
		case deltaengine.OpCopy:
			copyBytes += uint64(op.Length)
		case deltaengine.OpLiteral:
			literalBytes += uint64(len(op.Literal))
		}
	}
	return
}

// queueDataChunks splits payload across as many Data frames as needed so
// no single frame exceeds the configured chunk size, per spec 4.3's
// literal-flushing discipline ("the sender splits across multiple Data
// frames for the same path... the receiver concatenates them in order").
// When compressible, each chunk is compressed independently (spec 4.6) and
// DataFlagCompressed is set only when doing so actually shrank it.
func queueDataChunks(fw *wire.FrameWriter, path string, payload []byte, extraFlags wire.DataFlags, chunkSize int, compressible bool) error {
	if len(payload) == 0 {
		return fw.Queue(wire.Data{Path: path, Offset: 0, Flags: extraFlags | wire.DataFlagFinal}.Encode())
	}
	var offset uint64
	for len(payload) > 0 {
		n := len(payload)
		if n > chunkSize {
			n = chunkSize
		}
		chunk := payload[:n]
		payload = payload[n:]
		flags := extraFlags
		if len(payload) == 0 {
			flags |= wire.DataFlagFinal
		}
		out := chunk
		if compressible {
			if c := compressPayload(chunk); len(c) < len(chunk) {
				out = c
				flags |= wire.DataFlagCompressed
			}
		}
		if err := fw.Queue(wire.Data{Path: path, Offset: offset, Flags: flags, Bytes: out}.Encode()); err != nil {
			return err
		}
		// Offsets in the Data stream describe the logical (uncompressed)
		// position, since that's what the receiver reassembles against.
		offset += uint64(n)
	}
	return nil
}

func streamFullFile(fw *wire.FrameWriter, path string, f *os.File, buf []byte, compressible bool) error {
	var offset uint64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			flags := wire.DataFlags(0)
			out := chunk
			if compressible {
				if c := compressPayload(chunk); len(c) < len(chunk) {
					out = c
					flags |= wire.DataFlagCompressed
				}
			}
			if err := fw.Queue(wire.Data{Path: path, Offset: offset, Flags: flags, Bytes: out}.Encode()); err != nil {
				return err
			}
			offset += uint64(n)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("reading %s at offset %d: %w", path, offset, readErr)
		}
	}
	// A final zero-byte Data frame closes the sequence (spec 8's "file
	// exactly equal to destination: full-copy generator emits zero-byte
	// Data" boundary case, generalized to mark end-of-file for every
	// full-copy transfer).
	return fw.Queue(wire.Data{Path: path, Offset: offset, Flags: wire.DataFlagFinal}.Encode())
}
