package pipeline

import (
	"github.com/Xiechengqi/sy/internal/deltaengine"
	"github.com/Xiechengqi/sy/internal/destindex"
	"github.com/Xiechengqi/sy/internal/scanner"
)

// GeneratorConfig mirrors the teacher's config-struct-per-stage style
// (client.go's Client fields) rather than a long positional parameter
// list.
type GeneratorConfig struct {
	Root          string
	ScanOptions   scanner.Options
	DeleteEnabled bool
	// AlwaysChecksum disables the idempotence skip rule (spec 4.5): every
	// regular file is re-sent even when size/mtime/mode already match.
	AlwaysChecksum bool
}

// RunGenerator scans Root, consults idx for each entry, and emits
// GeneratorMessage values on out until the source scan and the
// deletion pass (if enabled) are both complete, then closes out.
func RunGenerator(cfg GeneratorConfig, idx *destindex.Index, out chan<- GeneratorMessage) {
	defer close(out)

	var totalFiles, totalBytes uint64

	for entry := range scanner.Scan(cfg.Root, cfg.ScanOptions) {
		if entry.RelPath == "." {
			continue
		}
		if entry.Err != nil {
			out <- GeneratorMessage{Cmd: CmdScanError, ScanErrorPath: entry.RelPath, ScanError: entry.Err}
			continue
		}

		dest, found := idx.Take(entry.RelPath)

		switch entry.Kind {
		case scanner.KindDirectory:
			out <- GeneratorMessage{
				Cmd:       CmdMkdir,
				MkdirPath: entry.RelPath,
				MkdirMode: uint32(entry.Info.Mode.Perm()),
			}

		case scanner.KindSymlink:
			out <- GeneratorMessage{
				Cmd:           CmdSymlink,
				SymlinkPath:   entry.RelPath,
				SymlinkTarget: entry.LinkTarget,
			}

		default: // KindRegular and KindHardlink
			size := uint64(entry.Info.Size)
			mtime := mtimeSeconds(entry.Info.Mtim)
			mode := uint32(entry.Info.Mode.Perm())

			if found && !cfg.AlwaysChecksum && dest.Size == size && dest.Mtime == mtime && dest.Mode == mode {
				// Idempotence skip (spec 4.5): already taken from the
				// index, nothing to send.
				continue
			}

			job := FileJob{
				Path:  entry.RelPath,
				Size:  size,
				Mtime: mtime,
				Mode:  mode,
				Inode: entry.Info.Inode,
			}
			if entry.Kind == scanner.KindHardlink {
				job.IsHardlink = true
				job.LinkTarget = entry.LinkTarget
			} else if needDelta(found, dest, size) {
				job.NeedDelta = true
				job.DeltaBlock = dest.DeltaInfo.BlockSize
				job.DeltaChecksums = dest.DeltaInfo.Checksums
			}

			totalFiles++
			totalBytes += size
			out <- GeneratorMessage{Cmd: CmdFile, File: job}
		}
	}

	out <- GeneratorMessage{Cmd: CmdFileEnd, TotalFiles: totalFiles, TotalBytes: totalBytes}

	if cfg.DeleteEnabled {
		var deleteCount uint64
		idx.Remaining(func(state destindex.State) {
			out <- GeneratorMessage{Cmd: CmdDelete, DeletePath: state.Path, DeleteIsDir: state.IsDir}
			deleteCount++
		})
		out <- GeneratorMessage{Cmd: CmdDeleteEnd, DeleteCount: deleteCount}
	}
}

// needDelta decides between delta and full transfer per spec 4.5,
// grounded on the original's check_delta_for_state: a size threshold
// and the presence of destination block checksums are what gate delta
// use, not size equality (confirmed by the spec's own worked example,
// scenario 3, where source and destination sizes differ by one byte
// yet delta is used).
func needDelta(found bool, dest destindex.State, size uint64) bool {
	if size < deltaengine.MinDeltaFileSize {
		return false
	}
	return found && dest.DeltaInfo != nil
}
