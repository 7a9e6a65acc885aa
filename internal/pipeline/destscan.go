package pipeline

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/Xiechengqi/sy/internal/deltaengine"
	"github.com/Xiechengqi/sy/internal/scanner"
	"github.com/Xiechengqi/sy/internal/wire"
)

// RunInitialExchange walks the destination tree and streams one
// DestFileEntry per entry, terminated by DestFileEnd, per spec 4.7's
// initial exchange phase. Block-checksum computation (the hot path) runs
// on a bounded worker pool so many files hash concurrently; the pool is
// across files, not across blocks within one file, per spec 4.7.
func RunInitialExchange(root string, workers int, fw *wire.FrameWriter) (totalFiles, totalBytes uint64, err error) {
	if workers <= 0 {
		workers = 8
	}

	jobs := make(chan scanner.Entry, workers*2)
	results := make(chan destEntryResult, workers*2)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for e := range jobs {
				results <- buildDestEntry(root, e)
			}
		}()
	}

	go func() {
		for e := range scanner.Scan(root, scanner.Options{IncludeHidden: true}) {
			jobs <- e
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.skip {
			continue
		}
		if qerr := fw.Queue(r.frame.Encode()); qerr != nil {
			err = qerr
			continue
		}
		totalFiles++
		totalBytes += r.bytes
	}
	if err != nil {
		return totalFiles, totalBytes, err
	}

	if qerr := fw.Queue(wire.DestFileEnd{TotalFiles: totalFiles, TotalBytes: totalBytes}.Encode()); qerr != nil {
		return totalFiles, totalBytes, qerr
	}
	return totalFiles, totalBytes, fw.Flush()
}

type destEntryResult struct {
	frame wire.DestFileEntry
	bytes uint64
	skip  bool
}

func buildDestEntry(root string, e scanner.Entry) destEntryResult {
	if e.RelPath == "." || e.Err != nil {
		return destEntryResult{skip: true}
	}

	isDir := e.Kind == scanner.KindDirectory
	flags := wire.DestFileFlags(0)
	if isDir {
		flags |= wire.DestFlagDir
	}
	size := uint64(e.Info.Size)

	frame := wire.DestFileEntry{
		Path:  e.RelPath,
		Size:  size,
		Mtime: mtimeSeconds(e.Info.Mtim),
		Mode:  uint32(e.Info.Mode.Perm()),
		Flags: flags,
	}

	if e.Kind == scanner.KindRegular && size >= deltaengine.MinDeltaFileSize {
		if blockSize, checksums, ok := computeChecksumsBestEffort(root, e.RelPath, size); ok {
			frame.BlockSize = blockSize
			frame.Checksums = checksums
			frame.Flags |= wire.DestFlagHasChecksums
		}
	}

	return destEntryResult{frame: frame, bytes: size}
}

func computeChecksumsBestEffort(root, relPath string, size uint64) (uint32, []wire.BlockChecksum, bool) {
	f, err := os.Open(filepath.Join(root, relPath))
	if err != nil {
		return 0, nil, false
	}
	defer f.Close()

	blockSize := deltaengine.BlockSize(size)
	checksums, err := deltaengine.ComputeChecksums(f, blockSize)
	if err != nil {
		return 0, nil, false
	}
	return blockSize, checksums, true
}
