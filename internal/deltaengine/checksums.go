package deltaengine

import (
	"io"

	"github.com/Xiechengqi/sy/internal/checksum"
	"github.com/Xiechengqi/sy/internal/wire"
)

// ComputeChecksums reads r in blockSize chunks and returns the weak/strong
// checksum pair for each block, per spec 4.3's checksum generation step.
// The final block may be short; it is checksummed over its actual length.
func ComputeChecksums(r io.Reader, blockSize uint32) ([]wire.BlockChecksum, error) {
	buf := make([]byte, blockSize)
	var checksums []wire.BlockChecksum
	var offset uint64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			block := buf[:n]
			checksums = append(checksums, wire.BlockChecksum{
				Offset: offset,
				Weak:   checksum.NewWeak(block).Value(),
				Strong: wire.StrongHash(checksum.Sum(block)),
			})
			offset += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return checksums, nil
		}
		if err != nil {
			return checksums, err
		}
	}
}
