// Package pipeline wires the scanner, destination index, delta engine,
// and wire codec into the three concurrent stages spec 4.8 describes:
// generator, sender, receiver, coordinated by a Coordinator that runs
// the Hello handshake and the initial-exchange phase before unlocking
// the streaming phase. It is grounded on the teacher's directory-worker
// and channel-pipeline structure in client.go/stack.go, generalized
// from an RPC call-and-response model to the generator/sender/receiver
// split described by the spec.
package pipeline

import "github.com/Xiechengqi/sy/internal/wire"

// Command tags which field of a GeneratorMessage is populated; Go has
// no tagged-union enum, so this stands in for the original's
// GeneratorMessage enum.
type Command uint8

const (
	CmdFile Command = iota
	CmdMkdir
	CmdSymlink
	CmdDelete
	CmdFileEnd
	CmdDeleteEnd
	CmdScanError
)

// FileJob is the generator's internal-channel message for a regular
// file, analogous to the wire FileEntry but carrying the destination's
// block checksums instead of requiring a round trip to fetch them.
type FileJob struct {
	Path          string
	Size          uint64
	Mtime         int64
	Mode          uint32
	Inode         uint64
	IsHardlink    bool
	LinkTarget    string // set iff IsHardlink
	NeedDelta     bool
	DeltaBlock    uint32
	DeltaChecksums []wire.BlockChecksum
}

// GeneratorMessage is one item on the generator -> sender channel.
type GeneratorMessage struct {
	Cmd Command

	File FileJob // CmdFile

	MkdirPath string // CmdMkdir
	MkdirMode uint32

	SymlinkPath   string // CmdSymlink
	SymlinkTarget string

	DeletePath  string // CmdDelete
	DeleteIsDir bool

	TotalFiles uint64 // CmdFileEnd
	TotalBytes uint64

	DeleteCount uint64 // CmdDeleteEnd

	ScanErrorPath string // CmdScanError
	ScanError     error
}
