package pipeline

import (
	"io"

	"github.com/Xiechengqi/sy/internal/destindex"
	"github.com/Xiechengqi/sy/internal/faststore"
	"github.com/Xiechengqi/sy/internal/scanner"
	"github.com/Xiechengqi/sy/internal/synclog"
	"github.com/Xiechengqi/sy/internal/syncstats"
	"github.com/Xiechengqi/sy/internal/wire"
)

// Config holds everything either side of a sync needs to run its half of
// the protocol: the Hello negotiation flags, local paths and the
// generator/sender/receiver tuning knobs. It plays the role the teacher's
// Client config struct played for an RPC call, generalized to a streaming
// peer that can be either the source or the destination.
type Config struct {
	Root string
	Conn io.ReadWriteCloser

	IsPull bool
	Delete bool

	// AlwaysChecksum is the generator's local idempotence-skip override
	// (spec 4.5): every regular file is re-sent even when size/mtime/mode
	// already match. It never crosses the wire - it's a local decision
	// about what this side sends, not something the peer negotiates.
	AlwaysChecksum bool

	// WantChecksum negotiates want_checksum (spec 4.3): the sender
	// attaches a whole-file strong hash to each FileEntry, and the
	// receiver verifies it before committing the staged file.
	WantChecksum bool

	ApplyXattrs     bool
	WantACLs        bool
	WantCompression bool

	// FastStore, if set, caches whole-file strong hashes (WantChecksum)
	// across runs so an unchanged file isn't re-hashed every time.
	FastStore *faststore.Store

	ScanOptions             scanner.Options
	InitialExchangeWorkers int
	ChunkSize              int
}

func helloFlags(cfg Config) wire.HelloFlags {
	var f wire.HelloFlags
	if cfg.IsPull {
		f |= wire.HelloIsPull
	}
	if cfg.Delete {
		f |= wire.HelloWantDelete
	}
	if cfg.WantChecksum {
		f |= wire.HelloWantChecksum
	}
	if cfg.ApplyXattrs {
		f |= wire.HelloWantXattrs
	}
	if cfg.WantACLs {
		f |= wire.HelloWantACLs
	}
	if cfg.WantCompression {
		f |= wire.HelloWantCompression
	}
	return f
}

// RunSource drives the generator/sender half of the protocol: it sends the
// Hello, consumes the destination's initial-exchange frames into a fresh
// destindex.Index, then runs the generator and sender concurrently until
// the source-side scan (and, if negotiated, the deletion pass) completes.
func RunSource(cfg Config) (*syncstats.Stats, error) {
	// The Hello itself travels uncompressed, so the peer can read and
	// validate it before committing to the compressed framing below.
	if _, err := cfg.Conn.Write(wire.NewHello(helloFlags(cfg), cfg.Root).Encode()); err != nil {
		return nil, err
	}

	transport := cfg.Conn
	if cfg.WantCompression {
		transport = wire.Compress(cfg.Conn)
	}
	fw := wire.NewFrameWriter(transport)

	idx := destindex.New()
	if err := receiveInitialExchange(transport, idx); err != nil {
		return nil, err
	}
	synclog.Logger.Info().Msgf("initial exchange complete, %d destination rows", idx.Len())

	genOut := make(chan GeneratorMessage, 64)
	genCfg := GeneratorConfig{
		Root:           cfg.Root,
		ScanOptions:    cfg.ScanOptions,
		DeleteEnabled:  cfg.Delete,
		AlwaysChecksum: cfg.AlwaysChecksum,
	}
	go RunGenerator(genCfg, idx, genOut)

	stats := syncstats.New()
	senderCfg := SenderConfig{
		Root:         cfg.Root,
		ChunkSize:    cfg.ChunkSize,
		SendXattrs:   cfg.ApplyXattrs,
		SendACLs:     cfg.WantACLs,
		WantChecksum: cfg.WantChecksum,
		FastStore:    cfg.FastStore,
	}
	if err := RunSender(senderCfg, genOut, fw, stats); err != nil {
		return stats, err
	}
	if cfg.FastStore != nil {
		if err := cfg.FastStore.Flush(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// RunDest drives the initial-exchange/receiver half: it reads and validates
// the Hello, scans its own root to stream DestFileEntry/DestFileEnd back to
// the source, then receives the streaming phase to completion.
func RunDest(cfg Config) (*syncstats.Stats, error) {
	msgType, payload, err := wire.ReadFrame(cfg.Conn)
	if err != nil {
		return nil, err
	}
	if msgType != wire.TypeHello {
		return nil, wire.NewProtocolError(wire.ErrCodeProtocol, "expected Hello, got %s", msgType)
	}
	hello, err := wire.DecodeHello(payload)
	if err != nil {
		return nil, err
	}

	if hello.Version != wire.ProtocolVersion {
		_, _ = cfg.Conn.Write(wire.Fatal{Code: wire.ErrCodeVersion, Message: "unsupported protocol version"}.Encode())
		return nil, wire.NewProtocolError(wire.ErrCodeVersion, "peer requested version %d, only %d supported", hello.Version, wire.ProtocolVersion)
	}
	synclog.Logger.Info().Msgf("hello from %q, flags %#x", hello.RootPath, hello.Flags)

	transport := cfg.Conn
	if hello.Flags.Has(wire.HelloWantCompression) {
		transport = wire.Compress(cfg.Conn)
	}
	fw := wire.NewFrameWriter(transport)

	workers := cfg.InitialExchangeWorkers
	totalFiles, totalBytes, err := RunInitialExchange(cfg.Root, workers, fw)
	if err != nil {
		return nil, err
	}
	synclog.Logger.Info().Msgf("initial exchange sent %d entries, %d bytes of existing content", totalFiles, totalBytes)

	recvCfg := ReceiverConfig{
		Root:        cfg.Root,
		ApplyXattrs: hello.Flags.Has(wire.HelloWantXattrs),
		ApplyACLs:   hello.Flags.Has(wire.HelloWantACLs),
	}
	return RunReceiver(recvCfg, transport, hello.Flags.Has(wire.HelloWantDelete))
}

// receiveInitialExchange reads DestFileEntry frames off conn into idx until
// DestFileEnd, the source side's half of spec 4.4's initial exchange.
func receiveInitialExchange(conn io.Reader, idx *destindex.Index) error {
	for {
		msgType, payload, err := wire.ReadFrame(conn)
		if err != nil {
			return err
		}
		msg, err := wire.Decode(msgType, payload)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case wire.DestFileEntry:
			idx.Insert(destEntryToState(m))
		case wire.DestFileEnd:
			return nil
		case wire.Fatal:
			return wire.NewProtocolError(m.Code, "remote fatal during initial exchange: %s", m.Message)
		default:
			return wire.NewProtocolError(wire.ErrCodeProtocol, "unexpected message %s during initial exchange", msgType)
		}
	}
}

func destEntryToState(m wire.DestFileEntry) destindex.State {
	state := destindex.State{
		Path:  m.Path,
		Size:  m.Size,
		Mtime: m.Mtime,
		Mode:  m.Mode,
		IsDir: m.Flags&wire.DestFlagDir != 0,
	}
	if m.Flags&wire.DestFlagHasChecksums != 0 {
		state.DeltaInfo = &destindex.DeltaInfo{
			BlockSize: m.BlockSize,
			FileSize:  m.Size,
			Checksums: m.Checksums,
		}
	}
	return state
}
