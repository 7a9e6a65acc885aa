package main

import (
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/Xiechengqi/sy/internal/faststore"
	"github.com/Xiechengqi/sy/internal/pipeline"
	"github.com/Xiechengqi/sy/internal/scanner"
	"github.com/Xiechengqi/sy/internal/synclog"
	"github.com/Xiechengqi/sy/internal/syncstats"
)

func main() {
	bind := pflag.String("bind", "0.0.0.0:7331", "Address to bind/connect to")
	root := pflag.String("root", ".", "Directory to use as source or destination")
	pull := pflag.Bool("pull", false, "Act as the destination: fetch from the remote source instead of pushing to it")
	delete := pflag.Bool("delete", false, "Delete destination files absent from the source (mirror)")
	checksum := pflag.Bool("checksum", false, "Verify a whole-file hash of every transfer before committing it (want_checksum)")
	alwaysResend := pflag.Bool("always-resend", false, "Re-transfer every file regardless of size/mtime/mode match, skipping the idempotence check")
	xattrs := pflag.Bool("xattrs", true, "Transfer extended attributes")
	acls := pflag.Bool("acls", false, "Transfer POSIX ACLs")
	compress := pflag.Bool("compress", false, "Compress the wire stream")
	hidden := pflag.Bool("hidden", false, "Include dotfiles and dot-directories")
	ignoreFile := pflag.String("ignore-file", "", "Path to a gitignore-style pattern file")
	chunkSize := pflag.Int("chunksize", 256*1024, "Data frame chunk size")
	workers := pflag.Int("workers", 8, "Initial-exchange checksum worker pool size")
	faststorePath := pflag.String("faststore", "", "Path to a fast-skip cache of whole-file hashes (used with -checksum)")
	loglevel := pflag.String("loglevel", "info", "Log level")

	pflag.Parse()

	if !synclog.SetLevel(*loglevel) {
		synclog.Logger.Fatal().Msgf("invalid log level: %v", *loglevel)
	}

	if len(pflag.Args()) == 0 {
		synclog.Logger.Fatal().Msg("need a command: server or client")
	}

	absRoot, err := resolveRoot(*root)
	if err != nil {
		synclog.Logger.Fatal().Msgf("error resolving root %q: %v", *root, err)
	}

	scanOpts := scanner.Options{IncludeHidden: *hidden}
	if *ignoreFile != "" {
		patterns, err := readIgnoreFile(*ignoreFile)
		if err != nil {
			synclog.Logger.Fatal().Msgf("error reading ignore file: %v", err)
		}
		globs, err := scanner.NewGlobs(patterns)
		if err != nil {
			synclog.Logger.Fatal().Msgf("error compiling ignore patterns: %v", err)
		}
		scanOpts.Ignore = globs
	}

	cfg := pipeline.Config{
		Root:                   absRoot,
		IsPull:                 *pull,
		Delete:                 *delete,
		AlwaysChecksum:         *alwaysResend,
		WantChecksum:           *checksum,
		ApplyXattrs:            *xattrs,
		WantACLs:               *acls,
		WantCompression:        *compress,
		ScanOptions:            scanOpts,
		InitialExchangeWorkers: *workers,
		ChunkSize:              *chunkSize,
	}

	if *faststorePath != "" {
		store, err := faststore.Open(*faststorePath)
		if err != nil {
			synclog.Logger.Fatal().Msgf("error opening faststore %q: %v", *faststorePath, err)
		}
		defer store.Close()
		cfg.FastStore = store
	}

	switch strings.ToLower(pflag.Arg(0)) {
	case "server":
		runServer(*bind, cfg)
	case "client":
		runClient(*bind, cfg)
	default:
		synclog.Logger.Fatal().Msgf("invalid command: %v", pflag.Arg(0))
	}
}

func resolveRoot(root string) (string, error) {
	if root == "." {
		return os.Getwd()
	}
	return root, nil
}

func readIgnoreFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

// runServer listens for connections and drives each as the destination
// side of the protocol; a connecting client that negotiated -pull is
// instead driven from its own end as the destination, with this side
// acting as source (pull is entirely a client-side role choice, the
// server always answers the Hello it receives the same way).
func runServer(bind string, cfg pipeline.Config) {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		synclog.Logger.Fatal().Msgf("error binding listener: %v", err)
	}
	synclog.Logger.Info().Msgf("listening on %s, root %s", bind, cfg.Root)

	for {
		conn, err := listener.Accept()
		if err != nil {
			synclog.Logger.Error().Msgf("error accepting connection: %v", err)
			continue
		}
		synclog.Logger.Info().Msgf("accepted connection from %v", conn.RemoteAddr())
		go serveConn(conn, cfg)
	}
}

func serveConn(conn net.Conn, cfg pipeline.Config) {
	defer conn.Close()
	connCfg := cfg
	connCfg.Conn = conn

	started := time.Now()
	stats, err := pipeline.RunDest(connCfg)
	if err != nil {
		synclog.Logger.Error().Msgf("sync from %v failed: %v", conn.RemoteAddr(), err)
		return
	}
	logSummary(stats, time.Since(started))
}

// runClient dials bind and drives the connection as the source, unless
// -pull was given, in which case it drives it as the destination.
func runClient(bind string, cfg pipeline.Config) {
	conn, err := net.Dial("tcp", bind)
	if err != nil {
		synclog.Logger.Fatal().Msgf("error connecting to %s: %v", bind, err)
	}
	defer conn.Close()
	synclog.Logger.Info().Msgf("connected to %s", bind)

	cfg.Conn = conn
	started := time.Now()

	var stats *syncstats.Stats
	if cfg.IsPull {
		stats, err = pipeline.RunDest(cfg)
	} else {
		stats, err = pipeline.RunSource(cfg)
	}
	if err != nil {
		synclog.Logger.Fatal().Msgf("sync failed: %v", err)
	}
	logSummary(stats, time.Since(started))
}

func logSummary(stats *syncstats.Stats, elapsed time.Duration) {
	if stats == nil {
		return
	}
	synclog.Logger.Info().Msgf("done in %s: %s", elapsed, stats.Snapshot().String())
}
