// Command vaultfs mounts an encrypting overlay filesystem over a backing
// directory, or generates a fresh hex-encoded master key.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/pion/logging"

	"github.com/vaultfs/vaultfs/internal/cipher"
	"github.com/vaultfs/vaultfs/internal/dispatch"
	"github.com/vaultfs/vaultfs/internal/fuseglue"
	"github.com/vaultfs/vaultfs/internal/keymaterial"
	"github.com/vaultfs/vaultfs/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "keygen":
		runKeygen(os.Args[2:])
	case "mount":
		runMount(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vaultfs keygen [length]")
	fmt.Fprintln(os.Stderr, "       vaultfs mount <storagePath> <mountPath> <hexKey>")
}

func runKeygen(args []string) {
	length := keymaterial.KeySize
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "vaultfs keygen: length must be a positive integer\n")
			os.Exit(1)
		}
		length = n
	}

	hexKey, err := keymaterial.GenerateHex(length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vaultfs keygen: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hexKey)
}

func runMount(args []string) {
	fs := flag.NewFlagSet("mount", flag.ExitOnError)
	verbose := fs.Bool("v", false, "enable debug logging")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) != 3 {
		usage()
		os.Exit(1)
	}
	storagePath, mountPath, hexKey := rest[0], rest[1], rest[2]

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if !keymaterial.ValidHexFormat(hexKey) {
		slog.Error("invalid hex key: must match ^[0-9a-fA-F]+$ with even length")
		os.Exit(1)
	}
	master, err := keymaterial.ParseHexKey(hexKey)
	if err != nil {
		slog.Error("invalid key", "error", err)
		os.Exit(1)
	}

	keys, err := cipher.DeriveKeys(master)
	if err != nil {
		slog.Error("key derivation failed", "error", err)
		os.Exit(1)
	}

	backend, err := store.New(storagePath, keys, store.DefaultBlockSize)
	if err != nil {
		slog.Error("failed to build encrypted store", "error", err)
		os.Exit(1)
	}

	registry := dispatch.NewRegistry()
	if err := registry.Register("/", backend); err != nil {
		slog.Error("failed to register backend", "error", err)
		os.Exit(1)
	}

	factory := slogLoggerFactory{verbose: *verbose}
	d := dispatch.New(registry, factory)
	defer d.Close()

	nfs := pathfs.NewPathNodeFs(fuseglue.New(d), nil)
	server, _, err := nodefs.MountRoot(mountPath, nfs.Root(), nil)
	if err != nil {
		slog.Error("mount failed", "path", mountPath, "error", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		server.Unmount()
	}()

	slog.Info("mounted", "storage", storagePath, "mount", mountPath)
	server.Serve()
}

// slogLoggerFactory bridges pion/logging's LoggerFactory onto log/slog, so
// the dispatcher's per-mount debug/error lines flow through the same
// structured logger the CLI configures at startup.
type slogLoggerFactory struct {
	verbose bool
}

func (f slogLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return slogLeveledLogger{scope: scope, verbose: f.verbose}
}

type slogLeveledLogger struct {
	scope   string
	verbose bool
}

func (l slogLeveledLogger) Trace(msg string) { l.Debug(msg) }
func (l slogLeveledLogger) Tracef(format string, args ...interface{}) {
	l.Debugf(format, args...)
}
func (l slogLeveledLogger) Debug(msg string) {
	if l.verbose {
		slog.Debug(msg, "scope", l.scope)
	}
}
func (l slogLeveledLogger) Debugf(format string, args ...interface{}) {
	if l.verbose {
		slog.Debug(fmt.Sprintf(format, args...), "scope", l.scope)
	}
}
func (l slogLeveledLogger) Info(msg string) { slog.Info(msg, "scope", l.scope) }
func (l slogLeveledLogger) Infof(format string, args ...interface{}) {
	slog.Info(fmt.Sprintf(format, args...), "scope", l.scope)
}
func (l slogLeveledLogger) Warn(msg string) { slog.Warn(msg, "scope", l.scope) }
func (l slogLeveledLogger) Warnf(format string, args ...interface{}) {
	slog.Warn(fmt.Sprintf(format, args...), "scope", l.scope)
}
func (l slogLeveledLogger) Error(msg string) { slog.Error(msg, "scope", l.scope) }
func (l slogLeveledLogger) Errorf(format string, args ...interface{}) {
	slog.Error(fmt.Sprintf(format, args...), "scope", l.scope)
}
