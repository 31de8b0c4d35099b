// Command zipcopy copies every entry of a zip archive into a new archive
// without recompressing them.
//
// Usage:
//
//	zipcopy <source file> <target file> [--normal|--memory|--bufstream] [--verify]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pchchv/golog"
	"github.com/pchchv/rawzip"
)

var errUsage = errors.New("invalid arguments")

type config struct {
	source string
	target string
	mode   rawzip.Mode
	verify bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	prog := "zipcopy"
	if len(args) > 0 {
		prog = filepath.Base(args[0])
		args = args[1:]
	}

	cfg, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		fmt.Fprintf(stderr, "Usage: %s <source file> <target file> [--normal|--memory|--bufstream] [--verify]\n", prog)
		return 1
	}

	if err := copyArchive(ctx, cfg); err != nil {
		golog.Error("copying %s to %s: %v", cfg.source, cfg.target, err)
		return 1
	}

	if cfg.verify {
		if err := verifyArchive(ctx, cfg); err != nil {
			golog.Error("verifying %s: %v", cfg.target, err)
			return 1
		}
	}

	return 0
}

// parseArgs reads the two paths followed by optional flags.
// The paths come first, which the flag package does not allow.
func parseArgs(args []string) (config, error) {
	cfg := config{mode: rawzip.Direct}
	if len(args) < 2 {
		return cfg, fmt.Errorf("%w: missing source or target file", errUsage)
	}
	cfg.source, cfg.target = args[0], args[1]

	modeSet := false
	for _, arg := range args[2:] {
		if arg == "--verify" {
			cfg.verify = true
			continue
		}

		mode, err := rawzip.ParseMode(arg)
		if err != nil || arg[0] != '-' || modeSet {
			return cfg, fmt.Errorf("%w: unexpected parameter %q", errUsage, arg)
		}
		cfg.mode, modeSet = mode, true
	}

	return cfg, nil
}

// copyArchive copies cfg.source into cfg.target. Both sessions are closed
// whatever the outcome of the copy, and any failure is reported.
func copyArchive(ctx context.Context, cfg config) (err error) {
	src, err := rawzip.Open(cfg.source, cfg.mode, rawzip.OpenRead)
	if err != nil {
		return err
	}
	defer closeSession(src, &err)

	dst, err := rawzip.Open(cfg.target, cfg.mode, rawzip.OpenReadWriteCreate)
	if err != nil {
		return err
	}
	defer closeSession(dst, &err)

	return rawzip.CopyAllRaw(ctx, src.Handle(), dst.Handle())
}

// verifyArchive reopens both archives and checks the copy.
func verifyArchive(ctx context.Context, cfg config) (err error) {
	src, err := rawzip.Open(cfg.source, cfg.mode, rawzip.OpenRead)
	if err != nil {
		return err
	}
	defer closeSession(src, &err)

	dst, err := rawzip.Open(cfg.target, cfg.mode, rawzip.OpenRead)
	if err != nil {
		return err
	}
	defer closeSession(dst, &err)

	return rawzip.Verify(ctx, src.Handle(), dst.Handle())
}

func closeSession(s *rawzip.Session, err *error) {
	if cerr := s.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("closing %s: %w", s.Path(), cerr)
	}
}
