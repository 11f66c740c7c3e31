// Command objpack is a thin CLI wrapper around package pack: it runs a
// single pack of an object log file and reports what happened, using a
// config-file precedence chain (defaults, global config, project config,
// flags) and pflag-based flag parsing.
//
// Usage:
//
//	objpack pack <path> --cutoff=<tid> [--config=file] [--throttle=N]
//	objpack config [--config=file]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/objpack/pack"
	"github.com/calvinalkan/objpack/recfmt"
)

func main() {
	os.Exit(run(os.Stdout, os.Stderr, os.Args[1:]))
}

func run(out, errOut io.Writer, args []string) int {
	if len(args) == 0 {
		fprintln(errOut, usage())
		return 1
	}

	workDir, err := os.Getwd()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	switch args[0] {
	case "pack":
		return cmdPack(out, errOut, workDir, args[1:])
	case "config":
		return cmdConfig(out, errOut, workDir, args[1:])
	case "help", "-h", "--help":
		fprintln(out, usage())
		return 0
	default:
		fprintln(errOut, "error: unknown command:", args[0])
		fprintln(errOut, usage())

		return 1
	}
}

func usage() string {
	return `objpack - pack an append-only object log

Commands:
  pack <path> --cutoff=<tid>    Run a pack up to the given transaction ID
  config                        Print the effective configuration

Flags for 'pack':
  --cutoff=<tid>       Required. Transaction ID to pack up to.
  --config=<file>      Explicit config file (JSONC).
  --throttle=<float>   Sleep multiplier applied after the pre-cutoff copy.
  --lock-timeout=<sec> Seconds to wait for the main/commit lock.
  --release-every=<n>  Transactions per commit-lock hold during tail merge.

Examples:
  objpack pack ./store.objpack --cutoff=1700000000
  objpack config --config=./custom.json`
}

func cmdPack(out, errOut io.Writer, workDir string, args []string) int {
	if hasHelpFlag(args) {
		fprintln(out, usage())
		return 0
	}

	flagSet := flag.NewFlagSet("pack", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	cutoffStr := flagSet.String("cutoff", "", "transaction ID to pack up to")
	configPath := flagSet.String("config", "", "explicit config file")
	throttle := flagSet.Float64("throttle", -1, "sleep multiplier applied after the pre-cutoff copy")
	lockTimeout := flagSet.Float64("lock-timeout", -1, "seconds to wait for a lock")
	releaseEvery := flagSet.Int("release-every", -1, "transactions per commit-lock hold")

	if err := flagSet.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	remaining := flagSet.Args()
	if len(remaining) == 0 {
		fprintln(errOut, "error: a storage path is required")
		return 1
	}

	storagePath := remaining[0]

	if *cutoffStr == "" {
		fprintln(errOut, "error: --cutoff is required")
		return 1
	}

	cutoffVal, err := parseTagUint64(*cutoffStr)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	cfg, err := LoadConfig(workDir, *configPath)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	if *throttle >= 0 {
		cfg.ThrottleMultiplier = *throttle
	}

	if *lockTimeout >= 0 {
		cfg.LockTimeoutSeconds = *lockTimeout
	}

	if *releaseEvery >= 0 {
		cfg.TailReleaseEvery = *releaseEvery
	}

	driver := pack.NewDriver(storagePath, pack.Hooks{})
	driver.ThrottleMultiplier = cfg.ThrottleMultiplier
	driver.LockTimeout = time.Duration(cfg.LockTimeoutSeconds * float64(time.Second))
	driver.TailReleaseEvery = cfg.TailReleaseEvery

	start := time.Now()

	newEnd, packed, err := driver.Pack(context.Background(), recfmt.TIDFromUint64(cutoffVal))
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	elapsed := time.Since(start)

	if !packed {
		fprintln(out, "nothing to pack (already packed or would free no data)")
		return 0
	}

	fmt.Fprintf(out, "packed %s: new end = %d bytes, took %s\n", storagePath, newEnd, elapsed.Round(time.Millisecond))

	return 0
}

func cmdConfig(out, errOut io.Writer, workDir string, args []string) int {
	if hasHelpFlag(args) {
		fprintln(out, usage())
		return 0
	}

	flagSet := flag.NewFlagSet("config", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	configPath := flagSet.String("config", "", "explicit config file")

	if err := flagSet.Parse(args); err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	cfg, err := LoadConfig(workDir, *configPath)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	formatted, err := FormatConfig(cfg)
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	fprintln(out, formatted)

	return 0
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return true
		}
	}

	return false
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
