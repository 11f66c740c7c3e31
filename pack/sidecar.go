package pack

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	"github.com/calvinalkan/objpack/pkg/fs"
	"github.com/calvinalkan/objpack/recfmt"
)

// sidecarFS is the filesystem sidecar reads/writes go through. A package
// variable rather than a Driver field: sidecars are a crash-forensics side
// channel, not part of the pack algorithm's inputs, so tests that need a
// fake would substitute this directly rather than threading it through
// every call site.
var sidecarFS fs.FS = fs.NewReal() //nolint:gochecknoglobals

var sidecarWriter = fs.NewAtomicWriter(sidecarFS) //nolint:gochecknoglobals

// Sidecar file suffixes a worker goroutine appends to the storage path,
// mirroring spec.md §6's <path>.packindex / <path>.packerror / <path>.packlog
// table. Collapsing the subprocess into a goroutine (SPEC_FULL.md §2) makes
// these files optional hand-off state rather than the only channel between
// parent and child, but the worker still writes them for crash forensics and
// operator audit.
const (
	packIndexSuffix = ".packindex"
	packErrorSuffix = ".packerror"
)

// indexSnapshot is the payload written to .packindex: the built index plus
// the file position the pack run ended at, gob-encoded as one value so a
// partial write can never be decoded as a complete one.
type indexSnapshot struct {
	Index     *Index
	EndPos    recfmt.Position
	Redundant bool
}

// packError is the payload written to .packerror when a worker dies mid
// phase, grounded on the teacher's errCacheCorrupt/errCacheNotFound sentinel
// style but carrying the failing phase and message since this is a crash
// report, not a cache-miss signal.
type packError struct {
	Phase   string
	Message string
}

var errSidecarCorrupt = errors.New("pack: sidecar file corrupted")

// writeIndexSidecar gob-encodes snap and atomically replaces
// storagePath+packIndexSuffix, so a crash mid-write never leaves a
// half-written sidecar for the caller to trip over.
func writeIndexSidecar(storagePath string, snap indexSnapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("pack: encode .packindex: %w", err)
	}

	if err := sidecarWriter.WriteWithDefaults(storagePath+packIndexSuffix, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("pack: write .packindex: %w", err)
	}

	return nil
}

// readIndexSidecar decodes a previously written .packindex. A missing file
// reports (nil, false, nil) — spec.md §6: "a missing .packindex with zero
// exit code means already packed / no benefit".
func readIndexSidecar(storagePath string) (*indexSnapshot, bool, error) {
	file, err := sidecarFS.Open(storagePath + packIndexSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("pack: open .packindex: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snap indexSnapshot
	if decErr := gob.NewDecoder(file).Decode(&snap); decErr != nil {
		return nil, false, fmt.Errorf("%w: %w", errSidecarCorrupt, decErr)
	}

	return &snap, true, nil
}

// removeIndexSidecar deletes the .packindex file, ignoring a missing file.
func removeIndexSidecar(storagePath string) error {
	return removeSidecar(storagePath + packIndexSuffix)
}

// writeErrorSidecar records a worker failure for the caller to re-raise,
// matching spec.md §6's ".packerror (failure payload)".
func writeErrorSidecar(storagePath string, phase string, cause error) error {
	var buf bytes.Buffer

	perr := packError{Phase: phase, Message: cause.Error()}
	if err := gob.NewEncoder(&buf).Encode(perr); err != nil {
		return fmt.Errorf("pack: encode .packerror: %w", err)
	}

	if err := sidecarWriter.WriteWithDefaults(storagePath+packErrorSuffix, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("pack: write .packerror: %w", err)
	}

	return nil
}

// readErrorSidecar decodes a previously written .packerror, reporting
// (nil, false, nil) when none exists.
func readErrorSidecar(storagePath string) (*packError, bool, error) {
	file, err := sidecarFS.Open(storagePath + packErrorSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("pack: open .packerror: %w", err)
	}
	defer func() { _ = file.Close() }()

	var perr packError
	if decErr := gob.NewDecoder(file).Decode(&perr); decErr != nil {
		return nil, false, fmt.Errorf("%w: %w", errSidecarCorrupt, decErr)
	}

	return &perr, true, nil
}

// removeErrorSidecar deletes the .packerror file, ignoring a missing file.
func removeErrorSidecar(storagePath string) error {
	return removeSidecar(storagePath + packErrorSuffix)
}

func removeSidecar(path string) error {
	if err := sidecarFS.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pack: remove sidecar %s: %w", path, err)
	}

	return nil
}
