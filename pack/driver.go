package pack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/objpack/recfmt"
	"github.com/calvinalkan/objpack/refgraph"
)

// Driver orchestrates the pack operation end to end: the two-pass scan,
// mark-phase GC, copy-to-cutoff rewrite, and tail merge, across the
// locking and sidecar-file protocol spec.md §4–§6 describe.
//
// Process isolation of the original's child process is collapsed into a
// worker goroutine (SPEC_FULL.md §2): the sidecar files remain, since
// they're useful crash forensics and an operator audit trail, but they are
// no longer the only channel between worker and caller — results also flow
// back through an errgroup.Group.
type Driver struct {
	StoragePath string
	Hooks       Hooks
	Metrics     *Metrics

	// ThrottleMultiplier sets the one sleep Pack takes when copyToPacktime
	// (phase 4) finishes: that phase's wall-clock time × ThrottleMultiplier.
	// The per-transaction loops inside the phases do not sleep. Zero
	// disables throttling.
	ThrottleMultiplier float64

	// LockTimeout bounds how long Pack waits for each lock acquisition. A
	// timeout on the first main-lock acquisition is returned as
	// ErrAlreadyPacking; a timeout on the commit lock, or on the main lock
	// around the final rename, is returned as a wrapped lock error.
	LockTimeout time.Duration

	// TailReleaseEvery is how many tail transactions copyRest processes
	// before releasing and re-acquiring the commit lock (spec.md §5).
	TailReleaseEvery int

	newLogger func(w *os.File) packLogger
}

// NewDriver returns a Driver with spec-default timing and no metrics.
func NewDriver(storagePath string, hooks Hooks) *Driver {
	return &Driver{
		StoragePath:      storagePath,
		Hooks:            hooks,
		LockTimeout:      DefaultLockTimeout,
		TailReleaseEvery: 64,
		newLogger:        func(w *os.File) packLogger { return newPackLogger(w) },
	}
}

// Pack runs a full pack at the given cutoff TID. It returns the new file's
// end position and true if data was packed, or (0, false, nil) if the pack
// would free nothing: every in-range transaction is already packed, or the
// rewritten pre-cutoff section ends exactly where the original one did.
func (d *Driver) Pack(ctx context.Context, cutoff recfmt.TID) (recfmt.Position, bool, error) {
	if cutoff.IsZero() {
		return 0, false, ErrInvalidPackTime
	}

	mainLock, err := acquireLockWithTimeout(ctx, mainLockPath(d.StoragePath), d.LockTimeout)
	if err != nil {
		if errors.Is(err, errLockTimeout) {
			return 0, false, ErrAlreadyPacking
		}

		return 0, false, fmt.Errorf("pack: acquire main lock: %w", err)
	}

	liveFile, err := os.Open(d.StoragePath) //nolint:gosec // path is caller-configured
	if err != nil {
		mainLock.release()
		return 0, false, fmt.Errorf("pack: open storage: %w", err)
	}

	fileEnd, err := fileSizeOf(liveFile)
	if err != nil {
		_ = liveFile.Close()
		mainLock.release()

		return 0, false, fmt.Errorf("pack: stat storage: %w", err)
	}

	// The main lock's only job at this point is pinning fileEnd under a
	// consistent view of the storage (spec.md §5); the rest of the work
	// happens without it, and it's re-acquired later around the final swap.
	mainLock.release()

	logFile, logErr := os.OpenFile(d.StoragePath+".packlog", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if logErr != nil {
		_ = liveFile.Close()
		return 0, false, fmt.Errorf("pack: open .packlog: %w", logErr)
	}
	defer func() { _ = logFile.Close() }()

	logger := d.newLogger(logFile)
	logger.info(fmt.Sprintf("pack starting: cutoff=%s file_end=%d", cutoff, fileEnd))

	timer := newPackTimer()

	newPos, packed, err := d.run(ctx, liveFile, cutoff, fileEnd, logger)

	_ = liveFile.Close()

	if d.Metrics != nil {
		timer.observeDuration(d.Metrics.PackDuration)

		outcome := outcomePacked

		switch {
		case err != nil:
			outcome = outcomeFailed
		case !packed:
			outcome = outcomeRedundant
		}

		d.Metrics.PacksTotal.WithLabelValues(outcome).Inc()
	}

	if err != nil {
		logger.errorf("pack failed", err)
		_ = writeErrorSidecar(d.StoragePath, "pack", err)

		return 0, false, err
	}

	logger.info(fmt.Sprintf("pack finished: packed=%v new_end=%d", packed, newPos))

	return newPos, packed, nil
}

// run performs the worker phases (1-5, collapsed into a goroutine per
// SPEC_FULL.md §2), then the in-process tail merge and rename (phases
// 6-7), which is where the original's "parent" work lives.
func (d *Driver) run(ctx context.Context, liveFile *os.File, cutoff recfmt.TID, fileEnd recfmt.Position, logger packLogger) (recfmt.Position, bool, error) {
	packPath := d.StoragePath + ".pack"

	packFile, err := os.OpenFile(packPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644) //nolint:gosec
	if err != nil {
		return 0, false, fmt.Errorf("pack: create .pack output: %w", err)
	}
	defer func() { _ = packFile.Close() }()

	if _, err := packFile.Write(recfmt.FileMagic[:]); err != nil {
		return 0, false, fmt.Errorf("pack: write output header: %w", err)
	}

	var result workerResult

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("worker panic: %v", p)
			}
		}()

		r, workerErr := d.runWorkerPhases(gctx, liveFile, packFile, cutoff, fileEnd, logger)
		if workerErr != nil {
			return workerErr
		}

		result = r

		return nil
	})

	if err := group.Wait(); err != nil {
		_ = os.Remove(packPath)
		return 0, false, fmt.Errorf("%w: %w", ErrWorkerFailed, err)
	}

	if result.redundant {
		logger.info("pack is redundant: every in-range transaction already packed")
		_ = os.Remove(packPath)

		return 0, false, nil
	}

	if result.noBenefit {
		logger.info("pack would free no data")
		_ = os.Remove(packPath)

		return 0, false, nil
	}

	if err := writeIndexSidecar(d.StoragePath, result.snap); err != nil {
		_ = os.Remove(packPath)
		return 0, false, err
	}

	finalPos, err := d.tailMergeAndCommit(ctx, packFile, fileEnd, result.snap.EndPos, result.idx, logger)
	if err != nil {
		_ = os.Remove(packPath)
		return 0, false, err
	}

	_ = removeIndexSidecar(d.StoragePath)
	_ = removeErrorSidecar(d.StoragePath)

	return finalPos, true, nil
}

type workerResult struct {
	snap      indexSnapshot
	idx       *Index
	redundant bool
	noBenefit bool
}

// runWorkerPhases runs phases 1-5 (spec.md §4.3 items 1-5): build the
// pre-cutoff index and reference graph, merge in post-cutoff references,
// mark-and-sweep for reachability, rewrite surviving pre-cutoff records,
// then copy the tail the worker can still see as of fileEnd.
func (d *Driver) runWorkerPhases(ctx context.Context, liveFile, packFile *os.File, cutoff recfmt.TID, fileEnd recfmt.Position, logger packLogger) (workerResult, error) {
	rd := recfmt.NewReader(liveFile, liveFile.Fd(), recfmt.NewFadviseAdvisor())

	hooks := d.Hooks
	if _, err := os.Stat(d.StoragePath + ".packnogc"); err == nil {
		hooks.ReferencesExtractor = nil // operator marker: pack without GC
	}

	var graph refgraph.Store = refgraph.NewMemoryReferences()

	idxRes, err := buildPackIndex(rd, cutoff, fileEnd, graph, hooks)
	if err != nil {
		return workerResult{}, err
	}

	if idxRes.Redundant {
		return workerResult{redundant: true}, nil
	}

	if ctx.Err() != nil {
		return workerResult{}, ctx.Err()
	}

	if err := updateReferences(rd, idxRes.CutoffPos, fileEnd, graph, hooks); err != nil {
		return workerResult{}, err
	}

	reachable := idxRes.Index
	if hooks.GCEnabled() {
		reachable, err = runGC(idxRes.Index, graph)
		if err != nil {
			return workerResult{}, err
		}

		if d.Metrics != nil {
			d.Metrics.ReachableObjects.Set(float64(reachable.Len()))
		}
	}

	throttle := NewThrottle(d.ThrottleMultiplier)
	throttle.StartIteration()

	out := newLogWriter(packFile, recfmt.MetadataSize)

	newIdx, removedHex, _, err := copyToPacktime(rd, cutoff, idxRes.CutoffPos, reachable, out, hooks)
	if err != nil {
		return workerResult{}, err
	}

	throttle.Wait()

	if len(removedHex) > 0 {
		if err := appendRemovedSideband(d.StoragePath, removedHex); err != nil {
			return workerResult{}, err
		}
	}

	if out.Pos() == idxRes.CutoffPos {
		return workerResult{noBenefit: true}, nil
	}

	if err := copyFromPacktime(rd, idxRes.CutoffPos, fileEnd, out, newIdx); err != nil {
		return workerResult{}, err
	}

	logger.phase("worker").Info().
		Int("pre_cutoff_reachable", idxRes.Index.Len()).
		Int("records_in_output", newIdx.Len()).
		Msg("worker phases complete")

	if d.Metrics != nil {
		d.Metrics.RecordsCopied.WithLabelValues("worker").Add(float64(newIdx.Len()))
	}

	return workerResult{
		snap: indexSnapshot{Index: newIdx, EndPos: out.Pos()},
		idx:  newIdx,
	}, nil
}

// tailMergeAndCommit is the in-process "parent" half: acquire the commit
// lock, merge whatever committed after the worker's snapshot (phase 6),
// then acquire the main lock around the final rename (phase 7).
func (d *Driver) tailMergeAndCommit(ctx context.Context, packFile *os.File, liveStart, workerEndPos recfmt.Position, idx *Index, logger packLogger) (recfmt.Position, error) {
	commitPath := commitLockPath(d.StoragePath)

	lock, err := acquireLockWithTimeout(ctx, commitPath, d.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("pack: acquire commit lock: %w", err)
	}

	liveUnbuffered, err := os.Open(d.StoragePath) //nolint:gosec // path is caller-configured
	if err != nil {
		lock.release()
		return 0, fmt.Errorf("pack: reopen live file for tail merge: %w", err)
	}
	defer func() { _ = liveUnbuffered.Close() }()

	rd := recfmt.NewReader(liveUnbuffered, 0, nil)
	out := newLogWriter(packFile, workerEndPos)

	cycles := 0
	cycle := func() error {
		lock.release()
		cycles++

		reacquired, err := acquireLockWithTimeout(ctx, commitPath, d.LockTimeout)
		if err != nil {
			return err
		}

		lock = reacquired

		return nil
	}

	finalPos, err := copyRest(rd, liveStart, func() (recfmt.Position, error) {
		return fileSizeOf(liveUnbuffered)
	}, out, idx, d.TailReleaseEvery, cycle)
	if err != nil {
		lock.release()
		return 0, err
	}

	_ = finalPos // the merge loop's own accounting; out.Pos() is authoritative below

	logger.phase("tail").Info().Int("lock_cycles", cycles).Msg("tail merge complete")

	mainLock, err := acquireLockWithTimeout(ctx, mainLockPath(d.StoragePath), d.LockTimeout)
	if err != nil {
		lock.release()
		return 0, fmt.Errorf("pack: acquire main lock for rename: %w", err)
	}
	defer mainLock.release()

	if err := packFile.Sync(); err != nil {
		lock.release()
		return 0, fmt.Errorf("pack: sync .pack output: %w", err)
	}

	if err := commitRename(newRenamePaths(d.StoragePath)); err != nil {
		lock.release()
		return 0, err
	}

	lock.release()

	return out.Pos(), nil
}

func fileSizeOf(f *os.File) (recfmt.Position, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	return recfmt.Position(info.Size()), nil
}

// appendRemovedSideband appends one hex-encoded OID+TID pair per line to
// <path>.removed (spec.md §4.3 item 4: "the transaction's OID+TID is
// appended as hex to a .removed sideband file so the blob GC can unlink
// files"). Only called when Hooks.BlobIsRecord is configured.
func appendRemovedSideband(storagePath string, entries []string) error {
	file, err := os.OpenFile(storagePath+".removed", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("pack: open .removed sideband: %w", err)
	}
	defer func() { _ = file.Close() }()

	for _, entry := range entries {
		if _, err := file.WriteString(entry + "\n"); err != nil {
			return fmt.Errorf("pack: write .removed sideband: %w", err)
		}
	}

	return nil
}
