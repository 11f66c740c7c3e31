//go:build linux

package recfmt

import "golang.org/x/sys/unix"

// FadviseAdvisor evicts already-scanned pages from the OS page cache via
// posix_fadvise(POSIX_FADV_DONTNEED), exactly the syscall
// original_source/setup.py builds a dedicated C extension
// (zc.FileStorage._zc_FileStorage_posix_fadvise) to reach from Python.
// golang.org/x/sys/unix gives it to us natively.
type FadviseAdvisor struct{}

// NewFadviseAdvisor returns the Linux cache advisor.
func NewFadviseAdvisor() FadviseAdvisor {
	return FadviseAdvisor{}
}

// Advise is best-effort: any error from the syscall (including ENOSYS on
// kernels/filesystems that don't support it) is swallowed, matching
// spec.md §4.1's "absence of the syscall is not an error".
func (FadviseAdvisor) Advise(fd uintptr, offset, length int64) {
	_ = unix.Fadvise(int(fd), offset, length, unix.FADV_DONTNEED)
}
