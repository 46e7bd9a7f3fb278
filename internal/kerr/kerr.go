// Package kerr defines the sentinel error kinds the engines distinguish.
//
// Modelled on jnwhiteh-minixfs/common/errors.go: a flat var block of
// errors.New values rather than one catch-all error type. Callers compare
// with errors.Is; none of these carry dynamic data, so a plain sentinel is
// enough. Fatal kernel-invariant violations are not in this list — they
// panic instead, at the point the invariant is checked.
package kerr

import "errors"

var (
	// ErrUnknownProcess is raised when an operation names a PID with no PCB
	// or page table. Recoverable call sites return it; kernel bookkeeping
	// that should never observe it treats it as fatal instead.
	ErrUnknownProcess = errors.New("tinix: unknown process")

	// ErrInvalidAddress is raised by MemoryManager.Access when the
	// requested virtual page is outside the process's page table.
	ErrInvalidAddress = errors.New("tinix: invalid virtual address")

	// ErrOutOfSwap is raised by the page-fault handler when the swap
	// cursor has consumed every reserved swap block.
	ErrOutOfSwap = errors.New("tinix: out of swap space")

	// ErrNoSpace is raised by the block/inode allocators when a bitmap
	// has no clear bit left.
	ErrNoSpace = errors.New("tinix: no space left on device")

	// ErrNotFound is raised by path resolution when a component is
	// missing.
	ErrNotFound = errors.New("tinix: no such file or directory")

	// ErrAlreadyExists is raised by create operations when the target
	// name is already bound in its parent directory.
	ErrAlreadyExists = errors.New("tinix: file exists")

	// ErrNotADirectory is raised when a non-terminal path component, or
	// the operand of a directory-only operation, is not a directory.
	ErrNotADirectory = errors.New("tinix: not a directory")

	// ErrNotAFile is raised by open_file and remove_file when the resolved
	// inode is a directory rather than a regular file.
	ErrNotAFile = errors.New("tinix: not a regular file")

	// ErrDirectoryFull is raised by directory-entry insertion when the
	// directory has exhausted its ten direct blocks.
	ErrDirectoryFull = errors.New("tinix: directory has no free slot")

	// ErrMaxFileSizeReached is returned (not raised as a failure) by
	// write_file when a write is truncated at the 10-block file-size cap.
	ErrMaxFileSizeReached = errors.New("tinix: file reached maximum size")

	// ErrBadMagic is raised by mount when the superblock magic does not
	// match FSMagic.
	ErrBadMagic = errors.New("tinix: bad file system magic")

	// ErrLayoutMismatch is raised by mount when the on-disk superblock's
	// block/inode totals disagree with the build-time constants.
	ErrLayoutMismatch = errors.New("tinix: on-disk layout does not match build configuration")

	// ErrIOOutOfRange is raised by the block device for any block index
	// outside [0, N). Callers receive it as an ordinary returned error; no
	// call site aborts on it.
	ErrIOOutOfRange = errors.New("tinix: block index out of range")
)
