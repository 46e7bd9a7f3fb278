package fsys

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/FanTuani/tinix/internal/blockdev"
	"github.com/FanTuani/tinix/internal/kerr"
)

const (
	testBlockSize   = 4096
	testFSBlocks    = 128
	testMaxInodes   = 64
	testDirectBlocks = 10
	testMaxNameLen  = 28
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	disk, err := blockdev.Open(filepath.Join(t.TempDir(), "fs.img"), testFSBlocks, testBlockSize)
	if err != nil {
		t.Fatalf("blockdev.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	layout := NewLayout(testBlockSize, testFSBlocks, testMaxInodes, testDirectBlocks, testMaxNameLen)
	fs := New(disk, layout)
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}

// Format followed by Mount on the same image must agree on layout
// (spec.md §8's format/mount round-trip law).
func TestFormatMountRoundTrip(t *testing.T) {
	disk, err := blockdev.Open(filepath.Join(t.TempDir(), "fs.img"), testFSBlocks, testBlockSize)
	if err != nil {
		t.Fatalf("blockdev.Open: %v", err)
	}
	defer disk.Close()

	layout := NewLayout(testBlockSize, testFSBlocks, testMaxInodes, testDirectBlocks, testMaxNameLen)
	fs := New(disk, layout)
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}

	remounted := New(disk, layout)
	if err := remounted.Mount(); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if remounted.super.Magic != FSMagic {
		t.Fatalf("magic = %x, want %x", remounted.super.Magic, FSMagic)
	}
}

func TestMountRejectsBadMagic(t *testing.T) {
	disk, err := blockdev.Open(filepath.Join(t.TempDir(), "fs.img"), testFSBlocks, testBlockSize)
	if err != nil {
		t.Fatalf("blockdev.Open: %v", err)
	}
	defer disk.Close()

	layout := NewLayout(testBlockSize, testFSBlocks, testMaxInodes, testDirectBlocks, testMaxNameLen)
	fs := New(disk, layout)
	if err := fs.Mount(); !errors.Is(err, kerr.ErrBadMagic) {
		t.Fatalf("Mount on unformatted image: err=%v, want ErrBadMagic", err)
	}
}

// Writing then reading back the same bytes through a fresh open must
// round-trip exactly (spec.md §8's write/read round-trip law).
func TestWriteReadRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.CreateFile("/hello.txt", "/"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	fd, err := fs.OpenFile("/hello.txt", "/")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	payload := []byte("hello, tinix")
	n, err := fs.WriteFile(fd, payload)
	if err != nil || n != len(payload) {
		t.Fatalf("WriteFile: n=%d err=%v", n, err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	fd2, err := fs.OpenFile("/hello.txt", "/")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	out := make([]byte, len(payload))
	n, err = fs.ReadFile(fd2, out)
	if err != nil || n != len(payload) {
		t.Fatalf("ReadFile: n=%d err=%v", n, err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("read back %q, want %q", out, payload)
	}
}

// A directory filled to DirectBlocks entry-bearing blocks must report
// DirectoryFull rather than silently dropping the entry.
func TestDirectoryFullBoundary(t *testing.T) {
	disk, err := blockdev.Open(filepath.Join(t.TempDir(), "fs.img"), testFSBlocks, testBlockSize)
	if err != nil {
		t.Fatalf("blockdev.Open: %v", err)
	}
	defer disk.Close()

	// Give the file system more inodes than root can hold entries, so the
	// directory fills before the inode bitmap does.
	base := NewLayout(testBlockSize, testFSBlocks, testMaxInodes, testDirectBlocks, testMaxNameLen)
	dirents := base.DirentsPerBlock() * testDirectBlocks
	layout := NewLayout(testBlockSize, testFSBlocks, dirents+1, testDirectBlocks, testMaxNameLen)
	fs := New(disk, layout)
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}

	var lastErr error
	for i := 0; i < dirents+1; i++ {
		_, err := fs.CreateFile(filepath.Join("/", "f"+itoa(i)), "/")
		if err != nil {
			lastErr = err
			break
		}
	}
	if !errors.Is(lastErr, kerr.ErrDirectoryFull) {
		t.Fatalf("expected ErrDirectoryFull once root fills, got %v", lastErr)
	}
}

// A write that would exceed DirectBlocks*BlockSize bytes must truncate at
// the boundary and report MaxFileSizeReached.
func TestMaxFileSizeBoundary(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.CreateFile("/big.bin", "/"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	fd, err := fs.OpenFile("/big.bin", "/")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	maxSize := testDirectBlocks * testBlockSize
	payload := make([]byte, maxSize+testBlockSize)
	n, err := fs.WriteFile(fd, payload)
	if !errors.Is(err, kerr.ErrMaxFileSizeReached) {
		t.Fatalf("WriteFile past max size: err=%v, want ErrMaxFileSizeReached", err)
	}
	if n != maxSize {
		t.Fatalf("wrote %d bytes, want %d (max file size)", n, maxSize)
	}
}

// E5: create a directory, create a file inside it, write to it and close
// it, then remove the file and confirm the name is no longer resolvable.
func TestDirectoryAndFileLifecycle(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.CreateDirectory("/docs", "/"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if _, err := fs.CreateFile("/docs/note.txt", "/"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	fd, err := fs.OpenFile("/docs/note.txt", "/")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := fs.WriteFile(fd, []byte("note")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.CloseFile(fd); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	if err := fs.RemoveFile("/docs/note.txt", "/"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if _, err := fs.OpenFile("/docs/note.txt", "/"); !errors.Is(err, kerr.ErrNotFound) {
		t.Fatalf("OpenFile after remove: err=%v, want ErrNotFound", err)
	}
}

func TestNormalizePathDotDot(t *testing.T) {
	cases := []struct {
		path, cwd, want string
	}{
		{"/a/b/../c", "/", "/a/c"},
		{"../x", "/a/b", "/a/x"},
		{"..", "/", "/"},
		{"./y", "/a", "/a/y"},
		{"", "/a/b", "/a/b"},
	}
	for _, c := range cases {
		if got := NormalizePath(c.path, c.cwd); got != c.want {
			t.Errorf("NormalizePath(%q, %q) = %q, want %q", c.path, c.cwd, got, c.want)
		}
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
