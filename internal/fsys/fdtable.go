package fsys

import "github.com/FanTuani/tinix/internal/kerr"

// openFile is the in-memory state behind one fs-level file descriptor:
// the bound inode and the current byte offset (spec.md §3's File
// Descriptor Table, keyed independently of the per-process script fd
// namespace per spec.md §9).
type openFile struct {
	inode  uint32
	offset uint32
}

// fdTable maps fs-level file descriptors to openFile records.
type fdTable struct {
	files map[int]*openFile
	next  int
}

func newFDTable() *fdTable {
	return &fdTable{files: make(map[int]*openFile)}
}

func (t *fdTable) open(inode uint32) int {
	fd := t.next
	t.next++
	t.files[fd] = &openFile{inode: inode}
	return fd
}

func (t *fdTable) get(fd int) (*openFile, error) {
	f, ok := t.files[fd]
	if !ok {
		return nil, kerr.ErrNotFound
	}
	return f, nil
}

func (t *fdTable) close(fd int) error {
	if _, ok := t.files[fd]; !ok {
		return kerr.ErrNotFound
	}
	delete(t.files, fd)
	return nil
}
