// fs.go composes the allocator, directory manager, and file descriptor
// table into the POSIX-flavored operations of spec.md §4.4.4, grounded on
// original_source/src/fs/file_system.cpp's format/mount/create_file/
// create_directory/remove_file/open_file/close_file/read_file/write_file.
package fsys

import (
	"fmt"

	"github.com/FanTuani/tinix/internal/blockdev"
	"github.com/FanTuani/tinix/internal/kerr"
	"github.com/FanTuani/tinix/internal/klog"
)

// FileSystem is the mounted inode-based file system over a blockdev.Device.
type FileSystem struct {
	disk   *blockdev.Device
	layout Layout
	alloc  *allocator
	dirs   *dirManager
	fds    *fdTable
	super  SuperBlock
}

// New builds an unmounted FileSystem for the given disk and geometry. Call
// Format on a fresh image or Mount on one already formatted.
func New(disk *blockdev.Device, layout Layout) *FileSystem {
	alloc := newAllocator(disk, layout)
	return &FileSystem{
		disk:   disk,
		layout: layout,
		alloc:  alloc,
		dirs:   newDirManager(disk, alloc),
		fds:    newFDTable(),
	}
}

// Format writes a fresh superblock, zeroed bitmaps, and a root directory
// containing "." and ".." pointing at itself (spec.md §8's format/mount
// round-trip law).
func (fs *FileSystem) Format() error {
	fs.super = SuperBlock{
		Magic:            FSMagic,
		TotalBlocks:      uint32(fs.layout.TotalBlocks),
		TotalInodes:      uint32(fs.layout.MaxInodes),
		FreeBlocks:       uint32(fs.layout.MaxDataBlocks()),
		FreeInodes:       uint32(fs.layout.MaxInodes),
		InodeBitmapBlock: uint32(fs.layout.InodeBitmapBlock),
		DataBitmapBlock:  uint32(fs.layout.DataBitmapBlock),
		InodeTableStart:  uint32(fs.layout.InodeTableStart),
		InodeTableBlocks: uint32(fs.layout.InodeTableBlocks),
		DataBlocksStart:  uint32(fs.layout.DataBlocksStart),
	}
	if err := fs.disk.WriteBlock(fs.layout.SuperblockBlock, fs.super.Encode(fs.layout.BlockSize)); err != nil {
		return err
	}

	fs.alloc.inodeBitmap = newBitmap(fs.layout.BlockSize)
	fs.alloc.dataBitmap = newBitmap(fs.layout.BlockSize)

	rootInode, err := fs.alloc.allocInode()
	if err != nil {
		return err
	}
	if rootInode != RootInode {
		return fmt.Errorf("fsys: root inode allocated as %d, want %d", rootInode, RootInode)
	}

	block, err := fs.dirs.initDirBlock(RootInode, RootInode)
	if err != nil {
		return err
	}

	root := NewInode(TypeDir)
	root.DirectBlocks[0] = block
	root.BlocksUsed = 1
	root.Size = uint32(2 * fs.layout.DirentSize)
	if err := fs.alloc.writeInode(RootInode, root); err != nil {
		return err
	}

	if err := fs.alloc.saveBitmaps(); err != nil {
		return err
	}
	if err := fs.syncSuperblock(); err != nil {
		return err
	}

	klog.Log.WithField("total_inodes", fs.layout.MaxInodes).Info("formatted file system")
	return nil
}

// Mount reads the existing superblock and bitmaps, verifying the magic
// number and layout fields match fs.layout (spec.md §7's BadMagic and
// LayoutMismatch kinds).
func (fs *FileSystem) Mount() error {
	buf := make([]byte, fs.layout.BlockSize)
	if err := fs.disk.ReadBlock(fs.layout.SuperblockBlock, buf); err != nil {
		return err
	}
	super := DecodeSuperBlock(buf)
	if super.Magic != FSMagic {
		return kerr.ErrBadMagic
	}
	if int(super.TotalBlocks) != fs.layout.TotalBlocks ||
		int(super.TotalInodes) != fs.layout.MaxInodes ||
		int(super.InodeTableStart) != fs.layout.InodeTableStart ||
		int(super.DataBlocksStart) != fs.layout.DataBlocksStart {
		return kerr.ErrLayoutMismatch
	}
	fs.super = super

	if err := fs.alloc.loadBitmaps(); err != nil {
		return err
	}
	klog.Log.Info("mounted file system")
	return nil
}

func (fs *FileSystem) syncSuperblock() error {
	fs.super.FreeBlocks = uint32(fs.alloc.freeDataBlocks())
	fs.super.FreeInodes = uint32(fs.alloc.freeInodes())
	return fs.disk.WriteBlock(fs.layout.SuperblockBlock, fs.super.Encode(fs.layout.BlockSize))
}

// CreateFile creates a regular file at path (resolved against
// currentDir), returning ErrAlreadyExists if the name is already bound in
// the parent directory.
func (fs *FileSystem) CreateFile(path, currentDir string) (uint32, error) {
	return fs.createNode(path, currentDir, TypeRegular)
}

// CreateDirectory creates an empty directory at path, pre-populated with
// "." and ".." entries.
func (fs *FileSystem) CreateDirectory(path, currentDir string) (uint32, error) {
	return fs.createNode(path, currentDir, TypeDir)
}

func (fs *FileSystem) createNode(path, currentDir string, t FileType) (uint32, error) {
	norm := NormalizePath(path, currentDir)
	parentPath, name := SplitPath(norm)
	if len(name) > fs.layout.MaxFilenameLen {
		name = name[:fs.layout.MaxFilenameLen]
	}

	parentInode := fs.dirs.lookupPath(parentPath, currentDir)
	if parentInode == InvalidInode {
		return InvalidInode, kerr.ErrNotFound
	}
	if _, err := fs.dirs.lookupInDirectory(parentInode, name); err == nil {
		return InvalidInode, kerr.ErrAlreadyExists
	}

	newInodeNum, err := fs.alloc.allocInode()
	if err != nil {
		return InvalidInode, err
	}

	newInode := NewInode(t)
	if t == TypeDir {
		block, err := fs.dirs.initDirBlock(newInodeNum, parentInode)
		if err != nil {
			fs.alloc.freeInode(newInodeNum)
			return InvalidInode, err
		}
		newInode.DirectBlocks[0] = block
		newInode.BlocksUsed = 1
		newInode.Size = uint32(2 * fs.layout.DirentSize)
	}
	if err := fs.alloc.writeInode(newInodeNum, newInode); err != nil {
		fs.alloc.freeInode(newInodeNum)
		return InvalidInode, err
	}

	if err := fs.dirs.addEntry(parentInode, name, newInodeNum); err != nil {
		fs.alloc.freeInode(newInodeNum)
		return InvalidInode, err
	}

	if err := fs.alloc.saveBitmaps(); err != nil {
		return InvalidInode, err
	}
	if err := fs.syncSuperblock(); err != nil {
		return InvalidInode, err
	}

	klog.Log.WithFields(klog.Fields{"path": norm, "inode": newInodeNum}).Debug("created node")
	return newInodeNum, nil
}

// RemoveFile unlinks path's directory entry and frees its inode and data
// blocks. Directories are not removed by this path, empty or not (spec.md
// §4.4.4); it returns ErrNotAFile for any inode that is not a regular file.
func (fs *FileSystem) RemoveFile(path, currentDir string) error {
	norm := NormalizePath(path, currentDir)
	parentPath, name := SplitPath(norm)

	parentInode := fs.dirs.lookupPath(parentPath, currentDir)
	if parentInode == InvalidInode {
		return kerr.ErrNotFound
	}
	target, err := fs.dirs.lookupInDirectory(parentInode, name)
	if err != nil {
		return err
	}

	inode, err := fs.alloc.readInode(target)
	if err != nil {
		return err
	}
	if inode.Type != TypeRegular {
		return kerr.ErrNotAFile
	}

	for i := uint32(0); i < inode.BlocksUsed; i++ {
		fs.alloc.freeBlock(inode.DirectBlocks[i])
	}
	fs.alloc.freeInode(target)

	if err := fs.dirs.removeEntry(parentInode, name); err != nil {
		return err
	}
	if err := fs.alloc.saveBitmaps(); err != nil {
		return err
	}
	return fs.syncSuperblock()
}

// OpenFile resolves path and returns a fresh fs-level file descriptor
// bound to its inode at offset 0.
func (fs *FileSystem) OpenFile(path, currentDir string) (int, error) {
	norm := NormalizePath(path, currentDir)
	inodeNum := fs.dirs.lookupPath(norm, currentDir)
	if inodeNum == InvalidInode {
		return -1, kerr.ErrNotFound
	}
	inode, err := fs.alloc.readInode(inodeNum)
	if err != nil {
		return -1, err
	}
	if inode.Type != TypeRegular {
		return -1, kerr.ErrNotAFile
	}
	return fs.fds.open(inodeNum), nil
}

// ListDirectory returns the bound entries of the directory at path
// (spec.md §8 invariant 4: every directory's first two entries are "."
// and "..").
func (fs *FileSystem) ListDirectory(path, currentDir string) ([]DirEntry, error) {
	inodeNum := fs.dirs.lookupPath(path, currentDir)
	if inodeNum == InvalidInode {
		return nil, kerr.ErrNotFound
	}
	inode, err := fs.alloc.readInode(inodeNum)
	if err != nil {
		return nil, err
	}
	if inode.Type != TypeDir {
		return nil, kerr.ErrNotADirectory
	}

	var entries []DirEntry
	buf := make([]byte, fs.layout.BlockSize)
	for i := uint32(0); i < inode.BlocksUsed; i++ {
		if err := fs.disk.ReadBlock(int(inode.DirectBlocks[i]), buf); err != nil {
			return entries, err
		}
		for j := 0; j < fs.layout.DirentsPerBlock(); j++ {
			off := j * fs.layout.DirentSize
			e := DecodeDirEntry(buf[off:off+fs.layout.DirentSize], fs.layout.MaxFilenameLen)
			if e.IsValid() {
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// CloseFile releases fd. Closing an already-closed or unknown fd returns
// ErrNotFound.
func (fs *FileSystem) CloseFile(fd int) error {
	return fs.fds.close(fd)
}

// ReadFile reads up to len(buf) bytes starting at fd's current offset,
// advancing it by the number of bytes actually read.
func (fs *FileSystem) ReadFile(fd int, buf []byte) (int, error) {
	of, err := fs.fds.get(fd)
	if err != nil {
		return 0, err
	}
	inode, err := fs.alloc.readInode(of.inode)
	if err != nil {
		return 0, err
	}

	remaining := int(inode.Size) - int(of.offset)
	if remaining <= 0 {
		return 0, nil
	}
	if len(buf) > remaining {
		buf = buf[:remaining]
	}

	blockBuf := make([]byte, fs.layout.BlockSize)
	read := 0
	for read < len(buf) {
		blockIdx := (int(of.offset) + read) / fs.layout.BlockSize
		blockOff := (int(of.offset) + read) % fs.layout.BlockSize
		if blockIdx >= int(inode.BlocksUsed) {
			break
		}
		if err := fs.disk.ReadBlock(int(inode.DirectBlocks[blockIdx]), blockBuf); err != nil {
			return read, err
		}
		n := copy(buf[read:], blockBuf[blockOff:])
		read += n
	}

	of.offset += uint32(read)
	return read, nil
}

// WriteFile writes buf at fd's current offset, allocating new direct
// blocks as needed up to DirectBlocks (ErrMaxFileSizeReached beyond that),
// and read-modify-writes any partially-filled block.
func (fs *FileSystem) WriteFile(fd int, buf []byte) (int, error) {
	of, err := fs.fds.get(fd)
	if err != nil {
		return 0, err
	}
	inode, err := fs.alloc.readInode(of.inode)
	if err != nil {
		return 0, err
	}

	blockBuf := make([]byte, fs.layout.BlockSize)
	written := 0
	for written < len(buf) {
		blockIdx := (int(of.offset) + written) / fs.layout.BlockSize
		blockOff := (int(of.offset) + written) % fs.layout.BlockSize

		if blockIdx >= fs.layout.DirectBlocks {
			klog.Log.WithField("inode", of.inode).Warn("file reached max direct-block size")
			break
		}
		if blockIdx >= int(inode.BlocksUsed) {
			newBlock, err := fs.alloc.allocBlock()
			if err != nil {
				break
			}
			inode.DirectBlocks[blockIdx] = newBlock
			inode.BlocksUsed = uint32(blockIdx + 1)
			for i := range blockBuf {
				blockBuf[i] = 0
			}
		} else if err := fs.disk.ReadBlock(int(inode.DirectBlocks[blockIdx]), blockBuf); err != nil {
			return written, err
		}

		n := copy(blockBuf[blockOff:], buf[written:])
		if err := fs.disk.WriteBlock(int(inode.DirectBlocks[blockIdx]), blockBuf); err != nil {
			return written, err
		}
		written += n
	}

	of.offset += uint32(written)
	if of.offset > inode.Size {
		inode.Size = of.offset
	}
	if err := fs.alloc.writeInode(of.inode, inode); err != nil {
		return written, err
	}
	if err := fs.alloc.saveBitmaps(); err != nil {
		return written, err
	}
	if err := fs.syncSuperblock(); err != nil {
		return written, err
	}

	if written < len(buf) {
		return written, kerr.ErrMaxFileSizeReached
	}
	return written, nil
}
