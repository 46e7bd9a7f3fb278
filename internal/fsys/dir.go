// dir.go implements the Directory Manager of spec.md §4.4.3: path
// normalization, parent/tail splitting, lookup, and directory-entry
// insert/remove. Grounded on
// original_source/src/fs/directory_manager.cpp's normalize_path/
// split_path/lookup_path/add_directory_entry/remove_directory_entry.
package fsys

import (
	"strings"

	"github.com/FanTuani/tinix/internal/blockdev"
	"github.com/FanTuani/tinix/internal/kerr"
	"github.com/FanTuani/tinix/internal/klog"
)

// RootInode is the fixed inode number of the root directory.
const RootInode uint32 = 0

type dirManager struct {
	disk  *blockdev.Device
	alloc *allocator
}

func newDirManager(disk *blockdev.Device, alloc *allocator) *dirManager {
	return &dirManager{disk: disk, alloc: alloc}
}

// NormalizePath joins a possibly relative path to currentDir and reduces
// ".", "..", and repeated "/" against a stack; ".." from root stays at
// root. The result is always absolute, without a trailing slash except for
// "/" itself.
func NormalizePath(path, currentDir string) string {
	var abs string
	switch {
	case path == "":
		if currentDir == "" {
			abs = "/"
		} else {
			abs = currentDir
		}
	case strings.HasPrefix(path, "/"):
		abs = path
	case currentDir == "" || currentDir == "/":
		abs = "/" + path
	default:
		abs = currentDir + "/" + path
	}

	var stack []string
	for _, part := range strings.Split(abs, "/") {
		switch part {
		case "", ".":
			// skip
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}

	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

// SplitPath separates "a/b/c" into parent "a/b" and tail "c"; "/x" splits
// into ("/", "x"). path must already be normalized.
func SplitPath(path string) (parent, name string) {
	idx := strings.LastIndex(path, "/")
	switch {
	case idx < 0:
		return ".", path
	case idx == 0:
		return "/", path[1:]
	default:
		return path[:idx], path[idx+1:]
	}
}

// lookupPath resolves a normalized absolute path from the root inode,
// returning InvalidInode on any missing component or non-directory
// intermediate.
func (d *dirManager) lookupPath(path, currentDir string) uint32 {
	norm := NormalizePath(path, currentDir)
	if norm == "/" {
		return RootInode
	}

	current := RootInode
	for _, component := range strings.Split(strings.TrimPrefix(norm, "/"), "/") {
		if component == "" || component == "." {
			continue
		}
		next, err := d.lookupInDirectory(current, component)
		if err != nil {
			return InvalidInode
		}
		current = next
	}
	return current
}

// lookupInDirectory scans dirInode's data blocks for name.
func (d *dirManager) lookupInDirectory(dirInode uint32, name string) (uint32, error) {
	inode, err := d.alloc.readInode(dirInode)
	if err != nil {
		return InvalidInode, err
	}
	if inode.Type != TypeDir {
		return InvalidInode, kerr.ErrNotADirectory
	}

	layout := d.alloc.layout
	buf := make([]byte, layout.BlockSize)
	for i := uint32(0); i < inode.BlocksUsed; i++ {
		if err := d.disk.ReadBlock(int(inode.DirectBlocks[i]), buf); err != nil {
			continue
		}
		for j := 0; j < layout.DirentsPerBlock(); j++ {
			entry := DecodeDirEntry(buf[j*layout.DirentSize:(j+1)*layout.DirentSize], layout.MaxFilenameLen)
			if entry.IsValid() && entry.Name == name {
				return entry.Inode, nil
			}
		}
	}
	return InvalidInode, kerr.ErrNotFound
}

// addEntry scans dirInode's existing blocks for a free slot; if none,
// allocates a new data block (DirectoryFull once blocks_used reaches
// DIRECT_BLOCKS) and appends.
func (d *dirManager) addEntry(dirInode uint32, name string, boundInode uint32) error {
	inode, err := d.alloc.readInode(dirInode)
	if err != nil {
		return err
	}

	layout := d.alloc.layout
	buf := make([]byte, layout.BlockSize)
	for i := uint32(0); i < inode.BlocksUsed; i++ {
		if err := d.disk.ReadBlock(int(inode.DirectBlocks[i]), buf); err != nil {
			return err
		}
		for j := 0; j < layout.DirentsPerBlock(); j++ {
			off := j * layout.DirentSize
			entry := DecodeDirEntry(buf[off:off+layout.DirentSize], layout.MaxFilenameLen)
			if !entry.IsValid() {
				copy(buf[off:off+layout.DirentSize], EncodeDirEntry(DirEntry{Name: name, Inode: boundInode}, layout.MaxFilenameLen))
				if err := d.disk.WriteBlock(int(inode.DirectBlocks[i]), buf); err != nil {
					return err
				}
				inode.Size += uint32(layout.DirentSize)
				return d.alloc.writeInode(dirInode, inode)
			}
		}
	}

	if int(inode.BlocksUsed) >= layout.DirectBlocks {
		klog.Log.WithField("dir_inode", dirInode).Error("directory has no free slot")
		return kerr.ErrDirectoryFull
	}

	newBlock, err := d.alloc.allocBlock()
	if err != nil {
		return err
	}

	for i := range buf {
		buf[i] = 0
	}
	for j := 0; j < layout.DirentsPerBlock(); j++ {
		off := j * layout.DirentSize
		copy(buf[off:off+layout.DirentSize], EncodeDirEntry(DirEntry{Inode: InvalidInode}, layout.MaxFilenameLen))
	}
	copy(buf[:layout.DirentSize], EncodeDirEntry(DirEntry{Name: name, Inode: boundInode}, layout.MaxFilenameLen))
	if err := d.disk.WriteBlock(int(newBlock), buf); err != nil {
		return err
	}

	inode.DirectBlocks[inode.BlocksUsed] = newBlock
	inode.BlocksUsed++
	inode.Size += uint32(layout.DirentSize)
	return d.alloc.writeInode(dirInode, inode)
}

// removeEntry marks the matching slot free by writing InvalidInode to its
// inode#; the data block stays allocated (no compaction, spec.md §4.4.3).
func (d *dirManager) removeEntry(dirInode uint32, name string) error {
	inode, err := d.alloc.readInode(dirInode)
	if err != nil {
		return err
	}

	layout := d.alloc.layout
	buf := make([]byte, layout.BlockSize)
	for i := uint32(0); i < inode.BlocksUsed; i++ {
		if err := d.disk.ReadBlock(int(inode.DirectBlocks[i]), buf); err != nil {
			return err
		}
		for j := 0; j < layout.DirentsPerBlock(); j++ {
			off := j * layout.DirentSize
			entry := DecodeDirEntry(buf[off:off+layout.DirentSize], layout.MaxFilenameLen)
			if entry.IsValid() && entry.Name == name {
				copy(buf[off:off+layout.DirentSize], EncodeDirEntry(DirEntry{Inode: InvalidInode}, layout.MaxFilenameLen))
				if err := d.disk.WriteBlock(int(inode.DirectBlocks[i]), buf); err != nil {
					return err
				}
				inode.Size -= uint32(layout.DirentSize)
				return d.alloc.writeInode(dirInode, inode)
			}
		}
	}
	return kerr.ErrNotFound
}

// initDirBlock allocates a data block holding "." and ".." and returns
// it ready to be inode-written and linked by the caller.
func (d *dirManager) initDirBlock(selfInode, parentInode uint32) (uint32, error) {
	block, err := d.alloc.allocBlock()
	if err != nil {
		return InvalidBlock, err
	}

	layout := d.alloc.layout
	buf := make([]byte, layout.BlockSize)
	for j := 0; j < layout.DirentsPerBlock(); j++ {
		off := j * layout.DirentSize
		copy(buf[off:off+layout.DirentSize], EncodeDirEntry(DirEntry{Inode: InvalidInode}, layout.MaxFilenameLen))
	}
	copy(buf[0:layout.DirentSize], EncodeDirEntry(DirEntry{Name: ".", Inode: selfInode}, layout.MaxFilenameLen))
	copy(buf[layout.DirentSize:2*layout.DirentSize], EncodeDirEntry(DirEntry{Name: "..", Inode: parentInode}, layout.MaxFilenameLen))

	if err := d.disk.WriteBlock(int(block), buf); err != nil {
		return InvalidBlock, err
	}
	return block, nil
}
