// alloc.go implements spec.md §4.4.1-§4.4.2: the bitmap-backed
// block/inode allocators and the inode table, grounded on
// original_source/src/fs/{block_manager,inode_manager}.cpp via
// file_system.cpp's call shape (alloc_block/alloc_inode/free_block/
// free_inode/read_inode/write_inode).
package fsys

import (
	"fmt"

	"github.com/FanTuani/tinix/internal/blockdev"
	"github.com/FanTuani/tinix/internal/kerr"
	"github.com/FanTuani/tinix/internal/klog"
)

// allocator owns the inode and data bitmaps and the raw inode-table I/O.
type allocator struct {
	disk   *blockdev.Device
	layout Layout

	inodeBitmap *Bitmap
	dataBitmap  *Bitmap
}

func newAllocator(disk *blockdev.Device, layout Layout) *allocator {
	return &allocator{
		disk:        disk,
		layout:      layout,
		inodeBitmap: newBitmap(layout.BlockSize),
		dataBitmap:  newBitmap(layout.BlockSize),
	}
}

// loadBitmaps reads both bitmap blocks from disk (spec.md §4.4.1).
func (a *allocator) loadBitmaps() error {
	if err := a.inodeBitmap.load(a.disk, a.layout.InodeBitmapBlock); err != nil {
		return err
	}
	if err := a.dataBitmap.load(a.disk, a.layout.DataBitmapBlock); err != nil {
		return err
	}
	a.inodeBitmap.dirty = false
	a.dataBitmap.dirty = false
	return nil
}

// saveBitmaps persists both bitmap blocks (spec.md §4.4.1).
func (a *allocator) saveBitmaps() error {
	if err := a.inodeBitmap.save(a.disk, a.layout.InodeBitmapBlock); err != nil {
		return err
	}
	if err := a.dataBitmap.save(a.disk, a.layout.DataBitmapBlock); err != nil {
		return err
	}
	return nil
}

// allocBlock finds the lowest clear bit in the data bitmap and returns the
// absolute block id (data_blocks_start + bit), or NoSpace when full.
func (a *allocator) allocBlock() (uint32, error) {
	bit := a.dataBitmap.findFirstClear(a.layout.MaxDataBlocks())
	if bit < 0 {
		klog.Log.Error("no free data blocks")
		return InvalidBlock, kerr.ErrNoSpace
	}
	a.dataBitmap.set(bit, true)
	a.dataBitmap.dirty = true
	return uint32(a.layout.DataBlocksStart + bit), nil
}

// freeBlock clears the bit for blockID; idempotent.
func (a *allocator) freeBlock(blockID uint32) {
	bit := int(blockID) - a.layout.DataBlocksStart
	if bit < 0 || bit >= a.layout.MaxDataBlocks() {
		return
	}
	a.dataBitmap.set(bit, false)
	a.dataBitmap.dirty = true
}

// allocInode finds the lowest clear bit in the inode bitmap.
func (a *allocator) allocInode() (uint32, error) {
	bit := a.inodeBitmap.findFirstClear(a.layout.MaxInodes)
	if bit < 0 {
		klog.Log.Error("no free inodes")
		return InvalidInode, kerr.ErrNoSpace
	}
	a.inodeBitmap.set(bit, true)
	a.inodeBitmap.dirty = true
	return uint32(bit), nil
}

// freeInode clears the bit for inode#; idempotent.
func (a *allocator) freeInode(inodeNum uint32) {
	if int(inodeNum) >= a.layout.MaxInodes {
		return
	}
	a.inodeBitmap.set(int(inodeNum), false)
	a.inodeBitmap.dirty = true
}

// freeDataBlocks returns MAX_DATA_BLOCKS minus the number of set bits, used
// to keep superblock.free_blocks consistent (spec.md §8 invariant 3).
func (a *allocator) freeDataBlocks() int {
	used := 0
	for i := 0; i < a.layout.MaxDataBlocks(); i++ {
		if a.dataBitmap.get(i) {
			used++
		}
	}
	return a.layout.MaxDataBlocks() - used
}

// freeInodes returns MAX_INODES minus the number of set bits, used to keep
// superblock.free_inodes consistent (spec.md §3/§4.4.4).
func (a *allocator) freeInodes() int {
	used := 0
	for i := 0; i < a.layout.MaxInodes; i++ {
		if a.inodeBitmap.get(i) {
			used++
		}
	}
	return a.layout.MaxInodes - used
}

// readInode reads inode k's 128-byte record from its containing block.
func (a *allocator) readInode(k uint32) (Inode, error) {
	if int(k) >= a.layout.MaxInodes {
		return Inode{}, fmt.Errorf("fsys: inode %d: %w", k, kerr.ErrNotFound)
	}
	perBlock := a.layout.InodesPerBlock()
	block := a.layout.InodeTableStart + int(k)/perBlock
	offset := (int(k) % perBlock) * InodeSize

	buf := make([]byte, a.layout.BlockSize)
	if err := a.disk.ReadBlock(block, buf); err != nil {
		return Inode{}, err
	}
	return DecodeInode(buf[offset : offset+InodeSize]), nil
}

// writeInode read-modify-writes the block containing inode k.
func (a *allocator) writeInode(k uint32, n Inode) error {
	if int(k) >= a.layout.MaxInodes {
		return fmt.Errorf("fsys: inode %d: %w", k, kerr.ErrNotFound)
	}
	perBlock := a.layout.InodesPerBlock()
	block := a.layout.InodeTableStart + int(k)/perBlock
	offset := (int(k) % perBlock) * InodeSize

	buf := make([]byte, a.layout.BlockSize)
	if err := a.disk.ReadBlock(block, buf); err != nil {
		return err
	}
	copy(buf[offset:offset+InodeSize], n.Encode())
	return a.disk.WriteBlock(block, buf)
}
