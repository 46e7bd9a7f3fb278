package blockdev

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/FanTuani/tinix/internal/kerr"
)

func TestOpenCreatesZeroedImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")

	d, err := Open(path, 4, 128)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 4*128 {
		t.Fatalf("image size = %d, want %d", info.Size(), 4*128)
	}

	buf := make([]byte, 128)
	if err := d.ReadBlock(0, buf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(buf, make([]byte, 128)) {
		t.Fatalf("newly created block not zeroed")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")

	d, err := Open(path, 4, 128)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	want := bytes.Repeat([]byte{0xAB}, 128)
	if err := d.WriteBlock(2, want); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got := make([]byte, 128)
	if err := d.ReadBlock(2, got); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch")
	}

	// Other blocks remain untouched.
	other := make([]byte, 128)
	if err := d.ReadBlock(0, other); err != nil {
		t.Fatalf("ReadBlock(0): %v", err)
	}
	if !bytes.Equal(other, make([]byte, 128)) {
		t.Fatalf("unrelated block was modified")
	}
}

func TestOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")

	d, err := Open(path, 4, 128)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	buf := make([]byte, 128)
	if err := d.ReadBlock(4, buf); !errors.Is(err, kerr.ErrIOOutOfRange) {
		t.Fatalf("ReadBlock(4) err = %v, want out-of-range sentinel", err)
	}
	if err := d.WriteBlock(-1, buf); !errors.Is(err, kerr.ErrIOOutOfRange) {
		t.Fatalf("WriteBlock(-1) err = %v, want out-of-range sentinel", err)
	}
}
