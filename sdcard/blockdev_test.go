package sdcard

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/moffa90/go-sdspi/protocol"
	"github.com/moffa90/go-sdspi/simcard"
)

func newTestDevice(t *testing.T, kind simcard.Kind) (*simcard.Card, *BlockDevice) {
	t.Helper()
	sim, card, _ := newTestCard(t, kind, nil)
	dev, err := NewBlockDevice(context.Background(), card)
	if err != nil {
		t.Fatalf("NewBlockDevice() error = %v", err)
	}
	return sim, dev
}

func TestBlockDeviceGeometry(t *testing.T) {
	_, dev := newTestDevice(t, simcard.KindSDHC)

	if dev.BlockSize() != 512 {
		t.Errorf("BlockSize() = %d", dev.BlockSize())
	}
	if dev.BlockCount() != sdhcSize/512 {
		t.Errorf("BlockCount() = %d, want %d", dev.BlockCount(), sdhcSize/512)
	}
	if dev.Size() != sdhcSize {
		t.Errorf("Size() = %d", dev.Size())
	}
}

func TestBlockDeviceReadWrite(t *testing.T) {
	_, dev := newTestDevice(t, simcard.KindSDv2)

	data := pattern(3*512, 0x99)
	if n, err := dev.WriteAt(data, 4096); err != nil || n != len(data) {
		t.Fatalf("WriteAt() = %d, %v", n, err)
	}
	if n, err := dev.WriteAt(data[:512], 0); err != nil || n != 512 {
		t.Fatalf("WriteAt(single) = %d, %v", n, err)
	}

	got := make([]byte, 3*512)
	if n, err := dev.ReadAt(got, 4096); err != nil || n != len(got) {
		t.Fatalf("ReadAt() = %d, %v", n, err)
	}
	if !bytes.Equal(got, data) {
		t.Error("ReadAt() data differs")
	}

	// io.SectionReader works on top of the device
	r := io.NewSectionReader(dev, 0, 512)
	first, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(first, data[:512]) {
		t.Error("section reader data differs")
	}
}

func TestBlockDeviceEnd(t *testing.T) {
	_, dev := newTestDevice(t, simcard.KindSDv2)

	// reading across the end returns the available blocks and io.EOF
	buf := make([]byte, 4*512)
	n, err := dev.ReadAt(buf, dev.Size()-1024)
	if err != io.EOF || n != 1024 {
		t.Errorf("ReadAt(across end) = %d, %v; want 1024, EOF", n, err)
	}

	n, err = dev.ReadAt(buf, dev.Size())
	if err != io.EOF || n != 0 {
		t.Errorf("ReadAt(at end) = %d, %v; want 0, EOF", n, err)
	}

	_, err = dev.WriteAt(buf, dev.Size()-1024)
	wantKind(t, err, protocol.ErrAddressOutOfBounds)

	_, err = dev.ReadAt(buf, dev.Size()+512)
	wantKind(t, err, protocol.ErrAddressOutOfBounds)
}

func TestBlockDeviceAlignment(t *testing.T) {
	_, dev := newTestDevice(t, simcard.KindSDHC)

	_, err := dev.ReadAt(make([]byte, 512), 100)
	wantKind(t, err, protocol.ErrAddressMisaligned)
	_, err = dev.WriteAt(make([]byte, 100), 0)
	wantKind(t, err, protocol.ErrDataLengthNotBlockMultiple)
	_, err = dev.ReadAt(make([]byte, 512), -512)
	wantKind(t, err, protocol.ErrAddressMisaligned)
}

func TestBlockDeviceEraseBlocks(t *testing.T) {
	_, dev := newTestDevice(t, simcard.KindMMC)

	if _, err := dev.WriteAt(make([]byte, 4*512), 0); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if err := dev.EraseBlocks(1, 2); err != nil {
		t.Fatalf("EraseBlocks() error = %v", err)
	}

	buf := make([]byte, 4*512)
	if _, err := dev.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	for i, b := range buf {
		erased := i >= 512 && i < 3*512
		if erased && b != 0xFF || !erased && b != 0 {
			t.Fatalf("byte %d = 0x%02X (erased range %v)", i, b, erased)
		}
	}

	if err := dev.EraseBlocks(0, 0); err != nil {
		t.Errorf("EraseBlocks(0, 0) error = %v", err)
	}
	wantKind(t, dev.EraseBlocks(dev.BlockCount()-1, 2), protocol.ErrAddressOutOfBounds)
}

func TestNewBlockDeviceRequiresInit(t *testing.T) {
	sim := simcard.New(simcard.KindSDv2, simcard.NewMemStore(sdSize))
	_, err := NewBlockDevice(context.Background(), New(sim))
	wantKind(t, err, protocol.ErrNotInitialized)
}
