package sdcard

import (
	"context"
	"fmt"
	"io"

	"github.com/moffa90/go-sdspi/protocol"
)

// BlockDevice exposes an initialized Card as an io.ReaderAt and io.WriterAt.
// Offsets and lengths must be block aligned; there is no read-modify-write.
type BlockDevice struct {
	card   *Card
	ctx    context.Context
	blocks int64
	bl     int64
}

var (
	_ io.ReaderAt = (*BlockDevice)(nil)
	_ io.WriterAt = (*BlockDevice)(nil)
)

// NewBlockDevice wraps card, which must already be initialized. ctx bounds
// every busy-wait performed through the device.
func NewBlockDevice(ctx context.Context, card *Card) (*BlockDevice, error) {
	s, ok := card.Session()
	if !ok {
		return nil, protocol.NewCardError("block device", protocol.ErrNotInitialized, nil, nil)
	}
	size, err := card.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("read size: %w", err)
	}
	bl := int64(s.BlockLength())
	return &BlockDevice{card: card, ctx: ctx, blocks: int64(size) / bl, bl: bl}, nil
}

// BlockSize returns the block length in bytes.
func (d *BlockDevice) BlockSize() int { return int(d.bl) }

// BlockCount returns the number of addressable blocks.
func (d *BlockDevice) BlockCount() int64 { return d.blocks }

// Size returns the device size in bytes.
func (d *BlockDevice) Size() int64 { return d.blocks * d.bl }

// ReadAt reads whole blocks starting at byte offset off.
func (d *BlockDevice) ReadAt(p []byte, off int64) (int, error) {
	if err := d.check(off, len(p)); err != nil {
		return 0, err
	}
	if off == d.Size() && len(p) > 0 {
		return 0, io.EOF
	}
	n := len(p)
	if rem := d.Size() - off; int64(n) > rem {
		n = int(rem)
	}

	var err error
	if int64(n) == d.bl {
		err = d.card.ReadBlock(d.ctx, uint64(off), p[:n])
	} else {
		err = d.card.ReadBlocks(d.ctx, uint64(off), p[:n])
	}
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes whole blocks starting at byte offset off.
func (d *BlockDevice) WriteAt(p []byte, off int64) (int, error) {
	if err := d.check(off, len(p)); err != nil {
		return 0, err
	}
	if off+int64(len(p)) > d.Size() {
		return 0, protocol.NewCardError("write at", protocol.ErrAddressOutOfBounds, nil,
			fmt.Errorf("offset %d length %d exceeds %d bytes", off, len(p), d.Size()))
	}

	var err error
	if int64(len(p)) == d.bl {
		err = d.card.WriteBlock(d.ctx, uint64(off), p)
	} else {
		err = d.card.WriteBlocks(d.ctx, uint64(off), p)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// EraseBlocks erases n blocks starting at block index start.
func (d *BlockDevice) EraseBlocks(start, n int64) error {
	if n <= 0 {
		return nil
	}
	if start < 0 || start+n > d.blocks {
		return protocol.NewCardError("erase blocks", protocol.ErrAddressOutOfBounds, nil,
			fmt.Errorf("blocks %d..%d of %d", start, start+n-1, d.blocks))
	}
	return d.card.Erase(d.ctx, uint64(start*d.bl), uint64((start+n-1)*d.bl))
}

func (d *BlockDevice) check(off int64, n int) error {
	if off < 0 || off%d.bl != 0 {
		return protocol.NewCardError("block device", protocol.ErrAddressMisaligned, nil,
			fmt.Errorf("offset %d", off))
	}
	if int64(n)%d.bl != 0 {
		return protocol.NewCardError("block device", protocol.ErrDataLengthNotBlockMultiple, nil,
			fmt.Errorf("length %d", n))
	}
	if off > d.Size() {
		return protocol.NewCardError("block device", protocol.ErrAddressOutOfBounds, nil,
			fmt.Errorf("offset %d beyond %d bytes", off, d.Size()))
	}
	return nil
}
