package sdcard

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-sdspi/protocol"
)

// checkAlignment validates a byte address and buffer against the session
// block length. multi allows any block multiple; otherwise exactly one block.
func checkAlignment(op string, s Session, addr uint64, n int, multi bool) error {
	bl := s.BlockLength()
	if addr%uint64(bl) != 0 {
		return protocol.NewCardError(op, protocol.ErrAddressMisaligned, nil,
			fmt.Errorf("address 0x%X is not a multiple of %d", addr, bl))
	}
	if multi && n%int(bl) != 0 || !multi && n != int(bl) {
		return protocol.NewCardError(op, protocol.ErrDataLengthNotBlockMultiple, nil,
			fmt.Errorf("length %d with block length %d", n, bl))
	}
	if !s.addressable(addr) {
		return protocol.NewCardError(op, protocol.ErrAddressOutOfBounds, nil,
			fmt.Errorf("address 0x%X does not fit a command argument", addr))
	}
	return nil
}

// checkR1 classifies a non-zero R1 to an addressed command.
func checkR1(cmd protocol.Command, resp []byte) error {
	if resp[0] == 0 {
		return nil
	}
	return protocol.NewCardError(cmd.String(), protocol.AddressFaultKind(protocol.R1(resp[0])), resp, nil)
}

// ReadBlock reads the block at byte address addr into buf.
// len(buf) must equal the block length and addr must be block aligned.
//
// Example:
//
//	buf := make([]byte, card.BlockLength())
//	err := card.ReadBlock(ctx, 0, buf)
func (c *Card) ReadBlock(ctx context.Context, addr uint64, buf []byte) error {
	const op = "read block"
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(op)
	if err == nil {
		err = checkAlignment(op, s, addr, len(buf), false)
	}
	if err == nil {
		err = c.readSingle(s, addr, buf)
	}
	return c.finish(op, err)
}

func (c *Card) readSingle(s Session, addr uint64, buf []byte) error {
	cmd := protocol.CmdReadSingleBlock
	if err := c.selectCard(cmd.String()); err != nil {
		return err
	}

	resp, err := c.issue(cmd, s.cardAddress(addr))
	if err == nil {
		err = checkR1(cmd, resp)
	}
	if err == nil {
		err = c.receiveBlock(cmd.String(), buf, s.IsMMC())
	}

	if rerr := c.release(cmd.String()); err == nil {
		err = rerr
	}
	if err == nil {
		c.logDebug("block read", "addr", fmt.Sprintf("0x%08X", addr))
	}
	return err
}

// WriteBlock writes data to the block at byte address addr and waits for
// the card to finish programming it.
func (c *Card) WriteBlock(ctx context.Context, addr uint64, data []byte) error {
	const op = "write block"
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(op)
	if err == nil {
		err = c.checkWritable(op)
	}
	if err == nil {
		err = checkAlignment(op, s, addr, len(data), false)
	}
	if err == nil {
		err = c.writeSingle(ctx, s, addr, data)
	}
	return c.finish(op, err)
}

func (c *Card) writeSingle(ctx context.Context, s Session, addr uint64, data []byte) error {
	cmd := protocol.CmdWriteBlock
	if err := c.selectCard(cmd.String()); err != nil {
		return err
	}

	resp, err := c.issue(cmd, s.cardAddress(addr))
	if err == nil {
		err = checkR1(cmd, resp)
	}
	if err == nil {
		err = c.transmitBlock(ctx, cmd.String(), protocol.TokenStartBlock, data)
	}

	if rerr := c.release(cmd.String()); err == nil {
		err = rerr
	}
	if err == nil {
		c.logDebug("block written", "addr", fmt.Sprintf("0x%08X", addr))
	}
	return err
}

// ReadBlocks streams len(buf)/BlockLength consecutive blocks starting at
// addr. The transfer is always terminated with STOP_TRANSMISSION, even when
// a block fails. An empty buf is a no-op.
func (c *Card) ReadBlocks(ctx context.Context, addr uint64, buf []byte) error {
	const op = "read blocks"
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(op)
	if err == nil {
		err = checkAlignment(op, s, addr, len(buf), true)
	}
	if err == nil && len(buf) > 0 {
		err = c.readMulti(ctx, s, addr, buf)
	}
	return c.finish(op, err)
}

func (c *Card) readMulti(ctx context.Context, s Session, addr uint64, buf []byte) error {
	cmd := protocol.CmdReadMultipleBlock
	if err := c.selectCard(cmd.String()); err != nil {
		return err
	}

	resp, err := c.issue(cmd, s.cardAddress(addr))
	if err == nil {
		err = checkR1(cmd, resp)
	}
	if err != nil {
		if rerr := c.release(cmd.String()); rerr != nil {
			c.logError("release after rejected read", "error", rerr.Error())
		}
		return err
	}

	bl := int(s.BlockLength())
	total := len(buf) / bl
	start := time.Now()
	for i := 0; i < total; i++ {
		if err = c.receiveBlock(cmd.String(), buf[i*bl:(i+1)*bl], s.IsMMC()); err != nil {
			err = fmt.Errorf("block %d of %d: %w", i+1, total, err)
			break
		}
		c.reportProgress(blockProgress("read", i+1, total, bl, start))
	}

	stopErr := c.stopTransmission(ctx)
	if rerr := c.release(cmd.String()); stopErr == nil {
		stopErr = rerr
	}
	if err != nil {
		if stopErr != nil {
			c.logError("stop after failed read", "error", stopErr.Error())
		}
		return err
	}
	if stopErr != nil {
		return stopErr
	}

	c.logDebug("blocks read", "addr", fmt.Sprintf("0x%08X", addr), "blocks", total)
	return nil
}

// WriteBlocks streams data to consecutive blocks starting at addr, ending
// with the stop-tran token. An empty data is a no-op.
func (c *Card) WriteBlocks(ctx context.Context, addr uint64, data []byte) error {
	const op = "write blocks"
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(op)
	if err == nil {
		err = c.checkWritable(op)
	}
	if err == nil {
		err = checkAlignment(op, s, addr, len(data), true)
	}
	if err == nil && len(data) > 0 {
		err = c.writeMulti(ctx, s, addr, data)
	}
	return c.finish(op, err)
}

func (c *Card) writeMulti(ctx context.Context, s Session, addr uint64, data []byte) error {
	cmd := protocol.CmdWriteMultipleBlock
	if err := c.selectCard(cmd.String()); err != nil {
		return err
	}

	resp, err := c.issue(cmd, s.cardAddress(addr))
	if err == nil {
		err = checkR1(cmd, resp)
	}
	if err != nil {
		if rerr := c.release(cmd.String()); rerr != nil {
			c.logError("release after rejected write", "error", rerr.Error())
		}
		return err
	}

	bl := int(s.BlockLength())
	total := len(data) / bl
	start := time.Now()
	for i := 0; i < total; i++ {
		if err = c.transmitBlock(ctx, cmd.String(), protocol.TokenStartMultiWrite, data[i*bl:(i+1)*bl]); err != nil {
			err = fmt.Errorf("block %d of %d: %w", i+1, total, err)
			break
		}
		c.reportProgress(blockProgress("write", i+1, total, bl, start))
	}

	stopErr := c.sendStopTran(ctx)
	if rerr := c.release(cmd.String()); stopErr == nil {
		stopErr = rerr
	}
	if err != nil {
		if stopErr != nil {
			c.logError("stop after failed write", "error", stopErr.Error())
		}
		return err
	}
	if stopErr != nil {
		return stopErr
	}

	c.logDebug("blocks written", "addr", fmt.Sprintf("0x%08X", addr), "blocks", total)
	return nil
}

// sendStopTran ends a multi-block write: token, one stuff byte, busy.
func (c *Card) sendStopTran(ctx context.Context) error {
	const op = "stop tran"
	if err := c.send(op, protocol.TokenStopTran); err != nil {
		return err
	}
	if _, err := c.receive(op); err != nil {
		return err
	}
	return c.waitReady(ctx, op)
}

func blockProgress(op string, done, total, blockLen int, start time.Time) Progress {
	return Progress{
		Op:          op,
		Block:       done,
		TotalBlocks: total,
		Bytes:       done * blockLen,
		Percentage:  float64(done) / float64(total) * 100,
		ElapsedTime: time.Since(start),
	}
}
