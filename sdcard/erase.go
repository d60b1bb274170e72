package sdcard

import (
	"context"
	"fmt"

	"github.com/moffa90/go-sdspi/protocol"
)

// Erase erases every block from start to end inclusive. Both are byte
// addresses and must be block aligned. SD cards use CMD32/CMD33 and MMC
// uses CMD35/CMD36 to set the range; a rejected range never reaches CMD38.
func (c *Card) Erase(ctx context.Context, start, end uint64) error {
	const op = "erase"
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(op)
	if err == nil {
		err = c.checkWritable(op)
	}
	if err == nil {
		err = checkAlignment(op, s, start, 0, true)
	}
	if err == nil {
		err = checkAlignment(op, s, end, 0, true)
	}
	if err == nil && end < start {
		err = protocol.NewCardError(op, protocol.ErrAddressOutOfBounds, nil,
			fmt.Errorf("end 0x%X before start 0x%X", end, start))
	}
	if err == nil {
		err = c.erase(ctx, s, start, end)
	}
	return c.finish(op, err)
}

func (c *Card) erase(ctx context.Context, s Session, start, end uint64) error {
	startCmd, endCmd := protocol.CmdEraseWrBlkStart, protocol.CmdEraseWrBlkEnd
	if s.IsMMC() {
		startCmd, endCmd = protocol.CmdEraseGroupStart, protocol.CmdEraseGroupEnd
	}

	resp, err := c.command(startCmd, s.cardAddress(start))
	if err != nil {
		return err
	}
	if err := checkR1(startCmd, resp); err != nil {
		return fmt.Errorf("erase start address: %w", err)
	}

	resp, err = c.command(endCmd, s.cardAddress(end))
	if err != nil {
		return err
	}
	if err := checkR1(endCmd, resp); err != nil {
		return fmt.Errorf("erase end address: %w", err)
	}

	cmd := protocol.CmdErase
	if err := c.selectCard(cmd.String()); err != nil {
		return err
	}
	resp, err = c.issue(cmd, 0)
	if err == nil && resp[0] != 0 {
		err = protocol.NewCardError(cmd.String(), protocol.ErrEraseFailed, resp, nil)
	}
	if err == nil {
		err = c.waitReady(ctx, cmd.String())
	}
	if rerr := c.release(cmd.String()); err == nil {
		err = rerr
	}
	if err != nil {
		return err
	}

	c.logDebug("blocks erased",
		"start", fmt.Sprintf("0x%08X", start),
		"end", fmt.Sprintf("0x%08X", end),
	)
	return nil
}
