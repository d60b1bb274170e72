package sdcard

import (
	"context"

	"github.com/moffa90/go-sdspi/protocol"
)

// ReadStatus issues SEND_STATUS and returns the 16-bit status word.
func (c *Card) ReadStatus(ctx context.Context) (protocol.Status, error) {
	const op = "read status"
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ready(op); err != nil {
		return 0, c.finish(op, err)
	}
	resp, err := c.command(protocol.CmdSendStatus, 0)
	if err != nil {
		return 0, c.finish(op, err)
	}

	status := protocol.ParseStatus(resp)
	c.logDebug("status", "status", status.String())
	return status, nil
}
