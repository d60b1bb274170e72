package sdcard

import (
	"context"
	"fmt"

	"github.com/moffa90/go-sdspi/protocol"
	"github.com/moffa90/go-sdspi/register"
)

// ReadCSD fetches and decodes the card-specific data register.
func (c *Card) ReadCSD(ctx context.Context) (register.CSD, error) {
	const op = "read CSD"
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(op)
	if err != nil {
		return register.CSD{}, c.finish(op, err)
	}
	raw, err := c.fetchRegister(protocol.CmdSendCSD, "CSD")
	if err != nil {
		return register.CSD{}, c.finish(op, err)
	}
	csd, err := register.DecodeCSD(raw, s.IsMMC())
	if err != nil {
		return register.CSD{}, c.finish(op, protocol.NewCardError("CSD", protocol.ErrRegisterFetchFailed, nil, err))
	}
	return csd, nil
}

// ReadCID fetches and decodes the card identification register.
func (c *Card) ReadCID(ctx context.Context) (register.CID, error) {
	const op = "read CID"
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.ready(op)
	if err != nil {
		return register.CID{}, c.finish(op, err)
	}
	raw, err := c.fetchRegister(protocol.CmdSendCID, "CID")
	if err != nil {
		return register.CID{}, c.finish(op, err)
	}
	cid, err := register.DecodeCID(raw, s.IsMMC())
	if err != nil {
		return register.CID{}, c.finish(op, protocol.NewCardError("CID", protocol.ErrRegisterFetchFailed, nil, err))
	}
	return cid, nil
}

// Size returns the card capacity in bytes, derived from the CSD.
//
// Example:
//
//	size, err := card.Size(ctx)
//	fmt.Printf("%d MiB\n", size>>20)
func (c *Card) Size(ctx context.Context) (uint64, error) {
	csd, err := c.ReadCSD(ctx)
	if err != nil {
		return 0, err
	}
	return csd.Capacity(), nil
}

// fetchRegister reads a 16-byte register framed like a data block. Block
// level failures are reported as register failures naming the register.
func (c *Card) fetchRegister(cmd protocol.Command, name string) ([]byte, error) {
	if err := c.selectCard(cmd.String()); err != nil {
		return nil, err
	}

	raw := make([]byte, protocol.RegisterLength)
	resp, err := c.issue(cmd, 0)
	if err == nil && resp[0] != 0 {
		err = protocol.NewCardError(name, protocol.ErrRegisterFetchFailed, resp, nil)
	}
	if err == nil {
		err = c.receiveBlock(name, raw, false)
	}
	if rerr := c.release(cmd.String()); err == nil {
		err = rerr
	}
	if err != nil {
		return nil, registerError(name, err)
	}

	c.logDebug("register read", "register", name, "raw", fmt.Sprintf("% X", raw))
	return raw, nil
}

// registerError keeps session-invalidating kinds as they are so the caller
// drops the session.
func registerError(name string, err error) error {
	kind := protocol.KindOf(err)
	switch {
	case kind.Invalidates(), kind == protocol.ErrRegisterFetchFailed:
		return err
	case kind == protocol.ErrBlockCRCInvalid:
		return protocol.NewCardError(name, protocol.ErrRegisterCRCInvalid, nil, err)
	default:
		return protocol.NewCardError(name, protocol.ErrRegisterFetchFailed, nil, err)
	}
}
