package sdcard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-sdspi/protocol"
)

// powerUpClocks is the number of idle bytes sent with chip-select released
// before the first command (at least 74 clocks).
const powerUpClocks = 10

func busError(op string, err error) error {
	return protocol.NewCardError(op, protocol.ErrBus, nil, err)
}

func (c *Card) send(op string, bs ...byte) error {
	for _, b := range bs {
		if err := c.bus.Send(b); err != nil {
			return busError(op, err)
		}
	}
	return nil
}

func (c *Card) receive(op string) (byte, error) {
	b, err := c.bus.Receive()
	if err != nil {
		return 0, busError(op, err)
	}
	return b, nil
}

func (c *Card) selectCard(op string) error {
	if err := c.bus.Select(); err != nil {
		return busError(op, err)
	}
	return nil
}

// release deselects the card and clocks 8 idle bits so it frees the data line.
func (c *Card) release(op string) error {
	if err := c.bus.Deselect(); err != nil {
		return busError(op, err)
	}
	return c.send(op, protocol.IdleByte)
}

// issue sends one command packet and collects its response. The card must
// already be selected.
func (c *Card) issue(cmd protocol.Command, arg uint32) ([]byte, error) {
	op := cmd.String()
	pkt := protocol.BuildPacket(cmd, arg)
	if err := c.send(op, pkt[:]...); err != nil {
		return nil, err
	}

	// CMD12 is followed by one stuff byte before the response
	if cmd.Index == protocol.CmdStopTransmission.Index {
		if _, err := c.receive(op); err != nil {
			return nil, err
		}
	}

	resp := make([]byte, cmd.Response.Len())
	found := false
	for i := 0; i < c.config.CommandAttempts; i++ {
		b, err := c.receive(op)
		if err != nil {
			return nil, err
		}
		if b != protocol.IdleByte {
			resp[0] = b
			found = true
			break
		}
	}
	if !found {
		return nil, protocol.NewCardError(op, protocol.ErrResponseTimeout, nil,
			fmt.Errorf("no response after %d polls", c.config.CommandAttempts))
	}

	for i := 1; i < len(resp); i++ {
		b, err := c.receive(op)
		if err != nil {
			return nil, err
		}
		resp[i] = b
	}

	c.logDebug("command",
		"cmd", op,
		"arg", fmt.Sprintf("0x%08X", arg),
		"response", fmt.Sprintf("% X", resp),
	)
	return resp, nil
}

// command runs a complete single-response transaction.
func (c *Card) command(cmd protocol.Command, arg uint32) ([]byte, error) {
	if err := c.selectCard(cmd.String()); err != nil {
		return nil, err
	}
	resp, err := c.issue(cmd, arg)
	if rerr := c.release(cmd.String()); err == nil {
		err = rerr
	}
	return resp, err
}

// errPrefixRejected marks an APP_CMD prefix answered with error bits.
var errPrefixRejected = errors.New("app command prefix rejected")

// appCommand sends APP_CMD followed by cmd. A rejected prefix is returned
// without sending cmd.
func (c *Card) appCommand(cmd protocol.Command, arg uint32) ([]byte, error) {
	resp, err := c.command(protocol.CmdAppCmd, 0)
	if err != nil {
		return nil, err
	}
	if r1 := protocol.R1(resp[0]); r1.HasErrors() {
		kind := protocol.ErrUnknownProtocolFault
		if r1.Valid() && r1.CommandCRCError() {
			kind = protocol.ErrCommandCRCRejected
		}
		return nil, protocol.NewCardError(protocol.CmdAppCmd.String()+" before "+cmd.String(), kind, resp, errPrefixRejected)
	}
	return c.command(cmd, arg)
}

// waitReady polls until the card stops signalling busy. There is no
// protocol bound; ctx and the configured busy timeout end the wait.
func (c *Card) waitReady(ctx context.Context, op string) error {
	return c.waitFor(ctx, op, func(b byte) bool { return b != protocol.BusyByte })
}

// waitIdle polls until the card releases the data line completely.
func (c *Card) waitIdle(ctx context.Context, op string) error {
	return c.waitFor(ctx, op, func(b byte) bool { return b == protocol.IdleByte })
}

func (c *Card) waitFor(ctx context.Context, op string, done func(byte) bool) error {
	var deadline time.Time
	if c.config.BusyTimeout > 0 {
		deadline = time.Now().Add(c.config.BusyTimeout)
	}

	for {
		b, err := c.receive(op)
		if err != nil {
			return err
		}
		if done(b) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return protocol.NewCardError(op, protocol.ErrBusyTimeout, nil, err)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return protocol.NewCardError(op, protocol.ErrBusyTimeout, nil,
				fmt.Errorf("card busy for more than %s", c.config.BusyTimeout))
		}
	}
}

// pollToken waits for a data start token or an error token.
func (c *Card) pollToken(op string, start byte) (byte, error) {
	for i := 0; i < c.config.DataAttempts; i++ {
		b, err := c.receive(op)
		if err != nil {
			return 0, err
		}
		if b == start || protocol.IsErrorToken(b) {
			return b, nil
		}
	}
	return 0, protocol.NewCardError(op, protocol.ErrResponseTimeout, nil,
		fmt.Errorf("no data token after %d polls", c.config.DataAttempts))
}

// receiveBlock reads one token-framed block into buf and verifies its CRC16.
func (c *Card) receiveBlock(op string, buf []byte, mmc bool) error {
	token, err := c.pollToken(op, protocol.TokenStartBlock)
	if err != nil {
		return err
	}
	if protocol.IsErrorToken(token) {
		return protocol.NewCardError(op, protocol.ErrorTokenKind(token, mmc), []byte{token}, nil)
	}

	for i := range buf {
		if buf[i], err = c.receive(op); err != nil {
			return err
		}
	}
	hi, err := c.receive(op)
	if err != nil {
		return err
	}
	lo, err := c.receive(op)
	if err != nil {
		return err
	}

	got := uint16(hi)<<8 | uint16(lo)
	if want := protocol.CRC16(buf); got != want {
		return protocol.NewCardError(op, protocol.ErrBlockCRCInvalid, nil,
			fmt.Errorf("crc16 0x%04X, computed 0x%04X", got, want))
	}
	return nil
}

// transmitBlock sends one token-framed block, decodes the data response and
// waits out the programming busy period.
func (c *Card) transmitBlock(ctx context.Context, op string, token byte, data []byte) error {
	crc := protocol.CRC16(data)
	if err := c.send(op, token); err != nil {
		return err
	}
	if err := c.send(op, data...); err != nil {
		return err
	}
	if err := c.send(op, byte(crc>>8), byte(crc)); err != nil {
		return err
	}

	var resp byte = protocol.IdleByte
	for i := 0; i < c.config.DataAttempts; i++ {
		b, err := c.receive(op)
		if err != nil {
			return err
		}
		if b != protocol.IdleByte {
			resp = b
			break
		}
	}
	if resp == protocol.IdleByte {
		return protocol.NewCardError(op, protocol.ErrResponseTimeout, nil,
			fmt.Errorf("no data response after %d polls", c.config.DataAttempts))
	}

	if !protocol.IsDataResponse(resp) {
		return protocol.NewCardError(op, protocol.ErrUnknownProtocolFault, []byte{resp},
			fmt.Errorf("malformed data response 0x%02X", resp))
	}

	var result error
	switch protocol.DataResponseStatus(resp) {
	case protocol.DataAccepted:
	case protocol.DataCRCError:
		result = protocol.NewCardError(op, protocol.ErrBlockCRCInvalid, []byte{resp}, nil)
	case protocol.DataWriteError:
		result = protocol.NewCardError(op, protocol.ErrWriteRejected, []byte{resp}, nil)
	default:
		result = protocol.NewCardError(op, protocol.ErrUnknownProtocolFault, []byte{resp}, nil)
	}

	// the card may signal busy even after rejecting a block
	if err := c.waitReady(ctx, op); err != nil {
		if result != nil {
			c.logError("busy wait after rejected block", "op", op, "error", err.Error())
			return result
		}
		return err
	}
	return result
}

// stopTransmission ends a multi-block read. The card must be selected.
func (c *Card) stopTransmission(ctx context.Context) error {
	resp, err := c.issue(protocol.CmdStopTransmission, 0)
	if err != nil {
		return err
	}
	if r1 := protocol.R1(resp[0]); !r1.Valid() {
		return protocol.NewCardError(protocol.CmdStopTransmission.String(), protocol.ErrUnknownProtocolFault, resp, nil)
	}
	return c.waitIdle(ctx, protocol.CmdStopTransmission.String())
}
