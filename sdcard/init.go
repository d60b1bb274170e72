package sdcard

import (
	"context"
	"errors"
	"fmt"

	"github.com/moffa90/go-sdspi/protocol"
)

// ifCondArg carries the 2.7-3.6V supply code and the check pattern.
const ifCondArg = uint32(protocol.VoltageRange27to36)<<8 | protocol.CheckPattern

// Init negotiates with the card and returns the resulting session:
//  1. Reset into SPI mode (CMD0)
//  2. Probe the protocol generation (CMD8)
//  3. Read the OCR to tell SD from MMC (CMD58)
//  4. Wait for power-up with ACMD41, falling back to CMD1
//  5. Classify capacity on v2 cards (CMD58)
//  6. Set the block length (CMD16) and raise the clock
//
// Any previous session is discarded first, so Init also recovers a card
// after an invalidating error or re-insertion.
func (c *Card) Init(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = nil
	if err := c.checkPresent("init"); err != nil {
		return Session{}, c.finish("init", err)
	}

	s, err := c.negotiate(ctx)
	if err != nil {
		return Session{}, c.finish("init", err)
	}

	c.session = &s
	c.logInfo("card ready",
		"family", s.Family().String(),
		"generation", s.Generation().String(),
		"high_capacity", s.IsHighCapacity(),
		"block_length", s.BlockLength(),
		"clock", s.ClockRate().String(),
	)
	return s, nil
}

func (c *Card) negotiate(ctx context.Context) (Session, error) {
	s := Session{family: FamilySD, generation: GenerationV2}

	// PowerOn
	if err := c.bus.SetClockRate(c.config.SlowClock); err != nil {
		return s, busError("set clock", err)
	}
	if err := c.bus.Deselect(); err != nil {
		return s, busError("power up", err)
	}
	for i := 0; i < powerUpClocks; i++ {
		if err := c.send("power up", protocol.IdleByte); err != nil {
			return s, err
		}
	}

	// PowerOn -> Idle
	resp, err := c.command(protocol.CmdGoIdleState, 0)
	if err != nil {
		if protocol.KindOf(err) == protocol.ErrResponseTimeout {
			return s, protocol.NewCardError(protocol.CmdGoIdleState.String(), protocol.ErrResetFailed, nil, err)
		}
		return s, err
	}
	if protocol.R1(resp[0]) != protocol.R1Idle {
		return s, protocol.NewCardError(protocol.CmdGoIdleState.String(), protocol.ErrResetFailed, resp, nil)
	}
	c.logDebug("negotiation", "state", "idle")

	// Idle -> VoltageChecked
	resp, err = c.command(protocol.CmdSendIfCond, ifCondArg)
	if err != nil {
		return s, err
	}
	r1, cond, err := protocol.ParseIfCond(resp)
	if err != nil {
		return s, protocol.NewCardError(protocol.CmdSendIfCond.String(), protocol.ErrUnknownProtocolFault, resp, err)
	}
	if r1.IllegalCommand() {
		s.generation = GenerationLegacy
	} else {
		if cond.Pattern != protocol.CheckPattern {
			return s, protocol.NewCardError(protocol.CmdSendIfCond.String(), protocol.ErrCheckPatternInvalid, resp,
				fmt.Errorf("echoed 0x%02X, sent 0x%02X", cond.Pattern, protocol.CheckPattern))
		}
		if cond.Voltage != protocol.VoltageRange27to36 {
			return s, protocol.NewCardError(protocol.CmdSendIfCond.String(), protocol.ErrUnsupportedVoltage, resp, nil)
		}
	}
	c.logDebug("negotiation", "state", "voltage checked", "generation", s.generation.String())

	// VoltageChecked -> FamilyKnown
	resp, err = c.command(protocol.CmdReadOCR, 0)
	if err != nil {
		return s, err
	}
	r1, ocr, err := protocol.ParseOCR(resp)
	if err != nil {
		return s, protocol.NewCardError(protocol.CmdReadOCR.String(), protocol.ErrUnknownProtocolFault, resp, err)
	}
	if r1.IllegalCommand() {
		s.family = FamilyMMC
	} else if !ocr.Supports32to33() {
		return s, protocol.NewCardError(protocol.CmdReadOCR.String(), protocol.ErrUnsupportedVoltage, resp, nil)
	}
	c.logDebug("negotiation", "state", "family known", "family", s.family.String())

	// FamilyKnown -> Negotiated
	var arg uint32
	if s.generation == GenerationV2 {
		arg = protocol.ArgHighCapacitySupport
	}
	ready := false
	if s.family == FamilySD {
		if ready, err = c.opCondLoop(ctx, protocol.ACmdSendOpCond, arg); err != nil {
			return s, err
		}
		if !ready {
			c.logInfo("ACMD41 timed out, falling back to CMD1", "attempts", c.config.InitAttempts)
		}
	}
	if !ready {
		if ready, err = c.opCondLoop(ctx, protocol.CmdSendOpCond, arg); err != nil {
			return s, err
		}
		if !ready {
			return s, protocol.NewCardError(protocol.CmdSendOpCond.String(), protocol.ErrInitTimeout, nil,
				fmt.Errorf("card still idle after %d attempts", c.config.InitAttempts))
		}
	}
	c.logDebug("negotiation", "state", "negotiated")

	// Negotiated -> CapacityClassified
	if s.generation == GenerationV2 {
		if s.highCapacity, err = c.capacityClass(ctx); err != nil {
			return s, err
		}
	}
	c.logDebug("negotiation", "state", "capacity classified", "high_capacity", s.highCapacity)

	// CapacityClassified -> Ready
	if s.highCapacity {
		s.blockLength = protocol.HighCapacityBlockLength
	} else {
		resp, err = c.command(protocol.CmdSetBlockLen, c.config.BlockLength)
		if err != nil {
			return s, err
		}
		if resp[0] != 0 {
			return s, protocol.NewCardError(protocol.CmdSetBlockLen.String(), protocol.ErrSetBlockLengthFailed, resp, nil)
		}
		s.blockLength = c.config.BlockLength
	}

	if err := c.bus.SetClockRate(c.config.FastClock); err != nil {
		return s, busError("set clock", err)
	}
	s.clockRate = c.config.FastClock
	c.logDebug("negotiation", "state", "ready")

	return s, nil
}

// opCondLoop repeats an initialization command until the card leaves the
// idle state. It returns false once the attempt budget is spent.
func (c *Card) opCondLoop(ctx context.Context, cmd protocol.Command, arg uint32) (bool, error) {
	for i := 0; i < c.config.InitAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, protocol.NewCardError(cmd.String(), protocol.ErrInitTimeout, nil, err)
		}

		var resp []byte
		var err error
		if cmd.App {
			resp, err = c.appCommand(cmd, arg)
		} else {
			resp, err = c.command(cmd, arg)
		}
		if err != nil {
			var ce *protocol.CardError
			if errors.As(err, &ce) && len(ce.Response) > 0 && protocol.R1(ce.Response[0]).IllegalCommand() {
				return false, protocol.NewCardError(cmd.String(), protocol.ErrNotASupportedCard, ce.Response, err)
			}
			if errors.Is(err, errPrefixRejected) {
				// skip this round; the next prefix may get through
				c.logDebug("app command prefix rejected", "cmd", cmd.String(), "attempt", i+1, "error", err.Error())
				continue
			}
			return false, err
		}

		r1 := protocol.R1(resp[0])
		if r1.IllegalCommand() {
			return false, protocol.NewCardError(cmd.String(), protocol.ErrNotASupportedCard, resp, nil)
		}
		if !r1.Idle() {
			c.logDebug("card left idle state", "cmd", cmd.String(), "attempts", i+1)
			return true, nil
		}
	}
	return false, nil
}

// capacityClass polls the OCR until power-up completes and reports the
// capacity status bit.
func (c *Card) capacityClass(ctx context.Context) (bool, error) {
	for i := 0; i < c.config.InitAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return false, protocol.NewCardError(protocol.CmdReadOCR.String(), protocol.ErrInitTimeout, nil, err)
		}
		resp, err := c.command(protocol.CmdReadOCR, 0)
		if err != nil {
			return false, err
		}
		_, ocr, err := protocol.ParseOCR(resp)
		if err != nil {
			return false, protocol.NewCardError(protocol.CmdReadOCR.String(), protocol.ErrUnknownProtocolFault, resp, err)
		}
		if ocr.PowerUpComplete() {
			return ocr.HighCapacity(), nil
		}
	}
	c.logInfo("OCR power-up bit never set, assuming standard capacity", "attempts", c.config.InitAttempts)
	return false, nil
}
