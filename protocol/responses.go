package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// R1 is the first response byte of every command.
type R1 byte

// R1 bits.
const (
	R1Idle               R1 = 1 << 0
	R1EraseReset         R1 = 1 << 1
	R1IllegalCommand     R1 = 1 << 2
	R1CommandCRCError    R1 = 1 << 3
	R1EraseSequenceError R1 = 1 << 4
	R1AddressError       R1 = 1 << 5
	R1ParameterError     R1 = 1 << 6

	// R1StartBit is always zero in a well-formed response
	R1StartBit R1 = 1 << 7
)

// Idle reports whether the card is in the idle state.
func (r R1) Idle() bool { return r&R1Idle != 0 }

// IllegalCommand reports whether the card rejected the command index.
func (r R1) IllegalCommand() bool { return r&R1IllegalCommand != 0 }

// CommandCRCError reports whether the card rejected the packet CRC.
func (r R1) CommandCRCError() bool { return r&R1CommandCRCError != 0 }

// AddressError reports a misaligned address.
func (r R1) AddressError() bool { return r&R1AddressError != 0 }

// ParameterError reports an argument outside the allowed range.
func (r R1) ParameterError() bool { return r&R1ParameterError != 0 }

// Valid reports whether the start bit is clear.
func (r R1) Valid() bool { return r&R1StartBit == 0 }

// HasErrors reports whether any bit other than idle is set.
func (r R1) HasErrors() bool { return r&^R1Idle != 0 }

func (r R1) String() string {
	if r == 0 {
		return "ready"
	}
	names := []struct {
		bit  R1
		name string
	}{
		{R1Idle, "idle"},
		{R1EraseReset, "erase-reset"},
		{R1IllegalCommand, "illegal-command"},
		{R1CommandCRCError, "crc-error"},
		{R1EraseSequenceError, "erase-sequence-error"},
		{R1AddressError, "address-error"},
		{R1ParameterError, "parameter-error"},
		{R1StartBit, "start-bit"},
	}
	var parts []string
	for _, n := range names {
		if r&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// IfCond is the payload of a SEND_IF_COND (R7) response.
type IfCond struct {
	// Voltage is the accepted supply voltage code (low nibble of byte 3)
	Voltage byte

	// Pattern is the echoed check pattern
	Pattern byte
}

// ParseIfCond splits an R7 response into its R1 byte and payload.
//
// Response format (5 bytes):
//
//	[R1][VERSION][RESERVED][VOLTAGE][PATTERN]
func ParseIfCond(resp []byte) (R1, IfCond, error) {
	if len(resp) != RespR7.Len() {
		return 0, IfCond{}, fmt.Errorf("invalid R7 length: got %d bytes, expected %d", len(resp), RespR7.Len())
	}
	return R1(resp[0]), IfCond{Voltage: resp[3] & 0x0F, Pattern: resp[4]}, nil
}

// OCR is the 32-bit operating conditions register.
type OCR uint32

// PowerUpComplete reports whether the card finished its power-up routine.
func (o OCR) PowerUpComplete() bool { return o&OCRPowerUpComplete != 0 }

// HighCapacity reports the card capacity status bit. Only meaningful once
// PowerUpComplete is set.
func (o OCR) HighCapacity() bool { return o&OCRCapacityStatus != 0 }

// Supports32to33 reports whether the 3.2-3.3V window is supported.
func (o OCR) Supports32to33() bool { return o&OCRVoltage32to33 != 0 }

// ParseOCR splits an R3 response into its R1 byte and the OCR.
//
// Response format (5 bytes):
//
//	[R1][OCR_31..24][OCR_23..16][OCR_15..8][OCR_7..0]
func ParseOCR(resp []byte) (R1, OCR, error) {
	if len(resp) != RespR3.Len() {
		return 0, 0, fmt.Errorf("invalid R3 length: got %d bytes, expected %d", len(resp), RespR3.Len())
	}
	return R1(resp[0]), OCR(binary.BigEndian.Uint32(resp[1:5])), nil
}

// IsDataResponse reports whether b has the xxx0sss1 shape of a data response token.
func IsDataResponse(b byte) bool {
	return b&0x11 == 0x01
}

// DataResponseStatus extracts the sss field of a data response token.
func DataResponseStatus(token byte) byte {
	return (token & DataResponseMask) >> 1
}

// BuildDataResponse is the card-side encoder for a data response token.
func BuildDataResponse(status byte) byte {
	return (status<<1)&DataResponseMask | 0x01
}

// IsErrorToken reports whether b is a data error token rather than a start token.
func IsErrorToken(b byte) bool {
	return b&ErrorTokenMask == 0
}

// ErrorTokenKind maps a data error token to an error kind. Bit 4 means
// "address misaligned" on MMC and "card locked" on SD.
func ErrorTokenKind(token byte, mmc bool) ErrorKind {
	switch {
	case token&ErrTokenCardLocked != 0 && mmc:
		return ErrAddressMisaligned
	case token&ErrTokenOutOfRange != 0:
		return ErrAddressOutOfBounds
	case token&ErrTokenECC != 0:
		return ErrCardECCFailure
	case token&ErrTokenCC != 0:
		return ErrCardControllerFailure
	case token&ErrTokenCardLocked != 0:
		return ErrCardLocked
	default:
		return ErrUnknownProtocolFault
	}
}

// AddressFaultKind classifies a non-zero R1 to an addressed command
// (read, write, erase range). Bits follow the SD physical layer R1 layout:
// 0x20 is the address error, 0x40 the parameter error.
func AddressFaultKind(r R1) ErrorKind {
	switch {
	case !r.Valid():
		return ErrUnknownProtocolFault
	case r.AddressError():
		return ErrAddressMisaligned
	case r.ParameterError():
		return ErrAddressOutOfBounds
	case r.CommandCRCError():
		return ErrCommandCRCRejected
	default:
		return ErrUnknownProtocolFault
	}
}
