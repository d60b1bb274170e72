package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a card failure. Kinds are comparable and usable as
// errors.Is targets.
type ErrorKind int

// Error kinds.
const (
	// ErrResetFailed: GO_IDLE_STATE did not answer idle
	ErrResetFailed ErrorKind = iota + 1

	// ErrCheckPatternInvalid: SEND_IF_COND echoed the wrong check pattern
	ErrCheckPatternInvalid

	// ErrUnsupportedVoltage: the card rejected the host voltage range
	ErrUnsupportedVoltage

	// ErrNotASupportedCard: the card accepted neither the SD nor the MMC init path
	ErrNotASupportedCard

	// ErrInitTimeout: the card never left the idle state
	ErrInitTimeout

	// ErrSetBlockLengthFailed: SET_BLOCKLEN was rejected
	ErrSetBlockLengthFailed

	// ErrRegisterFetchFailed: CSD or CID could not be read
	ErrRegisterFetchFailed

	// ErrRegisterCRCInvalid: CSD or CID payload failed its CRC16
	ErrRegisterCRCInvalid

	// ErrAddressMisaligned: address not on a block boundary
	ErrAddressMisaligned

	// ErrAddressOutOfBounds: address beyond the card capacity
	ErrAddressOutOfBounds

	// ErrDataLengthNotBlockMultiple: buffer length not a multiple of the block length
	ErrDataLengthNotBlockMultiple

	// ErrBlockCRCInvalid: data block failed its CRC16
	ErrBlockCRCInvalid

	// ErrWriteRejected: the card answered a data block with a write error
	ErrWriteRejected

	// ErrEraseFailed: the erase command was rejected
	ErrEraseFailed

	// ErrCardECCFailure: internal ECC could not correct the data
	ErrCardECCFailure

	// ErrCardControllerFailure: internal card controller error
	ErrCardControllerFailure

	// ErrCardLocked: the card is password locked
	ErrCardLocked

	// ErrCommandCRCRejected: the card rejected a command packet CRC
	ErrCommandCRCRejected

	// ErrResponseTimeout: no response within the command poll budget
	ErrResponseTimeout

	// ErrBusyTimeout: the card stayed busy past the deadline
	ErrBusyTimeout

	// ErrUnknownProtocolFault: response outside the protocol
	ErrUnknownProtocolFault

	// ErrNotInitialized: operation attempted without a negotiated session
	ErrNotInitialized

	// ErrCardNotPresent: card-detect reports no card
	ErrCardNotPresent

	// ErrWriteProtected: write-protect switch is set
	ErrWriteProtected

	// ErrBus: the underlying transport failed
	ErrBus
)

var kindNames = map[ErrorKind]string{
	ErrResetFailed:                "reset failed",
	ErrCheckPatternInvalid:        "check pattern invalid",
	ErrUnsupportedVoltage:         "unsupported voltage",
	ErrNotASupportedCard:          "not a supported card",
	ErrInitTimeout:                "initialization timeout",
	ErrSetBlockLengthFailed:       "set block length failed",
	ErrRegisterFetchFailed:        "register fetch failed",
	ErrRegisterCRCInvalid:         "register crc invalid",
	ErrAddressMisaligned:          "address misaligned",
	ErrAddressOutOfBounds:         "address out of bounds",
	ErrDataLengthNotBlockMultiple: "data length not a block multiple",
	ErrBlockCRCInvalid:            "block crc invalid",
	ErrWriteRejected:              "write rejected",
	ErrEraseFailed:                "erase failed",
	ErrCardECCFailure:             "card ecc failure",
	ErrCardControllerFailure:      "card controller failure",
	ErrCardLocked:                 "card locked",
	ErrCommandCRCRejected:         "command crc rejected",
	ErrResponseTimeout:            "response timeout",
	ErrBusyTimeout:                "busy timeout",
	ErrUnknownProtocolFault:       "unknown protocol fault",
	ErrNotInitialized:             "not initialized",
	ErrCardNotPresent:             "card not present",
	ErrWriteProtected:             "write protected",
	ErrBus:                        "bus error",
}

func (k ErrorKind) Error() string {
	return k.String()
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}

// Invalidates reports whether an error of this kind leaves the card in an
// unknown state, requiring a new initialization.
func (k ErrorKind) Invalidates() bool {
	switch k {
	case ErrResponseTimeout, ErrBusyTimeout, ErrUnknownProtocolFault, ErrBus, ErrCardNotPresent:
		return true
	}
	return false
}

// CardError is returned by every failing card operation.
type CardError struct {
	// Op names the operation or command that failed
	Op string

	// Kind classifies the failure
	Kind ErrorKind

	// Response holds the raw response bytes, if any were received
	Response []byte

	// Err is the underlying cause, if any
	Err error
}

func (e *CardError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if len(e.Response) > 0 {
		msg += fmt.Sprintf(" (response % X)", e.Response)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *CardError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewCardError builds a CardError, copying resp.
func NewCardError(op string, kind ErrorKind, resp []byte, cause error) *CardError {
	var r []byte
	if len(resp) > 0 {
		r = append([]byte(nil), resp...)
	}
	return &CardError{Op: op, Kind: kind, Response: r, Err: cause}
}

// IsCardError returns true if the error chain contains a CardError.
func IsCardError(err error) bool {
	var ce *CardError
	return errors.As(err, &ce)
}

// KindOf returns the kind of the first CardError or ErrorKind in the chain,
// or zero if there is none.
func KindOf(err error) ErrorKind {
	var ce *CardError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return 0
}
