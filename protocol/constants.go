package protocol

// Bus fill values.
const (
	// IdleByte is what the card drives on MISO when it has nothing to say
	IdleByte = 0xFF

	// BusyByte is held low by the card while a program or erase is in progress
	BusyByte = 0x00
)

// Data block tokens.
const (
	// TokenStartBlock precedes a single-block read, a single-block write and register data
	TokenStartBlock = 0xFE

	// TokenStartMultiWrite precedes every block of a multiple-block write
	TokenStartMultiWrite = 0xFC

	// TokenStopTran ends a multiple-block write
	TokenStopTran = 0xFD

	// ErrorTokenMask selects the bits that are zero in a data error token.
	// 0xE0 rather than 0xF0 so MMC error tokens are recognised too.
	ErrorTokenMask = 0xE0
)

// Data error token bits.
const (
	ErrTokenError      = 0x01
	ErrTokenCC         = 0x02
	ErrTokenECC        = 0x04
	ErrTokenOutOfRange = 0x08

	// ErrTokenCardLocked is "card locked" on SD and "address misaligned" on MMC
	ErrTokenCardLocked = 0x10
)

// Data response token statuses, found in bits 3:1 of the xxx0sss1 token.
const (
	DataAccepted   = 0x02
	DataCRCError   = 0x05
	DataWriteError = 0x06

	// DataResponseMask selects the status bits of a data response token
	DataResponseMask = 0x0E
)

// Negotiation constants.
const (
	// CheckPattern is echoed back by v2 cards in the SEND_IF_COND response
	CheckPattern = 0x55

	// VoltageRange27to36 is the SEND_IF_COND supply voltage code for 2.7-3.6V
	VoltageRange27to36 = 0x01

	// ArgHighCapacitySupport is the HCS bit of ACMD41/CMD1
	ArgHighCapacitySupport = 1 << 30
)

// OCR bits.
const (
	OCRPowerUpComplete = 1 << 31
	OCRCapacityStatus  = 1 << 30
	OCRVoltage32to33   = 1 << 20
)

// Attempt budgets for bounded polls.
const (
	// DefaultCommandAttempts bounds the wait for the first response byte
	DefaultCommandAttempts = 10

	// DefaultDataAttempts bounds the wait for a data start token or data response
	DefaultDataAttempts = 100

	// DefaultInitAttempts bounds each of the ACMD41 and CMD1 initialization loops
	DefaultInitAttempts = 900
)

// Sizes.
const (
	// PacketSize is the length of a framed command
	PacketSize = 6

	// BlockLength is the operational block length set after negotiation
	BlockLength = 512

	// HighCapacityBlockLength is fixed for high-capacity cards
	HighCapacityBlockLength = 512

	// RegisterLength is the size of the CSD and CID registers
	RegisterLength = 16

	// CRC16Size is the number of CRC bytes trailing every data block
	CRC16Size = 2
)
