package protocol

import (
	"encoding/binary"
	"fmt"
)

// ResponseType identifies the SPI-mode response format of a command.
type ResponseType int

// Response formats.
const (
	RespR1  ResponseType = iota // 1 byte
	RespR1b                     // 1 byte followed by busy signalling
	RespR2                      // 2 bytes
	RespR3                      // R1 + 32-bit OCR
	RespR7                      // R1 + 32-bit interface condition
)

// Len returns the number of response bytes the card sends.
func (r ResponseType) Len() int {
	switch r {
	case RespR2:
		return 2
	case RespR3, RespR7:
		return 5
	default:
		return 1
	}
}

func (r ResponseType) String() string {
	switch r {
	case RespR1:
		return "R1"
	case RespR1b:
		return "R1b"
	case RespR2:
		return "R2"
	case RespR3:
		return "R3"
	case RespR7:
		return "R7"
	default:
		return fmt.Sprintf("ResponseType(%d)", int(r))
	}
}

// Command describes one SPI-mode command: its index, its response format and
// whether it must be preceded by APP_CMD.
type Command struct {
	Index    byte
	Name     string
	Response ResponseType
	App      bool
}

func (c Command) String() string {
	if c.App {
		return fmt.Sprintf("ACMD%d", c.Index)
	}
	return fmt.Sprintf("CMD%d", c.Index)
}

// Command descriptors.
var (
	// CmdGoIdleState resets the card into SPI mode
	CmdGoIdleState = Command{Index: 0, Name: "GO_IDLE_STATE", Response: RespR1}

	// CmdSendOpCond starts MMC (or fallback) initialization
	CmdSendOpCond = Command{Index: 1, Name: "SEND_OP_COND", Response: RespR1}

	// CmdSendIfCond sends the host supply voltage and a check pattern
	CmdSendIfCond = Command{Index: 8, Name: "SEND_IF_COND", Response: RespR7}

	// CmdSendCSD reads the card-specific data register
	CmdSendCSD = Command{Index: 9, Name: "SEND_CSD", Response: RespR1}

	// CmdSendCID reads the card identification register
	CmdSendCID = Command{Index: 10, Name: "SEND_CID", Response: RespR1}

	// CmdStopTransmission ends a multiple-block read
	CmdStopTransmission = Command{Index: 12, Name: "STOP_TRANSMISSION", Response: RespR1b}

	// CmdSendStatus reads the 16-bit card status
	CmdSendStatus = Command{Index: 13, Name: "SEND_STATUS", Response: RespR2}

	// CmdSetBlockLen sets the block length of standard-capacity cards
	CmdSetBlockLen = Command{Index: 16, Name: "SET_BLOCKLEN", Response: RespR1}

	// CmdReadSingleBlock reads one block
	CmdReadSingleBlock = Command{Index: 17, Name: "READ_SINGLE_BLOCK", Response: RespR1}

	// CmdReadMultipleBlock streams blocks until CMD12
	CmdReadMultipleBlock = Command{Index: 18, Name: "READ_MULTIPLE_BLOCK", Response: RespR1}

	// CmdWriteBlock writes one block
	CmdWriteBlock = Command{Index: 24, Name: "WRITE_BLOCK", Response: RespR1}

	// CmdWriteMultipleBlock streams blocks until the stop token
	CmdWriteMultipleBlock = Command{Index: 25, Name: "WRITE_MULTIPLE_BLOCK", Response: RespR1}

	// CmdEraseWrBlkStart sets the first block to erase (SD)
	CmdEraseWrBlkStart = Command{Index: 32, Name: "ERASE_WR_BLK_START", Response: RespR1}

	// CmdEraseWrBlkEnd sets the last block to erase (SD)
	CmdEraseWrBlkEnd = Command{Index: 33, Name: "ERASE_WR_BLK_END", Response: RespR1}

	// CmdEraseGroupStart sets the first erase group (MMC)
	CmdEraseGroupStart = Command{Index: 35, Name: "ERASE_GROUP_START", Response: RespR1}

	// CmdEraseGroupEnd sets the last erase group (MMC)
	CmdEraseGroupEnd = Command{Index: 36, Name: "ERASE_GROUP_END", Response: RespR1}

	// CmdErase erases the selected range
	CmdErase = Command{Index: 38, Name: "ERASE", Response: RespR1b}

	// CmdAppCmd prefixes an application command
	CmdAppCmd = Command{Index: 55, Name: "APP_CMD", Response: RespR1}

	// CmdReadOCR reads the operating conditions register
	CmdReadOCR = Command{Index: 58, Name: "READ_OCR", Response: RespR3}

	// ACmdSendOpCond negotiates operating conditions on SD cards
	ACmdSendOpCond = Command{Index: 41, Name: "SD_SEND_OP_COND", Response: RespR1, App: true}
)

var commandTable = []Command{
	CmdGoIdleState, CmdSendOpCond, CmdSendIfCond, CmdSendCSD, CmdSendCID,
	CmdStopTransmission, CmdSendStatus, CmdSetBlockLen, CmdReadSingleBlock,
	CmdReadMultipleBlock, CmdWriteBlock, CmdWriteMultipleBlock,
	CmdEraseWrBlkStart, CmdEraseWrBlkEnd, CmdEraseGroupStart, CmdEraseGroupEnd,
	CmdErase, CmdAppCmd, CmdReadOCR, ACmdSendOpCond,
}

// Lookup returns the descriptor for a command index. app selects the
// application command namespace.
func Lookup(index byte, app bool) (Command, bool) {
	for _, c := range commandTable {
		if c.Index == index && c.App == app {
			return c, true
		}
	}
	return Command{}, false
}

// Packet is a framed command as it goes on the wire.
type Packet [PacketSize]byte

// BuildPacket frames a command.
//
// Packet structure:
//
//	[01 cccccc][ARG_31..24][ARG_23..16][ARG_15..8][ARG_7..0][CRC7 1]
//
// The CRC7 is always computed over the first five bytes.
func BuildPacket(cmd Command, arg uint32) Packet {
	var p Packet
	p[0] = 0x40 | (cmd.Index & 0x3F)
	binary.BigEndian.PutUint32(p[1:5], arg)
	p[5] = CRC7(p[:5])
	return p
}

// ParsePacket validates a received command packet and extracts its index and
// argument. It is the card-side counterpart of BuildPacket.
func ParsePacket(p []byte) (index byte, arg uint32, err error) {
	if len(p) != PacketSize {
		return 0, 0, fmt.Errorf("packet must be exactly %d bytes, got %d", PacketSize, len(p))
	}
	if p[0]&0xC0 != 0x40 {
		return 0, 0, fmt.Errorf("invalid start bits: 0x%02X", p[0])
	}
	if p[5]&0x01 != 0x01 {
		return 0, 0, fmt.Errorf("missing end bit: 0x%02X", p[5])
	}

	index = p[0] & 0x3F
	arg = binary.BigEndian.Uint32(p[1:5])

	if crc := CRC7(p[:5]); crc != p[5] {
		return index, arg, fmt.Errorf("crc7 mismatch: got 0x%02X, expected 0x%02X", p[5], crc)
	}

	return index, arg, nil
}
