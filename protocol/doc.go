// Package protocol implements the SPI-mode command protocol of SD and MMC cards.
//
// This package builds command packets, computes the CRC7 and CRC16 checksums,
// and decodes responses, data tokens and status words. It does no I/O; the
// sdcard package drives a bus with it.
//
// # Packet Format
//
// Every command is a fixed 6-byte packet sent MSB first:
//
//	[0x40|INDEX][ARG_31..24][ARG_23..16][ARG_15..8][ARG_7..0][CRC7<<1|1]
//
// Use BuildPacket with one of the Cmd* descriptors; the CRC is always computed:
//
//	pkt := protocol.BuildPacket(protocol.CmdSendIfCond, 0x1AA)
//	// pkt = 48 00 00 01 AA 87
//
// # Responses
//
// The first response byte is always R1. R3 and R7 add four bytes, R2 adds one:
//
//	r1, ocr, err := protocol.ParseOCR(resp)
//	if ocr.PowerUpComplete() && ocr.HighCapacity() {
//	    // block addressed card
//	}
//
// # Data Blocks
//
// Data travels as [TOKEN][PAYLOAD][CRC16_HI][CRC16_LO]. A read that fails
// yields an error token instead of TokenStartBlock; ErrorTokenKind maps it to
// an ErrorKind. Every written block is answered with a data response token
// decoded by DataResponseStatus.
//
// # Errors
//
// Failures are reported as *CardError values carrying an ErrorKind:
//
//	if errors.Is(err, protocol.ErrBlockCRCInvalid) {
//	    // retry the read
//	}
//	kind := protocol.KindOf(err)
package protocol
