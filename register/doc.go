// Package register decodes the CSD and CID registers of SD and MMC cards.
//
// Both registers are 16 bytes, most significant bit first, so bit 127 is the
// top bit of byte 0. Fields are sliced with Bits rather than per-byte masks:
//
//	cSize := register.Bits(raw, 73, 12) // C_SIZE [73:62]
//
// # Capacity
//
// DecodeCSD picks the capacity formula from CSD_STRUCTURE. Version 1.0 cards
// (and every MMC) use
//
//	(C_SIZE+1) * 2^(C_SIZE_MULT+2) * 2^READ_BL_LEN
//
// while version 2.0 (high capacity) cards use (C_SIZE+1) * 512 KiB.
//
//	csd, err := register.DecodeCSD(raw, false)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(csd.Capacity())
//
// # Synthesis
//
// NewCSD and NewCID build well-formed registers with a valid CRC7. They back
// the simulated card in package simcard.
package register
