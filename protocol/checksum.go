package protocol

// Checksum algorithm constants.
const (
	// CRC7Taps is the CRC7 feedback polynomial x^7 + x^3 + 1 without the x^7 term
	CRC7Taps = 0x09

	// CRC7Mask keeps the 7-bit CRC register
	CRC7Mask = 0x7F

	// CRC16Taps is the CRC16-CCITT polynomial x^16 + x^12 + x^5 + 1 without the x^16 term
	CRC16Taps = 0x1021

	// BitsPerByte is the number of bits per byte
	BitsPerByte = 8
)

// crc7Bits shifts one byte, MSB first, through the 7-bit register.
//
//	             Feedback
//	  ---------------------------------X--Input
//	  |             |                  |
//	 [0]->[1]->[2]->X->[3]->[4]->[5]->[6]
func crc7Bits(data byte, seed byte) byte {
	for i := 0; i < BitsPerByte; i++ {
		feedback := ((data >> 7) ^ (seed >> 6)) & 0x01
		seed = (seed << 1) & CRC7Mask
		if feedback != 0 {
			seed ^= CRC7Taps
		}
		data <<= 1
	}
	return seed
}

// CRC7 computes the command CRC over data and returns it as transmitted:
// the 7-bit CRC shifted left with the end bit set.
//
// CRC7 of the GO_IDLE_STATE packet header (0x40 0x00 0x00 0x00 0x00) is 0x95.
func CRC7(data []byte) byte {
	var seed byte
	for _, b := range data {
		seed = crc7Bits(b, seed)
	}
	return seed<<1 | 0x01
}

// crc16Bits shifts one byte, MSB first, through the 16-bit register.
//
//	                                           Feedback
//	  --------------------------------------------------------------------------------------X--Input
//	  |                       |                                       |                     |
//	 [0]->[1]->[2]->[3]->[4]->X->[5]->[6]->[7]->[8]->[9]->[10]->[11]->X->[12]->[13]->[14]->[15]
func crc16Bits(data byte, seed uint16) uint16 {
	for i := 0; i < BitsPerByte; i++ {
		feedback := (uint16(data>>7) ^ (seed >> 15)) & 0x01
		seed <<= 1
		if feedback != 0 {
			seed ^= CRC16Taps
		}
		data <<= 1
	}
	return seed
}

// CRC16 computes the data block CRC (CCITT, seed 0). It is sent most
// significant byte first after the block.
func CRC16(data []byte) uint16 {
	var seed uint16
	for _, b := range data {
		seed = crc16Bits(b, seed)
	}
	return seed
}
