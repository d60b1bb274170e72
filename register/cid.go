package register

import (
	"fmt"
	"strings"

	"github.com/moffa90/go-sdspi/protocol"
)

var sdCIDLayout = []field{
	{"MID", 127, 8},
	{"OID", 119, 16},
	{"PNM_HI", 103, 8},
	{"PNM_LO", 95, 32},
	{"PRV", 63, 8},
	{"PSN", 55, 32},
	{"MDT", 19, 12},
	{"CRC", 7, 7},
}

var mmcCIDLayout = []field{
	{"MID", 127, 8},
	{"CBX", 113, 2},
	{"OID", 111, 8},
	{"PNM_HI", 103, 16},
	{"PNM_LO", 87, 32},
	{"PRV", 55, 8},
	{"PSN", 47, 32},
	{"MDT", 15, 8},
	{"CRC", 7, 7},
}

// CID is a decoded card identification register.
type CID struct {
	// ManufacturerID is the card vendor
	ManufacturerID byte

	// OEMID identifies the card OEM or application (two ASCII chars on SD)
	OEMID string

	// ProductName is five characters on SD and six on MMC
	ProductName string

	// Revision is the product revision as major.minor nibbles
	Revision byte

	// Serial is the product serial number
	Serial uint32

	// Year and Month of manufacture
	Year  int
	Month int

	raw [Length]byte
	mmc bool
}

// DecodeCID decodes raw using the SD or MMC layout.
func DecodeCID(raw []byte, mmc bool) (CID, error) {
	if len(raw) != Length {
		return CID{}, fmt.Errorf("invalid CID length: got %d bytes, expected %d", len(raw), Length)
	}

	c := CID{mmc: mmc}
	copy(c.raw[:], raw)
	c.ManufacturerID = raw[0]

	if mmc {
		c.OEMID = fmt.Sprintf("%02X", Bits(c.raw, 111, 8))
		c.ProductName = printable(raw[3:9])
		c.Revision = byte(Bits(c.raw, 55, 8))
		c.Serial = Bits(c.raw, 47, 32)
		c.Month = int(Bits(c.raw, 15, 4))
		c.Year = 1997 + int(Bits(c.raw, 11, 4))
	} else {
		c.OEMID = printable(raw[1:3])
		c.ProductName = printable(raw[3:8])
		c.Revision = byte(Bits(c.raw, 63, 8))
		c.Serial = Bits(c.raw, 55, 32)
		c.Year = 2000 + int(Bits(c.raw, 19, 8))
		c.Month = int(Bits(c.raw, 11, 4))
	}
	return c, nil
}

// Raw returns the register bytes.
func (c CID) Raw() [Length]byte { return c.raw }

// CRCValid reports whether the embedded CRC7 matches the first 15 bytes.
func (c CID) CRCValid() bool {
	return protocol.CRC7(c.raw[:Length-1]) == c.raw[Length-1]
}

// Fields lists every raw field of the register.
func (c CID) Fields() []Field {
	if c.mmc {
		return decodeFields(c.raw, mmcCIDLayout)
	}
	return decodeFields(c.raw, sdCIDLayout)
}

func (c CID) String() string {
	return fmt.Sprintf("%s rev %d.%d (mid 0x%02X, oem %s, serial 0x%08X, %04d-%02d)",
		c.ProductName, c.Revision>>4, c.Revision&0x0F,
		c.ManufacturerID, c.OEMID, c.Serial, c.Year, c.Month)
}

// NewCID synthesizes an SD or MMC CID. name is truncated or space padded.
func NewCID(mmc bool, mid byte, name string, serial uint32, year, month int) [Length]byte {
	var raw [Length]byte
	raw[0] = mid
	if mmc {
		PutBits(&raw, 111, 8, 0x01)
		copy(raw[3:9], pad(name, 6))
		PutBits(&raw, 55, 8, 0x10)
		PutBits(&raw, 47, 32, serial)
		PutBits(&raw, 15, 4, uint32(month))
		PutBits(&raw, 11, 4, uint32(year-1997))
	} else {
		copy(raw[1:3], "SD")
		copy(raw[3:8], pad(name, 5))
		PutBits(&raw, 63, 8, 0x10)
		PutBits(&raw, 55, 32, serial)
		PutBits(&raw, 19, 8, uint32(year-2000))
		PutBits(&raw, 11, 4, uint32(month))
	}
	raw[Length-1] = protocol.CRC7(raw[:Length-1])
	return raw
}

func pad(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func printable(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			c = '.'
		}
		out[i] = c
	}
	return strings.TrimRight(string(out), " ")
}
