package register

import (
	"fmt"

	"github.com/moffa90/go-sdspi/protocol"
)

// Layout selects the CSD capacity formula.
type Layout int

const (
	// LayoutV1 is the byte-addressed layout (SD standard capacity and MMC)
	LayoutV1 Layout = iota

	// LayoutV2 is the high-capacity layout with a 22-bit C_SIZE in 512 KiB units
	LayoutV2
)

func (l Layout) String() string {
	if l == LayoutV2 {
		return "2.0"
	}
	return "1.0"
}

// CSD bit positions.
const (
	csdStructureMSB = 127
	readBlLenMSB    = 83
	cSizeV1MSB      = 73
	cSizeV1Width    = 12
	cSizeMultMSB    = 49
	cSizeMultWidth  = 3
	cSizeV2MSB      = 69
	cSizeV2Width    = 22

	// v2UnitBytes is the capacity unit of a v2 C_SIZE (512 KiB)
	v2UnitBytes = 512 * 1024
)

var csdCommonHead = []field{
	{"CSD_STRUCTURE", 127, 2},
	{"TAAC", 119, 8},
	{"NSAC", 111, 8},
	{"TRAN_SPEED", 103, 8},
	{"CCC", 95, 12},
	{"READ_BL_LEN", 83, 4},
	{"READ_BL_PARTIAL", 79, 1},
	{"WRITE_BLK_MISALIGN", 78, 1},
	{"READ_BLK_MISALIGN", 77, 1},
	{"DSR_IMP", 76, 1},
}

var csdV1Size = []field{
	{"C_SIZE", 73, 12},
	{"VDD_R_CURR_MIN", 61, 3},
	{"VDD_R_CURR_MAX", 58, 3},
	{"VDD_W_CURR_MIN", 55, 3},
	{"VDD_W_CURR_MAX", 52, 3},
	{"C_SIZE_MULT", 49, 3},
}

var csdV2Size = []field{
	{"C_SIZE", 69, 22},
}

var csdCommonTail = []field{
	{"ERASE_BLK_EN", 46, 1},
	{"SECTOR_SIZE", 45, 7},
	{"WP_GRP_SIZE", 38, 7},
	{"WP_GRP_ENABLE", 31, 1},
	{"R2W_FACTOR", 28, 3},
	{"WRITE_BL_LEN", 25, 4},
	{"WRITE_BL_PARTIAL", 21, 1},
	{"FILE_FORMAT_GRP", 15, 1},
	{"COPY", 14, 1},
	{"PERM_WRITE_PROTECT", 13, 1},
	{"TMP_WRITE_PROTECT", 12, 1},
	{"FILE_FORMAT", 11, 2},
	{"CRC", 7, 7},
}

// CSD is a decoded card-specific data register.
type CSD struct {
	raw    [Length]byte
	mmc    bool
	layout Layout
}

// DecodeCSD validates raw and selects its layout. SD cards use the
// CSD_STRUCTURE field (0 = v1, 1 and later = v2); MMC always uses the v1
// formula.
func DecodeCSD(raw []byte, mmc bool) (CSD, error) {
	if len(raw) != Length {
		return CSD{}, fmt.Errorf("invalid CSD length: got %d bytes, expected %d", len(raw), Length)
	}

	c := CSD{mmc: mmc}
	copy(c.raw[:], raw)

	c.layout = LayoutV1
	if !mmc && c.Structure() >= 1 {
		c.layout = LayoutV2
	}
	return c, nil
}

// Raw returns the register bytes.
func (c CSD) Raw() [Length]byte { return c.raw }

// Structure returns the CSD_STRUCTURE field.
func (c CSD) Structure() int { return int(Bits(c.raw, csdStructureMSB, 2)) }

// Layout returns the layout used for capacity.
func (c CSD) Layout() Layout { return c.layout }

// ReadBlockLength returns 2^READ_BL_LEN.
func (c CSD) ReadBlockLength() uint32 {
	return 1 << Bits(c.raw, readBlLenMSB, 4)
}

// CSize returns the C_SIZE field for the selected layout.
func (c CSD) CSize() uint32 {
	if c.layout == LayoutV2 {
		return Bits(c.raw, cSizeV2MSB, cSizeV2Width)
	}
	return Bits(c.raw, cSizeV1MSB, cSizeV1Width)
}

// Capacity returns the card capacity in bytes.
//
//	v1: (C_SIZE+1) * 2^(C_SIZE_MULT+2) * 2^READ_BL_LEN
//	v2: (C_SIZE+1) * 512 KiB
func (c CSD) Capacity() uint64 {
	size := uint64(c.CSize()) + 1
	if c.layout == LayoutV2 {
		return size * v2UnitBytes
	}
	mult := Bits(c.raw, cSizeMultMSB, cSizeMultWidth)
	return size << (mult + 2) * uint64(c.ReadBlockLength())
}

// CRCValid reports whether the embedded CRC7 matches the first 15 bytes.
func (c CSD) CRCValid() bool {
	return protocol.CRC7(c.raw[:Length-1]) == c.raw[Length-1]
}

// Fields lists every field of the register in bit order.
func (c CSD) Fields() []Field {
	layout := make([]field, 0, len(csdCommonHead)+len(csdV1Size)+len(csdCommonTail))
	layout = append(layout, csdCommonHead...)
	if c.layout == LayoutV2 {
		layout = append(layout, csdV2Size...)
	} else {
		layout = append(layout, csdV1Size...)
	}
	layout = append(layout, csdCommonTail...)
	return decodeFields(c.raw, layout)
}

func (c CSD) String() string {
	return fmt.Sprintf("CSD v%s (% X)", c.layout, c.raw[:])
}

// NewCSD synthesizes a CSD for a card of the given capacity. Capacities
// that are not representable are rounded down. The CRC7 is filled in.
func NewCSD(capacity uint64, layout Layout) [Length]byte {
	var raw [Length]byte
	PutBits(&raw, 119, 8, 0x0E) // TAAC 1ms
	PutBits(&raw, 103, 8, 0x32) // TRAN_SPEED 25MHz
	PutBits(&raw, 95, 12, 0x5B5)
	PutBits(&raw, 46, 1, 1)
	PutBits(&raw, 45, 7, 0x7F)
	PutBits(&raw, 28, 3, 2)
	PutBits(&raw, 25, 4, 9)

	if layout == LayoutV2 {
		PutBits(&raw, csdStructureMSB, 2, 1)
		PutBits(&raw, readBlLenMSB, 4, 9)
		units := capacity / v2UnitBytes
		if units == 0 {
			units = 1
		}
		PutBits(&raw, cSizeV2MSB, cSizeV2Width, uint32(units-1))
	} else {
		// 512-byte blocks; pick the smallest multiplier that fits C_SIZE in 12 bits.
		PutBits(&raw, readBlLenMSB, 4, 9)
		blocks := capacity / 512
		mult := uint32(0)
		for mult < 7 && blocks>>(mult+2) > 1<<cSizeV1Width {
			mult++
		}
		units := blocks >> (mult + 2)
		if units == 0 {
			units = 1
		}
		if units > 1<<cSizeV1Width {
			units = 1 << cSizeV1Width
		}
		PutBits(&raw, cSizeV1MSB, cSizeV1Width, uint32(units-1))
		PutBits(&raw, cSizeMultMSB, cSizeMultWidth, mult)
	}

	raw[Length-1] = protocol.CRC7(raw[:Length-1])
	return raw
}
