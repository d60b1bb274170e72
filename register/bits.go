package register

import "fmt"

// Length is the size of a CSD or CID register in bytes.
const Length = 16

// totalBits is the width of a register; bit 127 is the MSB of byte 0.
const totalBits = Length * 8

// Bits extracts width bits ending at msb (inclusive) from a 128-bit
// big-endian register. Bit b lives in byte (127-b)/8 at position b%8.
//
// Panics if the range falls outside the register or width exceeds 32.
func Bits(raw [Length]byte, msb, width int) uint32 {
	checkRange(msb, width)
	var v uint32
	for b := msb; b > msb-width; b-- {
		v = v<<1 | uint32(raw[(totalBits-1-b)/8]>>(uint(b)%8)&1)
	}
	return v
}

// Bit reports a single flag bit.
func Bit(raw [Length]byte, pos int) bool {
	return Bits(raw, pos, 1) == 1
}

// PutBits stores the low width bits of v so that Bits(raw, msb, width) == v.
func PutBits(raw *[Length]byte, msb, width int, v uint32) {
	checkRange(msb, width)
	for b := msb - width + 1; b <= msb; b++ {
		idx := (totalBits - 1 - b) / 8
		mask := byte(1) << (uint(b) % 8)
		if v&1 != 0 {
			raw[idx] |= mask
		} else {
			raw[idx] &^= mask
		}
		v >>= 1
	}
}

func checkRange(msb, width int) {
	if width < 1 || width > 32 || msb >= totalBits || msb-width+1 < 0 {
		panic(fmt.Sprintf("register: invalid bit range [%d:%d]", msb, msb-width+1))
	}
}

// field names a bit range within a register.
type field struct {
	name  string
	msb   int
	width int
}

// Field is one decoded register field.
type Field struct {
	Name  string
	Value uint32
	Width int
}

func (f Field) String() string {
	if f.Width == 1 {
		if f.Value == 1 {
			return f.Name + ": yes"
		}
		return f.Name + ": no"
	}
	return fmt.Sprintf("%s: 0x%X", f.Name, f.Value)
}

func decodeFields(raw [Length]byte, layout []field) []Field {
	out := make([]Field, 0, len(layout))
	for _, f := range layout {
		out = append(out, Field{Name: f.name, Value: Bits(raw, f.msb, f.width), Width: f.width})
	}
	return out
}
