package register

import "testing"

func TestBits(t *testing.T) {
	var raw [Length]byte
	raw[0] = 0x40
	raw[5] = 0x59
	raw[6] = 0x83
	raw[7] = 0xFF
	raw[8] = 0xC0

	tests := []struct {
		name  string
		msb   int
		width int
		want  uint32
	}{
		{"CSD_STRUCTURE", 127, 2, 1},
		{"READ_BL_LEN", 83, 4, 9},
		{"READ_BL_PARTIAL", 79, 1, 1},
		{"C_SIZE v1", 73, 12, 0xFFF},
		{"low bit of byte 15", 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bits(raw, tt.msb, tt.width); got != tt.want {
				t.Errorf("Bits(%d, %d) = 0x%X, want 0x%X", tt.msb, tt.width, got, tt.want)
			}
		})
	}
}

func TestPutBits(t *testing.T) {
	tests := []struct {
		msb   int
		width int
		value uint32
	}{
		{127, 2, 2},
		{73, 12, 0xABC},
		{69, 22, 0x3A3A3},
		{55, 32, 0xDEADBEEF},
		{0, 1, 1},
	}

	for _, tt := range tests {
		var raw [Length]byte
		for i := range raw {
			raw[i] = 0xA5
		}
		before := raw

		PutBits(&raw, tt.msb, tt.width, tt.value)
		if got := Bits(raw, tt.msb, tt.width); got != tt.value {
			t.Errorf("[%d:%d] = 0x%X, want 0x%X", tt.msb, tt.msb-tt.width+1, got, tt.value)
		}

		// bits outside the range are untouched
		for b := 0; b < totalBits; b++ {
			if b <= tt.msb && b > tt.msb-tt.width {
				continue
			}
			if Bit(raw, b) != Bit(before, b) {
				t.Errorf("[%d:%d]: bit %d changed", tt.msb, tt.msb-tt.width+1, b)
				break
			}
		}
	}
}

func TestBitsInvalidRangePanics(t *testing.T) {
	tests := []struct {
		name  string
		msb   int
		width int
	}{
		{"msb past register", 128, 1},
		{"runs below bit 0", 3, 5},
		{"too wide", 127, 33},
		{"zero width", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			Bits([Length]byte{}, tt.msb, tt.width)
		})
	}
}

func TestFieldString(t *testing.T) {
	tests := []struct {
		f    Field
		want string
	}{
		{Field{Name: "COPY", Value: 1, Width: 1}, "COPY: yes"},
		{Field{Name: "COPY", Value: 0, Width: 1}, "COPY: no"},
		{Field{Name: "TAAC", Value: 0x0E, Width: 8}, "TAAC: 0xE"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
