package register

import (
	"strings"
	"testing"
)

func csdV1Vector() []byte {
	raw := make([]byte, Length)
	raw[5] = 0x59
	raw[6] = 0x80
	raw[7] = 0xFF
	raw[8] = 0xFF
	raw[9] = 0xFF
	raw[10] = 0x80
	return raw
}

func csdV2Vector() []byte {
	raw := make([]byte, Length)
	raw[0] = 0x40
	raw[7] = 0x00
	raw[8] = 0x03
	raw[9] = 0xA3
	return raw
}

func withStructure(raw []byte, structure byte) []byte {
	raw[0] = raw[0]&0x3F | structure<<6
	return raw
}

func TestCSDCapacity(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		mmc    bool
		layout Layout
		want   uint64
	}{
		{"SD v1", csdV1Vector(), false, LayoutV1, 268435456},
		{"SD v2", csdV2Vector(), false, LayoutV2, 488636416},
		{"MMC uses v1 formula", csdV1Vector(), true, LayoutV1, 268435456},
		{"SD structure 2", withStructure(csdV2Vector(), 2), false, LayoutV2, 488636416},
		{"SD structure 3", withStructure(csdV2Vector(), 3), false, LayoutV2, 488636416},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csd, err := DecodeCSD(tt.raw, tt.mmc)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if csd.Layout() != tt.layout {
				t.Errorf("Layout() = %v, want %v", csd.Layout(), tt.layout)
			}
			if got := csd.Capacity(); got != tt.want {
				t.Errorf("Capacity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCSDFieldsMatchByteMasks(t *testing.T) {
	raw := csdV1Vector()
	csd, err := DecodeCSD(raw, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cSize := uint32(raw[6]&0x03)<<10 | uint32(raw[7])<<2 | uint32(raw[8])>>6
	if csd.CSize() != cSize {
		t.Errorf("CSize() = %d, byte masks give %d", csd.CSize(), cSize)
	}
	if csd.ReadBlockLength() != 1<<(raw[5]&0x0F) {
		t.Errorf("ReadBlockLength() = %d", csd.ReadBlockLength())
	}

	names := map[string]bool{}
	for _, f := range csd.Fields() {
		names[f.Name] = true
	}
	for _, want := range []string{"CSD_STRUCTURE", "C_SIZE", "C_SIZE_MULT", "FILE_FORMAT", "CRC"} {
		if !names[want] {
			t.Errorf("Fields() missing %s", want)
		}
	}
}

func TestCSDv2FieldsOmitMultiplier(t *testing.T) {
	csd, err := DecodeCSD(csdV2Vector(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range csd.Fields() {
		if f.Name == "C_SIZE_MULT" {
			t.Error("v2 layout lists C_SIZE_MULT")
		}
		if f.Name == "C_SIZE" && f.Value != 0x3A3 {
			t.Errorf("C_SIZE = 0x%X, want 0x3A3", f.Value)
		}
	}
}

func TestDecodeCSDErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		mmc     bool
		wantErr string
	}{
		{"short", make([]byte, 15), false, "invalid CSD length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCSD(tt.raw, tt.mmc)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	// MMC structure codes 2 and 3 are valid
	if _, err := DecodeCSD(append([]byte{0x80}, make([]byte, 15)...), true); err != nil {
		t.Errorf("MMC structure 2 rejected: %v", err)
	}
}

func TestNewCSD(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint64
		layout   Layout
	}{
		{"64MiB v1", 64 << 20, LayoutV1},
		{"1GiB v1", 1 << 30, LayoutV1},
		{"2MiB v1", 2 << 20, LayoutV1},
		{"8GiB v2", 8 << 30, LayoutV2},
		{"4MiB v2", 4 << 20, LayoutV2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := NewCSD(tt.capacity, tt.layout)
			csd, err := DecodeCSD(raw[:], false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if csd.Layout() != tt.layout {
				t.Errorf("Layout() = %v, want %v", csd.Layout(), tt.layout)
			}
			if got := csd.Capacity(); got != tt.capacity {
				t.Errorf("Capacity() = %d, want %d", got, tt.capacity)
			}
			if !csd.CRCValid() {
				t.Error("CRCValid() = false")
			}
		})
	}
}
