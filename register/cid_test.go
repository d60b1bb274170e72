package register

import (
	"strings"
	"testing"
)

func TestDecodeCIDSD(t *testing.T) {
	raw := []byte{
		0x03,       // MID
		'S', 'D', // OID
		'S', 'U', '0', '2', 'G', // PNM
		0x80,                   // PRV 8.0
		0x12, 0x34, 0x56, 0x78, // PSN
		0x00, 0xC7, // MDT: 2012-07
		0x00,
	}
	raw[15] = 0 // CRC ignored here

	cid, err := DecodeCID(raw, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cid.ManufacturerID != 0x03 {
		t.Errorf("ManufacturerID = 0x%02X", cid.ManufacturerID)
	}
	if cid.OEMID != "SD" {
		t.Errorf("OEMID = %q", cid.OEMID)
	}
	if cid.ProductName != "SU02G" {
		t.Errorf("ProductName = %q", cid.ProductName)
	}
	if cid.Revision != 0x80 {
		t.Errorf("Revision = 0x%02X", cid.Revision)
	}
	if cid.Serial != 0x12345678 {
		t.Errorf("Serial = 0x%08X", cid.Serial)
	}
	if cid.Year != 2012 || cid.Month != 7 {
		t.Errorf("date = %d-%d, want 2012-7", cid.Year, cid.Month)
	}
	if !strings.Contains(cid.String(), "SU02G rev 8.0") {
		t.Errorf("String() = %q", cid.String())
	}
}

func TestDecodeCIDMMC(t *testing.T) {
	raw := NewCID(true, 0x15, "MMC32M", 0xCAFEF00D, 2005, 3)

	cid, err := DecodeCID(raw[:], true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cid.ProductName != "MMC32M" {
		t.Errorf("ProductName = %q", cid.ProductName)
	}
	if cid.Serial != 0xCAFEF00D {
		t.Errorf("Serial = 0x%08X", cid.Serial)
	}
	if cid.Year != 2005 || cid.Month != 3 {
		t.Errorf("date = %d-%d, want 2005-3", cid.Year, cid.Month)
	}
	if !cid.CRCValid() {
		t.Error("CRCValid() = false")
	}
	if len(cid.Fields()) != len(mmcCIDLayout) {
		t.Errorf("Fields() length = %d", len(cid.Fields()))
	}
}

func TestNewCIDSD(t *testing.T) {
	raw := NewCID(false, 0x27, "SIM", 42, 2024, 11)
	cid, err := DecodeCID(raw[:], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cid.ProductName != "SIM" {
		t.Errorf("ProductName = %q, want trailing pad trimmed", cid.ProductName)
	}
	if cid.Year != 2024 || cid.Month != 11 || cid.Serial != 42 {
		t.Errorf("decoded %+v", cid)
	}
	if !cid.CRCValid() {
		t.Error("CRCValid() = false")
	}

	raw[4] ^= 0x01
	corrupted, _ := DecodeCID(raw[:], false)
	if corrupted.CRCValid() {
		t.Error("CRCValid() = true after corruption")
	}
}

func TestDecodeCIDLength(t *testing.T) {
	if _, err := DecodeCID([]byte{1, 2, 3}, false); err == nil {
		t.Error("expected error for short CID")
	}
}
