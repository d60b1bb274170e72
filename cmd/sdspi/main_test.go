package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0", 0, false},
		{"512", 512, false},
		{"0x200", 0x200, false},
		{"0X1000", 0x1000, false},
		{"4k", 4096, false},
		{"64M", 64 << 20, false},
		{"2g", 2 << 30, false},
		{" 8k ", 8192, false},
		{"", 0, true},
		{"k", 0, true},
		{"12x", 0, true},
		{"-1", 0, true},
		{"99999999999999g", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestHuman(t *testing.T) {
	tests := map[uint64]string{
		100:      "100B",
		2048:     "2K",
		64 << 20: "64M",
		3 << 29:  "1.5G",
	}
	for in, want := range tests {
		if got := human(in); got != want {
			t.Errorf("human(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestDumpBlocks(t *testing.T) {
	var buf bytes.Buffer
	data := make([]byte, 1024)
	data[512] = 0xAB
	if err := dumpBlocks(&buf, 0x400, data, 512); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "block at 0x00000400:") || !strings.Contains(out, "block at 0x00000600:") {
		t.Errorf("missing block headers:\n%s", out)
	}
	if !strings.Contains(out, "00000000  ab 00") {
		t.Errorf("second block not dumped:\n%s", out)
	}
}

// run executes the CLI with args against a simulated card image.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLIAgainstImage(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "card.img")
	src := filepath.Join(dir, "payload.bin")
	payload := bytes.Repeat([]byte("sdspi!"), 200) // 1200 bytes, three blocks
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	sim := []string{"--image", img, "--kind", "sdv2"}

	out, err := run(t, append(sim, "--image-size", "4m", "write", "0x400", src)...)
	if err != nil {
		t.Fatalf("write: %v\n%s", err, out)
	}
	if !strings.Contains(out, "wrote 3 blocks at 0x400") {
		t.Errorf("write output = %q", out)
	}

	out, err = run(t, append(sim, "info", "--fields")...)
	if err != nil {
		t.Fatalf("info: %v\n%s", err, out)
	}
	for _, want := range []string{"SD v2", "4194304 bytes (4M)", "SIMSD", "CSD fields:", "CID fields:"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, append(sim, "read", "0x400", "1")...)
	if err != nil {
		t.Fatalf("read: %v\n%s", err, out)
	}
	if !strings.Contains(out, "block at 0x00000400:") || !strings.Contains(out, "|sdspi!sdspi!sdsp|") {
		t.Errorf("read output:\n%s", out)
	}

	out, err = run(t, append(sim, "erase", "0x400", "0x600")...)
	if err != nil {
		t.Fatalf("erase: %v\n%s", err, out)
	}

	image, err := os.ReadFile(img)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(image[0x400:0x800], bytes.Repeat([]byte{0xFF}, 0x400)) {
		t.Error("erased blocks not 0xFF in the image")
	}
	if !bytes.Equal(image[0x800:0x800+176], payload[1024:]) {
		t.Error("third block changed by erase")
	}
	if image[0x800+176] != 0xFF {
		t.Error("last block not padded with 0xFF")
	}

	out, err = run(t, append(sim, "status")...)
	if err != nil || !strings.Contains(out, "0x0000 ok") {
		t.Errorf("status = %q, %v", out, err)
	}
}

func TestCLIErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no cs pin", []string{"info"}},
		{"bad kind", []string{"--kind", "xd", "info"}},
		{"bad log level", []string{"--kind", "sdhc", "--log-level", "loud", "info"}},
		{"misaligned read", []string{"--kind", "sdhc", "read", "3", "1"}},
		{"bad count", []string{"--kind", "sdhc", "read", "0", "zero"}},
		{"count beyond capacity", []string{"--kind", "sdhc", "read", "0", "10g"}},
		{"address beyond capacity", []string{"--kind", "sdhc", "read", "4g", "1"}},
		{"missing args", []string{"--kind", "sdhc", "erase", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out, err := run(t, tt.args...); err == nil {
				t.Errorf("expected an error, output:\n%s", out)
			}
		})
	}
}

func TestCLIReadBoundedByCapacity(t *testing.T) {
	img := filepath.Join(t.TempDir(), "card.img")
	sim := []string{"--image", img, "--kind", "sdv2", "--image-size", "4m"}

	// eight blocks remain after 0x3FF000
	if out, err := run(t, append(sim, "read", "0x3FF000", "9")...); err == nil || !strings.Contains(err.Error(), "exceed the card capacity") {
		t.Errorf("read past the end: err = %v\n%s", err, out)
	}
	if out, err := run(t, append(sim, "read", "0x3FF000", "8")...); err != nil {
		t.Errorf("read up to the end: %v\n%s", err, out)
	}
}
