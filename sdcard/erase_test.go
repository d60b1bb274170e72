package sdcard

import (
	"bytes"
	"context"
	"testing"

	"github.com/moffa90/go-sdspi/protocol"
	"github.com/moffa90/go-sdspi/simcard"
)

func TestErase(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		kind       simcard.Kind
		start, end byte
	}{
		{simcard.KindSDv2, protocol.CmdEraseWrBlkStart.Index, protocol.CmdEraseWrBlkEnd.Index},
		{simcard.KindSDHC, protocol.CmdEraseWrBlkStart.Index, protocol.CmdEraseWrBlkEnd.Index},
		{simcard.KindMMC, protocol.CmdEraseGroupStart.Index, protocol.CmdEraseGroupEnd.Index},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			sim, card, _ := newTestCard(t, tt.kind, nil)

			data := pattern(6*512, 0x42)
			for i := range data {
				if data[i] == 0xFF {
					data[i] = 0
				}
			}
			if err := card.WriteBlocks(ctx, 0, data); err != nil {
				t.Fatalf("WriteBlocks() error = %v", err)
			}

			sim.ClearLog()
			if err := card.Erase(ctx, 512, 4*512); err != nil {
				t.Fatalf("Erase() error = %v", err)
			}

			var got []byte
			for _, r := range sim.Commands() {
				got = append(got, r.Index)
			}
			want := []byte{tt.start, tt.end, protocol.CmdErase.Index}
			if !bytes.Equal(got, want) {
				t.Errorf("command indexes = %v, want %v", got, want)
			}

			buf := make([]byte, 6*512)
			if err := card.ReadBlocks(ctx, 0, buf); err != nil {
				t.Fatalf("ReadBlocks() error = %v", err)
			}
			if !bytes.Equal(buf[:512], data[:512]) || !bytes.Equal(buf[5*512:], data[5*512:]) {
				t.Error("blocks outside the range changed")
			}
			for i, b := range buf[512 : 5*512] {
				if b != 0xFF {
					t.Fatalf("byte %d = 0x%02X after erase, want 0xFF", 512+i, b)
				}
			}
		})
	}
}

func TestEraseSingleBlock(t *testing.T) {
	ctx := context.Background()
	_, card, _ := newTestCard(t, simcard.KindSDv1, nil)

	if err := card.WriteBlock(ctx, 1024, make([]byte, 512)); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}
	if err := card.Erase(ctx, 1024, 1024); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	buf := make([]byte, 512)
	if err := card.ReadBlock(ctx, 1024, buf); err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{0xFF}, 512)) {
		t.Error("block not erased")
	}
}

func TestEraseRejectedRange(t *testing.T) {
	ctx := context.Background()
	sim, card, _ := newTestCard(t, simcard.KindSDv2, nil)

	tests := []struct {
		name       string
		start, end uint64
		want       protocol.ErrorKind
	}{
		{"misaligned start", 1, 512, protocol.ErrAddressMisaligned},
		{"misaligned end", 0, 700, protocol.ErrAddressMisaligned},
		{"reversed", 1024, 512, protocol.ErrAddressOutOfBounds},
		{"start beyond card", sdSize, sdSize + 512, protocol.ErrAddressOutOfBounds},
		{"end beyond card", 0, sdSize, protocol.ErrAddressOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim.ClearLog()
			wantKind(t, card.Erase(ctx, tt.start, tt.end), tt.want)
			if n := sim.CommandCount(protocol.CmdErase.Index, false); n != 0 {
				t.Errorf("CMD38 sent after rejected range")
			}
		})
	}
}

func BenchmarkErase(b *testing.B) {
	ctx := context.Background()
	sim := simcard.New(simcard.KindSDHC, simcard.NewMemStore(sdhcSize))
	card := New(sim)
	if _, err := card.Init(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := card.Erase(ctx, 0, 63*512); err != nil {
			b.Fatal(err)
		}
	}
}
