// Package simcard simulates the SPI side of an SD or MMC card.
//
// A Card implements the byte-level bus the sdcard driver talks to, so the
// whole driver can run against it without hardware:
//
//	sim := simcard.New(simcard.KindSDHC, simcard.NewMemStore(8<<20))
//	card := sdcard.New(sim)
//	session, err := card.Init(ctx)
//
// The simulator parses and CRC-checks every command packet, queues responses
// after an NCR delay, serves and accepts CRC16 framed data blocks, streams
// multi-block reads until CMD12, erases ranges and synthesizes CSD and CID
// registers matching its capacity.
//
// # Fault Injection
//
// Faults make the card misbehave in the ways real cards do:
//
//	sim.SetFaults(simcard.Faults{CorruptReadCRC: true})
//	err := card.ReadBlock(ctx, 0, buf) // fails with ErrBlockCRCInvalid
//
// Commands returns every command received, for asserting on the exact
// sequence the driver sent.
//
// # Images
//
// OpenImage and CreateImage back the card with a disk image so a file can
// be inspected with ordinary tools after the driver has written it.
package simcard
