// Package sdcard drives SD and MMC memory cards in SPI mode.
//
// A Card sits on top of a Bus, which only moves bytes and toggles
// chip-select. The card owns the protocol: command framing, negotiation,
// block transfers with CRC16, erase and register access.
//
// # Quick Start
//
//	card := sdcard.New(bus, sdcard.WithLogger(sdcard.NewSlogLogger(slog.Default())))
//
//	session, err := card.Init(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(session)
//
//	buf := make([]byte, session.BlockLength())
//	if err := card.ReadBlock(ctx, 0, buf); err != nil {
//	    log.Fatal(err)
//	}
//
// # Negotiation
//
// Init walks the card through reset, generation and family detection,
// power-up and capacity classification. The outcome is an immutable Session:
// SD or MMC, legacy or v2, standard or high capacity, and the block length.
// High-capacity cards take block indices; the driver converts byte
// addresses, so callers always pass byte addresses.
//
// # Errors
//
// Every failure is a *protocol.CardError carrying a protocol.ErrorKind:
//
//	err := card.WriteBlock(ctx, addr, data)
//	switch {
//	case errors.Is(err, protocol.ErrWriteProtected):
//	    // flip the switch
//	case errors.Is(err, protocol.ErrBusyTimeout):
//	    // session dropped; call Init again
//	}
//
// Response timeouts, busy timeouts, protocol faults, bus errors and card
// removal drop the session. Later operations fail with ErrNotInitialized
// until Init succeeds again.
//
// # Busy Waits
//
// The card signals busy for as long as it needs after a write, an erase or
// a stop command. The driver waits until the card is ready, the context
// passed to the operation is done, or the WithBusyTimeout duration elapses.
//
// # Thread Safety
//
// Card methods are serialized by an internal mutex. BlockDevice adds
// io.ReaderAt and io.WriterAt on top for block-aligned access.
package sdcard
