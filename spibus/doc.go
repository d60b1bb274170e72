// Package spibus connects the sdcard driver to real hardware through
// periph.io.
//
// The SPI port is opened with spi.NoCS and chip select is driven on a
// separate GPIO, because a card must stay selected for a whole command and
// its response while the driver moves one byte at a time:
//
//	if _, err := host.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	bus, err := spibus.Open(spibus.PortOpener("/dev/spidev0.0"), gpioreg.ByName("GPIO8"),
//	    spibus.WithCardDetect(gpioreg.ByName("GPIO22"), gpio.Low),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bus.Close()
//
//	card := sdcard.New(bus)
//	session, err := card.Init(ctx)
//
// Clock changes reopen the port through the Opener, since a periph port
// can only be connected once.
package spibus
