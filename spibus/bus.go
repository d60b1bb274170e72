package spibus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/moffa90/go-sdspi/protocol"
)

// ErrClosed is returned by operations on a closed Bus.
var ErrClosed = errors.New("spibus: bus closed")

// Opener opens the SPI port. It is called again on every clock change, so
// it must return a fresh port each time.
type Opener func() (spi.PortCloser, error)

// PortOpener returns an Opener for a registered port name such as
// "/dev/spidev0.0" or "SPI0.0". An empty name selects the first port.
// host.Init must have run first.
func PortOpener(name string) Opener {
	return func() (spi.PortCloser, error) {
		return spireg.Open(name)
	}
}

// Bus drives a card over a periph.io SPI port with chip select on a GPIO.
// The port is opened with spi.NoCS so the card stays selected across
// transfers. Bus implements sdcard.Bus, sdcard.CardDetector and
// sdcard.WriteProtector.
type Bus struct {
	open   Opener
	cs     gpio.PinOut
	config Config

	mu    sync.Mutex
	port  spi.PortCloser
	conn  spi.Conn
	clock physic.Frequency
	tx    [1]byte
	rx    [1]byte
}

// Open opens the port at the initial clock and releases chip select.
//
// Example:
//
//	if _, err := host.Init(); err != nil {
//	    return err
//	}
//	bus, err := spibus.Open(spibus.PortOpener(""), gpioreg.ByName("GPIO8"))
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//	card := sdcard.New(bus)
func Open(open Opener, cs gpio.PinOut, opts ...Option) (*Bus, error) {
	if open == nil {
		return nil, errors.New("spibus: opener cannot be nil")
	}
	if cs == nil {
		return nil, errors.New("spibus: chip select pin cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Bus{open: open, cs: cs, config: cfg}
	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("release chip select %s: %w", cs, err)
	}
	if err := b.setupInputs(); err != nil {
		return nil, err
	}
	if err := b.connect(cfg.Clock); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) setupInputs() error {
	for _, p := range []gpio.PinIn{b.config.CardDetect, b.config.WriteProtect} {
		if p == nil {
			continue
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return fmt.Errorf("configure %s: %w", p, err)
		}
		b.logDebug("input pin ready", "pin", p.String())
	}
	return nil
}

// connect opens a fresh port at f. Caller holds mu or owns b exclusively.
func (b *Bus) connect(f physic.Frequency) error {
	port, err := b.open()
	if err != nil {
		return fmt.Errorf("open spi port: %w", err)
	}
	conn, err := port.Connect(f, b.config.Mode|spi.NoCS, 8)
	if err != nil {
		_ = port.Close()
		return fmt.Errorf("connect %s at %s: %w", port, f, err)
	}
	b.port, b.conn, b.clock = port, conn, f
	b.logDebug("spi connected", "port", port.String(), "clock", f.String())
	return nil
}

// Select drives chip select low.
func (b *Bus) Select() error {
	return b.cs.Out(gpio.Low)
}

// Deselect drives chip select high.
func (b *Bus) Deselect() error {
	return b.cs.Out(gpio.High)
}

// Send clocks one byte out, discarding what the card returns.
func (b *Bus) Send(v byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrClosed
	}
	b.tx[0] = v
	return b.conn.Tx(b.tx[:], nil)
}

// Receive clocks the idle byte out and returns the byte clocked in.
func (b *Bus) Receive() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return 0, ErrClosed
	}
	b.tx[0] = protocol.IdleByte
	if err := b.conn.Tx(b.tx[:], b.rx[:]); err != nil {
		return 0, err
	}
	return b.rx[0], nil
}

// SetClockRate reopens the port at f. periph ports connect once, so a new
// port is taken from the opener.
func (b *Bus) SetClockRate(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return ErrClosed
	}
	if f == b.clock {
		return nil
	}

	if err := b.port.Close(); err != nil {
		return fmt.Errorf("close spi port: %w", err)
	}
	b.port, b.conn = nil, nil
	return b.connect(f)
}

// ClockRate returns the current clock rate.
func (b *Bus) ClockRate() physic.Frequency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock
}

// CardPresent reports whether the card-detect pin reads its active level.
// Without a card-detect pin the card is assumed present.
func (b *Bus) CardPresent() bool {
	if b.config.CardDetect == nil {
		return true
	}
	return b.config.CardDetect.Read() == b.config.CardDetectActive
}

// WriteProtected reports whether the write-protect switch is set.
// Without a write-protect pin the card is writable.
func (b *Bus) WriteProtected() bool {
	if b.config.WriteProtect == nil {
		return false
	}
	return b.config.WriteProtect.Read() == b.config.WriteProtectActive
}

// Close releases chip select and closes the port.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil
	}
	csErr := b.cs.Out(gpio.High)
	err := b.port.Close()
	b.port, b.conn = nil, nil
	if err != nil {
		return err
	}
	return csErr
}

func (b *Bus) String() string {
	return fmt.Sprintf("spibus(%s, cs=%s, %s)", b.port, b.cs, b.clock)
}

func (b *Bus) logDebug(msg string, args ...any) {
	if b.config.Logger != nil {
		b.config.Logger.Debug(msg, args...)
	}
}
