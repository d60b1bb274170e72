package sdcard

import (
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/moffa90/go-sdspi/protocol"
)

// Default bus clocks.
const (
	// DefaultSlowClock is used during negotiation
	DefaultSlowClock = 400 * physic.KiloHertz

	// DefaultFastClock is used once the card is ready
	DefaultFastClock = 4 * physic.MegaHertz
)

// Config holds the card driver configuration.
type Config struct {
	// ProgressCallback is called during multi-block transfers (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// SlowClock is the bus clock during negotiation
	SlowClock physic.Frequency

	// FastClock is the bus clock after negotiation
	FastClock physic.Frequency

	// InitAttempts bounds each of the ACMD41 and CMD1 loops
	InitAttempts int

	// CommandAttempts bounds the poll for a command response
	CommandAttempts int

	// DataAttempts bounds the poll for a data token
	DataAttempts int

	// BusyTimeout bounds each busy-wait. Zero waits until the context is done.
	BusyTimeout time.Duration

	// BlockLength is set on standard-capacity cards; high-capacity cards
	// always use 512
	BlockLength uint32
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		SlowClock:       DefaultSlowClock,
		FastClock:       DefaultFastClock,
		InitAttempts:    protocol.DefaultInitAttempts,
		CommandAttempts: protocol.DefaultCommandAttempts,
		DataAttempts:    protocol.DefaultDataAttempts,
		BlockLength:     protocol.BlockLength,
	}
}

// Option is a functional option for configuring the Card.
type Option func(*Config)

// WithProgressCallback sets a callback to track multi-block transfers.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for card operations.
//
// Example:
//
//	card := sdcard.New(bus, sdcard.WithLogger(sdcard.NewSlogLogger(slog.Default())))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithClockRates sets the negotiation and operational bus clocks.
// Zero values keep the defaults.
//
// Example:
//
//	card := sdcard.New(bus, sdcard.WithClockRates(250*physic.KiloHertz, 8*physic.MegaHertz))
func WithClockRates(slow, fast physic.Frequency) Option {
	return func(c *Config) {
		if slow > 0 {
			c.SlowClock = slow
		}
		if fast > 0 {
			c.FastClock = fast
		}
	}
}

// WithInitAttempts sets the ACMD41/CMD1 loop budget. Default is 900.
func WithInitAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.InitAttempts = n
		}
	}
}

// WithCommandAttempts sets the response poll budget. Default is 10.
func WithCommandAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CommandAttempts = n
		}
	}
}

// WithDataAttempts sets the data token poll budget. Default is 100.
func WithDataAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.DataAttempts = n
		}
	}
}

// WithBusyTimeout bounds every busy-wait. By default a busy card is waited
// on until the operation's context is done.
//
// Example:
//
//	card := sdcard.New(bus, sdcard.WithBusyTimeout(500*time.Millisecond))
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.BusyTimeout = d
		}
	}
}

// WithBlockLength sets the block length for standard-capacity cards.
// Must be a power of two between 1 and 512; other values are ignored.
func WithBlockLength(n uint32) Option {
	return func(c *Config) {
		if n > 0 && n <= protocol.BlockLength && n&(n-1) == 0 {
			c.BlockLength = n
		}
	}
}
