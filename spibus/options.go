package spibus

import (
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// DefaultClock is the rate the port is first opened at, matching the
// card's negotiation clock.
const DefaultClock = 400 * physic.KiloHertz

// Config holds the bus configuration.
type Config struct {
	// Mode is the SPI mode; NoCS is always added
	Mode spi.Mode

	// Clock is the initial clock rate
	Clock physic.Frequency

	// CardDetect reports card presence (optional)
	CardDetect gpio.PinIn

	// CardDetectActive is the level CardDetect reads with a card inserted
	CardDetectActive gpio.Level

	// WriteProtect reports the write-protect switch (optional)
	WriteProtect gpio.PinIn

	// WriteProtectActive is the level WriteProtect reads when protected
	WriteProtectActive gpio.Level

	// Logger receives clock changes and pin setup (optional)
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		Mode:               spi.Mode0,
		Clock:              DefaultClock,
		CardDetectActive:   gpio.Low,
		WriteProtectActive: gpio.High,
	}
}

// Option is a functional option for configuring the Bus.
type Option func(*Config)

// WithMode sets the SPI mode. Cards use mode 0 by default.
func WithMode(mode spi.Mode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithClock sets the rate the port is first opened at.
func WithClock(f physic.Frequency) Option {
	return func(c *Config) {
		if f > 0 {
			c.Clock = f
		}
	}
}

// WithCardDetect enables presence detection on pin. active is the level the
// pin reads while a card is inserted; sockets usually pull it low.
//
// Example:
//
//	bus, err := spibus.Open(opener, cs,
//	    spibus.WithCardDetect(gpioreg.ByName("GPIO22"), gpio.Low),
//	)
func WithCardDetect(pin gpio.PinIn, active gpio.Level) Option {
	return func(c *Config) {
		c.CardDetect = pin
		c.CardDetectActive = active
	}
}

// WithWriteProtect enables the write-protect switch on pin. active is the
// level the pin reads while the switch is set.
func WithWriteProtect(pin gpio.PinIn, active gpio.Level) Option {
	return func(c *Config) {
		c.WriteProtect = pin
		c.WriteProtectActive = active
	}
}

// WithLogger sets a logger for the bus.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
