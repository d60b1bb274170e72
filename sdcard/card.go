package sdcard

import (
	"sync"

	"github.com/moffa90/go-sdspi/protocol"
)

// Card drives an SD or MMC card in SPI mode over a Bus.
//
// Card serializes its operations; it is safe for concurrent use, but
// transfers never interleave on the bus.
type Card struct {
	bus    Bus
	config Config

	mu      sync.Mutex
	session *Session
}

// New creates a Card on the given bus. The card is unusable until Init
// succeeds.
//
// Example:
//
//	card := sdcard.New(bus,
//	    sdcard.WithLogger(logger),
//	    sdcard.WithBusyTimeout(time.Second),
//	)
//	session, err := card.Init(ctx)
func New(bus Bus, opts ...Option) *Card {
	if bus == nil {
		panic("bus cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Card{
		bus:    bus,
		config: cfg,
	}
}

// Session returns the current session and whether the card is initialized.
func (c *Card) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// IsMMC reports whether the initialized card is an MMC.
func (c *Card) IsMMC() bool {
	s, _ := c.Session()
	return s.IsMMC()
}

// BlockLength returns the active block length, or zero before Init.
func (c *Card) BlockLength() uint32 {
	s, _ := c.Session()
	return s.BlockLength()
}

// IsHighCapacity reports whether the initialized card is block addressed.
func (c *Card) IsHighCapacity() bool {
	s, _ := c.Session()
	return s.IsHighCapacity()
}

// ready checks presence and returns the session for op. Caller holds mu.
func (c *Card) ready(op string) (Session, error) {
	if err := c.checkPresent(op); err != nil {
		return Session{}, err
	}
	if c.session == nil {
		return Session{}, protocol.NewCardError(op, protocol.ErrNotInitialized, nil, nil)
	}
	return *c.session, nil
}

func (c *Card) checkPresent(op string) error {
	if cd, ok := c.bus.(CardDetector); ok && !cd.CardPresent() {
		return protocol.NewCardError(op, protocol.ErrCardNotPresent, nil, nil)
	}
	return nil
}

func (c *Card) checkWritable(op string) error {
	if wp, ok := c.bus.(WriteProtector); ok && wp.WriteProtected() {
		return protocol.NewCardError(op, protocol.ErrWriteProtected, nil, nil)
	}
	return nil
}

// finish logs a failed operation and drops the session when the failure
// leaves the card in an unknown state. Caller holds mu.
func (c *Card) finish(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := protocol.KindOf(err)
	if kind.Invalidates() && c.session != nil {
		c.session = nil
		c.logInfo("session invalidated", "op", op, "kind", kind.String())
	}
	c.logError(op+" failed", "error", err.Error())
	return err
}

// reportProgress calls the progress callback if configured.
func (c *Card) reportProgress(progress Progress) {
	if c.config.ProgressCallback != nil {
		c.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (c *Card) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (c *Card) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (c *Card) logError(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, keysAndValues...)
	}
}
