package simcard

import "log/slog"

// Kind selects which card the simulator impersonates.
type Kind int

const (
	// KindSDv1 rejects SEND_IF_COND and is always standard capacity
	KindSDv1 Kind = iota

	// KindSDv2 answers SEND_IF_COND but is standard capacity
	KindSDv2

	// KindSDHC is block addressed and requires HCS in ACMD41
	KindSDHC

	// KindMMC rejects SEND_IF_COND, READ_OCR and APP_CMD
	KindMMC
)

func (k Kind) String() string {
	switch k {
	case KindSDv1:
		return "sdv1"
	case KindSDv2:
		return "sdv2"
	case KindSDHC:
		return "sdhc"
	case KindMMC:
		return "mmc"
	default:
		return "unknown"
	}
}

// ParseKind maps a name from String back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindSDv1, KindSDv2, KindSDHC, KindMMC} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Faults injects misbehaviour. The zero value is a healthy card.
type Faults struct {
	// BusyRounds is how many ACMD41/CMD1 attempts answer idle before ready
	BusyRounds int

	// NeverReady keeps the card idle forever
	NeverReady bool

	// CheckPattern overrides the echoed SEND_IF_COND pattern when non-zero
	CheckPattern byte

	// Voltage overrides the echoed SEND_IF_COND voltage code when non-zero
	Voltage byte

	// NoVoltageWindow clears the 3.2-3.3V bit in the OCR
	NoVoltageWindow bool

	// PowerUpPolls is how many READ_OCR answers after ready still lack the
	// power-up bit
	PowerUpPolls int

	// CorruptReadCRC flips the CRC16 of every data block read
	CorruptReadCRC bool

	// CorruptReadAfter lets this many blocks through before corrupting
	CorruptReadAfter int

	// ReadErrorToken is sent instead of a data block when non-zero
	ReadErrorToken byte

	// RejectWrites answers every written block with a write error
	RejectWrites bool

	// StuckBusy holds the data line low forever after a write or erase
	StuckBusy bool

	// RejectBlockLength answers SET_BLOCKLEN with a parameter error
	RejectBlockLength bool

	// DataResponse replaces every data response token when non-zero
	DataResponse byte

	// StopTail is how many non-idle bytes follow the STOP_TRANSMISSION
	// response before the busy period
	StopTail int
}

// Config holds the simulator configuration.
type Config struct {
	// NCR is the number of idle bytes before every response
	NCR int

	// WriteBusy is the number of busy bytes after each written block
	WriteBusy int

	// EraseBusy is the number of busy bytes after an erase
	EraseBusy int

	// Faults to inject
	Faults Faults

	// Logger traces every command (optional)
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		NCR:       1,
		WriteBusy: 4,
		EraseBusy: 16,
	}
}

// Option is a functional option for configuring the simulated card.
type Option func(*Config)

// WithNCR sets the response delay in bytes (0 to 8).
func WithNCR(n int) Option {
	return func(c *Config) {
		if n >= 0 && n <= 8 {
			c.NCR = n
		}
	}
}

// WithBusy sets the busy periods after writes and erases, in bytes.
func WithBusy(write, erase int) Option {
	return func(c *Config) {
		if write >= 0 {
			c.WriteBusy = write
		}
		if erase >= 0 {
			c.EraseBusy = erase
		}
	}
}

// WithFaults sets the initial fault injection.
func WithFaults(f Faults) Option {
	return func(c *Config) {
		c.Faults = f
	}
}

// WithLogger traces commands at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
