package sdcard

import "periph.io/x/conn/v3/physic"

// Bus is the byte-level transport between the driver and the card.
// It owns chip-select and the clock but has no protocol knowledge.
type Bus interface {
	// Select asserts chip-select
	Select() error

	// Deselect releases chip-select
	Deselect() error

	// Send shifts one byte out, discarding the byte shifted in
	Send(b byte) error

	// Receive shifts 0xFF out and returns the byte shifted in
	Receive() (byte, error)

	// SetClockRate changes the bus clock frequency
	SetClockRate(f physic.Frequency) error
}

// CardDetector is implemented by buses wired to a card-detect switch.
type CardDetector interface {
	CardPresent() bool
}

// WriteProtector is implemented by buses wired to a write-protect switch.
type WriteProtector interface {
	WriteProtected() bool
}
