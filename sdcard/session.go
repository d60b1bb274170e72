package sdcard

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"
)

// Family distinguishes SD from MMC cards.
type Family int

const (
	FamilySD Family = iota
	FamilyMMC
)

func (f Family) String() string {
	if f == FamilyMMC {
		return "MMC"
	}
	return "SD"
}

// Generation is the protocol generation reported by SEND_IF_COND.
type Generation int

const (
	// GenerationLegacy cards (SD 1.x, MMC) reject SEND_IF_COND
	GenerationLegacy Generation = iota

	// GenerationV2 cards echo the check pattern and may be high capacity
	GenerationV2
)

func (g Generation) String() string {
	if g == GenerationV2 {
		return "v2"
	}
	return "legacy"
}

// Session is the outcome of a successful negotiation. It is immutable;
// a new one is produced by every Init.
type Session struct {
	family       Family
	generation   Generation
	highCapacity bool
	blockLength  uint32
	clockRate    physic.Frequency
}

// Family returns the card family.
func (s Session) Family() Family { return s.family }

// Generation returns the protocol generation.
func (s Session) Generation() Generation { return s.generation }

// IsMMC reports whether the card is a MultiMediaCard.
func (s Session) IsMMC() bool { return s.family == FamilyMMC }

// IsHighCapacity reports whether the card is block addressed.
func (s Session) IsHighCapacity() bool { return s.highCapacity }

// BlockLength returns the active block length in bytes.
func (s Session) BlockLength() uint32 { return s.blockLength }

// ClockRate returns the operational bus clock.
func (s Session) ClockRate() physic.Frequency { return s.clockRate }

// cardAddress converts a byte address to the argument the card expects:
// a block index on high-capacity cards, the byte address otherwise.
func (s Session) cardAddress(addr uint64) uint32 {
	if s.highCapacity {
		return uint32(addr / uint64(s.blockLength))
	}
	return uint32(addr)
}

// addressable reports whether addr fits the 32-bit command argument.
func (s Session) addressable(addr uint64) bool {
	if s.highCapacity {
		return addr/uint64(s.blockLength) <= math.MaxUint32
	}
	return addr <= math.MaxUint32
}

func (s Session) String() string {
	class := "standard capacity"
	if s.highCapacity {
		class = "high capacity"
	}
	return fmt.Sprintf("%s %s, %s, %d-byte blocks, %s", s.family, s.generation, class, s.blockLength, s.clockRate)
}
