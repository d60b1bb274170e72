package protocol

import "strings"

// Status is the 16-bit SEND_STATUS (R2) response: the R1 byte in the high
// byte, the second status byte in the low byte.
type Status uint16

// Status bits.
const (
	StatusCardLocked      Status = 1 << 0
	StatusWPEraseSkip     Status = 1 << 1 // write-protected blocks skipped, or lock/unlock failed
	StatusError           Status = 1 << 2
	StatusCCError         Status = 1 << 3
	StatusCardECCFailed   Status = 1 << 4
	StatusWPViolation     Status = 1 << 5
	StatusEraseParam      Status = 1 << 6
	StatusOutOfRange      Status = 1 << 7 // also CSD overwrite
	StatusIdle            Status = 1 << 8
	StatusEraseReset      Status = 1 << 9
	StatusIllegalCommand  Status = 1 << 10
	StatusCommandCRCError Status = 1 << 11
	StatusEraseSequence   Status = 1 << 12
	StatusAddressError    Status = 1 << 13
	StatusParameterError  Status = 1 << 14
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusCardLocked, "card-locked"},
	{StatusWPEraseSkip, "wp-erase-skip"},
	{StatusError, "error"},
	{StatusCCError, "cc-error"},
	{StatusCardECCFailed, "card-ecc-failed"},
	{StatusWPViolation, "wp-violation"},
	{StatusEraseParam, "erase-param"},
	{StatusOutOfRange, "out-of-range"},
	{StatusIdle, "idle"},
	{StatusEraseReset, "erase-reset"},
	{StatusIllegalCommand, "illegal-command"},
	{StatusCommandCRCError, "crc-error"},
	{StatusEraseSequence, "erase-sequence-error"},
	{StatusAddressError, "address-error"},
	{StatusParameterError, "parameter-error"},
}

// ParseStatus assembles a Status from a two-byte R2 response.
func ParseStatus(resp []byte) Status {
	if len(resp) < 2 {
		return 0
	}
	return Status(resp[0])<<8 | Status(resp[1])
}

// R1 returns the R1 half of the status.
func (s Status) R1() R1 { return R1(s >> 8) }

// Has reports whether every bit in flags is set.
func (s Status) Has(flags Status) bool { return s&flags == flags }

// OK reports whether no bit other than idle is set.
func (s Status) OK() bool { return s&^StatusIdle == 0 }

func (s Status) String() string {
	if s == 0 {
		return "ok"
	}
	var parts []string
	for _, n := range statusNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if s&(1<<15) != 0 {
		parts = append(parts, "start-bit")
	}
	return strings.Join(parts, "|")
}
