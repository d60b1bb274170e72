package simcard

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/moffa90/go-sdspi/protocol"
	"github.com/moffa90/go-sdspi/register"
)

// stuffByte follows CMD12 before its response.
const stuffByte = 0xA5

// stopTailByte is the filler driven after the CMD12 response with
// Faults.StopTail.
const stopTailByte = 0x7F

// ocrVoltageWindow advertises 2.7-3.6V.
const ocrVoltageWindow = 0x00FF8000

type mode int

const (
	modeCommand mode = iota
	modeWriteSingle
	modeWriteMulti
	modeReadMulti
)

// Record is one command received by the card.
type Record struct {
	Index byte
	Arg   uint32
	App   bool

	// CRCError is set when the packet CRC7 did not verify
	CRCError bool
}

func (r Record) String() string {
	prefix := "CMD"
	if r.App {
		prefix = "ACMD"
	}
	return fmt.Sprintf("%s%d(0x%08X)", prefix, r.Index, r.Arg)
}

// Card is a byte-level simulation of an SD or MMC card's SPI interface.
// It implements sdcard.Bus, sdcard.CardDetector and sdcard.WriteProtector.
type Card struct {
	mu     sync.Mutex
	kind   Kind
	store  Store
	config Config
	csd    [register.Length]byte
	cid    [register.Length]byte

	selected       bool
	present        bool
	writeProtected bool
	clock          physic.Frequency

	idle         bool
	appCmd       bool
	opCondCalls  int
	ocrReads     int
	blockLen     uint32
	mode         mode
	addr         int64
	blocksServed int
	eraseStart   int64
	eraseEnd     int64

	in     []byte
	out    []byte
	busy   int
	stuck  bool
	expect int // bytes still expected for a written data block, 0 while waiting for a token

	log []Record
}

// New creates a simulated card of the given kind backed by store. The card
// is present, writable and powered off (idle after the first CMD0).
func New(kind Kind, store Store, opts ...Option) *Card {
	if store == nil {
		panic("store cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Card{
		kind:       kind,
		store:      store,
		config:     cfg,
		present:    true,
		blockLen:   protocol.BlockLength,
		eraseStart: -1,
		eraseEnd:   -1,
		idle:       true,
	}
	c.csd = c.buildCSD()
	c.cid = register.NewCID(kind == KindMMC, 0x27, "SIMSD", 0x00C0FFEE, 2010, 6)
	return c
}

func (c *Card) buildCSD() [register.Length]byte {
	size := uint64(c.store.Size())
	switch c.kind {
	case KindSDHC:
		return register.NewCSD(size, register.LayoutV2)
	case KindMMC:
		raw := register.NewCSD(size, register.LayoutV1)
		register.PutBits(&raw, 127, 2, 2)
		raw[register.Length-1] = protocol.CRC7(raw[:register.Length-1])
		return raw
	default:
		return register.NewCSD(size, register.LayoutV1)
	}
}

// Kind returns the simulated card kind.
func (c *Card) Kind() Kind { return c.kind }

// SetFaults replaces the injected faults.
func (c *Card) SetFaults(f Faults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Faults = f
}

// SetPresent simulates insertion or removal. Removal powers the card off.
func (c *Card) SetPresent(present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = present
	if !present {
		c.powerOff()
	}
}

// SetWriteProtected sets the write-protect switch.
func (c *Card) SetWriteProtected(wp bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeProtected = wp
}

// CardPresent implements sdcard.CardDetector.
func (c *Card) CardPresent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present
}

// WriteProtected implements sdcard.WriteProtector.
func (c *Card) WriteProtected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeProtected
}

// ClockRate returns the last clock rate set by the host.
func (c *Card) ClockRate() physic.Frequency {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

// Commands returns a copy of every command received so far.
func (c *Card) Commands() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.log...)
}

// CommandCount counts received commands with the given index.
func (c *Card) CommandCount(index byte, app bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.log {
		if r.Index == index && r.App == app {
			n++
		}
	}
	return n
}

// ClearLog forgets recorded commands.
func (c *Card) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}

// Select implements sdcard.Bus.
func (c *Card) Select() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = true
	return nil
}

// Deselect implements sdcard.Bus.
func (c *Card) Deselect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = false
	c.in = c.in[:0]
	return nil
}

// SetClockRate implements sdcard.Bus.
func (c *Card) SetClockRate(f physic.Frequency) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = f
	return nil
}

// Send implements sdcard.Bus.
func (c *Card) Send(b byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected || !c.present {
		return nil
	}

	switch c.mode {
	case modeWriteSingle, modeWriteMulti:
		c.writeByte(b)
	default:
		c.commandByte(b)
	}
	return nil
}

// Receive implements sdcard.Bus.
func (c *Card) Receive() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected || !c.present {
		return protocol.IdleByte, nil
	}

	if len(c.out) > 0 {
		b := c.out[0]
		c.out = c.out[1:]
		return b, nil
	}
	if c.busy > 0 {
		c.busy--
		return protocol.BusyByte, nil
	}
	if c.stuck {
		return protocol.BusyByte, nil
	}
	if c.mode == modeReadMulti {
		c.queueBlock()
		b := c.out[0]
		c.out = c.out[1:]
		return b, nil
	}
	return protocol.IdleByte, nil
}

func (c *Card) powerOff() {
	c.idle = true
	c.appCmd = false
	c.opCondCalls = 0
	c.ocrReads = 0
	c.mode = modeCommand
	c.out = nil
	c.in = c.in[:0]
	c.busy = 0
	c.stuck = false
	c.expect = 0
	c.blockLen = protocol.BlockLength
	c.eraseStart, c.eraseEnd = -1, -1
}

func (c *Card) commandByte(b byte) {
	if len(c.in) == 0 && b&0xC0 != 0x40 {
		return
	}
	c.in = append(c.in, b)
	if len(c.in) < protocol.PacketSize {
		return
	}

	index, arg, err := protocol.ParsePacket(c.in)
	c.in = c.in[:0]
	app := c.appCmd
	c.appCmd = false

	rec := Record{Index: index, Arg: arg, App: app, CRCError: err != nil}
	c.log = append(c.log, rec)
	if c.config.Logger != nil {
		c.config.Logger.Debug("simcard command", "cmd", rec.String(), "crc_error", rec.CRCError)
	}

	if err != nil {
		c.respond(c.r1() | byte(protocol.R1CommandCRCError))
		return
	}
	c.execute(index, arg, app)
}

func (c *Card) r1() byte {
	if c.idle {
		return byte(protocol.R1Idle)
	}
	return 0
}

// respond queues a response after the NCR delay, discarding anything pending.
func (c *Card) respond(resp ...byte) {
	c.out = c.out[:0]
	for i := 0; i < c.config.NCR; i++ {
		c.out = append(c.out, protocol.IdleByte)
	}
	c.out = append(c.out, resp...)
}

func (c *Card) illegal() {
	c.respond(c.r1() | byte(protocol.R1IllegalCommand))
}

func (c *Card) execute(index byte, arg uint32, app bool) {
	mmc := c.kind == KindMMC
	f := c.config.Faults

	cmd, ok := protocol.Lookup(index, app)
	if ok && cmd == protocol.CmdStopTransmission {
		c.stopTransmission()
		return
	}
	if c.mode == modeReadMulti {
		// any other command aborts the stream
		c.mode = modeCommand
	}
	if !ok {
		c.illegal()
		return
	}

	switch cmd {
	case protocol.ACmdSendOpCond:
		if mmc {
			c.illegal()
			return
		}
		c.opCond(c.kind != KindSDHC || arg&protocol.ArgHighCapacitySupport != 0)

	case protocol.CmdGoIdleState:
		c.powerOff()
		c.respond(byte(protocol.R1Idle))

	case protocol.CmdSendOpCond:
		c.opCond(true)

	case protocol.CmdSendIfCond:
		if c.kind == KindSDv1 || mmc {
			c.illegal()
			return
		}
		voltage := byte(arg>>8) & 0x0F
		if f.Voltage != 0 {
			voltage = f.Voltage
		}
		pattern := byte(arg)
		if f.CheckPattern != 0 {
			pattern = f.CheckPattern
		}
		c.respond(c.r1(), 0x00, 0x00, voltage, pattern)

	case protocol.CmdReadOCR:
		if mmc {
			c.illegal()
			return
		}
		ocr := uint32(ocrVoltageWindow)
		if f.NoVoltageWindow {
			ocr &^= protocol.OCRVoltage32to33
		}
		if !c.idle {
			c.ocrReads++
			if c.ocrReads > f.PowerUpPolls {
				ocr |= protocol.OCRPowerUpComplete
				if c.kind == KindSDHC {
					ocr |= protocol.OCRCapacityStatus
				}
			}
		}
		resp := []byte{c.r1(), 0, 0, 0, 0}
		binary.BigEndian.PutUint32(resp[1:], ocr)
		c.respond(resp...)

	case protocol.CmdAppCmd:
		if mmc {
			c.illegal()
			return
		}
		c.appCmd = true
		c.respond(c.r1())

	case protocol.CmdSetBlockLen:
		if c.idle {
			c.illegal()
			return
		}
		if f.RejectBlockLength || arg == 0 || arg > protocol.BlockLength || arg&(arg-1) != 0 {
			c.respond(byte(protocol.R1ParameterError))
			return
		}
		if c.kind != KindSDHC {
			c.blockLen = arg
		}
		c.respond(0)

	case protocol.CmdSendCSD, protocol.CmdSendCID:
		if c.idle {
			c.illegal()
			return
		}
		reg := c.csd
		if cmd == protocol.CmdSendCID {
			reg = c.cid
		}
		c.respond(0)
		c.appendBlock(reg[:], f.CorruptReadCRC)

	case protocol.CmdSendStatus:
		c.respond(c.r1(), 0)

	case protocol.CmdReadSingleBlock, protocol.CmdReadMultipleBlock:
		addr, r1 := c.address(arg)
		if r1 != 0 {
			c.respond(r1)
			return
		}
		c.addr = addr
		c.respond(0)
		c.out = append(c.out, protocol.IdleByte) // NAC
		if cmd == protocol.CmdReadMultipleBlock {
			c.mode = modeReadMulti
			return
		}
		c.queueBlock()

	case protocol.CmdWriteBlock, protocol.CmdWriteMultipleBlock:
		addr, r1 := c.address(arg)
		if r1 != 0 {
			c.respond(r1)
			return
		}
		c.addr = addr
		c.expect = 0
		c.in = c.in[:0]
		if cmd == protocol.CmdWriteBlock {
			c.mode = modeWriteSingle
		} else {
			c.mode = modeWriteMulti
		}
		c.respond(0)

	case protocol.CmdEraseWrBlkStart, protocol.CmdEraseWrBlkEnd:
		if mmc {
			c.illegal()
			return
		}
		c.eraseBound(cmd == protocol.CmdEraseWrBlkStart, arg)

	case protocol.CmdEraseGroupStart, protocol.CmdEraseGroupEnd:
		if !mmc {
			c.illegal()
			return
		}
		c.eraseBound(cmd == protocol.CmdEraseGroupStart, arg)

	case protocol.CmdErase:
		c.erase()

	default:
		c.illegal()
	}
}

func (c *Card) opCond(accepts bool) {
	c.opCondCalls++
	f := c.config.Faults
	if accepts && !f.NeverReady && c.opCondCalls > f.BusyRounds {
		c.idle = false
	}
	c.respond(c.r1())
}

// address converts a command argument to a byte offset, returning a
// non-zero R1 when it is unusable.
func (c *Card) address(arg uint32) (int64, byte) {
	if c.idle {
		return 0, byte(protocol.R1Idle | protocol.R1IllegalCommand)
	}
	addr := int64(arg)
	if c.kind == KindSDHC {
		addr *= protocol.HighCapacityBlockLength
	} else if addr%int64(c.blockLen) != 0 {
		return 0, byte(protocol.R1AddressError)
	}
	if addr >= c.store.Size() {
		return 0, byte(protocol.R1ParameterError)
	}
	return addr, 0
}

// queueBlock appends the block at c.addr (or an error token) to the output.
func (c *Card) queueBlock() {
	f := c.config.Faults
	if f.ReadErrorToken != 0 {
		c.out = append(c.out, f.ReadErrorToken)
		return
	}
	if c.addr+int64(c.blockLen) > c.store.Size() {
		c.out = append(c.out, protocol.ErrTokenOutOfRange)
		c.mode = modeCommand
		return
	}

	buf := make([]byte, c.blockLen)
	if _, err := c.store.ReadAt(buf, c.addr); err != nil {
		c.out = append(c.out, protocol.ErrTokenError)
		return
	}
	c.addr += int64(c.blockLen)
	corrupt := f.CorruptReadCRC && c.blocksServed >= f.CorruptReadAfter
	c.blocksServed++
	c.appendBlock(buf, corrupt)
}

func (c *Card) appendBlock(data []byte, corrupt bool) {
	crc := protocol.CRC16(data)
	if corrupt {
		crc ^= 0x0001
	}
	c.out = append(c.out, protocol.TokenStartBlock)
	c.out = append(c.out, data...)
	c.out = append(c.out, byte(crc>>8), byte(crc))
}

func (c *Card) stopTransmission() {
	c.mode = modeCommand
	c.out = c.out[:0]
	c.out = append(c.out, stuffByte)
	for i := 0; i < c.config.NCR; i++ {
		c.out = append(c.out, protocol.IdleByte)
	}
	c.out = append(c.out, c.r1())
	for i := 0; i < c.config.Faults.StopTail; i++ {
		c.out = append(c.out, stopTailByte)
	}
	c.busy = 2
}

func (c *Card) writeByte(b byte) {
	if c.expect == 0 {
		switch {
		case c.mode == modeWriteSingle && b == protocol.TokenStartBlock,
			c.mode == modeWriteMulti && b == protocol.TokenStartMultiWrite:
			c.in = c.in[:0]
			c.expect = int(c.blockLen) + protocol.CRC16Size
		case c.mode == modeWriteMulti && b == protocol.TokenStopTran:
			c.mode = modeCommand
			c.out = append(c.out[:0], protocol.IdleByte)
			c.setBusy(c.config.WriteBusy)
		}
		return
	}

	c.in = append(c.in, b)
	c.expect--
	if c.expect > 0 {
		return
	}

	data := c.in[:c.blockLen]
	got := binary.BigEndian.Uint16(c.in[c.blockLen:])
	status := byte(protocol.DataAccepted)
	switch {
	case got != protocol.CRC16(data):
		status = protocol.DataCRCError
	case c.config.Faults.RejectWrites:
		status = protocol.DataWriteError
	case c.addr+int64(c.blockLen) > c.store.Size():
		status = protocol.DataWriteError
	default:
		if _, err := c.store.WriteAt(data, c.addr); err != nil {
			status = protocol.DataWriteError
		}
	}
	c.in = c.in[:0]
	c.addr += int64(c.blockLen)

	token := protocol.BuildDataResponse(status)
	if c.config.Faults.DataResponse != 0 {
		token = c.config.Faults.DataResponse
	}
	c.out = append(c.out[:0], token)
	if status == protocol.DataAccepted {
		c.setBusy(c.config.WriteBusy)
	}
	if c.mode == modeWriteSingle {
		c.mode = modeCommand
	}
}

func (c *Card) setBusy(n int) {
	c.busy = n
	if c.config.Faults.StuckBusy {
		c.stuck = true
	}
}

func (c *Card) eraseBound(start bool, arg uint32) {
	addr, r1 := c.address(arg)
	if r1 != 0 {
		c.respond(r1)
		return
	}
	if start {
		c.eraseStart = addr
	} else {
		c.eraseEnd = addr
	}
	c.respond(0)
}

func (c *Card) erase() {
	if c.idle || c.eraseStart < 0 || c.eraseEnd < 0 || c.eraseEnd < c.eraseStart {
		c.respond(c.r1() | byte(protocol.R1EraseSequenceError))
		return
	}
	end := c.eraseEnd + int64(c.blockLen)
	if end > c.store.Size() {
		end = c.store.Size()
	}
	erased := make([]byte, c.blockLen)
	for i := range erased {
		erased[i] = 0xFF
	}
	for off := c.eraseStart; off < end; off += int64(c.blockLen) {
		n := int64(len(erased))
		if off+n > end {
			n = end - off
		}
		_, _ = c.store.WriteAt(erased[:n], off)
	}
	c.eraseStart, c.eraseEnd = -1, -1

	c.respond(0)
	c.setBusy(c.config.EraseBusy)
}

// Release clears a stuck-busy condition, as if the card finally finished.
func (c *Card) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuck = false
	c.busy = 0
}

// LogValue lets a Card be logged directly with slog.
func (c *Card) LogValue() slog.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slog.GroupValue(
		slog.String("kind", c.kind.String()),
		slog.Int64("size", c.store.Size()),
		slog.Bool("idle", c.idle),
		slog.Int("commands", len(c.log)),
	)
}

var _ slog.LogValuer = (*Card)(nil)
