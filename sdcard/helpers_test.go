package sdcard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"periph.io/x/conn/v3/physic"

	"github.com/moffa90/go-sdspi/protocol"
	"github.com/moffa90/go-sdspi/simcard"
)

// MockLogger records messages for assertions
type MockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugMsgs = append(l.debugMsgs, msg)
}

func (l *MockLogger) Info(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoMsgs = append(l.infoMsgs, msg)
}

func (l *MockLogger) Error(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorMsgs = append(l.errorMsgs, msg)
}

// deadBus never answers: every received byte is the idle fill
type deadBus struct {
	sent   int
	clocks []physic.Frequency
}

func (b *deadBus) Select() error                         { return nil }
func (b *deadBus) Deselect() error                       { return nil }
func (b *deadBus) Send(byte) error                       { b.sent++; return nil }
func (b *deadBus) Receive() (byte, error)                { return protocol.IdleByte, nil }
func (b *deadBus) SetClockRate(f physic.Frequency) error { b.clocks = append(b.clocks, f); return nil }

// failingBus reports a transport error on every transfer
type failingBus struct{ deadBus }

var errWire = errors.New("wire unplugged")

func (b *failingBus) Send(byte) error        { return errWire }
func (b *failingBus) Receive() (byte, error) { return 0, errWire }

const (
	sdSize   = 2 << 20
	sdhcSize = 8 << 20
)

func sizeFor(kind simcard.Kind) int64 {
	if kind == simcard.KindSDHC {
		return sdhcSize
	}
	return sdSize
}

// newTestCard creates a simulated card and runs Init.
func newTestCard(t *testing.T, kind simcard.Kind, simOpts []simcard.Option, opts ...Option) (*simcard.Card, *Card, Session) {
	t.Helper()
	sim := simcard.New(kind, simcard.NewMemStore(sizeFor(kind)), simOpts...)
	card := New(sim, opts...)
	s, err := card.Init(context.Background())
	if err != nil {
		t.Fatalf("Init(%s): %v", kind, err)
	}
	return sim, card, s
}

func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*7) ^ seed
	}
	return buf
}

func wantKind(t *testing.T, err error, kind protocol.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v (kind %v), want %v", err, protocol.KindOf(err), kind)
	}
}

// indexOf returns the position of the first matching record after from.
func indexOf(log []simcard.Record, index byte, from int) int {
	for i := from; i < len(log); i++ {
		if log[i].Index == index && !log[i].App {
			return i
		}
	}
	return -1
}
