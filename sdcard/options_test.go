package sdcard

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/moffa90/go-sdspi/protocol"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.SlowClock != 400*physic.KiloHertz || cfg.FastClock != 4*physic.MegaHertz {
		t.Errorf("clocks = %v / %v", cfg.SlowClock, cfg.FastClock)
	}
	if cfg.InitAttempts != protocol.DefaultInitAttempts {
		t.Errorf("InitAttempts = %d", cfg.InitAttempts)
	}
	if cfg.CommandAttempts != protocol.DefaultCommandAttempts {
		t.Errorf("CommandAttempts = %d", cfg.CommandAttempts)
	}
	if cfg.DataAttempts != protocol.DefaultDataAttempts {
		t.Errorf("DataAttempts = %d", cfg.DataAttempts)
	}
	if cfg.BusyTimeout != 0 {
		t.Errorf("BusyTimeout = %v, want unbounded", cfg.BusyTimeout)
	}
	if cfg.BlockLength != protocol.BlockLength {
		t.Errorf("BlockLength = %d", cfg.BlockLength)
	}
}

func TestOptions(t *testing.T) {
	logger := &MockLogger{}
	called := false
	cfg := defaultConfig()
	for _, opt := range []Option{
		WithLogger(logger),
		WithProgressCallback(func(Progress) { called = true }),
		WithClockRates(100*physic.KiloHertz, 20*physic.MegaHertz),
		WithInitAttempts(7),
		WithCommandAttempts(3),
		WithDataAttempts(50),
		WithBusyTimeout(time.Second),
		WithBlockLength(128),
	} {
		opt(&cfg)
	}

	if cfg.Logger != logger {
		t.Error("logger not set")
	}
	cfg.ProgressCallback(Progress{})
	if !called {
		t.Error("progress callback not set")
	}
	if cfg.SlowClock != 100*physic.KiloHertz || cfg.FastClock != 20*physic.MegaHertz {
		t.Errorf("clocks = %v / %v", cfg.SlowClock, cfg.FastClock)
	}
	if cfg.InitAttempts != 7 || cfg.CommandAttempts != 3 || cfg.DataAttempts != 50 {
		t.Errorf("attempts = %d/%d/%d", cfg.InitAttempts, cfg.CommandAttempts, cfg.DataAttempts)
	}
	if cfg.BusyTimeout != time.Second || cfg.BlockLength != 128 {
		t.Errorf("BusyTimeout = %v, BlockLength = %d", cfg.BusyTimeout, cfg.BlockLength)
	}
}

func TestOptionsIgnoreInvalidValues(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []Option{
		WithInitAttempts(0),
		WithCommandAttempts(-1),
		WithDataAttempts(0),
		WithBlockLength(300),
		WithBlockLength(1024),
		WithClockRates(0, 0),
	} {
		opt(&cfg)
	}

	def := defaultConfig()
	if cfg.InitAttempts != def.InitAttempts || cfg.CommandAttempts != def.CommandAttempts ||
		cfg.DataAttempts != def.DataAttempts || cfg.BlockLength != def.BlockLength ||
		cfg.SlowClock != def.SlowClock || cfg.FastClock != def.FastClock {
		t.Errorf("invalid options changed the config: %+v", cfg)
	}
}

func TestNewPanicsOnNilBus(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(nil) did not panic")
		}
	}()
	New(nil)
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlogLogger(slog.New(h))

	logger.Debug("command", "cmd", "CMD17")
	logger.Info("card ready", "family", "SD")
	logger.Error("read block failed", "error", "boom")

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG msg=command component=sdcard cmd=CMD17",
		"level=INFO msg=\"card ready\" component=sdcard family=SD",
		"level=ERROR msg=\"read block failed\" component=sdcard error=boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if NewSlogLogger(nil) == nil {
		t.Error("NewSlogLogger(nil) returned nil")
	}
}
