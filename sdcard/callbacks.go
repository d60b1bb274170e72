package sdcard

import (
	"context"
	"log/slog"
	"time"
)

// Progress describes a multi-block transfer in flight.
// Passed to ProgressCallback once per block.
type Progress struct {
	// Op is the operation: "read", "write" or "erase"
	Op string

	// Block is the number of blocks completed so far
	Block int

	// TotalBlocks is the number of blocks in the transfer
	TotalBlocks int

	// Bytes is the number of payload bytes transferred so far
	Bytes int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time since the transfer started
	ElapsedTime time.Duration
}

// ProgressCallback is called during multi-block transfers.
// Implementations should return quickly; the card is selected while it runs.
//
// Example:
//
//	card := sdcard.New(bus,
//	    sdcard.WithProgressCallback(func(p sdcard.Progress) {
//	        fmt.Printf("%s %d/%d\n", p.Op, p.Block, p.TotalBlocks)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the card.
// This allows integration with any logging framework.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// NewSlogLogger adapts a *slog.Logger to Logger. A nil logger uses slog.Default().
//
// Example:
//
//	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
//	card := sdcard.New(bus, sdcard.WithLogger(sdcard.NewSlogLogger(slog.New(h))))
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l.With("component", "sdcard")}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, kv ...interface{}) {
	s.l.Log(context.Background(), slog.LevelDebug, msg, kv...)
}

func (s *slogLogger) Info(msg string, kv ...interface{}) {
	s.l.Log(context.Background(), slog.LevelInfo, msg, kv...)
}

func (s *slogLogger) Error(msg string, kv ...interface{}) {
	s.l.Log(context.Background(), slog.LevelError, msg, kv...)
}
