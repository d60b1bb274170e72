package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/moffa90/go-sdspi/sdcard"
	"github.com/moffa90/go-sdspi/simcard"
	"github.com/moffa90/go-sdspi/spibus"
)

const defaultSimSize = 64 << 20

// session is an initialized card plus whatever must be closed afterwards.
type session struct {
	card    *sdcard.Card
	logger  *slog.Logger
	closers []func() error
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openSession opens the bus selected by the flags and runs Init.
func openSession(ctx context.Context, opts *globalOptions) (*session, error) {
	logger, err := newLogger(opts)
	if err != nil {
		return nil, err
	}
	s := &session{logger: logger}

	var bus sdcard.Bus
	if opts.image != "" || opts.kind != "" {
		bus, err = s.openSimulated(opts)
	} else {
		bus, err = s.openHardware(opts)
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	cardOpts := []sdcard.Option{
		sdcard.WithLogger(sdcard.NewSlogLogger(logger)),
		sdcard.WithBusyTimeout(opts.busyTimeout),
	}
	if opts.progress {
		cardOpts = append(cardOpts, sdcard.WithProgressCallback(func(p sdcard.Progress) {
			fmt.Fprintf(os.Stderr, "\r%s %d/%d blocks (%.0f%%)", p.Op, p.Block, p.TotalBlocks, p.Percentage)
			if p.Block == p.TotalBlocks {
				fmt.Fprintln(os.Stderr)
			}
		}))
	}

	s.card = sdcard.New(bus, cardOpts...)
	if _, err := s.card.Init(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("initialize card: %w", err)
	}
	return s, nil
}

func (s *session) openSimulated(opts *globalOptions) (sdcard.Bus, error) {
	kind := simcard.KindSDHC
	if opts.kind != "" {
		k, ok := simcard.ParseKind(opts.kind)
		if !ok {
			return nil, fmt.Errorf("unknown --kind %q", opts.kind)
		}
		kind = k
	}

	var store simcard.Store
	switch {
	case opts.image == "":
		size := int64(defaultSimSize)
		if opts.imageSize != "" {
			n, err := parseSize(opts.imageSize)
			if err != nil {
				return nil, fmt.Errorf("invalid --image-size: %w", err)
			}
			size = int64(n)
		}
		store = simcard.NewMemStore(size)
	default:
		img, err := simcard.OpenImage(opts.image)
		if errors.Is(err, fs.ErrNotExist) && opts.imageSize != "" {
			var n uint64
			if n, err = parseSize(opts.imageSize); err != nil {
				return nil, fmt.Errorf("invalid --image-size: %w", err)
			}
			img, err = simcard.CreateImage(opts.image, int64(n))
		}
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, img.Close)
		store = img
	}

	sim := simcard.New(kind, store, simcard.WithLogger(s.logger))
	s.logger.Info("using simulated card", "card", sim)
	return sim, nil
}

func (s *session) openHardware(opts *globalOptions) (sdcard.Bus, error) {
	if opts.csPin == "" {
		return nil, errors.New("--cs is required without --image or --kind")
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host initialization failed: %w", err)
	}

	cs := gpioreg.ByName(opts.csPin)
	if cs == nil {
		return nil, fmt.Errorf("chip select pin %q not found", opts.csPin)
	}
	busOpts := []spibus.Option{spibus.WithLogger(s.logger)}
	if opts.cdPin != "" {
		p := gpioreg.ByName(opts.cdPin)
		if p == nil {
			return nil, fmt.Errorf("card detect pin %q not found", opts.cdPin)
		}
		busOpts = append(busOpts, spibus.WithCardDetect(p, gpio.Low))
	}
	if opts.wpPin != "" {
		p := gpioreg.ByName(opts.wpPin)
		if p == nil {
			return nil, fmt.Errorf("write protect pin %q not found", opts.wpPin)
		}
		busOpts = append(busOpts, spibus.WithWriteProtect(p, gpio.High))
	}

	bus, err := spibus.Open(spibus.PortOpener(opts.spiPort), cs, busOpts...)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, bus.Close)
	s.logger.Info("using spi bus", "bus", bus.String())
	return bus, nil
}
