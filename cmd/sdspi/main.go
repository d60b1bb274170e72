// sdspi talks to an SD or MMC card over SPI, either on real hardware
// through periph.io or on a simulated card backed by an image file.
//
// Examples:
//
//	sdspi --cs GPIO8 info
//	sdspi --image card.img --image-size 64m write 0 boot.bin
//	sdspi --image card.img read 0x200 4
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	spiPort     string
	csPin       string
	cdPin       string
	wpPin       string
	image       string
	imageSize   string
	kind        string
	logLevel    string
	logJSON     bool
	busyTimeout time.Duration
	progress    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "sdspi",
		Short:         "SD/MMC card access over SPI",
		Long:          "Initialize, inspect, read, write and erase SD and MMC cards in SPI mode, on hardware or a simulated card",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.spiPort, "spi", "", "SPI port name (e.g. /dev/spidev0.0); empty selects the first port")
	pf.StringVar(&opts.csPin, "cs", "", "chip select GPIO name (e.g. GPIO8)")
	pf.StringVar(&opts.cdPin, "cd", "", "card detect GPIO name, active low (optional)")
	pf.StringVar(&opts.wpPin, "wp", "", "write protect GPIO name, active high (optional)")
	pf.StringVar(&opts.image, "image", "", "use a simulated card backed by this image file")
	pf.StringVar(&opts.imageSize, "image-size", "", "create the image with this size if missing (e.g. 64m, 2g)")
	pf.StringVar(&opts.kind, "kind", "", "simulated card kind: sdv1|sdv2|sdhc|mmc (default sdhc)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug|info|warn|error")
	pf.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")
	pf.DurationVar(&opts.busyTimeout, "busy-timeout", 5*time.Second, "bound on each busy wait (0 waits forever)")
	pf.BoolVar(&opts.progress, "progress", false, "report multi-block progress on stderr")

	root.AddCommand(
		newInfoCmd(opts),
		newStatusCmd(opts),
		newReadCmd(opts),
		newWriteCmd(opts),
		newEraseCmd(opts),
	)
	return root
}

// newLogger builds the slog logger selected by the log flags.
func newLogger(opts *globalOptions) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(opts.logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", opts.logLevel)
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hopts)), nil
}
