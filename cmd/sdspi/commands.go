package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/moffa90/go-sdspi/register"
)

func newInfoCmd(opts *globalOptions) *cobra.Command {
	var fields bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the negotiated session, capacity and identification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			session, _ := s.card.Session()
			csd, err := s.card.ReadCSD(ctx)
			if err != nil {
				return err
			}
			cid, err := s.card.ReadCID(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:  %s\n", session)
			fmt.Fprintf(out, "Capacity: %d bytes (%s)\n", csd.Capacity(), human(csd.Capacity()))
			fmt.Fprintf(out, "CSD:      version %s, % X\n", csd.Layout(), raw(csd.Raw()))
			fmt.Fprintf(out, "CID:      %s\n", cid)
			if fields {
				printFields(out, "CSD", csd.Fields())
				printFields(out, "CID", cid.Fields())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fields, "fields", false, "list every decoded register field")
	return cmd
}

func raw(r [register.Length]byte) []byte { return r[:] }

func printFields(w io.Writer, name string, fields []register.Field) {
	fmt.Fprintf(w, "\n%s fields:\n", name)
	for _, f := range fields {
		fmt.Fprintf(w, "  %s\n", f)
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read the card status register",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			status, err := s.card.ReadStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%04X %s\n", uint16(status), status)
			return nil
		},
	}
}

func newReadCmd(opts *globalOptions) *cobra.Command {
	var rawOut bool
	cmd := &cobra.Command{
		Use:   "read <addr> <blocks>",
		Short: "Read blocks starting at a byte address",
		Long:  "Read blocks starting at a byte address. Output is a hex dump unless --raw is given; raw output is refused on a terminal.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseSize(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			count, err := parseSize(args[1])
			if err != nil || count == 0 {
				return fmt.Errorf("invalid block count %q", args[1])
			}
			if rawOut && term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("refusing to write raw data to a terminal; redirect stdout")
			}

			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			size, err := s.card.Size(cmd.Context())
			if err != nil {
				return err
			}
			bl := uint64(s.card.BlockLength())
			if addr >= size || count > (size-addr)/bl {
				return fmt.Errorf("%d blocks at 0x%X exceed the card capacity (%s)", count, addr, human(size))
			}

			buf := make([]byte, count*bl)
			if count == 1 {
				err = s.card.ReadBlock(cmd.Context(), addr, buf)
			} else {
				err = s.card.ReadBlocks(cmd.Context(), addr, buf)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if rawOut {
				_, err = out.Write(buf)
				return err
			}
			return dumpBlocks(out, addr, buf, int(s.card.BlockLength()))
		},
	}
	cmd.Flags().BoolVar(&rawOut, "raw", false, "write the raw bytes instead of a hex dump")
	return cmd
}

func newWriteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write <addr> <file>",
		Short: "Write a file to the card starting at a byte address",
		Long:  "Write a file (or - for stdin) starting at a byte address. The last block is padded with 0xFF.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseSize(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			var data []byte
			if args[1] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.New("nothing to write")
			}

			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			bl := int(s.card.BlockLength())
			if rem := len(data) % bl; rem != 0 {
				data = append(data, bytes.Repeat([]byte{0xFF}, bl-rem)...)
			}
			if len(data) == bl {
				err = s.card.WriteBlock(cmd.Context(), addr, data)
			} else {
				err = s.card.WriteBlocks(cmd.Context(), addr, data)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d blocks at 0x%X\n", len(data)/bl, addr)
			return nil
		},
	}
}

func newEraseCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "erase <start> <end>",
		Short: "Erase the blocks from start to end inclusive (byte addresses)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseSize(args[0])
			if err != nil {
				return fmt.Errorf("invalid start: %w", err)
			}
			end, err := parseSize(args[1])
			if err != nil {
				return fmt.Errorf("invalid end: %w", err)
			}

			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.card.Erase(cmd.Context(), start, end); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "erased 0x%X..0x%X\n", start, end)
			return nil
		},
	}
}

// dumpBlocks writes a hex dump of buf, one section per block headed by its
// card address.
func dumpBlocks(w io.Writer, addr uint64, buf []byte, bl int) error {
	for off := 0; off < len(buf); off += bl {
		if _, err := fmt.Fprintf(w, "block at 0x%08X:\n%s", addr+uint64(off), hex.Dump(buf[off:off+bl])); err != nil {
			return err
		}
	}
	return nil
}
