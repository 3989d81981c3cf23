package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/layout"
	"github.com/john/memchat/internal/memory"
	"github.com/john/memchat/internal/message"
	"github.com/john/memchat/internal/player"
	"github.com/john/memchat/internal/poller"
	"github.com/john/memchat/internal/render"
)

var scanLimit int

var scanCmd = &cobra.Command{
	Use:   "scan <text>",
	Short: "Search the client's memory for text to locate the chat buffer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		r, err := attach(cfg, log)
		if err != nil {
			return err
		}
		defer r.Detach()

		started := time.Now()
		addrs, err := r.ScanForBytes([]byte(args[0]))
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		log.Info("scan finished", "matches", len(addrs), "took", time.Since(started).Round(time.Millisecond))
		printScan(cmd.OutOrStdout(), addrs, cfg.Layout, scanLimit)
		return nil
	},
}

func printScan(w io.Writer, addrs []uint64, l layout.Layout, limit int) {
	fmt.Fprintf(w, "%d matches", len(addrs))
	if len(addrs) >= memory.MaxScanResults {
		fmt.Fprint(w, " (capped)")
	}
	fmt.Fprintln(w)
	for i, addr := range addrs {
		if i == limit {
			fmt.Fprintf(w, "  ... %d more\n", len(addrs)-limit)
			break
		}
		fmt.Fprintf(w, "  0x%08X\n", addr)
	}

	a := poller.AnalyzeMatches(addrs, l)
	if len(a.Pairs) > 0 {
		fmt.Fprintf(w, "\nstride-aligned pairs (stride 0x%X, first %d matches):\n", l.Stride, a.Checked)
		for _, p := range a.Pairs {
			fmt.Fprintf(w, "  0x%08X -> 0x%08X  %d slots\n", p.From, p.To, p.Slots)
		}
	}
	if len(a.Origins) > 0 {
		fmt.Fprintln(w, "\nimplied slot origins:")
		for _, o := range a.Origins {
			fmt.Fprintf(w, "  0x%08X  plain 0x%08X  formatted 0x%08X\n", o.Match, o.FromPlain, o.FromFormatted)
		}
	}
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print every populated slot of the chat buffer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		r, err := attach(cfg, log)
		if err != nil {
			return err
		}
		defer r.Detach()

		w := cmd.OutOrStdout()
		for _, c := range poller.ReadCounts(r, cfg.Layout) {
			if c.Err != nil {
				fmt.Fprintf(w, "count 0x%08X: %v\n", c.Addr, c.Err)
				continue
			}
			fmt.Fprintf(w, "count 0x%08X: %d\n", c.Addr, c.Value)
		}

		slots, err := poller.Inspect(r, cfg.Layout)
		if err != nil {
			return err
		}
		for _, s := range slots {
			fmt.Fprintf(w, "[%2d] guid=0x%016X cat=%s chan=%d seq=%d ts=%d\n     formatted: %q\n     text:      %q\n",
				s.Index, s.GUID, chat.CategoryFromCode(s.Category), s.Channel, s.Sequence, s.Timestamp, s.Formatted, s.Text)
		}
		fmt.Fprintf(w, "%d of %d slots populated\n", len(slots), cfg.Layout.Slots)
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Save the raw chat buffer for offline replay",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		r, err := attach(cfg, log)
		if err != nil {
			return err
		}
		defer r.Detach()

		buf, err := r.Read(cfg.Layout.BufferBase, cfg.Layout.BufferSize())
		if err != nil {
			return fmt.Errorf("read chat buffer: %w", err)
		}
		if len(buf) < cfg.Layout.BufferSize() {
			log.Warn("short read, dump is incomplete", "got", len(buf), "want", cfg.Layout.BufferSize())
		}
		if err := os.WriteFile(args[0], buf, 0o644); err != nil {
			return fmt.Errorf("write dump: %w", err)
		}
		log.Info("dump written", "file", args[0], "bytes", len(buf))
		return nil
	},
}

var replayFlags struct {
	json bool
	tab  string
	urls bool
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a buffer saved by dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		tab, ok := chat.FindTab(chat.DefaultTabs(), replayFlags.tab)
		if !ok {
			return fmt.Errorf("unknown tab %q", replayFlags.tab)
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read dump: %w", err)
		}
		return replay(cmd.OutOrStdout(), data, cfg.Layout, tab, replayFlags.json, replayFlags.urls, log)
	},
}

// replay decodes a dumped buffer through the same poller a live capture
// uses and writes the messages as colored lines or JSON records.
func replay(w io.Writer, data []byte, l layout.Layout, tab chat.Tab, asJSON, urls bool, log *slog.Logger) error {
	if len(data) < l.BufferSize() {
		return fmt.Errorf("dump holds %d bytes, layout needs %d", len(data), l.BufferSize())
	}

	r := memory.NewBufferReader(l.BufferBase, data)
	if err := r.Attach(0); err != nil {
		return err
	}
	defer r.Detach()
	msgs, err := poller.New(r, l, log).Poll()
	if err != nil {
		return err
	}

	if asJSON {
		session := uuid.New()
		observed := time.Now()
		enc := json.NewEncoder(w)
		for _, m := range msgs {
			if !tab.Matches(m.Category) {
				continue
			}
			if err := enc.Encode(message.FromChat(session, m, observed)); err != nil {
				return err
			}
		}
		return nil
	}

	p := render.New(w, tab, urls)
	for _, m := range msgs {
		if err := p.Print(m); err != nil {
			return err
		}
	}
	return nil
}

var playerCmd = &cobra.Command{
	Use:   "player",
	Short: "Print the logged-in character",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		r, err := attach(cfg, log)
		if err != nil {
			return err
		}
		defer r.Detach()

		info, ok := player.ReadInfo(r, cfg.Layout)
		if !ok {
			return errors.New("no character is logged in")
		}
		fmt.Fprintln(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanLimit, "limit", 50, "matches to list")
	replayCmd.Flags().BoolVar(&replayFlags.json, "json", false, "write JSON records instead of colored lines")
	replayCmd.Flags().StringVar(&replayFlags.tab, "tab", "All", "chat tab to show")
	replayCmd.Flags().BoolVar(&replayFlags.urls, "urls", false, "print a lookup URL after each link")

	rootCmd.AddCommand(scanCmd, inspectCmd, dumpCmd, replayCmd, playerCmd)
}
