package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/john/memchat/internal/capture"
	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/config"
	"github.com/john/memchat/internal/memory"
	"github.com/john/memchat/internal/message"
	"github.com/john/memchat/internal/publish"
	"github.com/john/memchat/internal/recorder"
	"github.com/john/memchat/internal/relay"
	"github.com/john/memchat/internal/render"
	"github.com/john/memchat/internal/status"
	"github.com/john/memchat/internal/store"
	"github.com/john/memchat/internal/uploader"
)

const (
	sinkBuffer      = 256
	shutdownTimeout = 30 * time.Second
)

var runFlags struct {
	quiet bool
	tab   string
	urls  bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture chat and feed the configured sinks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		var printer *render.Printer
		if !runFlags.quiet {
			tab, ok := chat.FindTab(chat.DefaultTabs(), runFlags.tab)
			if !ok {
				return fmt.Errorf("unknown tab %q", runFlags.tab)
			}
			printer = render.New(cmd.OutOrStdout(), tab, runFlags.urls)
		}
		return run(cfg, log, printer)
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runFlags.quiet, "quiet", "q", false, "do not print messages")
	runCmd.Flags().StringVar(&runFlags.tab, "tab", "All", "chat tab to print")
	runCmd.Flags().BoolVar(&runFlags.urls, "urls", false, "print a lookup URL after each link")
	rootCmd.AddCommand(runCmd)
}

func run(cfg *config.Config, log *slog.Logger, printer *render.Printer) error {
	session := uuid.New()
	log = log.With("session", session.String())
	log.Info("memchat starting", "process", cfg.Process.Name, "pid", cfg.Process.PID)

	// Setup context and signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var wg sync.WaitGroup
	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("component stopped", "component", name, "err", err)
			}
		}()
	}

	sinks, err := openSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	if sinks.store != nil {
		defer sinks.store.Close()
	}

	var outputs []output

	if sinks.recorder != nil {
		var fileChan chan string
		if sinks.uploader != nil {
			if err := sinks.uploader.ScanAndUploadExisting(ctx, cfg.Recorder.OutputDir); err != nil {
				log.Warn("failed to scan for existing files", "err", err)
			}
			fileChan = make(chan string, 100)
			start("uploader", func() error { return sinks.uploader.Start(ctx, fileChan) })
		}

		records := make(chan message.Record, cfg.Recorder.BufferSize)
		outputs = append(outputs, output{name: "recorder", ch: records})
		start("recorder", func() error { return sinks.recorder.Start(ctx, records, fileChan) })
	}

	if sinks.publisher != nil {
		records := make(chan message.Record, sinkBuffer)
		outputs = append(outputs, output{name: "publish", ch: records})
		start("publish", func() error { return sinks.publisher.Start(ctx, records) })
	}

	if sinks.store != nil {
		records := make(chan message.Record, sinkBuffer)
		outputs = append(outputs, output{name: "store", ch: records})
		start("store", func() error { return sinks.store.Start(ctx, records) })
	}

	if sinks.relay != nil {
		records := make(chan message.Record, sinkBuffer)
		outputs = append(outputs, output{name: "relay", ch: records, lossy: true})
		start("relay", func() error { return sinks.relay.Start(ctx, records) })
	}

	conn := capture.New(memory.New(log), cfg.Layout, capture.Options{
		PID:              cfg.Process.PID,
		ProcessName:      cfg.Process.Name,
		PollInterval:     cfg.Capture.PollInterval,
		PlayerInterval:   cfg.Capture.PlayerInterval,
		ReattachInterval: cfg.Capture.ReattachInterval,
	}, log)

	messageChan := make(chan chat.Message, sinkBuffer)
	start("capture", func() error { return conn.Start(ctx, messageChan) })
	start("fanout", func() error {
		fanOut(ctx, session, messageChan, outputs, printer, log)
		return nil
	})

	var statusServer *status.Server
	if cfg.Status.Addr != "" {
		statusServer = status.New(cfg.Status.Addr, conn, log)
		start("status", statusServer.Start)
	}

	log.Info("all components started", "sinks", len(outputs))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-sigChan:
		log.Info("shutdown signal received, initiating graceful shutdown")
	case <-done:
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if statusServer != nil {
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("error shutting down status server", "err", err)
		}
	}
	cancel()

	select {
	case <-done:
		log.Info("all components stopped gracefully")
	case <-shutdownCtx.Done():
		log.Warn("shutdown timeout exceeded")
	}
	return nil
}

// sinkSet holds the configured sinks, connected but not yet running.
type sinkSet struct {
	uploader  *uploader.Uploader
	recorder  *recorder.Recorder
	publisher *publish.Publisher
	store     *store.Store
	relay     *relay.Relay
}

// close releases connections of sinks that were opened but never started.
func (s *sinkSet) close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// openSinks builds and connects every configured sink without starting any
// of them, so a failure leaves nothing running.
func openSinks(ctx context.Context, cfg *config.Config, log *slog.Logger) (s *sinkSet, err error) {
	s = &sinkSet{}
	defer func() {
		if err != nil {
			s.close()
			s = nil
		}
	}()

	if cfg.Twitch.Channel != "" {
		tab, ok := chat.FindTab(chat.DefaultTabs(), cfg.Twitch.Tab)
		if !ok {
			return s, fmt.Errorf("twitch.tab %q is not a known chat tab", cfg.Twitch.Tab)
		}
		s.relay = relay.New(cfg.Twitch.Username, cfg.Twitch.OAuth, cfg.Twitch.Channel, tab,
			cfg.Twitch.MaxLine, cfg.Twitch.MinInterval, log)
	}

	if cfg.Recorder.Enabled {
		if cfg.S3.Bucket != "" {
			s.uploader, err = uploader.New(ctx, uploader.Options{
				Bucket:               cfg.S3.Bucket,
				Region:               cfg.S3.Region,
				Endpoint:             cfg.S3.Endpoint,
				AccessKeyID:          cfg.S3.AccessKeyID,
				SecretAccessKey:      cfg.S3.SecretAccessKey,
				RoleARN:              cfg.S3.RoleARN,
				WebIdentityTokenFile: cfg.S3.WebIdentityTokenFile,
				DeleteAfter:          cfg.Uploader.DeleteAfterUpload,
				MaxRetries:           cfg.Uploader.MaxRetries,
			}, log)
			if err != nil {
				return s, fmt.Errorf("create uploader: %w", err)
			}
		}
		s.recorder = recorder.New(cfg.Recorder.OutputDir, cfg.Recorder.BufferSize,
			cfg.Recorder.RotateMinutes, cfg.Recorder.RotateMegabytes, log)
	}

	if cfg.NATS.URL != "" {
		s.publisher, err = publish.New(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return s, fmt.Errorf("connect to nats: %w", err)
		}
	}

	if cfg.Database.URL != "" {
		s.store, err = store.New(ctx, cfg.Database.URL, log)
		if err != nil {
			return s, fmt.Errorf("connect to database: %w", err)
		}
		if err = s.store.EnsureSchema(ctx); err != nil {
			return s, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return s, nil
}

// output is one record sink. Lossy sinks drop records instead of stalling
// the capture loop when they fall behind.
type output struct {
	name  string
	ch    chan<- message.Record
	lossy bool
}

// fanOut converts each message to a record and hands it to every output in
// order, printing it first when printer is set. Outputs are closed on
// return.
func fanOut(ctx context.Context, session uuid.UUID, in <-chan chat.Message, outputs []output, printer *render.Printer, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	defer func() {
		for _, o := range outputs {
			close(o.ch)
		}
	}()

	for {
		var m chat.Message
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			m = msg
		}

		if printer != nil {
			if err := printer.Print(m); err != nil {
				log.Warn("print message", "err", err)
			}
		}

		rec := message.FromChat(session, m, time.Now())
		for _, o := range outputs {
			if o.lossy {
				select {
				case o.ch <- rec:
				default:
					log.Debug("sink is behind, dropping record", "sink", o.name, "id", rec.ID)
				}
				continue
			}
			select {
			case o.ch <- rec:
			case <-ctx.Done():
				return
			}
		}
	}
}
