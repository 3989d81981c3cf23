// Package cmd holds the memchat command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/john/memchat/internal/config"
	"github.com/john/memchat/internal/logging"
	"github.com/john/memchat/internal/memory"
)

var (
	configFlag string
	pidFlag    uint32
)

var rootCmd = &cobra.Command{
	Use:   "memchat",
	Short: "Read the game client's chat from process memory",
	Long: "memchat follows the chat buffer of a running 3.3.5a client and hands new\n" +
		"messages to a recorder, S3 archive, NATS, PostgreSQL, a Twitch channel and\n" +
		"the terminal. It only ever reads the client's memory.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default $MEMCHAT_CONFIG or config.yaml)")
	rootCmd.PersistentFlags().Uint32Var(&pidFlag, "pid", 0, "attach to this process id instead of looking up process.name")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and installs the default logger.
func setup() (*config.Config, *slog.Logger, error) {
	path, explicit := config.Path(configFlag)
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if pidFlag != 0 {
		cfg.Process.PID = pidFlag
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(log)
	return cfg, log, nil
}

// attach opens the configured client for the one-shot commands.
func attach(cfg *config.Config, log *slog.Logger) (memory.Reader, error) {
	pid := cfg.Process.PID
	if pid == 0 {
		procs, err := memory.FindProcesses(cfg.Process.Name)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", cfg.Process.Name, err)
		}
		if len(procs) == 0 {
			return nil, fmt.Errorf("find %s: %w", cfg.Process.Name, memory.ErrProcessNotFound)
		}
		pid = procs[0].PID
	}

	r := memory.New(log)
	if err := r.Attach(pid); err != nil {
		return nil, fmt.Errorf("attach to %d: %w", pid, err)
	}
	log.Debug("attached", "pid", pid)
	return r, nil
}
