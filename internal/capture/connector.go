// Package capture drives the poll loop against a live game client.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/john/memchat/internal/chat"
	"github.com/john/memchat/internal/layout"
	"github.com/john/memchat/internal/memory"
	"github.com/john/memchat/internal/player"
	"github.com/john/memchat/internal/poller"
)

// Options selects the process and the loop timing. PID wins over
// ProcessName. A zero PlayerInterval disables player reads.
type Options struct {
	PID              uint32
	ProcessName      string
	PollInterval     time.Duration
	PlayerInterval   time.Duration
	ReattachInterval time.Duration
}

// Status is a snapshot of the connector for the status endpoint.
type Status struct {
	Attached    bool         `json:"attached"`
	PID         uint32       `json:"pid,omitempty"`
	Process     string       `json:"process,omitempty"`
	AttachedAt  *time.Time   `json:"attached_at,omitempty"`
	Polls       uint64       `json:"polls"`
	ShortReads  uint64       `json:"short_reads"`
	Messages    uint64       `json:"messages"`
	Reattaches  uint64       `json:"reattaches"`
	LastError   string       `json:"last_error,omitempty"`
	LastErrorAt *time.Time   `json:"last_error_at,omitempty"`
	Player      *player.Info `json:"player,omitempty"`
}

// Connector owns a reader and its poller. Only Status may be called from
// other goroutines.
type Connector struct {
	reader memory.Reader
	poller *poller.Poller
	layout layout.Layout
	opts   Options
	log    *slog.Logger

	findProcesses func(name string) ([]memory.Process, error)

	mu     sync.Mutex
	status Status
}

func New(r memory.Reader, l layout.Layout, opts Options, log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	return &Connector{
		reader:        r,
		poller:        poller.New(r, l, log),
		layout:        l,
		opts:          opts,
		log:           log.With("component", "capture"),
		findProcesses: memory.FindProcesses,
	}
}

func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	if s.Player != nil {
		p := *s.Player
		s.Player = &p
	}
	return s
}

func (c *Connector) update(fn func(*Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.status)
}

// Start polls until ctx is done and sends new messages on out in order.
// A failed poll detaches, resets the poller and retries after
// ReattachInterval. The reader is detached on return.
func (c *Connector) Start(ctx context.Context, out chan<- chat.Message) error {
	defer c.detach()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	var nextAttach, nextPlayer time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := time.Now()
		if !c.reader.Attached() {
			if now.Before(nextAttach) {
				continue
			}
			if err := c.attach(); err != nil {
				c.fail(err)
				nextAttach = now.Add(c.opts.ReattachInterval)
				continue
			}
			nextPlayer = time.Time{}
		}

		msgs, err := c.poller.Poll()
		if err != nil {
			c.fail(err)
			c.detach()
			c.poller.Reset()
			c.update(func(s *Status) { s.Reattaches++ })
			nextAttach = now.Add(c.opts.ReattachInterval)
			continue
		}

		for _, m := range msgs {
			select {
			case out <- m:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		stats := c.poller.Stats()
		c.update(func(s *Status) {
			s.Polls = stats.Polls
			s.ShortReads = stats.ShortReads
			s.Messages += uint64(len(msgs))
		})

		if c.opts.PlayerInterval > 0 && !now.Before(nextPlayer) {
			c.refreshPlayer()
			nextPlayer = now.Add(c.opts.PlayerInterval)
		}
	}
}

func (c *Connector) resolve() (memory.Process, error) {
	if c.opts.PID != 0 {
		return memory.Process{PID: c.opts.PID, Name: c.opts.ProcessName}, nil
	}
	procs, err := c.findProcesses(c.opts.ProcessName)
	if err != nil {
		return memory.Process{}, fmt.Errorf("find %s: %w", c.opts.ProcessName, err)
	}
	if len(procs) == 0 {
		return memory.Process{}, fmt.Errorf("find %s: %w", c.opts.ProcessName, memory.ErrProcessNotFound)
	}
	if len(procs) > 1 {
		c.log.Warn("several matching processes, using the first", "name", c.opts.ProcessName, "count", len(procs))
	}
	return procs[0], nil
}

func (c *Connector) attach() error {
	proc, err := c.resolve()
	if err != nil {
		return err
	}
	if err := c.reader.Attach(proc.PID); err != nil {
		return fmt.Errorf("attach to %d: %w", proc.PID, err)
	}

	c.log.Info("attached", "pid", proc.PID, "process", proc.Name)
	now := time.Now()
	c.update(func(s *Status) {
		s.Attached = true
		s.PID = proc.PID
		s.Process = proc.Name
		s.AttachedAt = &now
	})
	return nil
}

func (c *Connector) detach() {
	if !c.reader.Attached() {
		return
	}
	if err := c.reader.Detach(); err != nil {
		c.log.Warn("detach", "err", err)
	}
	c.log.Info("detached")
	c.update(func(s *Status) {
		s.Attached = false
		s.AttachedAt = nil
		s.Player = nil
	})
}

func (c *Connector) fail(err error) {
	level := slog.LevelWarn
	if errors.Is(err, memory.ErrPermission) {
		level = slog.LevelError
	}
	c.log.Log(context.Background(), level, "capture error", "err", err)
	now := time.Now()
	c.update(func(s *Status) {
		s.LastError = err.Error()
		s.LastErrorAt = &now
	})
}

func (c *Connector) refreshPlayer() {
	info, ok := player.ReadInfo(c.reader, c.layout)
	c.update(func(s *Status) {
		if !ok {
			s.Player = nil
			return
		}
		s.Player = &info
	})
}
