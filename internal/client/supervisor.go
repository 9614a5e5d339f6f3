package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/pairline/internal/config"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/lib/logger/sl"
)

// SupervisorConfig bounds the recovery behavior: heartbeats while a call
// is live, and at most MaxAttempts ICE restarts with capped-exponential
// delay before the call is declared failed.
type SupervisorConfig struct {
	HeartbeatInterval time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		HeartbeatInterval: 15 * time.Second,
		MaxAttempts:       3,
		BaseDelay:         2 * time.Second,
		MaxDelay:          10 * time.Second,
	}
}

// SupervisorConfigFrom maps the shared heartbeat and reconnect sections
// onto the supervisor settings.
func SupervisorConfigFrom(hb config.HeartbeatConfig, rc config.ReconnectConfig) SupervisorConfig {
	return SupervisorConfig{
		HeartbeatInterval: hb.Interval,
		MaxAttempts:       rc.MaxAttempts,
		BaseDelay:         rc.BaseDelay,
		MaxDelay:          rc.MaxDelay,
	}
}

// Supervisor centralizes every retry/reconnect decision for one call.
// Call sites report connect/disconnect transitions; nothing else in the
// client owns a timer.
type Supervisor struct {
	log     *slog.Logger
	cfg     SupervisorConfig
	signals Sender
	restart func() error
	onFail  func()

	mu       sync.Mutex
	active   bool
	attempts int
	stopped  bool
}

func NewSupervisor(cfg SupervisorConfig, signals Sender, restart func() error, onFail func(), log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &Supervisor{
		log:     log,
		cfg:     cfg,
		signals: signals,
		restart: restart,
		onFail:  onFail,
	}
}

// Run emits heartbeats on the fixed interval while the call is active.
// Blocks until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			active := s.active && !s.stopped
			s.mu.Unlock()
			if !active {
				continue
			}
			if err := s.signals.Send(&domain.SignalMessage{Type: domain.EventHeartbeat}); err != nil {
				s.log.Debug("heartbeat send failed", sl.Err(err))
			}
		}
	}
}

// NotifyConnected resets the retry budget; heartbeats start flowing.
func (s *Supervisor) NotifyConnected() {
	s.mu.Lock()
	s.active = true
	s.attempts = 0
	s.mu.Unlock()
}

// NotifyDisconnected consumes one reconnection attempt: wait the backoff
// delay, then re-drive negotiation via the restart hook. Past the budget
// it is a terminal failure, never a silent retry loop.
func (s *Supervisor) NotifyDisconnected() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if attempt > s.cfg.MaxAttempts {
		s.log.Warn("reconnect budget exhausted", slog.Int("attempts", attempt-1))
		s.Stop()
		if s.onFail != nil {
			s.onFail()
		}
		return
	}

	delay := s.Delay(attempt)
	s.log.Info("reconnecting",
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", s.cfg.MaxAttempts),
		slog.Duration("delay", delay),
	)
	time.Sleep(delay)

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	if err := s.restart(); err != nil {
		s.log.Error("reconnect attempt failed", sl.Err(err))
		s.Stop()
		if s.onFail != nil {
			s.onFail()
		}
	}
}

// Delay is the capped-exponential backoff for the given attempt (1-based).
func (s *Supervisor) Delay(attempt int) time.Duration {
	delay := s.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	if delay > s.cfg.MaxDelay {
		return s.cfg.MaxDelay
	}
	return delay
}

// Attempts reports consumed reconnection attempts since the last
// successful connect.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Stop halts heartbeats and forbids further restarts. Used on teardown
// and after a terminal failure.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.active = false
	s.stopped = true
	s.mu.Unlock()
}
