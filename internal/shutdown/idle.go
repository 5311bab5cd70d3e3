// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyFunc reports whether background work is in progress.
type BusyFunc func() bool

// IdleMonitorConfig holds configuration for the idle monitor.
type IdleMonitorConfig struct {
	Timeout      time.Duration // 0 disables the monitor
	ExcludePaths []string      // Path prefixes that don't count as activity (probes, metrics)
	Busy         BusyFunc      // Optional, e.g. the profile sync sweep
	Logger       *slog.Logger
}

// IdleMonitor closes Done once the server has served no request, and Busy has
// reported false, for Timeout. Platforms that stop idle machines (Fly.io) then
// restart on the next request.
type IdleMonitor struct {
	cfg      IdleMonitorConfig
	active   atomic.Int64
	lastSeen atomic.Int64 // unix nanos
	now      func() time.Time
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewIdleMonitor creates a new idle monitor.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &IdleMonitor{
		cfg:  cfg,
		now:  time.Now,
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	m.touch()
	return m
}

// Enabled reports whether a timeout is configured.
func (m *IdleMonitor) Enabled() bool {
	return m.cfg.Timeout > 0
}

// Start begins monitoring in the background.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		return
	}
	m.cfg.Logger.Info("idle monitoring started", "timeout", m.cfg.Timeout, "exclude_paths", m.cfg.ExcludePaths)
	go m.run(checkInterval(m.cfg.Timeout))
}

// Stop stops monitoring without signalling Done.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when the idle timeout is reached. It never closes when disabled.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Middleware tracks request activity outside the excluded paths.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.active.Add(1)
		m.touch()
		defer func() {
			m.touch()
			m.active.Add(-1)
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, prefix := range m.cfg.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.lastSeen.Store(m.now().UnixNano())
}

// idle returns how long the server has been idle, or 0 while anything is running.
func (m *IdleMonitor) idle() time.Duration {
	if m.active.Load() > 0 || (m.cfg.Busy != nil && m.cfg.Busy()) {
		m.touch()
		return 0
	}
	return m.now().Sub(time.Unix(0, m.lastSeen.Load()))
}

func (m *IdleMonitor) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if idle := m.idle(); idle >= m.cfg.Timeout {
				m.cfg.Logger.Info("idle timeout reached, signaling graceful shutdown",
					"idle_time", idle,
					"timeout", m.cfg.Timeout,
				)
				close(m.done)
				return
			}
		}
	}
}

// checkInterval polls six times per timeout, clamped to [5s, 30s].
func checkInterval(timeout time.Duration) time.Duration {
	return min(max(timeout/6, 5*time.Second), 30*time.Second)
}
