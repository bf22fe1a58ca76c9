// Package connection watches chat-client readiness and runs the bounded
// reconnection protocol when the session drops mid-campaign.
package connection

import (
	"context"
	"errors"
	"time"

	"zapfacil/internal/driver"
	"zapfacil/internal/eventbus"
	"zapfacil/pkg/logx"
)

var ErrReconnectFailed = errors.New("could not re-establish connection")

type Config struct {
	// Attempts bounds the reconnection loop; total worst-case blocking
	// time is Attempts * Wait.
	Attempts int
	Wait     time.Duration
	// ProbeTimeout bounds each readiness query.
	ProbeTimeout time.Duration
}

type Monitor struct {
	cfg Config
	drv driver.Driver
	bus eventbus.Bus
	log logx.Logger
}

func NewMonitor(cfg Config, drv driver.Driver, bus eventbus.Bus, log logx.Logger) *Monitor {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 20
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	return &Monitor{cfg: cfg, drv: drv, bus: bus, log: log}
}

// IsReady is a pure query: the main panel must be present and no QR scan
// prompt may be showing.
func (m *Monitor) IsReady(ctx context.Context) bool {
	probe, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return m.drv.IsReady(probe) && !m.drv.HasQRPrompt(probe)
}

// Reconnect waits and re-probes until the session is back or attempts are
// exhausted. It returns early when ctx is cancelled (cooperative stop).
func (m *Monitor) Reconnect(ctx context.Context) error {
	m.log.Warn("connection to chat client lost, attempting to reconnect")
	m.publish("reconnecting", 0)

	for i := 0; i < m.cfg.Attempts; i++ {
		m.log.Info("reconnect attempt",
			logx.Int("attempt", i+1), logx.Int("of", m.cfg.Attempts),
			logx.Duration("wait", m.cfg.Wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Wait):
		}
		if m.IsReady(ctx) {
			m.log.Info("connection re-established")
			m.publish("connected", i+1)
			return nil
		}
	}

	m.log.Error("reconnection failed", logx.Int("attempts", m.cfg.Attempts))
	m.publish("disconnected", m.cfg.Attempts)
	return ErrReconnectFailed
}

func (m *Monitor) publish(state string, attempt int) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type: eventbus.TypeConnection,
		Data: map[string]any{"state": state, "attempt": attempt},
	})
}
