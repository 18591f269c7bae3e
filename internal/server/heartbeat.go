package server

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const evictHeartbeat = "heartbeat timeout"

// HeartbeatMonitor probes idle connections and evicts stale ones.
type HeartbeatMonitor struct {
	reg      *Registry
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewHeartbeatMonitor creates a monitor that ticks every interval and evicts
// connections idle for longer than twice the interval.
func NewHeartbeatMonitor(reg *Registry, interval time.Duration, logger *zap.Logger) *HeartbeatMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatMonitor{
		reg:      reg,
		interval: interval,
		grace:    2 * interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (h *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probed, evicted := h.Sweep()
			if probed > 0 || evicted > 0 {
				h.logger.Debug("heartbeat sweep", zap.Int("probed", probed), zap.Int("evicted", evicted))
			}
		}
	}
}

// Sweep runs one heartbeat pass.
func (h *HeartbeatMonitor) Sweep() (probed, evicted int) {
	now := h.now()
	var stale []*Connection

	for _, c := range h.reg.Snapshot() {
		if !c.isLive() {
			continue
		}
		idle := now.Sub(c.LastActivity())
		switch {
		case idle > h.grace:
			stale = append(stale, c)
		case idle > h.interval:
			if c.requestProbe() {
				probed++
			}
		}
	}

	for _, c := range stale {
		h.logger.Info("closing stale connection",
			zap.String("conn_id", c.id),
			zap.Time("last_activity", c.LastActivity()))
	}
	h.reg.evict(stale, evictHeartbeat)
	h.reg.metrics.HeartbeatProbes.Add(float64(probed))
	return probed, len(stale)
}
