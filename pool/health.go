package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health is a snapshot of the pool's probe state.
type Health struct {
	Healthy           bool
	ReconnectAttempts int
	LastProbe         time.Time
}

// healthState tracks probe outcomes. It has its own lock so probes never
// contend with the lifecycle lock.
type healthState struct {
	mu           sync.Mutex
	healthy      bool
	attempts     int
	lastProbe    time.Time
	reconnecting bool
}

func (h *healthState) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = true
	h.attempts = 0
	h.reconnecting = false
	h.lastProbe = time.Now()
}

func (h *healthState) isHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.healthy
}

func (h *healthState) snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{
		Healthy:           h.healthy,
		ReconnectAttempts: h.attempts,
		LastProbe:         h.lastProbe,
	}
}

// ---

// IsHealthy reports whether the last probe succeeded while the pool is
// open.
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open && m.health.isHealthy()
}

// Health returns the current probe state.
func (m *Manager) Health() Health {
	return m.health.snapshot()
}

// probeLoop runs the periodic prober until the manager shuts down.
func (m *Manager) probeLoop(ctx context.Context) {
	defer m.tasks.Done()

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.HealthCheck(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// HealthCheck runs one probe against the backing store. A success while
// the pool was unhealthy restores it and resets the attempt counter; a
// failure while it was healthy flips it to unhealthy and starts a bounded
// background reconnection sequence.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	m.mu.RLock()
	probe := m.probe
	open := m.open
	m.mu.RUnlock()
	if !open || probe == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := probe(probeCtx)
	cancel()

	h := &m.health
	h.mu.Lock()
	h.lastProbe = time.Now()

	if err == nil {
		wasUnhealthy := !h.healthy
		h.healthy = true
		h.attempts = 0
		h.mu.Unlock()

		if wasUnhealthy {
			m.log.Info("backing store is healthy again")
		}
		return true
	}

	wasHealthy := h.healthy
	h.healthy = false
	startReconnect := wasHealthy && !h.reconnecting
	if startReconnect {
		h.reconnecting = true
	}
	h.mu.Unlock()

	m.log.Warn("health probe failed", zap.Error(err))

	if startReconnect {
		// Spawn under the lifecycle lock: Shutdown flips open before
		// draining tasks, so a reconnect goroutine added here is always
		// seen by its Wait.
		m.mu.RLock()
		if m.open {
			m.tasks.Add(1)
			go m.reconnectLoop(m.tasksCtx)
		} else {
			h.mu.Lock()
			h.reconnecting = false
			h.mu.Unlock()
		}
		m.mu.RUnlock()
	}
	return false
}

// reconnectLoop retries the probe up to the configured attempt count with
// a delay that grows linearly with the attempt number. It stops early on
// success or manager shutdown; when every attempt fails the pool stays
// unhealthy until the periodic prober sees a change.
func (m *Manager) reconnectLoop(ctx context.Context) {
	defer m.tasks.Done()
	defer func() {
		m.health.mu.Lock()
		m.health.reconnecting = false
		m.health.mu.Unlock()
	}()

	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * m.cfg.ReconnectBaseDelay

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		m.mu.RLock()
		probe := m.probe
		open := m.open
		m.mu.RUnlock()
		if !open || probe == nil {
			return
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		err := probe(probeCtx)
		cancel()

		m.health.mu.Lock()
		m.health.lastProbe = time.Now()
		if err == nil {
			m.health.healthy = true
			m.health.attempts = 0
			m.health.mu.Unlock()

			m.log.Info("reconnected to backing store", zap.Int("attempt", attempt))
			return
		}
		m.health.attempts = attempt
		m.health.mu.Unlock()

		m.log.Warn("reconnection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.ReconnectAttempts),
			zap.Error(err))
	}

	m.log.Error("reconnection attempts exhausted; store remains unhealthy",
		zap.Int("attempts", m.cfg.ReconnectAttempts))
}
