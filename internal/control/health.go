package control

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/rail-logic-core/internal/infrastructure/mqtt"
)

// healthCheckTimeout bounds one evaluation of the core status.
const healthCheckTimeout = 5 * time.Second

// HealthSource supplies the state the core health message reports.
// *Bridge implements it.
type HealthSource interface {
	HealthCheck(ctx context.Context) error
	LastSeen() map[string]time.Time
}

// HealthReporter publishes the core health to raillogic/health/core at a
// fixed interval, retained, so gateways and dashboards see whether the
// core is running and which command stations it hears.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher MQTTClient
	source    HealthSource

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher MQTTClient
	Source    HealthSource
}

// NewHealthReporter creates a new health reporter. Call Start to begin
// reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx ends or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "core starting")
}

// PublishNow evaluates and publishes the current status immediately.
func (h *HealthReporter) PublishNow(ctx context.Context) error {
	status, reason := h.determineStatus(ctx)
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(ctx); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(ctx); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus(ctx context.Context) (HealthStatus, string) {
	if h.source == nil {
		return HealthHealthy, ""
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := h.source.HealthCheck(ctx); err != nil {
		return HealthDegraded, err.Error()
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}

	msg := HealthMessage{
		ID:            mqtt.CoreHealthID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.source != nil {
		msg.Stations = h.source.LastSeen()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(mqtt.CoreHealthID), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
