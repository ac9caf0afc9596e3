package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/rail-logic-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second

	// siteTag is added to every point so several layouts can share a bucket.
	siteTag = "site"
)

// Stats counts telemetry traffic since Connect.
type Stats struct {
	Queued      uint64 `json:"queued"`
	Dropped     uint64 `json:"dropped"`
	WriteErrors uint64 `json:"write_errors"`
}

// Client records layout telemetry in InfluxDB.
//
// Writes go through the library's non-blocking WriteAPI and are batched.
// Every point carries the site tag given to Connect.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	site     string

	mu        sync.RWMutex
	connected bool
	onError   func(err error)

	queued      atomic.Uint64
	dropped     atomic.Uint64
	writeErrors atomic.Uint64
}

// Connect opens the telemetry connection for one layout site.
//
// Parameters:
//   - ctx: bounds the initial ping (a 10 second cap is applied on top)
//   - cfg: InfluxDB section of the configuration
//   - site: value of the "site" tag; empty omits the tag
//
// Returns:
//   - *Client: ready for writes
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the ping failure
func Connect(ctx context.Context, cfg config.InfluxDBConfig, site string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(batchSize(cfg.BatchSize)).
		SetFlushInterval(flushIntervalMillis(cfg.FlushInterval))
	if site != "" {
		opts.AddDefaultTag(siteTag, site)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		site:      site,
		connected: true,
	}
	go c.drainErrors(c.writeAPI.Errors())
	return c, nil
}

// batchSize returns the configured batch size or the default.
func batchSize(n int) uint {
	if n <= 0 {
		return defaultBatchSize
	}
	return uint(n) // #nosec G115 -- positive
}

// flushIntervalMillis converts the configured seconds to the milliseconds
// the client library expects.
func flushIntervalMillis(seconds int) uint {
	d := defaultFlushInterval
	if seconds > 0 {
		d = time.Duration(seconds) * time.Second
	}
	return uint(d.Milliseconds()) // #nosec G115 -- positive
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

func (c *Client) drainErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.writeErrors.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close flushes pending points and closes the connection. Points written
// afterwards are counted as dropped.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.writeAPI.Flush()
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected reports the last known state. It does not ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets the callback for asynchronous batch failures. The error
// passed to it wraps ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Site returns the site tag added to every point.
func (c *Client) Site() string {
	return c.site
}

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Queued:      c.queued.Load(),
		Dropped:     c.dropped.Load(),
		WriteErrors: c.writeErrors.Load(),
	}
}

// Flush blocks until buffered points are sent. No-op when closed.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
