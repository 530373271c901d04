package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/newsflash/internal/models"
)

// SubscriberCounter provides the active subscriber count
type SubscriberCounter interface {
	CountActive(ctx context.Context) (int, error)
}

var (
	bucketMetrics = []byte("metrics")
	keyCounters   = []byte("counters")
)

// ShadowCounters mirrors counter values so they survive restarts
type ShadowCounters struct {
	Deliveries    map[string]float64 `json:"deliveries"`
	Subscriptions map[string]float64 `json:"subscriptions"`
}

// Collector persists counters to bbolt and refreshes gauges periodically.
// It also implements the dispatcher's observer so counted events reach
// both Prometheus and the persisted shadow.
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	subscribers   SubscriberCounter
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time
	logger        *slog.Logger

	shadow ShadowCounters
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector and restores persisted counters
func NewCollector(db *bolt.DB, m *Metrics, subscribers SubscriberCounter, storagePath string, flushInterval time.Duration, logger *slog.Logger) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		subscribers:   subscribers,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		logger:        logger,
		shadow: ShadowCounters{
			Deliveries:    make(map[string]float64),
			Subscriptions: make(map[string]float64),
		},
		stopCh: make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}
	return c, nil
}

// Start begins the collector background loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.persistCounters()
}

// DeliveryCompleted counts a finished delivery attempt
func (c *Collector) DeliveryCompleted(category models.Category, status models.DeliveryStatus) {
	c.metrics.DeliveryCompleted(category, status)

	c.mu.Lock()
	c.shadow.Deliveries[string(category)+":"+string(status)]++
	c.mu.Unlock()
}

// SubscribeCompleted counts a subscribe request by outcome
func (c *Collector) SubscribeCompleted(outcome string) {
	c.metrics.SubscribeCompleted(outcome)

	c.mu.Lock()
	c.shadow.Subscriptions[outcome]++
	c.mu.Unlock()
}

func (c *Collector) loadCounters() error {
	return c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}
		data := bucket.Get(keyCounters)
		if data == nil {
			return nil
		}

		var shadow ShadowCounters
		if err := json.Unmarshal(data, &shadow); err != nil {
			return nil // Skip invalid data
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		for k, v := range shadow.Deliveries {
			category, status, _ := strings.Cut(k, ":")
			c.shadow.Deliveries[k] = v
			c.metrics.DeliveriesTotal.WithLabelValues(category, status).Add(v)
		}
		for k, v := range shadow.Subscriptions {
			c.shadow.Subscriptions[k] = v
			c.metrics.SubscriptionsTotal.WithLabelValues(k).Add(v)
		}
		return nil
	})
}

func (c *Collector) persistCounters() error {
	c.mu.Lock()
	data, err := json.Marshal(c.shadow)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketMetrics)
		if err != nil {
			return err
		}
		return bucket.Put(keyCounters, data)
	})
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	c.updateGauges(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.updateGauges(ctx)
			if err := c.persistCounters(); err != nil && c.logger != nil {
				c.logger.Warn("failed to persist metrics counters", "error", err)
			}
		}
	}
}

func (c *Collector) updateGauges(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.subscribers != nil {
		n, err := c.subscribers.CountActive(ctx)
		if err == nil {
			c.metrics.ActiveSubscribers.Set(float64(n))
		}
	}
}
