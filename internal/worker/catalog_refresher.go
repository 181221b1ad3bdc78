package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/observability"
)

// Refresh triggers recorded in metrics.
const (
	TriggerPoll   = "poll"
	TriggerPubSub = "pubsub"
)

// CatalogRefresher keeps the local department catalog current. It reloads on
// a fixed interval and whenever another instance announces a change on the
// Redis channel.
type CatalogRefresher struct {
	catalog  *catalog.Catalog
	client   *redis.Client
	channel  string
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// CatalogRefresherConfig bundles refresher settings.
type CatalogRefresherConfig struct {
	Catalog  *catalog.Catalog
	Client   *redis.Client
	Channel  string
	Interval time.Duration
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewCatalogRefresher builds a refresher. A nil client disables pub/sub and a
// zero interval disables polling.
func NewCatalogRefresher(cfg CatalogRefresherConfig) *CatalogRefresher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogRefresher{
		catalog:  cfg.Catalog,
		client:   cfg.Client,
		channel:  cfg.Channel,
		interval: cfg.Interval,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Notify announces a catalog change to every subscribed instance.
func (r *CatalogRefresher) Notify(ctx context.Context) error {
	if r.client == nil || r.channel == "" {
		return nil
	}
	return r.client.Publish(ctx, r.channel, time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

// Run blocks until ctx is cancelled.
func (r *CatalogRefresher) Run(ctx context.Context) {
	var messages <-chan *redis.Message
	if r.client != nil && r.channel != "" {
		sub := r.client.Subscribe(ctx, r.channel)
		defer sub.Close()
		messages = sub.Channel()
	}

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if messages == nil && tick == nil {
		r.logger.Info("catalog refresher disabled")
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.refresh(ctx, TriggerPoll)
		case _, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			r.refresh(ctx, TriggerPubSub)
		}
	}
}

// StartCatalogRefresher runs the refresher in a goroutine.
func StartCatalogRefresher(ctx context.Context, refresher *CatalogRefresher) {
	go refresher.Run(ctx)
}

func (r *CatalogRefresher) refresh(ctx context.Context, trigger string) {
	err := r.catalog.Refresh(ctx)
	r.metrics.RecordCatalogRefresh(trigger, err)
	if err != nil {
		r.logger.Warn("catalog refresh failed", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	r.logger.Debug("catalog refreshed", zap.String("trigger", trigger), zap.Int("departments", r.catalog.Len()))
}
