package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultFeedSyncSchedule polls published price lists every hour
const DefaultFeedSyncSchedule = "0 0 * * * *"

// FeedSource lists the shops that publish their price list at a URL
type FeedSource interface {
	FindWithFeed(ctx context.Context) ([]catalog.Shop, error)
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// Schedule is a cron expression with a leading seconds field
	Schedule   string
	MaxRetries int
}

// CronTrigger queues a feed sync job for every feed-publishing shop on a cron
// schedule
type CronTrigger struct {
	config    CronTriggerConfig
	scheduler *Scheduler
	feeds     FeedSource
	logger    *zap.Logger

	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	isRunning bool
}

// NewCronTrigger validates the schedule and creates a stopped trigger
func NewCronTrigger(config CronTriggerConfig, scheduler *Scheduler, feeds FeedSource, logger *zap.Logger) (*CronTrigger, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultFeedSyncSchedule
	}
	c := &CronTrigger{
		config:    config,
		scheduler: scheduler,
		feeds:     feeds,
		logger:    logger,
		cron:      cron.New(cron.WithSeconds()),
	}
	if _, err := c.cron.AddFunc(config.Schedule, c.tick); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, config.Schedule, err)
	}
	return c, nil
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.cron.Start()

	c.logger.Info("Feed sync trigger started", zap.String("schedule", c.config.Schedule))
	return nil
}

// Stop stops the cron trigger and waits for a tick in progress
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.cancel()
	c.mu.Unlock()

	select {
	case <-c.cron.Stop().Done():
		c.logger.Info("Feed sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) tick() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	if _, err := c.TriggerNow(ctx); err != nil {
		c.logger.Error("Failed to trigger feed sync", zap.Error(err))
	}
}

// TriggerNow queues a sync for every feed-publishing shop and returns how many
// were queued. Shops that already have a job pending are skipped.
func (c *CronTrigger) TriggerNow(ctx context.Context) (int, error) {
	shops, err := c.feeds.FindWithFeed(ctx)
	if err != nil {
		return 0, fmt.Errorf("list feed shops: %w", err)
	}

	queued := 0
	for _, shop := range shops {
		job := NewJob(shop.PartnerID, shop.FeedURL, c.config.MaxRetries)
		switch err := c.scheduler.SubmitJob(job); {
		case err == nil:
			queued++
		case errors.Is(err, ErrJobAlreadyQueued):
			c.logger.Debug("Feed sync already pending", zap.String("partner_id", shop.PartnerID.String()))
		default:
			c.logger.Warn("Failed to queue feed sync",
				zap.String("partner_id", shop.PartnerID.String()),
				zap.Error(err))
			if errors.Is(err, ErrSchedulerNotRunning) {
				return queued, err
			}
		}
	}

	c.logger.Info("Feed sync triggered", zap.Int("shops", len(shops)), zap.Int("queued", queued))
	return queued, nil
}
