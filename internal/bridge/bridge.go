package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/martinhill/windburglr-sub000/internal/models"
	"github.com/martinhill/windburglr-sub000/internal/observability"
)

// Notification channels published by the store's triggers.
const (
	ChannelWindObs       = "wind_obs_insert"
	ChannelScraperStatus = "scraper_status_update"
)

// Listener is the dedicated notification connection. Satisfied by
// store.PgListener. Not safe for concurrent use; the bridge drives it
// from a single goroutine.
type Listener interface {
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	Listen(ctx context.Context, channel string) error
	WaitForNotification(ctx context.Context) (channel, payload string, err error)
	Close(ctx context.Context) error
}

// ObservationCache receives decoded wind points and stale markings.
type ObservationCache interface {
	Append(station string, p models.WindPoint)
	MarkAllStale()
}

// Broadcaster pushes decoded wind events to connected clients.
type Broadcaster interface {
	Broadcast(station, msgType string, data any)
}

// StatusHandler mirrors status events and runs the staleness sweep.
type StatusHandler interface {
	HandleUpdate(st models.ScraperStatus)
	SweepStale()
}

// Bridge consumes store notifications and fans them out to the cache,
// the websocket hub and the watchdog. It owns the listener connection
// and reconnects on failure.
type Bridge struct {
	listener Listener
	cache    ObservationCache
	hub      Broadcaster
	watchdog StatusHandler
	logger   *zap.Logger

	monitorInterval      time.Duration
	reconnectBase        time.Duration
	maxReconnectAttempts int

	healthy            atomic.Bool
	reconnectRequested atomic.Bool

	now func() time.Time
}

type Config struct {
	MonitorInterval      time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
}

func New(l Listener, c ObservationCache, h Broadcaster, w StatusHandler, cfg Config, logger *zap.Logger) *Bridge {
	return &Bridge{
		listener:             l,
		cache:                c,
		hub:                  h,
		watchdog:             w,
		logger:               logger,
		monitorInterval:      cfg.MonitorInterval,
		reconnectBase:        cfg.ReconnectBase,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		now:                  time.Now,
	}
}

// Start establishes the listener connection and subscribes to both
// channels. Call before Run.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.subscribe(ctx); err != nil {
		return err
	}
	b.healthy.Store(true)
	b.logger.Info("store listener started",
		zap.Strings("channels", []string{ChannelWindObs, ChannelScraperStatus}))
	return nil
}

func (b *Bridge) subscribe(ctx context.Context) error {
	if err := b.listener.Connect(ctx); err != nil {
		return err
	}
	if err := b.listener.Ping(ctx); err != nil {
		return err
	}
	for _, ch := range []string{ChannelWindObs, ChannelScraperStatus} {
		if err := b.listener.Listen(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

// Healthy reports whether the listener connection is currently up.
func (b *Bridge) Healthy() bool {
	return b.healthy.Load()
}

// RequestReconnect asks the event loop to cycle the connection at its
// next monitor tick. Used when an external signal (resume from
// suspend) suggests the connection is silently dead.
func (b *Bridge) RequestReconnect() {
	b.reconnectRequested.Store(true)
}

// Run drives the notification loop until ctx is cancelled. Monitor
// duties (watchdog sweep, connection health check) run on a fixed
// cadence: each wait is bounded by the time left until the next
// monitor tick, so a busy channel cannot starve them.
func (b *Bridge) Run(ctx context.Context) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.listener.Close(closeCtx)
		b.healthy.Store(false)
	}()

	nextMonitor := b.now().Add(b.monitorInterval)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := nextMonitor.Sub(b.now())
		if wait <= 0 {
			b.monitor(ctx)
			nextMonitor = b.now().Add(b.monitorInterval)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, wait)
		channel, payload, err := b.listener.WaitForNotification(waitCtx)
		cancel()

		switch {
		case err == nil:
			b.dispatch(channel, payload)

		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(err, context.DeadlineExceeded):
			b.monitor(ctx)
			nextMonitor = b.now().Add(b.monitorInterval)

		default:
			b.logger.Warn("listener wait failed", zap.Error(err))
			b.reconnect(ctx)
		}
	}
}

// monitor runs one tick of the bridge's housekeeping: demote quiet
// stations and verify the listener connection is still alive.
func (b *Bridge) monitor(ctx context.Context) {
	b.watchdog.SweepStale()
	if b.reconnectRequested.Swap(false) {
		b.logger.Info("reconnect requested, cycling listener connection")
		b.reconnect(ctx)
		return
	}
	if pingErr := b.listener.Ping(ctx); pingErr != nil {
		b.logger.Warn("listener health check failed", zap.Error(pingErr))
		b.reconnect(ctx)
	}
}

const maxReconnectDelay = time.Minute

// reconnect cycles the connection with capped exponential backoff. A
// full cycle of failed attempts does not give up for good; the next Run
// iteration lands back here, so reconnection is retried for as long as
// ctx lives.
func (b *Bridge) reconnect(ctx context.Context) {
	b.healthy.Store(false)

	delay := b.reconnectBase
	for attempt := 1; attempt <= b.maxReconnectAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		b.logger.Info("reconnecting to store listener",
			zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		if err := b.subscribe(ctx); err != nil {
			observability.ListenerReconnectsTotal.WithLabelValues("failure").Inc()
			b.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		observability.ListenerReconnectsTotal.WithLabelValues("success").Inc()
		b.healthy.Store(true)
		// Notifications may have been missed while disconnected; cached
		// ranges can no longer be trusted.
		b.cache.MarkAllStale()
		b.logger.Info("store listener reconnected", zap.Int("attempt", attempt))
		return
	}

	b.logger.Error("reconnect cycle exhausted, will retry",
		zap.Int("attempts", b.maxReconnectAttempts))
}

func (b *Bridge) dispatch(channel, payload string) {
	observability.NotificationsTotal.WithLabelValues(channel).Inc()

	switch channel {
	case ChannelWindObs:
		station, point, err := DecodeWindEvent(payload)
		if err != nil {
			b.logger.Warn("dropping wind notification", zap.Error(err))
			return
		}
		b.cache.Append(station, point)
		b.hub.Broadcast(station, "wind", point)

	case ChannelScraperStatus:
		st, err := DecodeStatusEvent(payload, b.now())
		if err != nil {
			b.logger.Warn("dropping status notification", zap.Error(err))
			return
		}
		b.watchdog.HandleUpdate(st)

	default:
		b.logger.Debug("notification on unexpected channel", zap.String("channel", channel))
	}
}
