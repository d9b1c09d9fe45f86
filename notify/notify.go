// Package notify delivers post-commit notifications (fulfillment emails,
// calendar reminders) on a bounded worker pool with retries. Delivery
// failures are logged and counted; they never reach the caller.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/monitoring"
)

// Kind names what happened.
type Kind string

const (
	KindRewardClaimed    Kind = "reward_claimed"
	KindRaffleEntered    Kind = "raffle_entered"
	KindRaffleWon        Kind = "raffle_won"
	KindPaymentInfoSaved Kind = "payment_info_saved"
	KindBoostActivated   Kind = "boost_activated"
	KindBoostExpired     Kind = "boost_expired"
	KindRewardFulfilled  Kind = "reward_fulfilled"
	KindGiftShipped      Kind = "gift_shipped"
)

// Notification is one fire-and-forget message.
type Notification struct {
	Kind         Kind
	ClientID     loyalty.ClientID
	UserID       loyalty.UserID
	RedemptionID loyalty.RedemptionID
	RewardType   loyalty.RewardType
	Message      string
	At           time.Time
}

// Notifier accepts notifications. Notify must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Sink performs the actual delivery.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// LogSink "delivers" by writing a structured log line. It stands in for the
// email and calendar integrations.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Deliver(_ context.Context, n Notification) error {
	s.Logger.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("client_id", string(n.ClientID)),
		zap.String("user_id", string(n.UserID)),
		zap.String("redemption_id", string(n.RedemptionID)),
		zap.String("reward_type", string(n.RewardType)),
		zap.String("message", n.Message),
	)
	return nil
}

// Delivery records one delivery attempt.
type Delivery struct {
	Kind         Kind
	RedemptionID loyalty.RedemptionID
	Attempt      int
	Error        string
	Timestamp    time.Time
}

// Config configures the dispatcher.
type Config struct {
	Sink       Sink
	Logger     *zap.Logger
	Workers    int
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// Dispatcher is a Notifier backed by a channel and a fixed set of workers.
type Dispatcher struct {
	sink       Sink
	logger     *zap.Logger
	queue      chan Notification
	maxRetries int
	retryDelay time.Duration

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	deliveries []Delivery
}

// NewDispatcher starts cfg.Workers workers.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sink == nil {
		cfg.Sink = LogSink{Logger: cfg.Logger}
	}

	d := &Dispatcher{
		sink:       cfg.Sink,
		logger:     cfg.Logger,
		queue:      make(chan Notification, cfg.QueueSize),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify queues n. A full queue drops the notification.
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	select {
	case d.queue <- n:
	default:
		monitoring.NotificationsTotal.WithLabelValues("dropped").Inc()
		d.logger.Warn("notification queue full, dropping",
			zap.String("kind", string(n.Kind)),
			zap.String("redemption_id", string(n.RedemptionID)))
	}
}

// Close stops accepting notifications and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Deliveries returns every attempt recorded so far.
func (d *Dispatcher) Deliveries() []Delivery {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Delivery, len(d.deliveries))
	copy(out, d.deliveries)
	return out
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		if err := d.deliver(n); err != nil {
			monitoring.NotificationsTotal.WithLabelValues("failed").Inc()
			d.logger.Error("notification delivery failed",
				zap.String("kind", string(n.Kind)),
				zap.String("redemption_id", string(n.RedemptionID)),
				zap.Error(err))
			continue
		}
		monitoring.NotificationsTotal.WithLabelValues("delivered").Inc()
	}
}

func (d *Dispatcher) deliver(n Notification) error {
	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := d.sink.Deliver(ctx, n)
		cancel()

		rec := Delivery{Kind: n.Kind, RedemptionID: n.RedemptionID, Attempt: attempt, Timestamp: time.Now()}
		if err != nil {
			rec.Error = err.Error()
		}
		d.mu.Lock()
		d.deliveries = append(d.deliveries, rec)
		d.mu.Unlock()

		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < d.maxRetries {
			time.Sleep(d.retryDelay)
		}
	}
	return fmt.Errorf("after %d attempts: %w", d.maxRetries, lastErr)
}
