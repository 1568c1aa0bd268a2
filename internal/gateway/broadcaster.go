package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-interpreter/internal/transport"
	"github.com/redis/go-redis/v9"
)

const (
	sessionEventChannel = "voice:session:%s:events"

	subscriptionBuffer = 128
	maxSubscriptions   = 10000
)

// Broadcaster fans session events out through Redis pub/sub so every API
// replica can serve the event stream of any session.
type Broadcaster struct {
	redis  *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

var _ transport.Broadcaster = (*Broadcaster)(nil)

func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Broadcaster{
		redis:  redisClient,
		logger: logger.With("component", "broadcaster"),
		subs:   make(map[*subscription]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *Broadcaster) Publish(ctx context.Context, ev transport.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channel := fmt.Sprintf(sessionEventChannel, ev.SessionID)
	if err := b.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	b.logger.Debug("published event", "session_id", ev.SessionID, "type", ev.Type)
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published afterwards are not missed.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) (transport.Subscription, error) {
	b.mu.Lock()
	if len(b.subs) >= maxSubscriptions {
		b.mu.Unlock()
		return nil, fmt.Errorf("max subscriptions reached (%d)", maxSubscriptions)
	}
	b.mu.Unlock()

	channel := fmt.Sprintf(sessionEventChannel, sessionID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(b.ctx)
	sub := &subscription{
		sessionID: sessionID,
		pubsub:    pubsub,
		events:    make(chan transport.Event, subscriptionBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
		owner:     b,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.run(subCtx, b.logger.With("session_id", sessionID))
	b.logger.Debug("subscribed to session events", "session_id", sessionID, "channel", channel)
	return sub, nil
}

func (b *Broadcaster) remove(sub *subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

func (b *Broadcaster) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx).Err()
}

func (b *Broadcaster) Close() error {
	b.cancel()

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

type subscription struct {
	sessionID string
	pubsub    *redis.PubSub
	events    chan transport.Event
	cancel    context.CancelFunc
	done      chan struct{}
	owner     *Broadcaster
	closeOnce sync.Once
}

func (s *subscription) Events() <-chan transport.Event {
	return s.events
}

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
		s.owner.remove(s)
	})
	return err
}

func (s *subscription) run(ctx context.Context, logger *slog.Logger) {
	defer close(s.done)
	defer close(s.events)

	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("receive session event", "error", err)
			}
			return
		}

		var ev transport.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Error("unmarshal session event", "error", err)
			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		default:
			logger.Warn("subscriber too slow, dropping event", "type", ev.Type)
		}
	}
}
