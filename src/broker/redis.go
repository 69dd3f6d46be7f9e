package broker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// pubSub is the part of *redis.PubSub the listener uses.
type pubSub interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	ReceiveMessage(ctx context.Context) (*redis.Message, error)
	Close() error
}

// Redis is a Broker backed by Redis keys and pub/sub.
//
// The subscription connection has its own reconnect policy: when it
// drops, the listener backs off, pings until Redis answers, opens a new
// pub/sub connection and replays every registered channel.
type Redis struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger

	ping       func(ctx context.Context) error
	openPubSub func(ctx context.Context, channels ...string) pubSub
	minBackoff time.Duration
	maxBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string]Handler // unprefixed channel -> handler
	ps       pubSub
	active   bool
	started  bool
}

// NewRedis creates a Redis broker. Nothing is dialed until the first
// command or Start.
func NewRedis(cfg *RedisConfig, logger zerolog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: cfg.MaxRetries,
	})
	r := newRedis(client, cfg, logger)
	r.ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	r.openPubSub = func(ctx context.Context, channels ...string) pubSub {
		return client.Subscribe(ctx, channels...)
	}
	return r
}

func newRedis(client *redis.Client, cfg *RedisConfig, logger zerolog.Logger) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	minBackoff, maxBackoff := cfg.MinBackoff, cfg.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = 100 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	return &Redis{
		client:     client,
		prefix:     cfg.Prefix,
		logger:     logger.With().Str("component", "redis-broker").Logger(),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		ctx:        ctx,
		cancel:     cancel,
		handlers:   make(map[string]Handler),
	}
}

// Start launches the subscription listener. It returns immediately; the
// listener keeps retrying until Redis is reachable or Close is called.
func (r *Redis) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.listen()
}

// Available reports whether the subscription connection is up.
func (r *Redis) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Ping checks that Redis answers.
func (r *Redis) Ping(ctx context.Context) error {
	return r.ping(ctx)
}

func (r *Redis) key(k string) string { return r.prefix + k }

// Set stores value under key with ttl.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return false
	}
	return true
}

// Exists reports whether key is present.
func (r *Redis) Exists(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("redis exists failed")
		return false
	}
	return n > 0
}

// Publish sends message on channel.
func (r *Redis) Publish(ctx context.Context, channel string, message []byte) bool {
	if err := r.client.Publish(ctx, r.key(channel), message).Err(); err != nil {
		r.logger.Warn().Err(err).Str("channel", channel).Msg("redis publish failed")
		return false
	}
	return true
}

// Subscribe registers handler for channel. If the subscription
// connection is down, the channel is included in the next replay.
func (r *Redis) Subscribe(channel string, handler Handler) {
	r.mu.Lock()
	r.handlers[channel] = handler
	ps := r.ps
	r.mu.Unlock()

	if ps == nil {
		return
	}
	if err := ps.Subscribe(r.ctx, r.key(channel)); err != nil {
		r.logger.Warn().Err(err).Str("channel", channel).Msg("redis subscribe failed, will replay on reconnect")
	}
}

// Unsubscribe drops the handler for channel.
func (r *Redis) Unsubscribe(channel string) {
	r.mu.Lock()
	delete(r.handlers, channel)
	ps := r.ps
	r.mu.Unlock()

	if ps == nil {
		return
	}
	if err := ps.Unsubscribe(r.ctx, r.key(channel)); err != nil {
		r.logger.Warn().Err(err).Str("channel", channel).Msg("redis unsubscribe failed")
	}
}

// Close stops the listener and closes the Redis client.
func (r *Redis) Close() error {
	r.cancel()

	r.mu.Lock()
	ps := r.ps
	r.ps = nil
	r.active = false
	r.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}

	r.wg.Wait()
	return r.client.Close()
}

// listen owns the subscription connection for the broker's lifetime.
func (r *Redis) listen() {
	defer r.wg.Done()

	backoff := r.minBackoff
	for {
		ps, err := r.resubscribe()
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("redis unavailable, subscriptions paused")
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
			continue
		}
		backoff = r.minBackoff

		r.receive(ps)
		r.detach(ps)
		if r.ctx.Err() != nil {
			return
		}
	}
}

// resubscribe opens a pub/sub connection carrying every registered
// channel. The dial happens outside the lock; channels registered or
// dropped meanwhile are applied once the connection is stored.
func (r *Redis) resubscribe() (pubSub, error) {
	if err := r.ping(r.ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	snapshot := make(map[string]struct{}, len(r.handlers))
	for ch := range r.handlers {
		snapshot[ch] = struct{}{}
	}
	r.mu.RUnlock()

	channels := make([]string, 0, len(snapshot))
	for ch := range snapshot {
		channels = append(channels, r.key(ch))
	}
	ps := r.openPubSub(r.ctx, channels...)

	r.mu.Lock()
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		_ = ps.Close()
		return nil, err
	}
	r.ps = ps
	r.active = true
	var added, removed []string
	for ch := range r.handlers {
		if _, ok := snapshot[ch]; !ok {
			added = append(added, r.key(ch))
		}
	}
	for ch := range snapshot {
		if _, ok := r.handlers[ch]; !ok {
			removed = append(removed, r.key(ch))
		}
	}
	r.mu.Unlock()

	if len(added) > 0 {
		if err := ps.Subscribe(r.ctx, added...); err != nil {
			r.logger.Warn().Err(err).Strs("channels", added).Msg("redis subscribe failed, will replay on reconnect")
		}
	}
	if len(removed) > 0 {
		if err := ps.Unsubscribe(r.ctx, removed...); err != nil {
			r.logger.Warn().Err(err).Strs("channels", removed).Msg("redis unsubscribe failed")
		}
	}

	r.logger.Info().Strs("channels", append(channels, added...)).Msg("redis subscriptions established")
	return ps, nil
}

func (r *Redis) receive(ps pubSub) {
	for {
		msg, err := ps.ReceiveMessage(r.ctx)
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Warn().Err(err).Msg("redis subscription dropped")
			}
			return
		}
		r.dispatch(msg)
	}
}

func (r *Redis) dispatch(msg *redis.Message) {
	channel := strings.TrimPrefix(msg.Channel, r.prefix)

	r.mu.RLock()
	handler, ok := r.handlers[channel]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug().Str("channel", channel).Msg("no handler")
		return
	}
	handler(channel, []byte(msg.Payload))
}

func (r *Redis) detach(ps pubSub) {
	r.mu.Lock()
	if r.ps == ps {
		r.ps = nil
		r.active = false
	}
	r.mu.Unlock()
	_ = ps.Close()
}
