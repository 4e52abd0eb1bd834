package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"studio/internal/infra"
)

const defaultRedisChannel = "studio:generations"

// RedisSink publishes completion events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	rdb     *goredis.Client
	channel string
	logger  *infra.Logger
}

// NewRedisSink connects to addr and verifies the server answers PING.
func NewRedisSink(ctx context.Context, addr, channel string, logger *infra.Logger) (*RedisSink, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("notify: missing redis address")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultRedisChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: redis ping: %w", err)
	}

	return &RedisSink{rdb: rdb, channel: channel, logger: infra.OrDiscard(logger)}, nil
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("notify: redis sink not initialized")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, s.channel, raw).Err(); err != nil {
		return fmt.Errorf("notify: redis publish: %w", err)
	}
	s.logger.Debug().Str("generation_id", ev.ID).Str("channel", s.channel).Msg("notify: published to redis")
	return nil
}

// Forward relays events published on the channel by other processes into
// sink until ctx is done.
func (s *RedisSink) Forward(ctx context.Context, sink Sink) error {
	if sink == nil {
		return fmt.Errorf("notify: forward target required")
	}
	sub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("notify: redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					s.logger.Warn().Err(err).Msg("notify: bad redis payload")
					continue
				}
				if err := sink.Publish(ctx, ev); err != nil {
					s.logger.Warn().Err(err).Msg("notify: forward failed")
				}
			}
		}
	}()
	return nil
}

func (s *RedisSink) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
