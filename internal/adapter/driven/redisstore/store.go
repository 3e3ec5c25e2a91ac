// Package redisstore implements the remote, syncing settings backend on a
// Redis hash. Writers announce their changes on a pub/sub channel so every
// other process sharing the hash can re-read.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/modeldesk/internal/domain/model"
	"github.com/ericfisherdev/modeldesk/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RemoteSettingsStore = (*Store)(nil)

const subscriberBuffer = 16

// event is the pub/sub payload.
type event struct {
	Origin string   `json:"origin"`
	Reason string   `json:"reason"`
	Keys   []string `json:"keys,omitempty"`
}

// Store is a RemoteSettingsStore backed by Redis.
type Store struct {
	client  redis.UniversalClient
	hashKey string
	channel string
	origin  string
	logger  *slog.Logger

	mu          sync.Mutex
	subscribers []chan model.RemoteChange
}

// NewStore creates a Store that keeps settings in "<prefix>:settings" and
// announces changes on "<prefix>:events".
func NewStore(client redis.UniversalClient, prefix string, logger *slog.Logger) *Store {
	return &Store{
		client:  client,
		hashKey: prefix + ":settings",
		channel: prefix + ":events",
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Get returns the value for key, or ("", false, nil) when absent.
func (s *Store) Get(ctx context.Context, key model.SettingKey) (string, bool, error) {
	value, err := s.client.HGet(ctx, s.hashKey, string(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hget %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes key and announces the change to other processes.
func (s *Store) Set(ctx context.Context, key model.SettingKey, value string) error {
	if err := s.client.HSet(ctx, s.hashKey, string(key), value).Err(); err != nil {
		s.checkQuota(err, key)
		return fmt.Errorf("hset %s: %w", key, err)
	}
	s.announce(ctx, key)
	return nil
}

// Remove deletes key and announces the change to other processes.
func (s *Store) Remove(ctx context.Context, key model.SettingKey) error {
	if err := s.client.HDel(ctx, s.hashKey, string(key)).Err(); err != nil {
		s.checkQuota(err, key)
		return fmt.Errorf("hdel %s: %w", key, err)
	}
	s.announce(ctx, key)
	return nil
}

// Synchronize confirms the server is reachable. Redis acknowledges writes
// synchronously, so there is nothing to flush.
func (s *Store) Synchronize(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping remote settings: %w", err)
	}
	return nil
}

// Subscribe streams changes made by other processes. The first event is
// always an initial_sync once the subscription is live. Quota violations hit
// by this process's own writes are delivered on the same channel.
func (s *Store) Subscribe(ctx context.Context) (<-chan model.RemoteChange, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}

	out := make(chan model.RemoteChange, subscriberBuffer)
	out <- model.RemoteChange{Reason: model.ChangeReasonInitialSync}

	s.mu.Lock()
	s.subscribers = append(s.subscribers, out)
	s.mu.Unlock()

	go func() {
		defer func() {
			_ = pubsub.Close()
			s.removeSubscriber(out)
			close(out)
		}()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				change, ok := s.decode(msg.Payload)
				if !ok {
					continue
				}
				s.deliver(out, change)
			}
		}
	}()

	return out, nil
}

func (s *Store) decode(payload string) (model.RemoteChange, bool) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.logger.Warn("ignoring malformed settings event", "channel", s.channel, "error", err)
		return model.RemoteChange{}, false
	}
	if ev.Origin == s.origin {
		return model.RemoteChange{}, false
	}

	change := model.RemoteChange{Reason: model.ChangeReason(ev.Reason)}
	switch change.Reason {
	case model.ChangeReasonServer, model.ChangeReasonInitialSync, model.ChangeReasonAccountChange:
	default:
		change.Reason = model.ChangeReasonServer
	}
	for _, k := range ev.Keys {
		change.Keys = append(change.Keys, model.SettingKey(k))
	}
	return change, true
}

func (s *Store) deliver(ch chan model.RemoteChange, change model.RemoteChange) {
	select {
	case ch <- change:
	default:
		s.logger.Warn("settings subscriber full, dropping change", "reason", change.Reason)
	}
}

func (s *Store) announce(ctx context.Context, key model.SettingKey) {
	payload, err := json.Marshal(event{
		Origin: s.origin,
		Reason: string(model.ChangeReasonServer),
		Keys:   []string{string(key)},
	})
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn("publish settings change failed", "key", key, "error", err)
	}
}

// checkQuota forwards an out-of-memory rejection to local subscribers as a
// quota violation.
func (s *Store) checkQuota(err error, key model.SettingKey) {
	if !isQuotaError(err) {
		return
	}

	change := model.RemoteChange{Reason: model.ChangeReasonQuotaViolation, Keys: []model.SettingKey{key}}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		s.deliver(ch, change)
	}
}

func (s *Store) removeSubscriber(ch chan model.RemoteChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}

// isQuotaError reports whether Redis rejected a write because maxmemory was
// reached.
func isQuotaError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM ")
}
