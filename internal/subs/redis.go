package subs

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/polymirror/engine/internal/model"
)

// RedisStore reads the subscription table from Redis hashes written by the
// management surface:
//
//	<prefix>:leaders            leaderID -> LeaderAccount JSON
//	<prefix>:subs:<leaderID>    followerID -> FollowerSubscription JSON
//
// One hash field per (follower, leader) pair keeps the at-most-one-
// subscription-per-pair invariant structural.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "replicator"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) leadersKey() string {
	return s.prefix + ":leaders"
}

func (s *RedisStore) subsKey(leaderID string) string {
	return s.prefix + ":subs:" + leaderID
}

// ActiveLeaders returns all leaders marked active.
func (s *RedisStore) ActiveLeaders(ctx context.Context) ([]model.LeaderAccount, error) {
	vals, err := s.client.HVals(ctx, s.leadersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HVALS %s: %w", s.leadersKey(), err)
	}

	leaders := make([]model.LeaderAccount, 0, len(vals))
	for _, v := range vals {
		var l model.LeaderAccount
		if err := json.Unmarshal([]byte(v), &l); err != nil {
			// Skip malformed entries but continue.
			continue
		}
		if !l.Active {
			continue
		}
		leaders = append(leaders, l)
	}
	return leaders, nil
}

// ActiveForLeader returns all active subscriptions for one leader.
func (s *RedisStore) ActiveForLeader(ctx context.Context, leaderID string) ([]model.FollowerSubscription, error) {
	key := s.subsKey(leaderID)
	vals, err := s.client.HVals(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HVALS %s: %w", key, err)
	}

	subs := make([]model.FollowerSubscription, 0, len(vals))
	for _, v := range vals {
		var sub model.FollowerSubscription
		if err := json.Unmarshal([]byte(v), &sub); err != nil {
			continue
		}
		if !sub.Active {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// PutLeader upserts a leader record. Used by operator tooling and tests;
// the management surface normally owns writes.
func (s *RedisStore) PutLeader(ctx context.Context, l model.LeaderAccount) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal leader: %w", err)
	}
	if err := s.client.HSet(ctx, s.leadersKey(), l.ID, string(data)).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", s.leadersKey(), err)
	}
	return nil
}

// PutSubscription upserts one (follower, leader) subscription.
func (s *RedisStore) PutSubscription(ctx context.Context, sub model.FollowerSubscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	key := s.subsKey(sub.LeaderID)
	if err := s.client.HSet(ctx, key, sub.FollowerID, string(data)).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	return nil
}
