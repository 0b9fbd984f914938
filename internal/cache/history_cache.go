package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"policymitr/internal/model"
)

// HistoryCache keeps the recent turns of a conversation, newest first. A
// conversation is a user plus an optional policy. The dirty marker is set
// while turns are in flight to the persist queue so readers go to the
// database instead of trusting a stale cached window.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, userID uint, policyID string) ([]model.ChatTurn, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(userID, policyID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var turns []model.ChatTurn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return turns, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, userID uint, policyID string, turns []model.ChatTurn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(userID, policyID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// DeleteHistory drops the cached windows of the given conversations.
func (c *HistoryCache) DeleteHistory(ctx context.Context, userID uint, policyIDs ...string) error {
	if len(policyIDs) == 0 {
		return nil
	}
	keys := make([]string, len(policyIDs))
	for i, id := range policyIDs {
		keys[i] = c.historyKey(userID, id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// Invalidate marks the conversation dirty and drops its cached window.
func (c *HistoryCache) Invalidate(ctx context.Context, userID uint, policyID string) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.dirtyKey(userID, policyID), "1", c.dirtyMarkerTTL)
	pipe.Del(ctx, c.historyKey(userID, policyID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, userID uint, policyID string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(userID, policyID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(userID uint, policyID string) string {
	return fmt.Sprintf("chat:history:%d:%s", userID, policyID)
}

func (c *HistoryCache) dirtyKey(userID uint, policyID string) string {
	return fmt.Sprintf("chat:history:dirty:%d:%s", userID, policyID)
}
