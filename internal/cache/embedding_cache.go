package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"policymitr/internal/rag"
)

// EmbeddingCache memoizes an embedder in redis. Keys hash the model name and
// the text. Redis failures are logged and the wrapped embedder is used
// directly, so the cache never makes embedding less available.
type EmbeddingCache struct {
	next   rag.Embedder
	client *redisv9.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewEmbeddingCache(next rag.Embedder, client *redisv9.Client, model string, ttl time.Duration, logger *zap.Logger) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingCache{
		next:   next,
		client: client,
		prefix: "embedding:" + model + ":",
		ttl:    ttl,
		logger: logger,
	}
}

func (c *EmbeddingCache) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *EmbeddingCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
		cached = nil
	}
	var missing []int
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				var v []float32
				if json.Unmarshal([]byte(s), &v) == nil && len(v) > 0 {
					out[i] = v
					continue
				}
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	fresh, err := c.next.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(pending) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", rag.ErrEmbeddingUnavailable, len(fresh), len(pending))
	}

	pipe := c.client.Pipeline()
	for j, i := range missing {
		out[i] = fresh[j]
		payload, err := json.Marshal(fresh[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}
	return out, nil
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

var _ rag.Embedder = (*EmbeddingCache)(nil)
