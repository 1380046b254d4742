// Package cache provides the Redis-backed read cache for secret list
// queries and the short-lived pending-TOTP store used during two-factor
// enrollment.
//
// List results are cached per (project, secret type) bucket under a
// hash keyed by a digest of the full query, so any mutation can
// invalidate every cached page of that bucket with a single DEL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zecrypt/vault/internal/server/models"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(opts *redis.Options, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

type cachedList struct {
	Items []*models.Secret `json:"items"`
	Total int              `json:"total"`
}

func listBucket(projectID string, secretType models.SecretType) string {
	return fmt.Sprintf("secrets:%s:%s", projectID, secretType)
}

// QueryDigest produces the hash-field key for an arbitrary query shape.
// The query value must marshal deterministically (struct, not map).
func QueryDigest(q any) (string, error) {
	buf, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// GetList returns a cached page, or ok=false on miss. Cache errors are
// returned so the caller can log and fall through to the store.
func (c *Cache) GetList(ctx context.Context, projectID string, secretType models.SecretType, digest string) ([]*models.Secret, int, bool, error) {
	data, err := c.client.HGet(ctx, listBucket(projectID, secretType), digest).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, false, nil
		}
		return nil, 0, false, err
	}

	var entry cachedList
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, 0, false, err
	}
	return entry.Items, entry.Total, true, nil
}

// SetList stores one page under the bucket and refreshes the bucket TTL.
func (c *Cache) SetList(ctx context.Context, projectID string, secretType models.SecretType, digest string, items []*models.Secret, total int) error {
	data, err := json.Marshal(cachedList{Items: items, Total: total})
	if err != nil {
		return err
	}

	bucket := listBucket(projectID, secretType)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, bucket, digest, data)
		pipe.Expire(ctx, bucket, c.ttl)
		return nil
	})
	return err
}

// InvalidateList drops every cached page for (project, type).
func (c *Cache) InvalidateList(ctx context.Context, projectID string, secretType models.SecretType) error {
	return c.client.Del(ctx, listBucket(projectID, secretType)).Err()
}

func pendingTOTPKey(userID string) string {
	return "totp:pending:" + userID
}

// PutPendingTOTP parks a provisioning secret for a not-yet-enrolled
// user. SETNX makes concurrent provisioning calls converge: the first
// caller's secret wins and every caller gets the same value back.
func (c *Cache) PutPendingTOTP(ctx context.Context, userID, secret string, ttl time.Duration) (string, error) {
	key := pendingTOTPKey(userID)

	set, err := c.client.SetNX(ctx, key, secret, ttl).Result()
	if err != nil {
		return "", err
	}
	if set {
		return secret, nil
	}

	existing, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; retry once with our value.
			return c.PutPendingTOTP(ctx, userID, secret, ttl)
		}
		return "", err
	}
	return existing, nil
}

// GetPendingTOTP returns the parked secret, or ok=false when none is
// pending.
func (c *Cache) GetPendingTOTP(ctx context.Context, userID string) (string, bool, error) {
	secret, err := c.client.Get(ctx, pendingTOTPKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return secret, true, nil
}

// DeletePendingTOTP clears the parked secret after enrollment completes.
func (c *Cache) DeletePendingTOTP(ctx context.Context, userID string) error {
	return c.client.Del(ctx, pendingTOTPKey(userID)).Err()
}
