package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"storefront/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

const productListKey = "products:list"

func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// 公開商品一覧のキャッシュ
type ProductCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewProductCache(client *redis.Client) *ProductCache {
	return &ProductCache{
		client:  client,
		baseTTL: 10 * time.Minute,
	}
}

func (c *ProductCache) GetList(ctx context.Context) ([]model.Product, error) {
	data, err := c.client.Get(ctx, productListKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal products failed: %w", err)
	}
	return products, nil
}

func (c *ProductCache) SetList(ctx context.Context, products []model.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal products failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Second
	if err := c.client.Set(ctx, productListKey, data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *ProductCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, productListKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// OTP再送の間隔制限
type ResendLimiter struct {
	client   *redis.Client
	cooldown time.Duration
}

func NewResendLimiter(client *redis.Client, cooldown time.Duration) *ResendLimiter {
	return &ResendLimiter{client: client, cooldown: cooldown}
}

// 期間内の初回だけtrue
func (l *ResendLimiter) Allow(ctx context.Context, orderID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, resendKey(orderID), 1, l.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func resendKey(orderID string) string {
	return fmt.Sprintf("otp:resend:%s", orderID)
}
