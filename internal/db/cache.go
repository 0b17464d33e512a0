package mlm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Кэш сводки аккаунта для читающего API
type CacheService struct {
	client *redis.Client
}

func NewCacheService() (serv *CacheService, err error) {

	// config
	addr := os.Getenv("MLM_CACHE_URL")
	if addr == "" {
		return nil, fmt.Errorf("env MLM_CACHE_URL is not set")
	}
	user := os.Getenv("MLM_CACHE_USER")
	if user == "" {
		return nil, fmt.Errorf("env MLM_CACHE_USER is not set")
	}
	pwd := os.Getenv("MLM_CACHE_PWD")
	if pwd == "" {
		return nil, fmt.Errorf("env MLM_CACHE_PWD is not set")
	}
	// redis
	db := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return &CacheService{db}, nil
}

func summaryKey(account uuid.UUID) string {
	return "summary:" + account.String()
}

func (c *CacheService) GetSummary(ctx context.Context, account uuid.UUID) (string, error) {
	val, err := c.client.Get(ctx, summaryKey(account)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("not found")
	} else if err != nil {
		return "", err
	}
	return val, nil
}

func (c *CacheService) SetSummary(ctx context.Context, account uuid.UUID, summary string) error {
	return c.client.Set(ctx, summaryKey(account), summary, 5*time.Minute).Err()
}

func (c *CacheService) InvalidateSummary(ctx context.Context, account uuid.UUID) error {
	return c.client.Del(ctx, summaryKey(account)).Err()
}
