// Package redisx reserves per-merchant order numbers in Redis.
package redisx

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// New builds a Redis client for addr.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}
