// Package usercache maps user emails to user ids in process memory.
// Users are never updated or deleted, so an entry can only go stale by expiring.
package usercache

import (
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/patric-chuzhbe/todolist/internal/logger"
	"go.uber.org/zap"
)

var ErrNonPositiveTTL = errors.New("user cache ttl must be positive")

type UserCache struct {
	cache *bigcache.BigCache
}

func New(ttl time.Duration) (*UserCache, error) {
	if ttl <= 0 {
		return nil, ErrNonPositiveTTL
	}

	config := bigcache.DefaultConfig(ttl)
	config.Verbose = false
	config.Shards = 64
	config.MaxEntrySize = 128

	cache, err := bigcache.NewBigCache(config)
	if err != nil {
		return nil, fmt.Errorf("in internal/usercache/usercache.go/New(): error while `bigcache.NewBigCache()` calling: %w", err)
	}

	return &UserCache{cache: cache}, nil
}

// UserID returns the cached id for email.
func (c *UserCache) UserID(email string) (string, bool) {
	buf, err := c.cache.Get(email)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			logger.Log.Debugln("Error calling the `c.cache.Get()`: ", zap.Error(err))
		}
		return "", false
	}

	return string(buf), true
}

func (c *UserCache) Remember(email, userID string) {
	if err := c.cache.Set(email, []byte(userID)); err != nil {
		logger.Log.Debugln("Error calling the `c.cache.Set()`: ", zap.Error(err))
	}
}

func (c *UserCache) Len() int {
	return c.cache.Len()
}

func (c *UserCache) Close() error {
	return c.cache.Close()
}
