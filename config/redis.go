package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

// streamBlock is the longest XREADGROUP wait any worker issues.
const streamBlock = 5 * time.Second

func InitRedis() error {
	val := os.Getenv("REDIS_ADDR")
	if val == "" {
		val = os.Getenv("REDIS_URI")
	}
	if val == "" {
		val = os.Getenv("REDIS_URL")
	}
	if val == "" {
		return errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) environment variable is not set")
	}

	opt, err := redisOptions(val, os.Getenv("REDIS_POOL_SIZE"))
	if err != nil {
		return err
	}
	RedisClient = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return RedisClient.Ping(ctx).Err()
}

// redisOptions accepts host:port or a redis(s):// URL. The read timeout always
// outlasts a blocking stream read.
func redisOptions(addr, poolSize string) (*redis.Options, error) {
	var opt *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: addr}
	}
	if poolSize != "" {
		n, err := strconv.Atoi(poolSize)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("REDIS_POOL_SIZE %q: must be a positive integer", poolSize)
		}
		opt.PoolSize = n
	}
	if opt.ReadTimeout >= 0 && opt.ReadTimeout < streamBlock+time.Second {
		opt.ReadTimeout = streamBlock + time.Second
	}
	return opt, nil
}
