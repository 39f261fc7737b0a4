package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb     *redis.Client
	locker  *redislock.Client
	redisMu sync.RWMutex
)
var ctx = context.Background()

func GetRedisDB() *redis.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return rdb
}

func GetRedisLock() *redislock.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return locker
}

// SetRedis installs client as the global cache. A nil client disables caching.
func SetRedis(client *redis.Client) {
	redisMu.Lock()
	defer redisMu.Unlock()
	rdb = client
	if client == nil {
		locker = nil
		return
	}
	locker = redislock.New(client)
}

func GetRedisObject(key string, dest interface{}) (bool, error) {
	client := GetRedisDB()
	if client == nil {
		return false, nil
	}
	val, err := client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err = json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func GetRedisValue(key string) (string, bool, error) {
	client := GetRedisDB()
	if client == nil {
		return "", false, nil
	}
	val, err := client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func SetRedisObject(key string, obj interface{}, exp time.Duration) error {
	client := GetRedisDB()
	if client == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, objInByte, exp).Err()
}

// store key in a set for faster adding & retrieving
func AddRedisSet(setKey string, member string) error {
	client := GetRedisDB()
	if client == nil {
		return nil
	}
	return client.SAdd(ctx, setKey, member).Err()
}

func GetRedisSetMembers(setKey string) ([]string, error) {
	client := GetRedisDB()
	if client == nil {
		return nil, nil
	}
	return client.SMembers(ctx, setKey).Result()
}

func RemoveRedisSetMember(setKey string, member string) error {
	client := GetRedisDB()
	if client == nil {
		return nil
	}
	return client.SRem(ctx, setKey, member).Err()
}

func SetRedisValue(key string, value string, exp time.Duration) error {
	client := GetRedisDB()
	if client == nil {
		return nil
	}
	return client.Set(ctx, key, value, exp).Err()
}

func RemoveRedisKey(keys ...string) error {
	client := GetRedisDB()
	if client == nil || len(keys) == 0 {
		return nil
	}
	return client.Del(ctx, keys...).Err()
}

// RemoveRedisPattern deletes every key matching pattern using SCAN.
func RemoveRedisPattern(ctx context.Context, pattern string) error {
	client := GetRedisDB()
	if client == nil {
		return nil
	}
	iter := client.Scan(ctx, 0, pattern, 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return client.Del(ctx, batch...).Err()
	}
	return nil
}

// ObtainLock takes a redis lock on key, retrying every 100ms until ctx ends or ttl
// worth of attempts pass. Without redis it returns a nil lock and nil error.
func ObtainLock(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error) {
	l := GetRedisLock()
	if l == nil {
		return nil, nil
	}
	return l.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), int(ttl/(100*time.Millisecond))),
	})
}

// ConnectRedisWithRetry connects through the redis gate and sets the global
// client and lock client. Call this from main() AFTER the HTTP server is listening.
func ConnectRedisWithRetry(ctx context.Context) error {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	g := getGate(GateRedis, 0, 5*time.Second)
	return g.Run(ctx, func(ctx context.Context) error {
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       intFromEnv("REDIS_DB", 0),
			PoolSize: 100,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return err
		}
		SetRedis(client)
		return nil
	})
}
