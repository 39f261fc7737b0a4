package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/rentiq/rentiq_backend/config"
)

// GetCacheLifespan reads CACHE_LIFESPAN in hours (default 1).
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

func redisItemKey[T any](id any) string {
	return GetTypeName[T]() + ":" + fmt.Sprint(id)
}

// StoreRedis caches obj under Type:id for the cache lifespan.
func StoreRedis[T any](obj *T, id any) error {
	return config.SetRedisObject(redisItemKey[T](id), obj, GetCacheLifespan())
}

// RetrieveRedis returns the cached Type:id, or nil when it is not cached.
func RetrieveRedis[T any](id any) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(redisItemKey[T](id), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

// RemoveRedisItem drops Type:id.
func RemoveRedisItem[T any](id any) error {
	return config.RemoveRedisKey(redisItemKey[T](id))
}
