package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/atlasgestion/gestion_backend/config"
	"github.com/bsm/redislock"
)

func UniqueSlice[T comparable](slice []T) []T {
	keys := make(map[T]bool)
	list := []T{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			list = append(list, entry)
		}
	}
	return list
}

func GetTypeName[T any]() string {
	var v T
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// BusinessLock serializes stock-mutating operations per business. The caller
// holds the returned release func until its transaction has committed;
// releasing earlier would let a second writer in mid-operation.
// Redis being optional, the lock degrades to a no-op in single-process
// deployments and tests; the DB transaction remains the consistency floor.
func BusinessLock(ctx context.Context, businessId string, lockType string, moduleName string, functionName string) (func(), error) {
	noop := func() {}
	locker := config.GetRedisLock()
	if locker == nil {
		return noop, nil
	}
	logger := config.GetLogger()
	lockKey := fmt.Sprintf("%s:%s", lockType, businessId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(250 * time.Millisecond),
	})
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for businessId", businessId, err)
		return noop, errors.New("operation already in progress, please retry")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for businessId", businessId, err)
		return noop, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}

func listCacheKey[T any](businessId string) string {
	return businessId + "-all" + strings.ToLower(GetTypeName[T]())
}

// CacheLifespan reads CACHE_LIFESPAN (hours), defaulting to one hour.
func CacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

// FetchCachedList serves the business's list of T from redis when a cached
// copy exists, otherwise falls back to fetch and stores the result for the
// next read. Mutations drop the key through InvalidateListCache.
func FetchCachedList[T any](businessId string, fetch func() ([]*T, error)) ([]*T, error) {
	key := listCacheKey[T](businessId)
	var cached []*T
	found, err := config.GetRedisObject(key, &cached)
	if err == nil && found {
		return cached, nil
	}
	results, err := fetch()
	if err != nil {
		return nil, err
	}
	_ = config.SetRedisObject(key, &results, CacheLifespan())
	return results, nil
}

// InvalidateListCache drops the cached list of T for the business so the
// next read refetches from the DB. Called after every mutation.
func InvalidateListCache[T any](businessId string) error {
	return config.RemoveRedisKey(listCacheKey[T](businessId))
}
