package lib

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"cpass/src/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the lock key only while it still holds the
// caller's token. The compare and the delete must run as one step: a
// lease expiring between a GET and a DEL would let this caller delete a
// newer holder's lease.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLocker hands out code-scoped leases so scans of the same ticket code
// are serialized across every API process. The lease carries a TTL so a
// crashed holder cannot wedge a code for longer than the TTL.
type RedisLocker struct {
	Wait time.Duration
	TTL  time.Duration
}

func NewRedisLocker() *RedisLocker {
	return &RedisLocker{
		Wait: config.CheckinLockWait(),
		TTL:  config.CheckinLockTTL(),
	}
}

// Acquire polls SET NX until the lease is taken or the wait budget runs
// out. The returned release func runs a compare-and-delete script keyed
// on this caller's token, so an expired lease never clobbers a newer
// holder.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	rd := GetRedisClient()
	if rd == nil {
		return nil, errors.New("redis client unavailable")
	}
	lockKey := fmt.Sprintf("checkin:lock:%s", key)
	token := uuid.NewString()
	deadline := time.Now().Add(l.Wait)
	for {
		ok, err := rd.SetNX(ctx, lockKey, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
	release := func() {
		if err := rd.Eval(context.Background(), releaseScript, []string{lockKey}, token).Err(); err != nil {
			log.Printf("[redis] Error releasing lock key %s: %s\n", lockKey, err.Error())
		}
	}
	return release, nil
}
