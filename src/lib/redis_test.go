package lib

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The lease token is random, so expectations compare every argument
// except the <token> placeholder.
func skipToken(expected, actual []interface{}) error {
	if len(expected) != len(actual) {
		return fmt.Errorf("expected %d args, got %d", len(expected), len(actual))
	}
	for i := range expected {
		if expected[i] == "<token>" {
			continue
		}
		if fmt.Sprint(expected[i]) != fmt.Sprint(actual[i]) {
			return fmt.Errorf("arg %d: expected %v, got %v", i, expected[i], actual[i])
		}
	}
	return nil
}

func TestRedisLockerReleaseIsCompareAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	NewRedisClient(db)
	locker := &RedisLocker{Wait: 50 * time.Millisecond, TTL: time.Minute}

	mock.CustomMatch(skipToken).
		ExpectSetNX("checkin:lock:CP-T-AAAA2222", "<token>", time.Minute).
		SetVal(true)
	// The release must be a single EVAL, never a GET followed by a DEL.
	mock.CustomMatch(skipToken).
		ExpectEval(releaseScript, []string{"checkin:lock:CP-T-AAAA2222"}, "<token>").
		SetVal(int64(1))

	release, err := locker.Acquire(context.Background(), "CP-T-AAAA2222")
	require.NoError(t, err)
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLockerBusy(t *testing.T) {
	db, mock := redismock.NewClientMock()
	NewRedisClient(db)
	locker := &RedisLocker{Wait: 0, TTL: time.Minute}

	mock.CustomMatch(skipToken).
		ExpectSetNX("checkin:lock:CP-T-AAAA2222", "<token>", time.Minute).
		SetVal(false)

	_, err := locker.Acquire(context.Background(), "CP-T-AAAA2222")
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}
