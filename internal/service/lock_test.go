package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-service/internal/entity"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		u, err := m.Lock(context.Background(), "a")
		if err == nil {
			close(acquired)
			u()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()

	unlockA, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op

	m.mu.Lock()
	assert.Empty(t, m.locks)
	m.mu.Unlock()
}

func TestKeyedMutex_CleansUpAfterContention(t *testing.T) {
	m := NewKeyedMutex()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := m.Lock(context.Background(), "k")
			if err == nil {
				u()
			}
		}()
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.locks)
}

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLocker(rdb)
	l.backoff = 5 * time.Millisecond
	return l, mr
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	l, mr := newTestRedisLocker(t)

	unlock, err := l.Lock(context.Background(), "1234567890")
	require.NoError(t, err)
	assert.True(t, mr.Exists("user-lock:1234567890"))
	assert.Equal(t, l.ttl, mr.TTL("user-lock:1234567890"))

	unlock()
	assert.False(t, mr.Exists("user-lock:1234567890"))

	unlock, err = l.Lock(context.Background(), "1234567890")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_TimesOutWhileHeld(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	l.wait = 50 * time.Millisecond

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = l.Lock(context.Background(), "a")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), l.wait)
}

func TestRedisLocker_StopsPollingOnCancel(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	l.wait = time.Minute

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = l.Lock(ctx, "a")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRedisLocker_ExpiredHolderCannotReleaseNewOwner(t *testing.T) {
	l, mr := newTestRedisLocker(t)

	unlockFirst, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	mr.FastForward(l.ttl + time.Second)
	require.False(t, mr.Exists("user-lock:a"))

	unlockSecond, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	secondToken, err := mr.Get("user-lock:a")
	require.NoError(t, err)

	unlockFirst()
	require.True(t, mr.Exists("user-lock:a"), "stale holder deleted the new owner's lock")
	got, err := mr.Get("user-lock:a")
	require.NoError(t, err)
	assert.Equal(t, secondToken, got)

	unlockSecond()
	assert.False(t, mr.Exists("user-lock:a"))
}

func TestRedisLocker_SerializesCreates(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	store := &memStore{}
	svc := NewUserService(store, WithLocker(l))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.CreateUser(context.Background(), entity.CreateUserRequest{DNI: "1234567890", Name: "Racer"})
		}()
	}
	wg.Wait()

	assert.Len(t, store.users, 1)
}
