package lock

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/GregMSThompson/skiploss-console/pkg/helpers"
)

func TestMemoryLockIsExclusivePerKey(t *testing.T) {
	m := NewMemory()
	ctx := helpers.TestCtx()

	release, ok, err := m.TryAcquire(ctx, "turn:s1")
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := m.TryAcquire(ctx, "turn:s1"); ok {
		t.Fatalf("second acquire on the same key should fail")
	}
	if _, ok, _ := m.TryAcquire(ctx, "turn:s2"); !ok {
		t.Fatalf("other keys must not be blocked")
	}

	release()
	release()
	if _, ok, _ := m.TryAcquire(ctx, "turn:s1"); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "console:", ttl), mr
}

func TestRedisLockIsExclusiveAndReleases(t *testing.T) {
	l, mr := newRedisLocker(t, time.Minute)
	ctx := helpers.TestCtx()

	release, ok, err := l.TryAcquire(ctx, "turn:s1")
	if err != nil || !ok {
		t.Fatalf("first acquire failed: ok=%v err=%v", ok, err)
	}
	if !mr.Exists("console:turn:s1") {
		t.Fatalf("expected prefixed key in redis")
	}
	if _, ok, err := l.TryAcquire(ctx, "turn:s1"); ok || err != nil {
		t.Fatalf("second acquire should fail cleanly: ok=%v err=%v", ok, err)
	}

	release()
	if mr.Exists("console:turn:s1") {
		t.Fatalf("release should delete the key")
	}
	if _, ok, _ := l.TryAcquire(ctx, "turn:s1"); !ok {
		t.Fatalf("acquire after release should succeed")
	}
}

func TestRedisLockExpiresAndStaleReleaseKeepsNewHolder(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	ctx := helpers.TestCtx()

	staleRelease, ok, _ := l.TryAcquire(ctx, "turn:s1")
	if !ok {
		t.Fatalf("first acquire failed")
	}
	mr.FastForward(2 * time.Second)

	_, ok, _ = l.TryAcquire(ctx, "turn:s1")
	if !ok {
		t.Fatalf("expired lock should be re-acquirable")
	}

	staleRelease()
	if !mr.Exists("console:turn:s1") {
		t.Fatalf("stale release must not delete the new holder's lock")
	}
}

func TestRedisLockReportsConnectionErrors(t *testing.T) {
	l, mr := newRedisLocker(t, time.Minute)
	mr.Close()

	if _, ok, err := l.TryAcquire(helpers.TestCtx(), "turn:s1"); ok || err == nil {
		t.Fatalf("expected error when redis is down: ok=%v err=%v", ok, err)
	}
}
