package synclock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/jobvalidator/internal/config"
)

func TestLocal_Exclusive(t *testing.T) {
	var l Local
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire err = %v, want ErrHeld", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	release2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}

	// A stale release must not free someone else's hold.
	release(ctx)
	if _, err := l.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Errorf("double release freed the lock: %v", err)
	}
	release2(ctx)
}

func TestNew_LocalWithoutRedis(t *testing.T) {
	l, closeFn, err := New(context.Background(), config.LockConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()
	if _, ok := l.(*Local); !ok {
		t.Errorf("locker = %T, want *Local", l)
	}
}

func TestKeepAlive_RefreshesUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()
	n := calls.Load()
	if n < 3 {
		t.Fatalf("refresh called %d times, want at least 3", n)
	}
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != n {
		t.Errorf("refresh called %d times after stop", got-n)
	}
	stop()
}

func TestKeepAlive_StopsOnRefreshError(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("lock lost")
	})
	time.Sleep(50 * time.Millisecond)
	stop()
	if got := calls.Load(); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
}

func TestRefreshInterval(t *testing.T) {
	if got := refreshInterval(3 * time.Minute); got != time.Minute {
		t.Errorf("refreshInterval(3m) = %v", got)
	}
	if got := refreshInterval(time.Millisecond); got != 10*time.Millisecond {
		t.Errorf("refreshInterval(1ms) = %v", got)
	}
}
