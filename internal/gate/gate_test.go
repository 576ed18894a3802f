package gate

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	g := New()

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()

	// The permit is back; a second acquire succeeds immediately.
	release, err = g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release()
}

func TestAcquireBlocksWhileHeld(t *testing.T) {
	g := New()

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var second int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		r, err := g.Acquire(context.Background())
		if err != nil {
			t.Errorf("second Acquire: %v", err)
			return
		}
		atomic.StoreInt32(&second, 1)
		r()
	}()

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&second) != 0 {
		t.Fatal("second Acquire succeeded while the gate was held")
	}

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Acquire did not proceed after release")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	g := New()

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := g.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire on held gate = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestLockFileGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.lock")
	g := New(WithLockFile(path))

	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire with lock file: %v", err)
	}
	release()

	// The file lock is released with the permit; reacquisition succeeds.
	release, err = g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("reacquire with lock file: %v", err)
	}
	release()
}

func TestDefaultGateIsShared(t *testing.T) {
	release, err := Default.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire on Default: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := Default.Acquire(ctx); err == nil {
		t.Fatal("Default gate handed out a second permit")
	}
}
