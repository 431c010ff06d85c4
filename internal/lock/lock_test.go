package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileLockerExcludes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.lock")
	l := NewFileLocker(path, time.Minute)

	unlock, err := l.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Lock err = %v, want ErrLocked", err)
	}

	unlock()
	unlock2, err := l.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock after unlock: %v", err)
	}
	unlock2()
}

func TestFileLockerTakesOverStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.lock")
	if err := os.WriteFile(path, []byte("999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock, err := NewFileLocker(path, time.Minute).Lock(ctx)
	if err != nil {
		t.Fatalf("stale lock not taken over: %v", err)
	}
	unlock()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("lock file not removed on unlock")
	}
}

func TestFileLockerUnlockAfterTakeoverKeepsNewHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.lock")
	ttl := 200 * time.Millisecond

	unlockA, err := NewFileLocker(path, ttl).Lock(context.Background())
	if err != nil {
		t.Fatalf("A Lock: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := NewFileLocker(path, ttl).Lock(ctx)
	if err != nil {
		t.Fatalf("B did not take over expired lock: %v", err)
	}
	defer unlockB()

	// A finishes late and must not free B's lock.
	unlockA()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("B's lock file gone after A unlocked: %v", err)
	}

	ctxC, cancelC := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancelC()
	if unlockC, err := NewFileLocker(path, ttl).Lock(ctxC); !errors.Is(err, ErrLocked) {
		if unlockC != nil {
			unlockC()
		}
		t.Fatalf("C Lock err = %v while B holds the lock, want ErrLocked", err)
	}
}

func TestFileLockerStaleTakeoverSingleWinner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.lock")
	if err := os.WriteFile(path, []byte("999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	const writers = 6
	var held, maxHeld atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			unlock, err := NewFileLocker(path, time.Minute).Lock(ctx)
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := held.Add(1)
			for {
				m := maxHeld.Load()
				if n <= m || maxHeld.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			held.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if m := maxHeld.Load(); m != 1 {
		t.Fatalf("%d writers held the lock at once", m)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("leftover files after all unlocks: %d", len(entries))
	}
}

func TestRedisLockerFromURL(t *testing.T) {
	if _, err := NewRedisLockerFromURL("not a url", "k", time.Second); err == nil {
		t.Fatalf("expected error for invalid url")
	}
	l, err := NewRedisLockerFromURL("redis://localhost:6379/0", "briefs:feed", time.Second)
	if err != nil {
		t.Fatalf("NewRedisLockerFromURL: %v", err)
	}
	defer l.Close()
	if l.key != "briefs:feed" || l.ttl != time.Second {
		t.Fatalf("unexpected locker: %+v", l)
	}
}
