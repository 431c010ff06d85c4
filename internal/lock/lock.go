// Package lock provides cross-process mutual exclusion for feed writers.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when the lock could not be taken before ctx ended.
var ErrLocked = errors.New("lock is held by another writer")

type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

const pollInterval = 100 * time.Millisecond

// FileLocker uses an O_EXCL lock file holding a per-acquisition token. A lock
// file older than TTL is treated as left behind by a crashed run and taken
// over. Unlock only removes the file while it still holds the caller's token.
type FileLocker struct {
	Path string
	TTL  time.Duration
}

func NewFileLocker(path string, ttl time.Duration) *FileLocker {
	return &FileLocker{Path: path, TTL: ttl}
}

func (l *FileLocker) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	token := newToken()
	for {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(token)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(l.Path)
				return nil, fmt.Errorf("failed to write lock file: %w", werr)
			}
			return func() { l.release(token) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		if l.takeOverStale(token) {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLocked, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// takeOverStale moves an expired lock file aside. Takers serialize on a
// guard file and re-check the lock under it, so a fresh lock created by
// another taker is never moved.
func (l *FileLocker) takeOverStale(token string) bool {
	if l.TTL <= 0 || !l.expired(l.Path) {
		return false
	}
	unguard, ok := l.guard()
	if !ok {
		return false
	}
	defer unguard()

	if !l.expired(l.Path) {
		return false
	}
	aside := l.Path + ".stale-" + token
	if err := os.Rename(l.Path, aside); err != nil {
		return false
	}
	os.Remove(aside)
	return true
}

// release removes the lock file only if it still carries token. It holds the
// takeover guard while checking so a takeover cannot slip in between.
func (l *FileLocker) release(token string) {
	deadline := time.Now().Add(time.Second)
	unguard, ok := l.guard()
	for !ok && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		unguard, ok = l.guard()
	}
	if ok {
		defer unguard()
	}

	data, err := os.ReadFile(l.Path)
	if err != nil || string(data) != token {
		return
	}
	os.Remove(l.Path)
}

func (l *FileLocker) guard() (func(), bool) {
	path := l.Path + ".takeover"
	g, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		// A guard outlives its owner only after a crash.
		if errors.Is(err, os.ErrExist) && l.TTL > 0 && l.expired(path) {
			os.Remove(path)
		}
		return nil, false
	}
	g.Close()
	return func() { os.Remove(path) }, true
}

func (l *FileLocker) expired(path string) bool {
	info, err := os.Stat(path)
	return err == nil && time.Since(info.ModTime()) > l.TTL
}

// RedisLocker takes a SET NX PX lock and releases it only if the token still
// matches, so an expired holder cannot free somebody else's lock.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// NewRedisLockerFromURL parses a redis:// URL.
func NewRedisLockerFromURL(rawURL, key string, ttl time.Duration) (*RedisLocker, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return NewRedisLocker(redis.NewClient(opts), key, ttl), nil
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := newToken()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		if ok {
			return func() {
				// Background context: the caller's may already be done.
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				releaseScript.Run(ctx, l.client, []string{l.key}, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLocked, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
