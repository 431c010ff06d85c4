package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/briefs/internal/feed"
	"github.com/deusflow/briefs/internal/lock"
)

func TestConcurrentPublishersShareFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posts.json")
	const (
		writers   = 8
		perWriter = 3
		maxPerDay = 5
	)

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Separate store and locker per writer, as separate processes would have.
			store := feed.NewFileStore(path, lock.NewFileLocker(path+".lock", time.Minute))
			p := &Publisher{Store: store, MaxPerDay: maxPerDay, Cap: 300, Attempts: writers * perWriter * 2, LockWait: 10 * time.Second}
			for i := 0; i < perWriter; i++ {
				_, err := p.Publish(context.Background(), PublishInput{
					Title:     fmt.Sprintf("story %d from writer %d", i, w),
					SourceURL: fmt.Sprintf("https://w%d.example/%d", w, i),
					Locator:   fmt.Sprintf("https://archive.example/w%d-%d", w, i),
					At:        now.Add(time.Duration(w*perWriter+i) * time.Minute),
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Publish: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("feed file: %v", err)
	}
	if !json.Valid(data) {
		t.Fatalf("feed file is not valid JSON:\n%s", data)
	}
	snap, err := feed.NewFileStore(path, nil).Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if n := feed.CountOnDay(snap.Cards, now); n != maxPerDay {
		t.Fatalf("cards on day = %d, want %d", n, maxPerDay)
	}
	sources := make(map[string]bool)
	locators := make(map[string]bool)
	ids := make(map[string]bool)
	for _, c := range snap.Cards {
		if sources[c.SourceURL] || locators[c.ArchiveURL] || ids[c.ID] {
			t.Fatalf("repeated card %+v", c)
		}
		sources[c.SourceURL], locators[c.ArchiveURL], ids[c.ID] = true, true, true
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}
}
