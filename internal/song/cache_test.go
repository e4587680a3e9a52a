package song

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sydlexius/anisongdb/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingLoader struct {
	calls atomic.Int32
	err   error
}

func (l *countingLoader) load(context.Context) (*Corpus, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return testCorpus(), nil
}

func TestCache_LoadsOnce(t *testing.T) {
	loader := &countingLoader{}
	c := NewCache(loader.load, 0, nil, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			corpus, err := c.Get(ctx)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if corpus.Len() != 4 {
				t.Errorf("corpus len = %d, want 4", corpus.Len())
			}
		}()
	}
	wg.Wait()

	if n := loader.calls.Load(); n != 1 {
		t.Errorf("loader calls = %d, want 1", n)
	}
}

func TestCache_InvalidateAndRefresh(t *testing.T) {
	loader := &countingLoader{}
	c := NewCache(loader.load, 0, nil, testLogger())
	ctx := context.Background()

	first, err := c.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Invalidate()
	if _, ok := c.Peek(); ok {
		t.Error("Peek after Invalidate should miss")
	}
	second, err := c.Get(ctx)
	if err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if first == second {
		t.Error("expected a fresh corpus after Invalidate")
	}

	loader.err = errors.New("database locked")
	if _, err := c.Refresh(ctx); err == nil {
		t.Fatal("expected Refresh to fail")
	}
	kept, ok := c.Peek()
	if !ok || kept != second {
		t.Error("failed Refresh should keep the previous corpus")
	}
	if n := loader.calls.Load(); n != 3 {
		t.Errorf("loader calls = %d, want 3", n)
	}
}

func TestCache_Put(t *testing.T) {
	loader := &countingLoader{}
	c := NewCache(loader.load, 0, nil, testLogger())

	seeded := NewCorpus(nil)
	c.Put(seeded)
	got, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != seeded {
		t.Error("Get should return the seeded corpus")
	}
	if n := loader.calls.Load(); n != 0 {
		t.Errorf("loader calls = %d, want 0", n)
	}
}

func TestCache_TTLExpires(t *testing.T) {
	loader := &countingLoader{}
	c := NewCache(loader.load, 20*time.Millisecond, nil, testLogger())
	ctx := context.Background()

	if _, err := c.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := c.Get(ctx); err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Errorf("loader calls = %d, want 2", n)
	}
}

func TestCache_InvalidateOnEvent(t *testing.T) {
	bus := event.NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	loader := &countingLoader{}
	c := NewCache(loader.load, 0, nil, testLogger())
	c.InvalidateOn(bus, event.DatabaseChanged)

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	bus.Publish(event.Event{Type: event.DatabaseChanged})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Peek(); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("corpus still cached after database.changed event")
}
