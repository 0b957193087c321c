package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"market-feed/internal/storage"
)

func TestWindowStore_AppendDrain(t *testing.T) {
	store := NewWindowStore()
	ctx := context.Background()

	if err := store.Append(ctx, []string{"a", "b"}, []byte("1")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, []string{"a"}, []byte("2")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := store.Drain(ctx, "a")
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(got) != 2 || string(got[0]) != "1" || string(got[1]) != "2" {
		t.Errorf("Drain(a) = %q, want [1 2]", got)
	}

	again, _ := store.Drain(ctx, "a")
	if len(again) != 0 {
		t.Errorf("second Drain(a) = %q, want empty", again)
	}

	b, _ := store.Drain(ctx, "b")
	if len(b) != 1 {
		t.Errorf("Drain(b) len = %d, want 1", len(b))
	}
}

func TestWindowStore_DrainUnknownList(t *testing.T) {
	store := NewWindowStore()

	got, err := store.Drain(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Drain(missing) = %q, want empty", got)
	}
}

func TestWindowStore_EmptyEntry(t *testing.T) {
	store := NewWindowStore()

	err := store.Append(context.Background(), []string{"a"}, nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestWindowStore_RangeAndTrim(t *testing.T) {
	store := NewWindowStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, []string{"w"}, []byte(fmt.Sprint(i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all, _ := store.Range(ctx, "w")
	if len(all) != 5 {
		t.Fatalf("Range len = %d, want 5", len(all))
	}

	head, _ := store.Head(ctx, "w", 2)
	if len(head) != 2 || string(head[0]) != "0" || string(head[1]) != "1" {
		t.Errorf("Head(2) = %q, want [0 1]", head)
	}
	if head, _ := store.Head(ctx, "w", 10); len(head) != 5 {
		t.Errorf("Head(10) len = %d, want 5", len(head))
	}
	if head, _ := store.Head(ctx, "missing", 3); len(head) != 0 {
		t.Errorf("Head on missing list = %q, want empty", head)
	}

	if err := store.TrimPrefix(ctx, "w", 3); err != nil {
		t.Fatalf("TrimPrefix failed: %v", err)
	}
	rest, _ := store.Range(ctx, "w")
	if len(rest) != 2 || string(rest[0]) != "3" || string(rest[1]) != "4" {
		t.Errorf("after trim Range = %q, want [3 4]", rest)
	}

	if err := store.TrimPrefix(ctx, "w", 10); err != nil {
		t.Fatalf("TrimPrefix failed: %v", err)
	}
	if store.Len("w") != 0 {
		t.Errorf("Len after over-trim = %d, want 0", store.Len("w"))
	}
}

// Concurrent appends racing drains: every entry appears in exactly one drain
// or in the final residue.
func TestWindowStore_DrainExclusivity(t *testing.T) {
	store := NewWindowStore()
	ctx := context.Background()

	const (
		writers   = 8
		perWriter = 500
	)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained [][]byte
	)

	done := make(chan struct{})
	drainerDone := make(chan struct{})
	go func() {
		defer close(drainerDone)
		for {
			got, _ := store.Drain(ctx, "k")
			mu.Lock()
			drained = append(drained, got...)
			mu.Unlock()
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = store.Append(ctx, []string{"k"}, []byte(fmt.Sprintf("%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()
	close(done)
	<-drainerDone

	rest, _ := store.Drain(ctx, "k")
	drained = append(drained, rest...)

	seen := make(map[string]int, writers*perWriter)
	for _, e := range drained {
		seen[string(e)]++
	}
	if len(seen) != writers*perWriter {
		t.Fatalf("distinct entries = %d, want %d", len(seen), writers*perWriter)
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("entry %s drained %d times", k, n)
		}
	}
}
