package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	verrouerrors "github.com/florian-lefebvre/verrou/errors"
)

func TestSaveMutualExclusion(t *testing.T) {
	s := New()
	ctx := context.Background()
	ok, err := s.Save(ctx, "k", "o1", time.Second)
	if err != nil || !ok {
		t.Fatalf("save o1: ok %v err %v", ok, err)
	}
	if ok, err := s.Save(ctx, "k", "o2", time.Second); err != nil || ok {
		t.Fatalf("expected o2 save to fail while o1 holds, ok %v err %v", ok, err)
	}
	if err := s.Delete(ctx, "k", "o1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, err := s.Save(ctx, "k", "o2", time.Second); err != nil || !ok {
		t.Fatalf("expected o2 save to succeed after release, ok %v err %v", ok, err)
	}
}

func TestConcurrentSaveSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	const competitors = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < competitors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.Save(ctx, "k", fmt.Sprintf("owner-%d", i), 0)
			if err != nil {
				t.Errorf("save: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("%d concurrent savers won, want exactly 1", winners)
	}
}

func TestLazyExpiryReclamation(t *testing.T) {
	s := New()
	ctx := context.Background()
	if ok, _ := s.Save(ctx, "k", "o1", 10*time.Millisecond); !ok {
		t.Fatal("initial save failed")
	}
	time.Sleep(25 * time.Millisecond)
	// No explicit delete: the expired hold is reclaimed by the next save.
	ok, err := s.Save(ctx, "k", "o2", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected o2 to reclaim the expired lease, ok %v err %v", ok, err)
	}
	if err := s.Delete(ctx, "k", "o1"); !errors.Is(err, verrouerrors.ErrLockNotOwned) {
		t.Fatalf("stale owner delete: expected ErrLockNotOwned, got %v", err)
	}
}

func TestUnboundedLeaseNeverReclaimed(t *testing.T) {
	s := New()
	ctx := context.Background()
	if ok, _ := s.Save(ctx, "k", "o1", 0); !ok {
		t.Fatal("initial save failed")
	}
	time.Sleep(10 * time.Millisecond)
	if ok, _ := s.Save(ctx, "k", "o2", 0); ok {
		t.Fatal("unbounded lease was reclaimed without force delete")
	}
	if err := s.ForceDelete(ctx, "k"); err != nil {
		t.Fatalf("force delete: %v", err)
	}
	if ok, _ := s.Save(ctx, "k", "o2", 0); !ok {
		t.Fatal("save failed after force delete")
	}
}

func TestExtendOwnership(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Extend(ctx, "absent", "o1", time.Second); !errors.Is(err, verrouerrors.ErrLockNotOwned) {
		t.Fatalf("extend on absent key: expected ErrLockNotOwned, got %v", err)
	}
	if ok, _ := s.Save(ctx, "k", "o1", 30*time.Millisecond); !ok {
		t.Fatal("save failed")
	}
	if err := s.Extend(ctx, "k", "o2", time.Second); !errors.Is(err, verrouerrors.ErrLockNotOwned) {
		t.Fatalf("extend by non-owner: expected ErrLockNotOwned, got %v", err)
	}
	if err := s.Extend(ctx, "k", "o1", time.Second); err != nil {
		t.Fatalf("extend by owner: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	// The extension pushed the expiry past the original 30ms.
	if held, _ := s.Exists(ctx, "k"); !held {
		t.Fatal("lease expired despite the extension")
	}
}

func TestDeleteOwnership(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Delete(ctx, "absent", "o1"); !errors.Is(err, verrouerrors.ErrLockNotOwned) {
		t.Fatalf("delete on absent key: expected ErrLockNotOwned, got %v", err)
	}
	if ok, _ := s.Save(ctx, "k", "o1", time.Second); !ok {
		t.Fatal("save failed")
	}
	if err := s.Delete(ctx, "k", "o2"); !errors.Is(err, verrouerrors.ErrLockNotOwned) {
		t.Fatalf("delete by non-owner: expected ErrLockNotOwned, got %v", err)
	}
	if err := s.Delete(ctx, "k", "o1"); err != nil {
		t.Fatalf("delete by owner: %v", err)
	}
	// The entry is retained but free; deleting again is a non-held delete.
	if err := s.Delete(ctx, "k", "o1"); !errors.Is(err, verrouerrors.ErrLockNotOwned) {
		t.Fatalf("delete on free entry: expected ErrLockNotOwned, got %v", err)
	}
}

func TestForceDeleteIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.ForceDelete(ctx, "never-seen"); err != nil {
		t.Fatalf("force delete on unknown key: %v", err)
	}
	if ok, _ := s.Save(ctx, "k", "o1", time.Second); !ok {
		t.Fatal("save failed")
	}
	if err := s.ForceDelete(ctx, "k"); err != nil {
		t.Fatalf("force delete: %v", err)
	}
	if err := s.ForceDelete(ctx, "k"); err != nil {
		t.Fatalf("second force delete: %v", err)
	}
	if held, _ := s.Exists(ctx, "k"); held {
		t.Fatal("key still held after force delete")
	}
}

func TestExistsReflectsExpiry(t *testing.T) {
	s := New()
	ctx := context.Background()
	if held, _ := s.Exists(ctx, "k"); held {
		t.Fatal("exists true for a never-seen key")
	}
	if ok, _ := s.Save(ctx, "k", "o1", 15*time.Millisecond); !ok {
		t.Fatal("save failed")
	}
	if held, _ := s.Exists(ctx, "k"); !held {
		t.Fatal("exists false right after save")
	}
	time.Sleep(30 * time.Millisecond)
	// Still held slot-wise, but the lease has lapsed.
	if held, _ := s.Exists(ctx, "k"); held {
		t.Fatal("exists true for an expired lease")
	}
}

func TestSaveCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, "k", "o1", 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
