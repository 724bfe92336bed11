package summary

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

func TestRefreshStoresSnapshot(t *testing.T) {
	r := NewRefresher(func(ctx context.Context) (model.Totals, error) {
		return model.Totals{Income: 100, Expense: 40, Balance: 60}, nil
	}, nil)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap, ok := r.Snapshot()
	if !ok {
		t.Fatal("no snapshot after successful refresh")
	}
	if snap.Income != 100 || snap.Expense != 40 || snap.Balance != 60 {
		t.Errorf("snapshot = %+v", snap)
	}
	if r.Busy() || r.Failed() {
		t.Errorf("busy=%v failed=%v after success", r.Busy(), r.Failed())
	}
}

func TestRefreshFailureKeepsPriorSnapshot(t *testing.T) {
	var fail atomic.Bool
	r := NewRefresher(func(ctx context.Context) (model.Totals, error) {
		if fail.Load() {
			return model.Totals{}, errors.New("backend down")
		}
		return model.Totals{Income: 10, Expense: 5, Balance: 5}, nil
	}, nil)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	fail.Store(true)
	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("second Refresh succeeded, want error")
	}
	if !r.Failed() {
		t.Error("Failed() = false after failed refresh")
	}
	snap, ok := r.Snapshot()
	if !ok || snap.Income != 10 {
		t.Errorf("prior snapshot lost: %+v ok=%v", snap, ok)
	}
}

func TestNewerRefreshSupersedesOlder(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	r := NewRefresher(func(ctx context.Context) (model.Totals, error) {
		if calls.Add(1) == 1 {
			select {
			case <-release:
			case <-ctx.Done():
				return model.Totals{}, ctx.Err()
			}
			// Even if the first fetch errored out here, its result must
			// not surface once a newer refresh has started.
			return model.Totals{}, errors.New("stale failure")
		}
		return model.Totals{Income: 7, Expense: 2, Balance: 5}, nil
	}, nil)

	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()

	// Wait until the first fetch is parked.
	deadline := time.After(time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first fetch never started")
		case <-time.After(time.Millisecond):
		}
	}

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("superseded refresh returned %v, want nil", err)
	}
	if r.Failed() {
		t.Error("stale failure set Failed()")
	}
	snap, ok := r.Snapshot()
	if !ok || snap.Income != 7 {
		t.Errorf("snapshot = %+v ok=%v, want the newer fetch's result", snap, ok)
	}
}

func TestCancelledRefreshIsSilent(t *testing.T) {
	r := NewRefresher(func(ctx context.Context) (model.Totals, error) {
		<-ctx.Done()
		return model.Totals{}, ctx.Err()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Refresh(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Errorf("cancelled refresh returned %v, want nil", err)
	}
	if r.Failed() {
		t.Error("cancellation marked the refresher failed")
	}
}

func TestStopCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	r := NewRefresher(func(ctx context.Context) (model.Totals, error) {
		close(started)
		<-ctx.Done()
		return model.Totals{}, ctx.Err()
	}, nil)

	done := make(chan error, 1)
	go func() { done <- r.Refresh(context.Background()) }()
	<-started
	r.Stop()
	if err := <-done; err != nil {
		t.Errorf("stopped refresh returned %v, want nil", err)
	}
}

func TestOnChangeFires(t *testing.T) {
	var n atomic.Int64
	r := NewRefresher(func(ctx context.Context) (model.Totals, error) {
		return model.Totals{}, nil
	}, func() { n.Add(1) })

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n.Load() < 2 {
		t.Errorf("onChange fired %d times, want at least start and finish", n.Load())
	}
}
