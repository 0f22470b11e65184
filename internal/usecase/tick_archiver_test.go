package usecase

import (
	"context"
	"testing"
	"time"

	"BinPull/internal/domain/models"
)

func TestTickArchiverFlushesOnSize(t *testing.T) {
	store := &fakeTickStore{}
	a := NewTickArchiver(store, nil, nil, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	for _, tk := range makeTicks("R_100", 3, 1) {
		a.Add(tk)
	}
	eventually(t, func() bool { return store.total() == 3 }, "size flush")
}

func TestTickArchiverFlushesOnTimeoutAndExit(t *testing.T) {
	store := &fakeTickStore{}
	a := NewTickArchiver(store, nil, nil, 100, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { a.Run(ctx); close(done) }()

	a.Add(models.Tick{Symbol: "R_100", Price: 1, Epoch: 1})
	eventually(t, func() bool { return store.total() == 1 }, "timeout flush")

	a.Add(models.Tick{Symbol: "R_100", Price: 1, Epoch: 2})
	a.Add(models.Tick{Symbol: "R_100", Price: 1, Epoch: 3})
	cancel()
	<-done
	if got := store.total(); got != 3 {
		t.Fatalf("archived %d ticks after shutdown, want 3", got)
	}
}
