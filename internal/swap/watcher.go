// Package swap - background polling: funding confirmation and preimage reveal watchers.
// Both are thin loops around the coordinator's idempotent operations.
package swap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marswap-exchange/marswapd/internal/backend"
	"github.com/marswap-exchange/marswapd/pkg/logging"
)

// PreimageEvent is emitted when a watcher recovers a hashlock secret.
type PreimageEvent struct {
	SwapID    string
	Preimage  []byte
	Timestamp time.Time
}

// Watcher polls chain state for tracked swaps. One goroutine per watched
// swap; all stop when the watcher stops.
type Watcher struct {
	mu sync.Mutex

	coordinator *Coordinator
	interval    time.Duration
	log         *logging.Logger

	cancels map[string]context.CancelFunc
	events  chan PreimageEvent

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher polling at the given interval.
func NewWatcher(coordinator *Coordinator, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		coordinator: coordinator,
		interval:    interval,
		log:         logging.Default().Component("watcher"),
		cancels:     make(map[string]context.CancelFunc),
		events:      make(chan PreimageEvent, 16),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Events returns the preimage reveal channel.
func (w *Watcher) Events() <-chan PreimageEvent {
	return w.events
}

// WatchFunding polls VerifyFunding until the swap is funded or terminal.
func (w *Watcher) WatchFunding(rec *Record) {
	w.watch(rec.ID+"/funding", func(ctx context.Context) bool {
		if rec.Status != StatusInitialized {
			return true
		}
		report, err := w.coordinator.VerifyFunding(ctx, rec)
		if err != nil {
			if !errors.Is(err, backend.ErrChainUnavailable) {
				w.log.Error("funding check failed", "swap_id", rec.ID, "error", err)
			}
			return false
		}
		return report.BothFunded
	})
}

// WatchPreimage polls WatchForPreimage until a secret is recovered or the
// swap reaches a terminal state. Recovered secrets are published on Events.
func (w *Watcher) WatchPreimage(rec *Record) {
	w.watch(rec.ID+"/preimage", func(ctx context.Context) bool {
		if rec.IsTerminal() && rec.Status != StatusCompleted {
			return true
		}
		preimage, err := w.coordinator.WatchForPreimage(ctx, rec)
		if err != nil {
			if !errors.Is(err, backend.ErrChainUnavailable) &&
				!errors.Is(err, backend.ErrNotSupported) {
				w.log.Error("preimage check failed", "swap_id", rec.ID, "error", err)
			}
			return false
		}
		if preimage == nil {
			return false
		}
		select {
		case w.events <- PreimageEvent{SwapID: rec.ID, Preimage: preimage, Timestamp: time.Now()}:
		case <-ctx.Done():
		}
		return true
	})
}

// watch runs step on every tick until it reports done or the watcher stops.
func (w *Watcher) watch(key string, step func(ctx context.Context) bool) {
	w.mu.Lock()
	if _, exists := w.cancels[key]; exists {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(w.ctx)
	w.cancels[key] = cancel
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.cancels, key)
			w.mu.Unlock()
		}()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if step(ctx) {
					return
				}
			}
		}
	}()
}

// StopSwap cancels all watch loops for one swap.
func (w *Watcher) StopSwap(swapID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, cancel := range w.cancels {
		if key == swapID+"/funding" || key == swapID+"/preimage" {
			cancel()
			delete(w.cancels, key)
		}
	}
}

// Stop cancels every watch loop.
func (w *Watcher) Stop() {
	w.cancel()
}
