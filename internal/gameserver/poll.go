package gameserver

import (
	"context"
	"time"
)

// PollInterval is how often the transport is advanced, per §4.12's suspend
// points ("alternates transport.Poll() and a 15 ms sleep").
const PollInterval = 15 * time.Millisecond

// RunPollLoop advances t every PollInterval until ctx is cancelled. It runs
// on its own goroutine; handlers invoked from t.Poll() must not block, per
// the concurrency model's "game clients emit from their own loop and never
// block inside handler callbacks."
func RunPollLoop(ctx context.Context, t Transport, onError func(error)) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Poll(); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
