package orchestrator

import (
	"context"
	"sync"

	"github.com/toolfleet/orchestrator/internal/toolserver"
)

// StartReconnectLoop launches the §4.5 reconnection task. Each tick
// snapshots R and concurrently retries Attach for every member; a
// success removes the URL from R as a side effect of Attach step 6, a
// failure leaves it for the next tick. No backoff is layered across
// ticks — the interval itself is the backoff.
func (o *Orchestrator) StartReconnectLoop(ctx context.Context) {
	if o.reconnectLoop == nil {
		o.reconnectLoop = newLoopRunner(o.timing.ReconnectionInterval, o.reconnectTick)
	}
	o.reconnectLoop.Start(ctx)
}

// StopReconnectLoop halts the reconnection task and waits for it to exit.
func (o *Orchestrator) StopReconnectLoop() {
	if o.reconnectLoop != nil {
		o.reconnectLoop.Stop()
	}
}

func (o *Orchestrator) reconnectTick(ctx context.Context) {
	urls := o.pending.Snapshot()

	var wg sync.WaitGroup
	for _, url := range urls {
		cfg, ok := o.configFor(url)
		if !ok {
			// No known config to retry with; nothing we can do until a
			// fresh /register call supplies one.
			continue
		}
		wg.Add(1)
		go func(cfg toolserver.Config) {
			defer wg.Done()
			if _, err := o.Attach(ctx, cfg); err != nil {
				o.logger.Debug("reconnect attempt failed, leaving in pending set", "url", cfg.URL, "error", err)
			}
		}(cfg)
	}
	wg.Wait()
}
