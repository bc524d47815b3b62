package orchestrator

import (
	"context"
	"sync"
)

// StartHeartbeatLoop launches the §4.4 heartbeat task. Each tick snapshots
// attached URLs, expires stale ones (adding them to R and detaching
// them), and concurrently probes the rest's /health endpoint without
// expiring on a single failed probe — expiry is time-based only.
func (o *Orchestrator) StartHeartbeatLoop(ctx context.Context) {
	if o.heartbeatLoop == nil {
		o.heartbeatLoop = newLoopRunner(o.timing.HeartbeatInterval, o.heartbeatTick)
	}
	o.heartbeatLoop.Start(ctx)
}

// StopHeartbeatLoop halts the heartbeat task and waits for it to exit.
func (o *Orchestrator) StopHeartbeatLoop() {
	if o.heartbeatLoop != nil {
		o.heartbeatLoop.Stop()
	}
}

func (o *Orchestrator) heartbeatTick(ctx context.Context) {
	// Step 1-2: snapshot and classify expired URLs.
	expired := o.reg.ExpiredURLs(o.timing.HeartbeatTimeout)

	// Step 3: detach all expired URLs in parallel; errors logged, never raised.
	var wg sync.WaitGroup
	for _, url := range expired {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			o.pending.Add(url)
			o.Detach(url)
			o.logger.Warn("tool server expired, detached and queued for reconnection", "url", url)
		}(url)
	}
	wg.Wait()

	expiredSet := make(map[string]struct{}, len(expired))
	for _, url := range expired {
		expiredSet[url] = struct{}{}
	}

	// Step 4-5: probe every non-expired URL concurrently.
	urls := o.reg.AllServiceURLs()
	var probeWg sync.WaitGroup
	for _, url := range urls {
		if _, isExpired := expiredSet[url]; isExpired {
			continue
		}
		probeWg.Add(1)
		go func(url string) {
			defer probeWg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, o.timing.HTTPTimeout)
			defer cancel()
			if err := o.probeHealth(probeCtx, url); err != nil {
				o.logger.Debug("health probe failed, leaving expiry to the timestamp clock", "url", url, "error", err)
				return
			}
			o.reg.UpdateHealth(url)
		}(url)
	}
	probeWg.Wait()
}
