package main

import (
	"context"
	"time"

	"github.com/nerrad567/robojar-core/internal/device"
	"github.com/nerrad567/robojar-core/internal/infrastructure/logging"
	"github.com/nerrad567/robojar-core/internal/metrics"
)

// monitor polls every machine each interval until ctx is cancelled. Each
// poll refreshes the state gauge and writes a system ledger row when the
// state differs from the last one recorded.
func monitor(ctx context.Context, machines []*device.Machine, interval time.Duration, m *metrics.Metrics, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollAll(machines, m, log)
		}
	}
}

func pollAll(machines []*device.Machine, m *metrics.Metrics, log *logging.Logger) {
	for _, mach := range machines {
		state, err := mach.Poll()
		if err != nil {
			m.RecordLedgerFailure()
			log.Warn("poll ledger write failed", "device", mach.Name(), "error", err)
		}
		m.SetDeviceState(mach.Name(), mach.Kind(), state)
		log.Debug("polled", "device", mach.Name(), "state", state)
	}
}

// historyPruner is the part of history.Repository the retention loop uses.
type historyPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistory deletes history older than retention once at start and then
// every interval until ctx is cancelled.
func pruneHistory(ctx context.Context, repo historyPruner, retention, interval time.Duration, log *logging.Logger) {
	prune := func() {
		n, err := repo.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("pruning history failed", "error", err)
			}
			return
		}
		if n > 0 {
			log.Info("pruned history", "removed", n, "retention", retention)
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
