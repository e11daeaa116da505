package server

import (
	"fmt"
	"sort"
	"time"

	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/scheduler/domain"
)

// entryState is the loop-private bookkeeping around one queue entry. Executors
// never touch it; they report back through callbacks that run on the loop.
type entryState struct {
	entry *domain.QueueEntry

	// Closed to tell this entry's executors to stop between scenarios.
	stopCh   chan struct{}
	stopping bool

	// Results from executors that finished, keyed by device id.
	results map[string]domain.DeviceResult

	// Whether executors were ever spawned. False for entries cancelled while
	// still pending.
	executorsSpawned bool

	// Guards the in-flight RunEnded journal write so completion is attempted
	// once at a time; cleared on write failure so the next pass retries.
	endingLog bool

	// True for entries re-admitted from the run log after a restart.
	recovered bool

	waitLatency stats.Latency
	runLatency  stats.Latency
}

func newEntryState(entry *domain.QueueEntry) *entryState {
	return &entryState{
		entry:   entry,
		stopCh:  make(chan struct{}),
		results: make(map[string]domain.DeviceResult),
	}
}

func (es *entryState) String() string {
	return fmt.Sprintf("entryState{%s, stopping:%t, done:%d/%d}",
		es.entry, es.stopping, len(es.results), len(es.entry.DeviceIds))
}

// signalStop asks the entry's executors to wind down. Safe to call more than
// once.
func (es *entryState) signalStop() {
	if es.stopping {
		return
	}
	es.stopping = true
	close(es.stopCh)
}

// deviceDone records one executor's result. Each device gets exactly one
// executor, so a second report for the same device is a bug in the loop's
// spawning logic, not a condition to recover from.
func (es *entryState) deviceDone(result domain.DeviceResult) {
	if _, ok := es.results[result.DeviceId]; ok {
		panic(fmt.Sprintf("Device %s reported twice for entry %s", result.DeviceId, es.entry.EntryId))
	}
	es.results[result.DeviceId] = result
}

func (es *entryState) allDevicesDone() bool {
	return len(es.results) == len(es.entry.DeviceIds)
}

// readyToFinalize reports whether the entry has nothing left to wait for: all
// executors reported back, or none ever started because the entry was
// cancelled while pending.
func (es *entryState) readyToFinalize() bool {
	if !es.executorsSpawned {
		return es.entry.Status.Terminal()
	}
	return es.allDevicesDone()
}

// fold builds the entry's history record from the executor results. Devices
// that never produced a result (a pending entry cancelled before starting)
// appear as idle rows with zero counts.
func (es *entryState) fold(status domain.EntryStatus, completedAt time.Time) domain.CompletedRecord {
	req := es.entry.Request
	results := make([]domain.DeviceResult, 0, len(es.entry.DeviceIds))
	for _, id := range es.entry.DeviceIds {
		if r, ok := es.results[id]; ok {
			results = append(results, r)
			continue
		}
		results = append(results, domain.DeviceResult{
			DeviceId: id,
			Status:   domain.DeviceIdle,
			Total:    req.TotalScenarios(),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DeviceId < results[j].DeviceId })

	var duration time.Duration
	if !es.entry.StartedAt.IsZero() {
		duration = completedAt.Sub(es.entry.StartedAt)
	}
	return domain.CompletedRecord{
		EntryId:     es.entry.EntryId,
		Kind:        req.Kind,
		DisplayName: req.DisplayName,
		Requester:   req.Requester,
		Status:      status,
		Devices:     results,
		Duration:    duration,
		CompletedAt: completedAt,
	}
}
