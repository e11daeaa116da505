package server

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/testfarm/testfarm/scenarios"
	"github.com/testfarm/testfarm/scheduler/domain"
	"github.com/testfarm/testfarm/session"
)

const (
	// DefaultProgressPublishInterval throttles run-progress events per entry.
	// Device and scenario events are never throttled.
	DefaultProgressPublishInterval = 500 * time.Millisecond

	// Cap on remembered per-scenario average durations.
	scenarioDurationsCacheSize = 10000
)

// averageDuration tracks the running average duration for one scenario id.
type averageDuration struct {
	count    int64
	duration time.Duration
}

func (ad *averageDuration) update(d time.Duration) {
	ad.count++
	ad.duration = ad.duration + (d-ad.duration)/time.Duration(ad.count)
}

func addOrUpdateScenarioDuration(durations *lru.Cache, id string, d time.Duration) {
	if !durations.Contains(id) {
		durations.Add(id, &averageDuration{count: 1, duration: d})
		return
	}
	iface, ok := durations.Get(id)
	if !ok {
		return
	}
	if ad, ok := iface.(*averageDuration); ok {
		ad.update(d)
	}
}

// entryProgress is the aggregator's per-entry record: one counter row per
// device plus the entry's run-progress rate limiter.
type entryProgress struct {
	req     *domain.RunRequest
	order   []string
	devices map[string]*domain.DeviceProgress
	limiter *rate.Limiter
}

// ProgressAggregator folds executor activity into per-device and per-run
// counters and republishes it as events. Executors call it from their own
// goroutines, so unlike the rest of the scheduler state it is mutex guarded
// rather than loop owned.
type ProgressAggregator struct {
	mu          sync.Mutex
	entries     map[string]*entryProgress
	durations   *lru.Cache
	broadcaster *Broadcaster
	interval    time.Duration
}

func NewProgressAggregator(broadcaster *Broadcaster, publishInterval time.Duration) *ProgressAggregator {
	if publishInterval <= 0 {
		publishInterval = DefaultProgressPublishInterval
	}
	durations, err := lru.New(scenarioDurationsCacheSize)
	if err != nil {
		log.Errorf("Failed to create scenario durations cache: %v", err)
	}
	return &ProgressAggregator{
		entries:     make(map[string]*entryProgress),
		durations:   durations,
		broadcaster: broadcaster,
		interval:    publishInterval,
	}
}

// StartEntry registers an entry that is about to run, with every device idle.
func (p *ProgressAggregator) StartEntry(entry *domain.QueueEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep := &entryProgress{
		req:     entry.Request,
		order:   append([]string(nil), entry.DeviceIds...),
		devices: make(map[string]*domain.DeviceProgress),
		limiter: rate.NewLimiter(rate.Every(p.interval), 1),
	}
	for _, id := range entry.DeviceIds {
		ep.devices[id] = &domain.DeviceProgress{
			DeviceId: id,
			EntryId:  entry.EntryId,
			Status:   domain.DeviceIdle,
			Total:    entry.Request.TotalScenarios(),
		}
	}
	p.entries[entry.EntryId] = ep
}

// RemoveEntry forgets a finished entry. Scenario duration averages survive
// for future estimates.
func (p *ProgressAggregator) RemoveEntry(entryId string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, entryId)
}

func (p *ProgressAggregator) DeviceStarted(entryId string, deviceId string) {
	p.mu.Lock()
	ep, dp := p.row(entryId, deviceId)
	if dp != nil {
		dp.Status = domain.DeviceRunning
	}
	requester := ""
	if ep != nil {
		requester = ep.req.Requester
	}
	p.mu.Unlock()

	p.broadcaster.Publish(domain.Event{
		Type:         domain.EventDeviceStarted,
		EntryId:      entryId,
		Requester:    requester,
		DeviceId:     deviceId,
		DeviceStatus: domain.DeviceRunning,
	})
}

func (p *ProgressAggregator) ScenarioStarted(entryId string, deviceId string, sc scenarios.Scenario, attempt int) {
	p.mu.Lock()
	ep, dp := p.row(entryId, deviceId)
	if dp != nil {
		dp.ScenarioId = sc.Id
		dp.ScenarioName = sc.Name
	}
	requester := ""
	if ep != nil {
		requester = ep.req.Requester
	}
	p.mu.Unlock()

	p.broadcaster.Publish(domain.Event{
		Type:         domain.EventScenarioStarted,
		EntryId:      entryId,
		Requester:    requester,
		DeviceId:     deviceId,
		ScenarioId:   sc.Id,
		ScenarioName: sc.Name,
		Attempt:      attempt,
	})
}

// StepFailed forwards a failing step report verbatim. It mutates no counters;
// the scenario's own completion decides pass or fail.
func (p *ProgressAggregator) StepFailed(entryId string, deviceId string, ev session.StepEvent) {
	p.broadcaster.Publish(domain.Event{
		Type:       domain.EventStepFailed,
		EntryId:    entryId,
		DeviceId:   deviceId,
		ScenarioId: ev.ScenarioId,
		Step:       ev.Step,
		Detail:     ev.Detail,
	})
}

func (p *ProgressAggregator) ScenarioCompleted(entryId string, deviceId string, sc scenarios.Scenario, attempt int, passed bool, dur time.Duration) {
	p.mu.Lock()
	ep, dp := p.row(entryId, deviceId)
	if dp != nil {
		if passed {
			dp.Completed++
		} else {
			dp.Failed++
		}
		dp.ScenarioId = ""
		dp.ScenarioName = ""
	}
	if p.durations != nil {
		addOrUpdateScenarioDuration(p.durations, sc.Id, dur)
	}
	requester := ""
	var snap *domain.RunProgress
	if ep != nil {
		requester = ep.req.Requester
		if ep.limiter.Allow() {
			snap = p.snapshotLocked(entryId, ep)
		}
	}
	p.mu.Unlock()

	p.broadcaster.Publish(domain.Event{
		Type:         domain.EventScenarioCompleted,
		EntryId:      entryId,
		Requester:    requester,
		DeviceId:     deviceId,
		ScenarioId:   sc.Id,
		ScenarioName: sc.Name,
		Attempt:      attempt,
		Passed:       passed,
	})
	if snap != nil {
		p.broadcaster.Publish(domain.Event{
			Type:     domain.EventRunProgress,
			EntryId:  entryId,
			Progress: snap,
		})
	}
}

// DeviceDone marks a device's walk finished. The run-progress publish here
// bypasses the rate limiter so observers always see the final counters.
func (p *ProgressAggregator) DeviceDone(entryId string, deviceId string, status domain.DeviceStatus) {
	p.mu.Lock()
	ep, dp := p.row(entryId, deviceId)
	if dp != nil {
		dp.Status = status
		dp.ScenarioId = ""
		dp.ScenarioName = ""
	}
	requester := ""
	var snap *domain.RunProgress
	if ep != nil {
		requester = ep.req.Requester
		snap = p.snapshotLocked(entryId, ep)
	}
	p.mu.Unlock()

	p.broadcaster.Publish(domain.Event{
		Type:         domain.EventDeviceCompleted,
		EntryId:      entryId,
		Requester:    requester,
		DeviceId:     deviceId,
		DeviceStatus: status,
	})
	if snap != nil {
		p.broadcaster.Publish(domain.Event{
			Type:     domain.EventRunProgress,
			EntryId:  entryId,
			Progress: snap,
		})
	}
}

// Progress returns the current folded view of an active entry.
func (p *ProgressAggregator) Progress(entryId string) (*domain.RunProgress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.entries[entryId]
	if !ok {
		return nil, false
	}
	return p.snapshotLocked(entryId, ep), true
}

func (p *ProgressAggregator) row(entryId string, deviceId string) (*entryProgress, *domain.DeviceProgress) {
	ep, ok := p.entries[entryId]
	if !ok {
		return nil, nil
	}
	return ep, ep.devices[deviceId]
}

func (p *ProgressAggregator) snapshotLocked(entryId string, ep *entryProgress) *domain.RunProgress {
	rp := &domain.RunProgress{EntryId: entryId}
	var worstRemaining time.Duration
	for _, id := range ep.order {
		dp := ep.devices[id]
		rp.Completed += dp.Completed
		rp.Failed += dp.Failed
		rp.Total += dp.Total
		rp.Devices = append(rp.Devices, *dp)
		if rem := p.remainingLocked(ep, dp); rem > worstRemaining {
			worstRemaining = rem
		}
	}
	if rp.Total > 0 {
		rp.Percent = float64(rp.Completed+rp.Failed) / float64(rp.Total) * 100
	}
	rp.EstRemaining = worstRemaining
	return rp
}

// remainingLocked estimates how long a device's unfinished plan slots will
// take, from the recorded scenario averages plus the interval gaps between
// them. Scenarios with no recorded history contribute zero.
func (p *ProgressAggregator) remainingLocked(ep *entryProgress, dp *domain.DeviceProgress) time.Duration {
	if dp.Status.Done() || p.durations == nil {
		return 0
	}
	done := dp.Completed + dp.Failed
	var rem time.Duration
	for k := done; k < dp.Total; k++ {
		scId := ep.req.ScenarioIds[k%len(ep.req.ScenarioIds)]
		if iface, ok := p.durations.Get(scId); ok {
			if ad, ok := iface.(*averageDuration); ok {
				rem += ad.duration
			}
		}
		if k > done {
			rem += ep.req.ScenarioInterval
		}
	}
	return rem
}
