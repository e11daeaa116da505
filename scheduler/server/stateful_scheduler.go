package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/async"
	"github.com/testfarm/testfarm/common/log/hooks"
	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/reports"
	"github.com/testfarm/testfarm/runlog"
	"github.com/testfarm/testfarm/scenarios"
	"github.com/testfarm/testfarm/scheduler/domain"
	"github.com/testfarm/testfarm/session"
)

const (
	// Provide defaults for config settings that should never be
	// uninitialized/zero. These are reasonable for a farm of up to a few
	// hundred devices.

	// Number of different requesters that can have live runs at any given time.
	DefaultMaxRequesters = 100

	// Number of live entries any single requester can have (to prevent
	// spamming, not for scheduler fairness).
	DefaultMaxEntriesPerRequester = 200

	// How often the scheduler step is called in loop.
	TickRate = 250 * time.Millisecond

	// Max number of terminal entry ids remembered for idempotent cancels.
	DefaultMaxRecentTerminal = 10000
)

// ErrSchedulerPaused rejects submissions while an operator has paused
// admission. Entries already admitted keep draining.
var ErrSchedulerPaused = errors.New("scheduler is paused and not accepting new runs")

// Used to get proper logging from tests...
func init() {
	if loglevel := os.Getenv("TESTFARM_LOGLEVEL"); loglevel != "" {
		level, err := log.ParseLevel(loglevel)
		if err != nil {
			log.Error(err)
			return
		}
		log.SetLevel(level)
		log.AddHook(hooks.NewContextHook())
	} else {
		// setting Error level to avoid CI test failure due to log too long
		log.SetLevel(log.ErrorLevel)
	}
}

func stringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

// SchedulerConfiguration variables read at initialization
// DebugMode - if true, starts the scheduler up but does not start
//
//	the update loop.  Instead the loop must be advanced manually
//	by calling step()
//
// RecoverRunsOnStartup - if true, the scheduler recovers runs from the run
//
//	log: re-queueing the ones that had not started and closing out the ones
//	cut off mid flight.
//
// MaxRunningEntries -
//
//	cap on concurrently running entries, 0 means unlimited. Submissions
//	over the cap queue rather than failing.
//
// ProgressInterval -
//
//	per-entry throttle on run-progress events.
//
// Admins -
//
//	requesters allowed to offline/reinstate devices, empty means anyone.
type SchedulerConfiguration struct {
	DebugMode              bool
	RecoverRunsOnStartup   bool
	MaxRequesters          int
	MaxEntriesPerRequester int
	MaxRunningEntries      int
	MaxHistory             int
	ProgressInterval       time.Duration
	Admins                 []string
}

func (sc *SchedulerConfiguration) String() string {
	return fmt.Sprintf("SchedulerConfiguration: DebugMode: %t, RecoverRunsOnStartup: %t, MaxRequesters: %d, "+
		"MaxEntriesPerRequester: %d, MaxRunningEntries: %d, MaxHistory: %d, ProgressInterval: %s, Admins: %v",
		sc.DebugMode, sc.RecoverRunsOnStartup, sc.MaxRequesters, sc.MaxEntriesPerRequester,
		sc.MaxRunningEntries, sc.MaxHistory, sc.ProgressInterval, sc.Admins)
}

// Scheduler that tracks device locks and the run queue so every submission
// either starts immediately or waits its turn fairly.
//
// Scheduler Concurrency: The Scheduler runs an update loop in its own go
// routine. Device executors run as async work via async.Runner, in their own
// go routines; nothing in them reads or modifies scheduler state directly.
//
// The completion callbacks are executed as part of the scheduler loop. They
// therefore can safely read & modify the scheduler state.
type statefulScheduler struct {
	config      *SchedulerConfiguration
	rlog        runlog.RunLog
	dialer      session.Dialer
	catalog     scenarios.Catalog
	publisher   reports.Publisher
	asyncRunner async.Runner

	submitCh      chan submitMsg
	cancelCh      chan cancelMsg
	statusCh      chan statusMsg
	deviceAdminCh chan deviceAdminMsg
	recoverCh     chan *domain.QueueEntry
	poolUpdatesCh chan []devices.Update
	stepTicker    *time.Ticker

	// Scheduler State
	lockTable    *deviceLockTable
	queue        *waitQueue
	entries      map[string]*entryState   // live (pending + running) entries by id
	requesterMap map[string][]*entryState // map of requester to its live entries

	recentTerminal *lru.Cache // entry id -> terminal EntryStatus, for idempotent cancels

	progress    *ProgressAggregator
	broadcaster *Broadcaster
	history     *History

	// stats
	stat stats.StatsReceiver

	// guards paused and config.MaxRunningEntries, which are set from API
	// goroutines and read by the loop
	controlsMu sync.RWMutex
	paused     bool
}

func (s *statefulScheduler) String() string {
	return fmt.Sprintf("%s, num devices: %d, num live entries: %d",
		s.config, s.lockTable.numDevices(), len(s.entries))
}

type submitMsg struct {
	req      *domain.RunRequest
	resultCh chan admitReply
}

type admitReply struct {
	result *domain.AdmitResult
	err    error
}

// contains the entry id to cancel and a callback for the result of
// processing the request
type cancelMsg struct {
	entryId    string
	responseCh chan error
}

type statusMsg struct {
	viewer   string
	resultCh chan *domain.FarmStatus
}

type deviceAdminMsg struct {
	req        domain.DeviceAdminReq
	offline    bool
	responseCh chan error
}

// Create a New StatefulScheduler that implements the Scheduler interface
// poolUpdatesCh - device pool membership changes to fold into the lock table
// runlog.RunLog - the journal to log run state changes to and recover from
// session.Dialer - how executors establish sessions on devices
// scenarios.Catalog - where scenario definitions come from
// reports.Publisher - external report sink for finished runs, may be nil
// SchedulerConfiguration - additional configuration settings for the scheduler
// StatsReceiver - stats receiver to log statistics to
// specifying debugMode true, starts the scheduler up but does not start
// the update loop.  Instead the loop must be advanced manually by calling
// step(), intended for debugging and test cases
// If recoverRunsOnStartup is true runs in the run log will be recovered
// and rescheduled, otherwise no recovery will be done on startup
func NewStatefulScheduler(
	poolUpdatesCh chan []devices.Update,
	rlog runlog.RunLog,
	dialer session.Dialer,
	catalog scenarios.Catalog,
	publisher reports.Publisher,
	config SchedulerConfiguration,
	stat stats.StatsReceiver) *statefulScheduler {

	if config.MaxRequesters == 0 {
		config.MaxRequesters = DefaultMaxRequesters
	}
	if config.MaxEntriesPerRequester == 0 {
		config.MaxEntriesPerRequester = DefaultMaxEntriesPerRequester
	}
	if config.MaxHistory == 0 {
		config.MaxHistory = DefaultMaxHistory
	}
	if config.ProgressInterval == 0 {
		config.ProgressInterval = DefaultProgressPublishInterval
	}

	recentTerminal, err := lru.New(DefaultMaxRecentTerminal)
	if err != nil {
		log.Errorf("Failed to create recentTerminal cache: %v", err)
		return nil
	}

	broadcaster := NewBroadcaster(stat)

	sched := &statefulScheduler{
		config:      &config,
		rlog:        rlog,
		dialer:      dialer,
		catalog:     catalog,
		publisher:   publisher,
		asyncRunner: async.NewRunner(),

		submitCh:      make(chan submitMsg, 1),
		cancelCh:      make(chan cancelMsg, 1),
		statusCh:      make(chan statusMsg, 1),
		deviceAdminCh: make(chan deviceAdminMsg, 1),
		recoverCh:     make(chan *domain.QueueEntry, devices.DefaultUpdateChanSize),
		poolUpdatesCh: poolUpdatesCh,
		stepTicker:    time.NewTicker(TickRate),

		lockTable:    newDeviceLockTable(),
		queue:        newWaitQueue(),
		entries:      make(map[string]*entryState),
		requesterMap: make(map[string][]*entryState),

		recentTerminal: recentTerminal,

		progress:    NewProgressAggregator(broadcaster, config.ProgressInterval),
		broadcaster: broadcaster,
		history:     NewHistory(config.MaxHistory),

		stat: stat,
	}

	log.Info(sched)

	if !config.DebugMode {
		// start the scheduler loop
		log.Info("Starting scheduler loop")
		go func() {
			sched.loop()
		}()
	}

	// Recover runs in a separate go routine to allow the scheduler
	// to accept new runs while recovering old ones.
	if config.RecoverRunsOnStartup {
		go func() {
			sched.recoverRuns()
		}()
	}
	return sched
}

/*
validate the run request. If the request passes validation it is handed to the
scheduler loop, which partitions its devices into free and busy halves and
answers with the admission outcome: started, queued, or split into a sibling
pair. The ids of the created entries are returned, otherwise the error.
*/
func (s *statefulScheduler) Submit(req *domain.RunRequest) (*domain.AdmitResult, error) {
	defer s.stat.Latency(stats.SchedSubmitLatency_ms).Time().Stop()
	s.stat.Counter(stats.SchedSubmitRequestsCounter).Inc(1)
	lf := log.Fields{
		"requester":    req.Requester,
		"kind":         req.Kind,
		"displayName":  req.DisplayName,
		"numDevices":   len(req.DeviceIds),
		"numScenarios": len(req.ScenarioIds),
		"repeatCount":  req.RepeatCount,
	}
	log.WithFields(lf).Info("New run request")

	if err := domain.ValidateRequest(req); err != nil {
		lf["err"] = err
		log.WithFields(lf).Error("Rejected run request")
		return nil, err
	}
	if s.isPaused() {
		return nil, ErrSchedulerPaused
	}

	// Vet the scenario plan against the catalog before the loop sees it; a
	// plan that cannot be fetched should never hold devices.
	for _, id := range req.ScenarioIds {
		ok, err := s.catalog.Has(context.Background(), id)
		if err != nil {
			return nil, errors.Wrapf(err, "could not verify scenario %s", id)
		}
		if !ok {
			return nil, domain.NewInvalidRequest("unknown scenario %s", id)
		}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	resultCh := make(chan admitReply, 1)
	s.submitCh <- submitMsg{req: req, resultCh: resultCh}
	reply := <-resultCh
	if reply.err != nil {
		lf["err"] = reply.err
		log.WithFields(lf).Error("Rejected run request")
		return nil, reply.err
	}

	switch reply.result.Outcome {
	case domain.OutcomeStarted:
		s.stat.Counter(stats.SchedAdmittedCounter).Inc(1)
	case domain.OutcomeQueued:
		s.stat.Counter(stats.SchedQueuedCounter).Inc(1)
	case domain.OutcomePartial:
		s.stat.Counter(stats.SchedQueuedCounter).Inc(1)
		s.stat.Counter(stats.SchedSplitCounter).Inc(1)
	}
	lf["outcome"] = reply.result.Outcome
	lf["entryIDs"] = reply.result.EntryIds
	log.WithFields(lf).Info("Admitted run request")
	return reply.result, nil
}

func (s *statefulScheduler) Cancel(entryId string) error {
	log.WithFields(log.Fields{"entryID": entryId}).Info("Cancel requested")
	responseCh := make(chan error, 1)
	s.cancelCh <- cancelMsg{entryId: entryId, responseCh: responseCh}
	return <-responseCh
}

func (s *statefulScheduler) Status(viewer string) *domain.FarmStatus {
	resultCh := make(chan *domain.FarmStatus, 1)
	s.statusCh <- statusMsg{viewer: viewer, resultCh: resultCh}
	return <-resultCh
}

func (s *statefulScheduler) Subscribe() *Subscription {
	return s.broadcaster.Subscribe()
}

func (s *statefulScheduler) OfflineDevice(req domain.DeviceAdminReq) error {
	if !stringInSlice(req.Requester, s.config.Admins) && len(s.config.Admins) != 0 {
		return domain.NewUnauthorized("requester %s unauthorized to offline device", req.Requester)
	}
	responseCh := make(chan error, 1)
	s.deviceAdminCh <- deviceAdminMsg{req: req, offline: true, responseCh: responseCh}
	return <-responseCh
}

func (s *statefulScheduler) ReinstateDevice(req domain.DeviceAdminReq) error {
	if !stringInSlice(req.Requester, s.config.Admins) && len(s.config.Admins) != 0 {
		return domain.NewUnauthorized("requester %s unauthorized to reinstate device", req.Requester)
	}
	responseCh := make(chan error, 1)
	s.deviceAdminCh <- deviceAdminMsg{req: req, offline: false, responseCh: responseCh}
	return <-responseCh
}

func (s *statefulScheduler) GetSchedulerStatus() domain.SchedulerStatus {
	return s.Status("").Scheduler
}

// SetSchedulerStatus pauses/resumes admission and adjusts the running entry
// cap. 0 = unlimited, >0 = only start entries while the number running is
// below the limit. Already running entries are never interrupted.
func (s *statefulScheduler) SetSchedulerStatus(paused bool, maxRunningEntries int) error {
	if maxRunningEntries < 0 {
		return domain.NewInvalidRequest("invalid maxRunningEntries %d, must be >= 0 (0 means unlimited)", maxRunningEntries)
	}
	s.controlsMu.Lock()
	s.paused = paused
	s.config.MaxRunningEntries = maxRunningEntries
	s.controlsMu.Unlock()
	log.Infof("scheduler controls set: paused=%t maxRunningEntries=%d", paused, maxRunningEntries)
	return nil
}

func (s *statefulScheduler) isPaused() bool {
	s.controlsMu.RLock()
	defer s.controlsMu.RUnlock()
	return s.paused
}

func (s *statefulScheduler) getMaxRunning() int {
	s.controlsMu.RLock()
	defer s.controlsMu.RUnlock()
	return s.config.MaxRunningEntries
}

// run the scheduler loop indefinitely in its own thread.
// we are not putting any logic other than looping in this method so unit tests can verify
// behavior by controlling calls to step() below
func (s *statefulScheduler) loop() {
	for {
		s.step()

		// Wait until our TickRate has elapsed or we have a pending action.
		// Detect pending action by monitoring statefulScheduler's channels.
		// Since "detect" means we pulled off of a channel, put it back,
		// asynchronously in case the channel is blocked/full (it will be drained next step())
		select {
		case msg := <-s.submitCh:
			go func() {
				s.submitCh <- msg
			}()
		case msg := <-s.cancelCh:
			go func() {
				s.cancelCh <- msg
			}()
		case msg := <-s.statusCh:
			go func() {
				s.statusCh <- msg
			}()
		case msg := <-s.deviceAdminCh:
			go func() {
				s.deviceAdminCh <- msg
			}()
		case <-s.stepTicker.C:
		}
	}
}

// run one loop iteration
func (s *statefulScheduler) step() {
	defer s.stat.Latency(stats.SchedStepLatency_ms).Time().Stop()

	// update scheduler state with messages received since last loop:
	// devices added or removed from the pool, new runs submitted,
	// async functions completed & invoke callbacks
	s.updatePool()
	s.admitRecovered()
	s.admitSubmissions()

	procMessagesLatency := s.stat.Latency(stats.SchedProcessMessagesLatency_ms).Time()
	s.asyncRunner.ProcessMessages()
	procMessagesLatency.Stop()

	s.cancelEntries()
	s.applyDeviceAdmins()
	s.checkForCompletedEntries()
	s.evaluateQueue()
	s.serveStatus()

	s.updateStats()
}

// update the stats monitoring values:
func (s *statefulScheduler) updateStats() {
	s.stat.Gauge(stats.SchedPoolDevicesGauge).Update(int64(s.lockTable.numDevices()))
	s.stat.Gauge(stats.SchedFreeDevicesGauge).Update(int64(s.lockTable.numFree()))
	s.stat.Gauge(stats.SchedLockedDevicesGauge).Update(int64(s.lockTable.numLocked()))
	s.stat.Gauge(stats.SchedOfflineDevicesGauge).Update(int64(s.lockTable.numOffline()))
	s.stat.Gauge(stats.SchedRunningEntriesGauge).Update(int64(s.numRunningEntries()))
	s.stat.Gauge(stats.SchedPendingEntriesGauge).Update(int64(s.queue.len()))
}

// fold device pool membership changes into the lock table
func (s *statefulScheduler) updatePool() {
	for {
		select {
		case updates := <-s.poolUpdatesCh:
			for _, update := range updates {
				switch update.UpdateType {
				case devices.DeviceAdded:
					log.Infof("Device added to pool: %s", update.Id)
					s.lockTable.addDevice(update.Device)
				case devices.DeviceRemoved:
					log.Infof("Device removed from pool: %s", update.Id)
					s.lockTable.removeDevice(update.Id)
				}
			}
		default:
			return
		}
	}
}

// track entries re-admitted by run log recovery. They were journaled before
// the restart so they are not journaled again, and requester limits do not
// apply; they already passed admission once.
func (s *statefulScheduler) admitRecovered() {
	for {
		select {
		case entry := <-s.recoverCh:
			es := newEntryState(entry)
			es.recovered = true
			es.waitLatency = s.stat.Latency(stats.SchedEntryWaitLatency_ms).Time()
			s.trackEntry(es)
			s.broadcaster.Publish(domain.Event{
				Type:      domain.EventRunAdmitted,
				EntryId:   entry.EntryId,
				Requester: entry.Request.Requester,
			})
			if s.canStartMore() && s.startEntry(es) {
				log.WithFields(log.Fields{"entryID": entry.EntryId}).Info("Recovered entry started")
			} else {
				s.queue.insert(es)
				log.WithFields(log.Fields{"entryID": entry.EntryId}).Info("Recovered entry queued")
			}
		default:
			return
		}
	}
}

// Checks all new submissions that have come in since the last iteration of
// the step() loop and answers each on its callback channel.
func (s *statefulScheduler) admitSubmissions() {
	for {
		select {
		case msg := <-s.submitCh:
			result, err := s.admit(msg.req)
			msg.resultCh <- admitReply{result: result, err: err}
		default:
			return
		}
	}
}

// admit partitions one submission against the lock table and either starts
// it, queues it, or splits it into a sibling pair. Runs on the loop.
func (s *statefulScheduler) admit(req *domain.RunRequest) (*domain.AdmitResult, error) {
	requester := req.Requester
	if live, ok := s.requesterMap[requester]; !ok && len(s.requesterMap) >= s.config.MaxRequesters {
		return nil, fmt.Errorf("exceeds max number of requesters: %s (%d)", requester, s.config.MaxRequesters)
	} else if len(live) >= s.config.MaxEntriesPerRequester {
		return nil, fmt.Errorf("exceeds max live entries per requester: %s (%d)", requester, s.config.MaxEntriesPerRequester)
	}

	plan, err := planAdmission(s.lockTable, req, s.canStartMore())
	if err != nil {
		return nil, err
	}

	// Journal admission before tracking anything; an entry the run log never
	// saw would vanish on a restart.
	entries := plan.entries()
	for i, entry := range entries {
		data, merr := json.Marshal(entry)
		if merr != nil {
			return nil, errors.Wrap(merr, "could not marshal entry")
		}
		if lerr := s.rlog.StartRun(entry.EntryId, data); lerr != nil {
			s.stat.Counter(stats.RunLogWriteFailuresCounter).Inc(1)
			// Close out any sibling journaled just before the failure so
			// recovery does not resurrect half a submission.
			for _, prev := range entries[:i] {
				rec := newEntryState(prev).fold(domain.EntryCancelled, time.Now())
				if data, merr := json.Marshal(rec); merr == nil {
					if eerr := s.rlog.LogMessage(runlog.MakeRunEndedMessage(prev.EntryId, data)); eerr != nil {
						log.WithFields(log.Fields{"entryID": prev.EntryId, "err": eerr}).
							Error("Could not close out sibling after journal failure")
					}
				}
			}
			return nil, errors.Wrap(lerr, "could not journal admission")
		}
	}

	result := &domain.AdmitResult{}
	var started, queued *domain.QueueEntry
	for _, entry := range entries {
		es := newEntryState(entry)
		es.waitLatency = s.stat.Latency(stats.SchedEntryWaitLatency_ms).Time()
		s.trackEntry(es)
		result.EntryIds = append(result.EntryIds, entry.EntryId)
		s.broadcaster.Publish(domain.Event{
			Type:      domain.EventRunAdmitted,
			EntryId:   entry.EntryId,
			Requester: requester,
		})

		if entry == plan.immediate && s.startEntry(es) {
			started = entry
			continue
		}
		s.queue.insert(es)
		queued = entry
	}

	switch {
	case started != nil && queued == nil:
		result.Outcome = domain.OutcomeStarted
		result.Message = fmt.Sprintf("run started on %d device(s)", len(started.DeviceIds))
	case started == nil:
		result.Outcome = domain.OutcomeQueued
		if summary := blockedSummary(queued.BlockedBy); summary != "" {
			result.Message = fmt.Sprintf("run queued, waiting for: %s", summary)
		} else {
			result.Message = "run queued until the scheduler can start it"
		}
	default:
		result.Outcome = domain.OutcomePartial
		result.Message = fmt.Sprintf("run started on %d device(s), waiting for: %s",
			len(started.DeviceIds), blockedSummary(queued.BlockedBy))
		result.Split = &domain.SplitExecution{
			ImmediateDeviceIds: append([]string(nil), started.DeviceIds...),
			QueuedDeviceIds:    append([]string(nil), queued.DeviceIds...),
		}
	}
	return result, nil
}

func blockedSummary(blocked []domain.BlockedDevice) string {
	parts := make([]string, 0, len(blocked))
	for _, b := range blocked {
		if b.HeldBy == offlineHolder {
			parts = append(parts, fmt.Sprintf("%s (offline)", b.DeviceId))
		} else {
			parts = append(parts, fmt.Sprintf("%s (held by %s)", b.DeviceId, b.HeldBy))
		}
	}
	return strings.Join(parts, ", ")
}

// Helpers, assume a consistent scheduler state. Runs on the loop.
func (s *statefulScheduler) trackEntry(es *entryState) {
	req := es.entry.Request.Requester
	s.entries[es.entry.EntryId] = es
	s.requesterMap[req] = append(s.requesterMap[req], es)
}

func (s *statefulScheduler) deleteEntry(entryId string) {
	es, ok := s.entries[entryId]
	if !ok {
		return
	}
	delete(s.entries, entryId)
	requester := es.entry.Request.Requester
	live := s.requesterMap[requester]
	for i, other := range live {
		if other.entry.EntryId == entryId {
			s.requesterMap[requester] = append(live[:i], live[i+1:]...)
			break
		}
	}
	if len(s.requesterMap[requester]) == 0 {
		delete(s.requesterMap, requester)
	}
}

func (s *statefulScheduler) numRunningEntries() int {
	n := 0
	for _, es := range s.entries {
		if es.entry.Status == domain.EntryRunning {
			n++
		}
	}
	return n
}

func (s *statefulScheduler) canStartMore() bool {
	max := s.getMaxRunning()
	return max == 0 || s.numRunningEntries() < max
}

// startEntry claims the entry's devices and spawns one executor per device.
// Returns false without side effects if any device is unavailable.
func (s *statefulScheduler) startEntry(es *entryState) bool {
	entry := es.entry
	if !s.lockTable.tryAcquireAll(entry.DeviceIds, entry.EntryId, entry.Request.Requester) {
		return false
	}
	entry.Status = domain.EntryRunning
	entry.StartedAt = time.Now()
	entry.BlockedBy = nil
	es.executorsSpawned = true
	if es.waitLatency != nil {
		es.waitLatency.Stop()
		es.waitLatency = nil
	}
	es.runLatency = s.stat.Latency(stats.SchedEntryRunLatency_ms).Time()

	s.progress.StartEntry(entry)
	log.WithFields(
		log.Fields{
			"entryID":    entry.EntryId,
			"requester":  entry.Request.Requester,
			"kind":       entry.Request.Kind,
			"numDevices": len(entry.DeviceIds),
		}).Info("Starting entry")

	for _, id := range entry.DeviceIds {
		device := s.lockTable.device(devices.DeviceId(id))
		ex := newDeviceExecutor(entry.EntryId, entry.Request, device, s.dialer, s.catalog,
			s.progress, s.rlog, s.stat, es.stopCh)
		state := es
		s.asyncRunner.RunAsync(ex.run, func(err error) {
			if err != nil {
				log.WithFields(
					log.Fields{
						"entryID":  entry.EntryId,
						"deviceID": ex.result.DeviceId,
						"err":      err,
					}).Error("Device execution failed")
			}
			s.deviceDone(state, ex.result)
		})
	}
	return true
}

// deviceDone folds one executor's result back into the loop and frees its
// device, which may let a waiting entry start this same step.
func (s *statefulScheduler) deviceDone(es *entryState, result domain.DeviceResult) {
	es.deviceDone(result)
	s.lockTable.release([]string{result.DeviceId})
	log.WithFields(
		log.Fields{
			"entryID":   es.entry.EntryId,
			"deviceID":  result.DeviceId,
			"status":    result.Status,
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		}).Info("Device finished, freeing device")
}

// process all cancel requests received since the last step. Unknown or
// already-terminal entries succeed without effect so retried cancels are
// harmless.
//
// this function is part of the main scheduler loop
func (s *statefulScheduler) cancelEntries() {
	for haveRequest := true; haveRequest; {
		select {
		case req := <-s.cancelCh:
			s.stat.Counter(stats.SchedCancelRequestsCounter).Inc(1)
			req.responseCh <- s.cancelEntry(req.entryId)
		default:
			haveRequest = false
		}
	}
}

func (s *statefulScheduler) cancelEntry(entryId string) error {
	es, ok := s.entries[entryId]
	if !ok {
		if st, ok := s.recentTerminal.Get(entryId); ok {
			log.Infof("Cancel of entry %s ignored, already %s", entryId, st)
		} else {
			log.Infof("Cancel of unknown entry %s ignored", entryId)
		}
		return nil
	}

	lf := log.Fields{
		"entryID":   entryId,
		"requester": es.entry.Request.Requester,
		"status":    es.entry.Status,
	}
	switch es.entry.Status {
	case domain.EntryPending:
		s.queue.remove(entryId)
		es.entry.Status = domain.EntryCancelled
		es.entry.CompletedAt = time.Now()
		log.WithFields(lf).Info("Cancelled pending entry")
	case domain.EntryRunning:
		if es.stopping {
			log.WithFields(lf).Info("Entry already stopping")
			return nil
		}
		es.signalStop()
		s.broadcaster.Publish(domain.Event{
			Type:      domain.EventRunStopping,
			EntryId:   entryId,
			Requester: es.entry.Request.Requester,
		})
		log.WithFields(lf).Info("Stopping running entry")
	}
	return nil
}

// apply offline/reinstate requests received since the last step
func (s *statefulScheduler) applyDeviceAdmins() {
	for {
		select {
		case req := <-s.deviceAdminCh:
			req.responseCh <- s.applyDeviceAdmin(req)
		default:
			return
		}
	}
}

func (s *statefulScheduler) applyDeviceAdmin(msg deviceAdminMsg) error {
	id := devices.DeviceId(msg.req.ID)
	if msg.offline {
		if !s.lockTable.hasDevice(id) {
			return domain.NewInvalidRequest("device %s was not present in the pool. It can't be offlined", msg.req.ID)
		}
		if s.lockTable.isOffline(id) {
			return domain.NewInvalidRequest("device %s is already offline", msg.req.ID)
		}
		log.Infof("Offlining device %s", msg.req.ID)
		s.lockTable.setOffline(id, true)
		return nil
	}
	if !s.lockTable.isOffline(id) {
		return domain.NewInvalidRequest("device %s was not offlined. It can't be reinstated", msg.req.ID)
	}
	log.Infof("Reinstating device %s", msg.req.ID)
	s.lockTable.setOffline(id, false)
	return nil
}

// checks if any of the live entries have all their devices reported. If so
// the terminal status is settled and a RunEnded record is journaled
// asynchronously; the entry leaves the scheduler only once that write lands.
func (s *statefulScheduler) checkForCompletedEntries() {
	for _, es := range s.entries {
		if !es.readyToFinalize() || es.endingLog {
			continue
		}
		if !es.entry.Status.Terminal() {
			status := domain.EntryCompleted
			if es.stopping {
				status = domain.EntryCancelled
			}
			es.entry.Status = status
			es.entry.CompletedAt = time.Now()
			if es.runLatency != nil {
				es.runLatency.Stop()
				es.runLatency = nil
			}
		}

		rec := es.fold(es.entry.Status, es.entry.CompletedAt)
		data, err := json.Marshal(rec)
		if err != nil {
			log.WithFields(log.Fields{"entryID": rec.EntryId, "err": err}).
				Error("Could not marshal completion record")
			continue
		}

		// mark entry as being completed
		es.endingLog = true

		// set up variables for async function & callback
		state := es
		s.asyncRunner.RunAsync(
			func() error {
				return s.rlog.LogMessage(runlog.MakeRunEndedMessage(rec.EntryId, data))
			},
			func(err error) {
				if err != nil {
					// clear the flag, will retry journaling the completion
					// on the next scheduler loop
					state.endingLog = false
					s.stat.Counter(stats.RunLogWriteFailuresCounter).Inc(1)
					log.WithFields(
						log.Fields{
							"entryID":   rec.EntryId,
							"requester": rec.Requester,
							"err":       err,
						}).Info("Entry completed but failed to journal")
					return
				}
				s.finalizeEntry(state, rec)
			})
	}
}

// finalizeEntry retires a journaled terminal entry: history, events, stats,
// and the async report publish. Runs on the loop as an async callback.
func (s *statefulScheduler) finalizeEntry(es *entryState, rec domain.CompletedRecord) {
	entryId := rec.EntryId
	s.history.Add(rec)
	s.recentTerminal.Add(entryId, rec.Status)
	s.progress.RemoveEntry(entryId)
	s.deleteEntry(entryId)
	if rec.Status == domain.EntryCancelled {
		s.stat.Counter(stats.SchedEntriesCancelledCounter).Inc(1)
	} else {
		s.stat.Counter(stats.SchedEntriesCompletedCounter).Inc(1)
	}
	log.WithFields(
		log.Fields{
			"entryID":   entryId,
			"requester": rec.Requester,
			"status":    rec.Status,
			"duration":  rec.Duration,
		}).Info("Entry completed and journaled")

	s.broadcaster.Publish(domain.Event{
		Type:      domain.EventRunCompleted,
		EntryId:   entryId,
		Requester: rec.Requester,
		Record:    &rec,
	})

	if s.publisher == nil {
		return
	}
	var ref string
	s.asyncRunner.RunAsync(
		func() error {
			defer s.stat.Latency(stats.ReportPublishLatency_ms).Time().Stop()
			r, err := s.publisher.Publish(rec)
			ref = r
			return err
		},
		func(err error) {
			if err != nil {
				s.stat.Counter(stats.ReportPublishFailuresCounter).Inc(1)
				log.WithFields(log.Fields{"entryID": entryId, "err": err}).
					Error("Could not publish run report")
				return
			}
			s.stat.Counter(stats.ReportsPublishedCounter).Inc(1)
			s.history.SetReportRef(entryId, ref)
		})
}

// evaluateQueue rescans the wait queue oldest-first and starts every entry
// whose full device set is now free. Entries that stay queued get their
// BlockedBy display refreshed.
func (s *statefulScheduler) evaluateQueue() {
	defer s.stat.Latency(stats.SchedQueueEvalLatency_ms).Time().Stop()
	for _, es := range s.queue.oldestFirst() {
		if s.canStartMore() && s.startEntry(es) {
			s.queue.remove(es.entry.EntryId)
			log.WithFields(
				log.Fields{
					"entryID":   es.entry.EntryId,
					"requester": es.entry.Request.Requester,
					"waited":    time.Since(es.entry.CreatedAt),
				}).Info("Granted devices to waiting entry")
			continue
		}
		es.entry.BlockedBy = partitionDevices(s.lockTable, es.entry.DeviceIds).blocked
	}
}

// answer status queries received since the last step
func (s *statefulScheduler) serveStatus() {
	for {
		select {
		case msg := <-s.statusCh:
			msg.resultCh <- s.buildStatus(msg.viewer)
		default:
			return
		}
	}
}

func (s *statefulScheduler) buildStatus(viewer string) *domain.FarmStatus {
	status := &domain.FarmStatus{
		Scheduler: domain.SchedulerStatus{
			Paused:            s.isPaused(),
			MaxRunningEntries: s.getMaxRunning(),
			NumRunningEntries: s.numRunningEntries(),
			NumPendingEntries: s.queue.len(),
		},
		Pending:   []domain.QueueEntry{},
		Running:   []domain.QueueEntry{},
		Completed: s.history.Records(),
		Devices:   s.lockTable.views(viewer),
	}
	for _, es := range s.queue.oldestFirst() {
		status.Pending = append(status.Pending, es.entry.Copy())
	}
	for _, es := range s.entries {
		if es.entry.Status == domain.EntryPending {
			continue
		}
		status.Running = append(status.Running, es.entry.Copy())
	}
	sort.Slice(status.Running, func(i, j int) bool {
		a, b := status.Running[i], status.Running[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.EntryId < b.EntryId
	})
	return status
}

// recoverRuns rebuilds scheduler state from the run log after a restart.
// Runs that ended land back in history, runs cut off mid flight are closed
// out as interrupted, and runs that had not started any device are
// re-admitted through the loop. Runs on its own goroutine; it only touches
// the run log, the history, and the recover channel.
func (s *statefulScheduler) recoverRuns() {
	runs, err := runlog.RecoverRuns(s.rlog)
	if err != nil {
		log.Errorf("Run log recovery failed: %v", err)
		return
	}

	var records []domain.CompletedRecord
	recovered := 0
	for _, run := range runs {
		if run.Ended {
			var rec domain.CompletedRecord
			if err := json.Unmarshal(run.EndData, &rec); err != nil {
				log.WithFields(log.Fields{"entryID": run.EntryId, "err": err}).
					Error("Skipping ended run with unreadable record")
				continue
			}
			records = append(records, rec)
			recovered++
			continue
		}

		var entry domain.QueueEntry
		if err := json.Unmarshal(run.Entry, &entry); err != nil {
			log.WithFields(log.Fields{"entryID": run.EntryId, "err": err}).
				Error("Skipping run with unreadable entry")
			continue
		}

		if run.WasRunning() {
			// The restart interrupted this run mid flight. Its devices were
			// freed by the restart itself, so just close it out.
			rec := foldInterrupted(&entry, run)
			if data, err := json.Marshal(rec); err == nil {
				if err := s.rlog.LogMessage(runlog.MakeRunEndedMessage(entry.EntryId, data)); err != nil {
					log.WithFields(log.Fields{"entryID": entry.EntryId, "err": err}).
						Error("Could not journal interrupted run")
				}
			}
			records = append(records, rec)
			recovered++
			log.WithFields(log.Fields{"entryID": entry.EntryId}).
				Info("Recovered interrupted run into history")
			continue
		}

		// Never started a device: put it back in line as a fresh pending
		// entry. It keeps its id; the original admission is already
		// journaled.
		entry.Status = domain.EntryPending
		entry.BlockedBy = nil
		entry.StartedAt = time.Time{}
		s.recoverCh <- &entry
		recovered++
	}

	// Oldest first so history still reads most-recent-first.
	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.Before(records[j].CompletedAt)
	})
	for _, rec := range records {
		s.history.Add(rec)
	}
	s.stat.Counter(stats.RunLogRecoveredRunsCounter).Inc(int64(recovered))
	log.Infof("Run log recovery finished: %d runs recovered", recovered)
}

// foldInterrupted builds the history record for a run the restart cut off:
// devices that reported a result keep it, devices that started but never
// reported show as stopped, the rest as idle.
func foldInterrupted(entry *domain.QueueEntry, run runlog.RecoveredRun) domain.CompletedRecord {
	req := entry.Request
	started := map[string]bool{}
	for _, id := range run.Started {
		started[id] = true
	}
	results := make([]domain.DeviceResult, 0, len(entry.DeviceIds))
	for _, id := range entry.DeviceIds {
		if data, ok := run.Finished[id]; ok {
			var dr domain.DeviceResult
			if err := json.Unmarshal(data, &dr); err == nil {
				results = append(results, dr)
				continue
			}
		}
		status := domain.DeviceIdle
		if started[id] {
			status = domain.DeviceStopped
		}
		results = append(results, domain.DeviceResult{
			DeviceId: id,
			Status:   status,
			Total:    req.TotalScenarios(),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DeviceId < results[j].DeviceId })
	return domain.CompletedRecord{
		EntryId:     entry.EntryId,
		Kind:        req.Kind,
		DisplayName: req.DisplayName,
		Requester:   req.Requester,
		Status:      domain.EntryCancelled,
		Devices:     results,
		CompletedAt: time.Now(),
	}
}
