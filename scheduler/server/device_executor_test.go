package server

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/runlog"
	"github.com/testfarm/testfarm/scenarios"
	"github.com/testfarm/testfarm/scheduler/domain"
	"github.com/testfarm/testfarm/session"
)

// everything one deviceExecutor needs, with in memory fakes
type executorFixture struct {
	dialer      *session.SimDialer
	catalog     *scenarios.StaticCatalog
	rlog        runlog.RunLog
	broadcaster *Broadcaster
	progress    *ProgressAggregator
	reg         stats.StatsRegistry
	stat        stats.StatsReceiver
	stopCh      chan struct{}
}

func newExecutorFixture() *executorFixture {
	reg := stats.NewFarmStatsRegistry()
	statsReceiver, _ := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg }, 0)
	broadcaster := NewBroadcaster(statsReceiver)
	f := &executorFixture{
		dialer: session.NewSimDialer(),
		catalog: scenarios.NewStaticCatalog(
			scenarios.Scenario{Id: "boot", Name: "Boot", Steps: []string{"power on", "wait for home"}},
			scenarios.Scenario{Id: "wifi", Name: "Wifi", Steps: []string{"join network"}},
		),
		rlog:        runlog.MakeInMemoryRunLogNoGC(),
		broadcaster: broadcaster,
		progress:    NewProgressAggregator(broadcaster, time.Millisecond),
		reg:         reg,
		stat:        statsReceiver,
		stopCh:      make(chan struct{}),
	}
	f.rlog.StartRun("entry1", nil)
	return f
}

func (f *executorFixture) executor(req *domain.RunRequest, deviceId string) *deviceExecutor {
	entry := &domain.QueueEntry{EntryId: "entry1", Request: req, DeviceIds: []string{deviceId}}
	f.progress.StartEntry(entry)
	return newDeviceExecutor("entry1", req, devices.NewIdDevice(deviceId), f.dialer,
		f.catalog, f.progress, f.rlog, f.stat, f.stopCh)
}

func executorRequest(repeat int, interval time.Duration, scenarioIds ...string) *domain.RunRequest {
	return &domain.RunRequest{
		Requester:        "tester",
		Kind:             domain.RunKindTest,
		ScenarioIds:      scenarioIds,
		DeviceIds:        []string{"device1"},
		RepeatCount:      repeat,
		ScenarioInterval: interval,
	}
}

// spins until the device reports the given scenario in flight, so tests can
// stop a run knowing a scenario is underway
func waitForScenarioStart(t *testing.T, p *ProgressAggregator, entryId, deviceId, scenarioId string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rp, ok := p.Progress(entryId); ok {
			for _, dp := range rp.Devices {
				if dp.DeviceId == deviceId && dp.ScenarioId == scenarioId {
					return
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("device %s never started scenario %s", deviceId, scenarioId)
}

// counts messages of each type journaled for entry1
func journaledTypes(t *testing.T, rlog runlog.RunLog) map[runlog.RunMessageType]int {
	msgs, err := rlog.GetMessages("entry1")
	if err != nil {
		t.Fatalf("could not read run log: %v", err)
	}
	counts := map[runlog.RunMessageType]int{}
	for _, msg := range msgs {
		counts[msg.MsgType]++
	}
	return counts
}

func Test_DeviceExecutor_FullPlan(t *testing.T) {
	f := newExecutorFixture()
	ex := f.executor(executorRequest(2, 0, "boot", "wifi"), "device1")

	if err := ex.run(); err != nil {
		t.Fatalf("expected clean run, got %v", err)
	}

	if ex.result.Status != domain.DeviceCompleted {
		t.Errorf("expected completed device, got %s", ex.result.Status)
	}
	if ex.result.Succeeded != 4 || ex.result.Failed != 0 || ex.result.Total != 4 {
		t.Errorf("expected 4/0 of 4, got %+v", ex.result)
	}
	if f.dialer.Closed() != 1 {
		t.Errorf("expected the session to be closed once, got %d", f.dialer.Closed())
	}

	counts := journaledTypes(t, f.rlog)
	if counts[runlog.DeviceStarted] != 1 || counts[runlog.DeviceFinished] != 1 {
		t.Errorf("expected one started and one finished message, got %v", counts)
	}

	// the journaled result must round trip
	msgs, _ := f.rlog.GetMessages("entry1")
	for _, msg := range msgs {
		if msg.MsgType != runlog.DeviceFinished {
			continue
		}
		var logged domain.DeviceResult
		if err := json.Unmarshal(msg.Data, &logged); err != nil {
			t.Fatalf("could not unmarshal journaled result: %v", err)
		}
		if logged != ex.result {
			t.Errorf("expected journaled result %+v, got %+v", ex.result, logged)
		}
	}

	stats.VerifyStats("full plan", f.reg, t,
		map[string]stats.Rule{
			stats.ExecutorScenariosCompletedCounter: {Checker: stats.Int64EqTest, Value: 4},
			stats.ExecutorScenariosFailedCounter:    {Checker: stats.DoesNotExistTest, Value: nil},
			stats.ExecutorDeviceFailuresCounter:     {Checker: stats.DoesNotExistTest, Value: nil},
		})
}

// a failed scenario is recorded and the walk continues
func Test_DeviceExecutor_ScenarioFailureContinues(t *testing.T) {
	f := newExecutorFixture()
	sub := f.broadcaster.Subscribe()
	defer sub.Close()
	f.dialer.Program("device1", "pass", "fail join network", "pass")
	ex := f.executor(executorRequest(3, 0, "boot"), "device1")

	if err := ex.run(); err != nil {
		t.Fatalf("expected scenario failure to not fail the run, got %v", err)
	}
	if ex.result.Status != domain.DeviceCompleted {
		t.Errorf("expected completed device, got %s", ex.result.Status)
	}
	if ex.result.Succeeded != 2 || ex.result.Failed != 1 {
		t.Errorf("expected 2 passed 1 failed, got %+v", ex.result)
	}

	// the failing step was streamed
	sawStepFailed := false
	for drained := false; !drained; {
		select {
		case ev := <-sub.Events():
			if ev.Type == domain.EventStepFailed {
				sawStepFailed = true
				if ev.Step != "join network" {
					t.Errorf("expected failing step join network, got %q", ev.Step)
				}
			}
		default:
			drained = true
		}
	}
	if !sawStepFailed {
		t.Errorf("expected a step-failed event on the stream")
	}
}

// a broken session fails the device and abandons the rest of the plan
func Test_DeviceExecutor_SessionCrashFailsDevice(t *testing.T) {
	f := newExecutorFixture()
	f.dialer.Program("device1", "pass", "crash")
	ex := f.executor(executorRequest(4, 0, "boot"), "device1")

	err := ex.run()
	if err == nil {
		t.Fatalf("expected session crash to error the run")
	}
	if !strings.Contains(err.Error(), "session failed on device device1") {
		t.Errorf("expected wrapped session failure, got %v", err)
	}
	if ex.result.Status != domain.DeviceFailed {
		t.Errorf("expected failed device, got %s", ex.result.Status)
	}
	if ex.result.Succeeded != 1 || ex.result.Failed != 0 || ex.result.Total != 4 {
		t.Errorf("expected the walk abandoned after 1 pass, got %+v", ex.result)
	}
	if f.dialer.Closed() != 1 {
		t.Errorf("expected the broken session to still be closed")
	}

	stats.VerifyStats("session crash", f.reg, t,
		map[string]stats.Rule{
			stats.ExecutorDeviceFailuresCounter: {Checker: stats.Int64EqTest, Value: 1},
		})
}

func Test_DeviceExecutor_DialFailure(t *testing.T) {
	f := newExecutorFixture()
	f.dialer.Refuse("device1")
	ex := f.executor(executorRequest(1, 0, "boot"), "device1")

	err := ex.run()
	if err == nil || !strings.Contains(err.Error(), "could not dial device device1") {
		t.Fatalf("expected wrapped dial failure, got %v", err)
	}
	if ex.result.Status != domain.DeviceFailed {
		t.Errorf("expected failed device, got %s", ex.result.Status)
	}
	if ex.result.Succeeded != 0 || ex.result.Failed != 0 {
		t.Errorf("expected no scenarios run, got %+v", ex.result)
	}
}

// a stop that lands before the dial resolves is a stop, not a failure
func Test_DeviceExecutor_DialFailureAfterStop(t *testing.T) {
	f := newExecutorFixture()
	f.dialer.Refuse("device1")
	close(f.stopCh)
	ex := f.executor(executorRequest(1, 0, "boot"), "device1")

	if err := ex.run(); err != nil {
		t.Fatalf("expected stopped run to not error, got %v", err)
	}
	if ex.result.Status != domain.DeviceStopped {
		t.Errorf("expected stopped device, got %s", ex.result.Status)
	}
}

func Test_DeviceExecutor_StopBeforeFirstScenario(t *testing.T) {
	f := newExecutorFixture()
	close(f.stopCh)
	ex := f.executor(executorRequest(2, 0, "boot"), "device1")

	if err := ex.run(); err != nil {
		t.Fatalf("expected stopped run to not error, got %v", err)
	}
	if ex.result.Status != domain.DeviceStopped {
		t.Errorf("expected stopped device, got %s", ex.result.Status)
	}
	if ex.result.Succeeded != 0 || ex.result.Failed != 0 {
		t.Errorf("expected no scenarios run, got %+v", ex.result)
	}

	stats.VerifyStats("stop before scenario", f.reg, t,
		map[string]stats.Rule{
			stats.ExecutorDevicesStoppedCounter: {Checker: stats.Int64EqTest, Value: 1},
		})
}

// a stop arriving mid scenario lets the scenario finish, then winds down
func Test_DeviceExecutor_InFlightScenarioFinishes(t *testing.T) {
	f := newExecutorFixture()
	f.dialer.Program("device1", "pause", "pass", "pass")
	ex := f.executor(executorRequest(3, 0, "boot"), "device1")

	errCh := make(chan error, 1)
	go func() {
		errCh <- ex.run()
	}()

	// stop while the first scenario is blocked, then let it finish
	waitForScenarioStart(t, f.progress, "entry1", "device1", "boot")
	close(f.stopCh)
	f.dialer.Resume()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected stopped run to not error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the run to wind down after the paused scenario finished")
	}

	if ex.result.Status != domain.DeviceStopped {
		t.Errorf("expected stopped device, got %s", ex.result.Status)
	}
	if ex.result.Succeeded != 1 {
		t.Errorf("expected the in-flight scenario to finish and count, got %+v", ex.result)
	}
}

// a stop during the between-scenario interval cuts the wait short
func Test_DeviceExecutor_StopDuringInterval(t *testing.T) {
	f := newExecutorFixture()
	f.dialer.Program("device1", "pause")
	ex := f.executor(executorRequest(2, time.Hour, "boot"), "device1")

	errCh := make(chan error, 1)
	go func() {
		errCh <- ex.run()
	}()

	// hold the first scenario open until the stop is in place, so the stop
	// can only be observed by the interval wait
	waitForScenarioStart(t, f.progress, "entry1", "device1", "boot")
	close(f.stopCh)
	f.dialer.Resume()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("expected stopped run to not error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the interval wait to abort on stop")
	}
	if ex.result.Status != domain.DeviceStopped || ex.result.Succeeded != 1 {
		t.Errorf("expected 1 pass then a stop, got %+v", ex.result)
	}
}

// a scenario the catalog can no longer serve counts as failed without
// condemning the device
func Test_DeviceExecutor_CatalogMissFailsScenarioOnly(t *testing.T) {
	f := newExecutorFixture()
	ex := f.executor(executorRequest(1, 0, "boot", "missing", "wifi"), "device1")

	if err := ex.run(); err != nil {
		t.Fatalf("expected catalog miss to not fail the run, got %v", err)
	}
	if ex.result.Status != domain.DeviceCompleted {
		t.Errorf("expected completed device, got %s", ex.result.Status)
	}
	if ex.result.Succeeded != 2 || ex.result.Failed != 1 {
		t.Errorf("expected 2 passed 1 failed, got %+v", ex.result)
	}
}

// scenario list shorter than the walk wraps around per repeat
func Test_DeviceExecutor_RepeatsInterleave(t *testing.T) {
	f := newExecutorFixture()
	sub := f.broadcaster.Subscribe()
	defer sub.Close()
	ex := f.executor(executorRequest(2, 0, "boot", "wifi"), "device1")

	if err := ex.run(); err != nil {
		t.Fatalf("expected clean run, got %v", err)
	}

	// order is the full list once per repeat: boot wifi boot wifi
	var started []string
	var attempts []int
	for drained := false; !drained; {
		select {
		case ev := <-sub.Events():
			if ev.Type == domain.EventScenarioStarted {
				started = append(started, ev.ScenarioId)
				attempts = append(attempts, ev.Attempt)
			}
		default:
			drained = true
		}
	}
	expected := []string{"boot", "wifi", "boot", "wifi"}
	expectedAttempts := []int{1, 1, 2, 2}
	if len(started) != len(expected) {
		t.Fatalf("expected %d scenario starts, got %v", len(expected), started)
	}
	for i := range expected {
		if started[i] != expected[i] || attempts[i] != expectedAttempts[i] {
			t.Errorf("expected start %d to be %s attempt %d, got %s attempt %d",
				i, expected[i], expectedAttempts[i], started[i], attempts[i])
		}
	}
}
