package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/runlog"
	"github.com/testfarm/testfarm/scenarios"
	"github.com/testfarm/testfarm/scheduler/domain"
	"github.com/testfarm/testfarm/session"
)

// deviceExecutor walks one device through an entry's scenario plan: every
// scenario id in order, repeated RepeatCount times, with ScenarioInterval
// between consecutive scenarios (never before the first or after the last).
//
// It runs as a spawned function under the scheduler's async runner and talks
// back only through the progress aggregator, the run log, and its completion
// callback, so it holds no scheduler state. Stop requests are observed
// between scenarios; an in-flight scenario always finishes.
type deviceExecutor struct {
	entryId  string
	req      *domain.RunRequest
	device   devices.Device
	dialer   session.Dialer
	catalog  scenarios.Catalog
	progress *ProgressAggregator
	rlog     runlog.RunLog
	stat     stats.StatsReceiver
	stopCh   <-chan struct{}

	// Filled by run, read by the completion callback after run returns.
	result domain.DeviceResult
}

func newDeviceExecutor(
	entryId string,
	req *domain.RunRequest,
	device devices.Device,
	dialer session.Dialer,
	catalog scenarios.Catalog,
	progress *ProgressAggregator,
	rlog runlog.RunLog,
	stat stats.StatsReceiver,
	stopCh <-chan struct{},
) *deviceExecutor {
	return &deviceExecutor{
		entryId:  entryId,
		req:      req,
		device:   device,
		dialer:   dialer,
		catalog:  catalog,
		progress: progress,
		rlog:     rlog,
		stat:     stat,
		stopCh:   stopCh,
	}
}

// run executes the device's plan. The returned error reports a session-level
// failure; scenario failures are counted in the result and do not error.
func (ex *deviceExecutor) run() error {
	deviceId := string(ex.device.Id())
	ex.result = domain.DeviceResult{
		DeviceId: deviceId,
		Total:    ex.req.TotalScenarios(),
	}

	if err := ex.rlog.LogMessage(runlog.MakeDeviceStartedMessage(ex.entryId, deviceId)); err != nil {
		ex.stat.Counter(stats.RunLogWriteFailuresCounter).Inc(1)
		log.WithFields(log.Fields{"entryID": ex.entryId, "deviceID": deviceId}).
			Errorf("Failed to journal device start: %v", err)
	}
	ex.progress.DeviceStarted(ex.entryId, deviceId)

	// The dial aborts on a stop request; a running scenario does not.
	dialCtx, cancelDial := context.WithCancel(context.Background())
	defer cancelDial()
	go func() {
		select {
		case <-ex.stopCh:
			cancelDial()
		case <-dialCtx.Done():
		}
	}()

	dialLatency := ex.stat.Latency(stats.ExecutorSessionDialLatency_ms).Time()
	sess, err := ex.dialer.Dial(dialCtx, ex.device)
	dialLatency.Stop()
	if err != nil {
		if ex.stopRequested() {
			return ex.finish(domain.DeviceStopped, nil)
		}
		return ex.finish(domain.DeviceFailed, errors.Wrapf(err, "could not dial device %s", deviceId))
	}
	defer sess.Close()

	total := ex.req.TotalScenarios()
	numScenarios := len(ex.req.ScenarioIds)
	stopped := false
	for k := 0; k < total; k++ {
		if k > 0 && !ex.waitInterval() {
			stopped = true
			break
		}
		if ex.stopRequested() {
			stopped = true
			break
		}

		scenarioId := ex.req.ScenarioIds[k%numScenarios]
		attempt := k/numScenarios + 1
		sc, err := ex.catalog.Scenario(context.Background(), scenarioId)
		if err != nil {
			// The plan was vetted at admission, so this is a catalog outage,
			// not a device problem. Count a failure and keep walking.
			log.WithFields(log.Fields{"entryID": ex.entryId, "deviceID": deviceId, "scenarioID": scenarioId}).
				Errorf("Could not fetch scenario: %v", err)
			ex.result.Failed++
			ex.stat.Counter(stats.ExecutorScenariosFailedCounter).Inc(1)
			ex.progress.ScenarioCompleted(ex.entryId, deviceId, scenarios.Scenario{Id: scenarioId}, attempt, false, 0)
			continue
		}

		ex.progress.ScenarioStarted(ex.entryId, deviceId, sc, attempt)
		scenarioLatency := ex.stat.Latency(stats.ExecutorScenarioLatency_ms).Time()
		started := time.Now()
		res, err := sess.Run(context.Background(), sc, func(ev session.StepEvent) {
			if !ev.Passed {
				ex.progress.StepFailed(ex.entryId, deviceId, ev)
			}
		})
		scenarioLatency.Stop()
		if err != nil {
			log.WithFields(log.Fields{"entryID": ex.entryId, "deviceID": deviceId, "scenarioID": scenarioId}).
				Errorf("Session broke mid plan: %v", err)
			return ex.finish(domain.DeviceFailed, errors.Wrapf(err, "session failed on device %s", deviceId))
		}

		if res.Passed {
			ex.result.Succeeded++
			ex.stat.Counter(stats.ExecutorScenariosCompletedCounter).Inc(1)
		} else {
			ex.result.Failed++
			ex.stat.Counter(stats.ExecutorScenariosFailedCounter).Inc(1)
			log.WithFields(log.Fields{"entryID": ex.entryId, "deviceID": deviceId, "scenarioID": scenarioId}).
				Infof("Scenario failed at step %q: %s", res.FailedStep, res.Detail)
		}
		ex.progress.ScenarioCompleted(ex.entryId, deviceId, sc, attempt, res.Passed, time.Since(started))
	}

	if stopped {
		return ex.finish(domain.DeviceStopped, nil)
	}
	return ex.finish(domain.DeviceCompleted, nil)
}

// finish settles the device's terminal status, publishes it, and journals the
// result. Journal failures past admission are logged, not fatal; the loop's
// RunEnded write is what recovery keys off.
func (ex *deviceExecutor) finish(status domain.DeviceStatus, err error) error {
	deviceId := string(ex.device.Id())
	ex.result.Status = status
	switch status {
	case domain.DeviceFailed:
		ex.stat.Counter(stats.ExecutorDeviceFailuresCounter).Inc(1)
	case domain.DeviceStopped:
		ex.stat.Counter(stats.ExecutorDevicesStoppedCounter).Inc(1)
	}

	ex.progress.DeviceDone(ex.entryId, deviceId, status)

	data, merr := json.Marshal(ex.result)
	if merr != nil {
		log.WithFields(log.Fields{"entryID": ex.entryId, "deviceID": deviceId}).
			Errorf("Could not marshal device result: %v", merr)
		return err
	}
	if lerr := ex.rlog.LogMessage(runlog.MakeDeviceFinishedMessage(ex.entryId, deviceId, data)); lerr != nil {
		ex.stat.Counter(stats.RunLogWriteFailuresCounter).Inc(1)
		log.WithFields(log.Fields{"entryID": ex.entryId, "deviceID": deviceId}).
			Errorf("Failed to journal device result: %v", lerr)
	}
	return err
}

// waitInterval sleeps the configured gap between scenarios, returning false
// if a stop request arrived while waiting.
func (ex *deviceExecutor) waitInterval() bool {
	if ex.req.ScenarioInterval <= 0 {
		return true
	}
	t := time.NewTimer(ex.req.ScenarioInterval)
	defer t.Stop()
	select {
	case <-ex.stopCh:
		return false
	case <-t.C:
		return true
	}
}

func (ex *deviceExecutor) stopRequested() bool {
	select {
	case <-ex.stopCh:
		return true
	default:
		return false
	}
}
