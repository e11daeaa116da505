package runlog

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// RecoveredRun summarizes one run rebuilt from its logged messages.
type RecoveredRun struct {
	EntryId string

	// Entry payload from the RunAdmitted message.
	Entry []byte

	// Devices that logged DeviceStarted, in log order.
	Started []string

	// Device result payloads keyed by device id.
	Finished map[string][]byte

	// Whether a RunEnded message was logged, and its payload if so.
	Ended   bool
	EndData []byte
}

// WasRunning reports whether any device had started when the log was last
// written. Admitted runs with no started devices were still waiting.
func (r *RecoveredRun) WasRunning() bool {
	return len(r.Started) > 0
}

// RecoverRuns rebuilds every run in the log. The caller decides what to do
// with each class: ended runs are already complete, running ones were cut off
// mid flight, and the rest never got a device. Runs whose logs are corrupted
// or missing their RunAdmitted message are logged and skipped rather than
// failing the whole recovery.
func RecoverRuns(rlog RunLog) ([]RecoveredRun, error) {
	ids, err := rlog.GetActiveRuns()
	if err != nil {
		return nil, err
	}

	var runs []RecoveredRun
	for _, id := range ids {
		msgs, err := rlog.GetMessages(id)
		if err != nil {
			var cerr CorruptedLogError
			if errors.As(err, &cerr) {
				log.Errorf("Skipping unrecoverable run: %s", err)
				continue
			}
			return nil, err
		}
		if len(msgs) == 0 {
			continue
		}

		run, ok := buildRun(id, msgs)
		if !ok {
			log.Warnf("Skipping run %s: log has no RunAdmitted message", id)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func buildRun(entryId string, msgs []RunMessage) (RecoveredRun, bool) {
	run := RecoveredRun{
		EntryId:  entryId,
		Finished: make(map[string][]byte),
	}
	admitted := false

	for _, msg := range msgs {
		switch msg.MsgType {
		case RunAdmitted:
			admitted = true
			run.Entry = msg.Data
		case DeviceStarted:
			run.Started = append(run.Started, msg.DeviceId)
		case DeviceFinished:
			run.Finished[msg.DeviceId] = msg.Data
		case RunEnded:
			run.Ended = true
			run.EndData = msg.Data
		}
	}
	return run, admitted
}
