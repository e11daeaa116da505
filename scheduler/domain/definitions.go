// Package domain provides definitions for TestFarm runs: the requests clients
// submit, the queue entries the scheduler tracks, and the records it retains.
package domain

import (
	"fmt"
	"time"
)

// RunKind distinguishes a one-scenario test run from a suite run.
type RunKind string

const (
	RunKindTest  RunKind = "test"
	RunKindSuite RunKind = "suite"
)

// RunRequest is the run intent a client submitted: which scenarios to drive
// across which devices, how many times, and how far apart. Immutable once
// admitted; sibling queue entries share the same underlying request.
type RunRequest struct {
	Requester        string
	DisplayName      string
	Kind             RunKind
	ScenarioIds      []string
	DeviceIds        []string
	RepeatCount      int
	ScenarioInterval time.Duration
	CreatedAt        time.Time
}

func (r *RunRequest) String() string {
	return fmt.Sprintf("requester:%s, kind:%s, scenarios:%d, devices:%d, repeat:%d, interval:%s",
		r.Requester, r.Kind, len(r.ScenarioIds), len(r.DeviceIds), r.RepeatCount, r.ScenarioInterval)
}

// TotalScenarios is the length of the flat plan each device walks through.
func (r *RunRequest) TotalScenarios() int {
	return len(r.ScenarioIds) * r.RepeatCount
}

// ValidateRequest checks that a request could ever be admitted. Device
// availability is deliberately not checked here; contention is not an error,
// it resolves through queueing.
func ValidateRequest(r *RunRequest) error {
	if r.Requester == "" {
		return NewInvalidRequest("requesterName must not be empty")
	}
	if len(r.ScenarioIds) == 0 {
		return NewInvalidRequest("request must name at least one scenario")
	}
	if len(r.DeviceIds) == 0 {
		return NewInvalidRequest("request must name at least one device")
	}
	seen := map[string]bool{}
	for _, d := range r.DeviceIds {
		if d == "" {
			return NewInvalidRequest("empty device id")
		}
		if seen[d] {
			return NewInvalidRequest("duplicate device id %s", d)
		}
		seen[d] = true
	}
	if r.RepeatCount < 1 {
		return NewInvalidRequest("repeatCount must be >= 1, got %d", r.RepeatCount)
	}
	if r.ScenarioInterval < 0 {
		return NewInvalidRequest("scenario interval must be >= 0, got %s", r.ScenarioInterval)
	}
	switch r.Kind {
	case RunKindTest, RunKindSuite:
	default:
		return NewInvalidRequest("unknown run kind %q", r.Kind)
	}
	return nil
}

// BlockedDevice records why a pending entry cannot start yet: a device it
// needs and who holds that device right now.
type BlockedDevice struct {
	DeviceId string
	HeldBy   string
}

// QueueEntry is the schedulable unit: one RunRequest bound to a subset of its
// devices. A split request produces two sibling entries that together cover
// the request's device set exactly, with no overlap.
type QueueEntry struct {
	EntryId   string
	SiblingId string // other half of a split request, if any
	Request   *RunRequest
	DeviceIds []string
	Status    EntryStatus

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// BlockedBy is refreshed while the entry is pending. Display metadata
	// only, never consulted for admission.
	BlockedBy []BlockedDevice
}

func (e *QueueEntry) String() string {
	return fmt.Sprintf("entry:%s, status:%s, devices:%v, requester:%s",
		e.EntryId, e.Status, e.DeviceIds, e.Request.Requester)
}

// Copy returns a snapshot of the entry safe to hand outside the scheduler loop.
func (e *QueueEntry) Copy() QueueEntry {
	cp := *e
	cp.DeviceIds = append([]string(nil), e.DeviceIds...)
	cp.BlockedBy = append([]BlockedDevice(nil), e.BlockedBy...)
	return cp
}

// DeviceResult is one device's share of a finished entry.
type DeviceResult struct {
	DeviceId  string
	Status    DeviceStatus
	Succeeded int
	Failed    int
	Total     int
}

// CompletedRecord is one line of the bounded history ledger. ReportRef stays
// empty until the external report service acknowledges persisting the run.
type CompletedRecord struct {
	EntryId     string
	Kind        RunKind
	DisplayName string
	Requester   string
	Status      EntryStatus
	Devices     []DeviceResult
	Duration    time.Duration
	CompletedAt time.Time
	ReportRef   string
}

// AdmitOutcome says how a submission landed: fully started, fully queued, or
// split across both.
type AdmitOutcome string

const (
	OutcomeStarted AdmitOutcome = "started"
	OutcomeQueued  AdmitOutcome = "queued"
	OutcomePartial AdmitOutcome = "partial"
)

// SplitExecution reports the device partition of a partial admission.
type SplitExecution struct {
	ImmediateDeviceIds []string
	QueuedDeviceIds    []string
}

// AdmitResult is the synchronous answer to a submission.
type AdmitResult struct {
	Outcome  AdmitOutcome
	Message  string
	EntryIds []string
	Split    *SplitExecution
}
