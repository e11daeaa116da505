package api

// Wire messages for the HTTP API and their translation to and from domain
// types. Handlers never hand domain structs to the encoder directly;
// everything crossing the wire passes through here.

import (
	"time"

	"github.com/testfarm/testfarm/scheduler/domain"
)

// RunRequestMsg is the submission body for POST /api/v1/runs.
type RunRequestMsg struct {
	RequesterName      string   `json:"requesterName"`
	DisplayName        string   `json:"displayName,omitempty"`
	Kind               string   `json:"kind,omitempty"`
	ScenarioIds        []string `json:"scenarioIds"`
	DeviceIds          []string `json:"deviceIds"`
	RepeatCount        int      `json:"repeatCount,omitempty"`
	ScenarioIntervalMs int64    `json:"scenarioIntervalMs,omitempty"`
}

// AdmitReplyMsg answers a submission: how it landed and the entries created.
type AdmitReplyMsg struct {
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	EntryIds []string  `json:"entryIds"`
	Split    *SplitMsg `json:"splitExecution,omitempty"`
}

// SplitMsg reports the device partition of a partial admission.
type SplitMsg struct {
	ImmediateDeviceIds []string `json:"immediateDeviceIds"`
	QueuedDeviceIds    []string `json:"queuedDeviceIds"`
}

// SchedulerStatusMsg reports the admission controls and live entry counts.
type SchedulerStatusMsg struct {
	Paused            bool `json:"paused"`
	MaxRunningEntries int  `json:"maxRunningEntries"`
	NumRunningEntries int  `json:"numRunningEntries"`
	NumPendingEntries int  `json:"numPendingEntries"`
}

// SchedulerControlMsg is the body for POST /api/v1/scheduler/status.
type SchedulerControlMsg struct {
	Paused            bool `json:"paused"`
	MaxRunningEntries int  `json:"maxRunningEntries"`
}

// DeviceAdminMsg carries the acting requester for a device admin action.
type DeviceAdminMsg struct {
	RequesterName string `json:"requesterName"`
}

type BlockedDeviceMsg struct {
	DeviceId string `json:"deviceId"`
	HeldBy   string `json:"heldBy,omitempty"`
}

// EntryMsg is the wire view of a live queue entry.
type EntryMsg struct {
	EntryId            string             `json:"entryId"`
	SiblingId          string             `json:"siblingId,omitempty"`
	RequesterName      string             `json:"requesterName"`
	DisplayName        string             `json:"displayName,omitempty"`
	Kind               string             `json:"kind"`
	ScenarioIds        []string           `json:"scenarioIds"`
	DeviceIds          []string           `json:"deviceIds"`
	RepeatCount        int                `json:"repeatCount"`
	ScenarioIntervalMs int64              `json:"scenarioIntervalMs,omitempty"`
	Status             string             `json:"status"`
	BlockedBy          []BlockedDeviceMsg `json:"blockedBy,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	StartedAt          *time.Time         `json:"startedAt,omitempty"`
}

type DeviceResultMsg struct {
	DeviceId  string `json:"deviceId"`
	Status    string `json:"status"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

// RecordMsg is one line of the completed run history.
type RecordMsg struct {
	EntryId       string            `json:"entryId"`
	Kind          string            `json:"kind"`
	DisplayName   string            `json:"displayName,omitempty"`
	RequesterName string            `json:"requesterName"`
	Status        string            `json:"status"`
	Devices       []DeviceResultMsg `json:"devices"`
	DurationMs    int64             `json:"durationMs"`
	CompletedAt   time.Time         `json:"completedAt"`
	ReportRef     string            `json:"reportRef,omitempty"`
}

// DeviceLockMsg is one device's row in a status snapshot, relative to the
// querying requester.
type DeviceLockMsg struct {
	DeviceId string `json:"deviceId"`
	Status   string `json:"status"`
	HeldBy   string `json:"heldBy,omitempty"`
	Offline  bool   `json:"offline,omitempty"`
}

// DeviceListMsg is the reply to GET /api/v1/devices.
type DeviceListMsg struct {
	Devices []DeviceLockMsg `json:"devices"`
}

// FarmStatusMsg is the full snapshot served by GET /api/v1/status.
type FarmStatusMsg struct {
	SchedulerStatus    SchedulerStatusMsg `json:"schedulerStatus"`
	PendingEntries     []EntryMsg         `json:"pendingEntries"`
	RunningEntries     []EntryMsg         `json:"runningEntries"`
	CompletedEntries   []RecordMsg        `json:"completedEntries"`
	DeviceLockStatuses []DeviceLockMsg    `json:"deviceLockStatuses"`
}

type DeviceProgressMsg struct {
	DeviceId     string `json:"deviceId"`
	Status       string `json:"status"`
	ScenarioId   string `json:"scenarioId,omitempty"`
	ScenarioName string `json:"scenarioName,omitempty"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	Total        int    `json:"total"`
}

// RunProgressMsg is the entry-wide progress view carried by run-progress
// events.
type RunProgressMsg struct {
	EntryId        string              `json:"entryId"`
	Completed      int                 `json:"completed"`
	Failed         int                 `json:"failed"`
	Total          int                 `json:"total"`
	Percent        float64             `json:"percent"`
	EstRemainingMs int64               `json:"estRemainingMs,omitempty"`
	Devices        []DeviceProgressMsg `json:"devices"`
}

// EventMsg is the data payload of one SSE frame. Fields beyond type/entryId
// are filled per topic.
type EventMsg struct {
	Type          string          `json:"type"`
	EntryId       string          `json:"entryId,omitempty"`
	RequesterName string          `json:"requesterName,omitempty"`
	DeviceId      string          `json:"deviceId,omitempty"`
	ScenarioId    string          `json:"scenarioId,omitempty"`
	ScenarioName  string          `json:"scenarioName,omitempty"`
	Attempt       int             `json:"attempt,omitempty"`
	Passed        *bool           `json:"passed,omitempty"`
	DeviceStatus  string          `json:"deviceStatus,omitempty"`
	Step          string          `json:"step,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	Progress      *RunProgressMsg `json:"progress,omitempty"`
	Record        *RecordMsg      `json:"record,omitempty"`
	Time          time.Time       `json:"time"`
}

type errorMsg struct {
	Error string `json:"error"`
}

// Translates a submission body to a domain run request. Omitted repeatCount
// and kind get the friendly defaults; anything explicitly wrong is left for
// domain validation to reject.
func msgToRequest(msg *RunRequestMsg) (*domain.RunRequest, error) {
	if msg == nil {
		return nil, domain.NewInvalidRequest("nil run request")
	}
	req := &domain.RunRequest{
		Requester:        msg.RequesterName,
		DisplayName:      msg.DisplayName,
		Kind:             domain.RunKind(msg.Kind),
		ScenarioIds:      msg.ScenarioIds,
		DeviceIds:        msg.DeviceIds,
		RepeatCount:      msg.RepeatCount,
		ScenarioInterval: time.Duration(msg.ScenarioIntervalMs) * time.Millisecond,
	}
	if req.Kind == "" {
		req.Kind = domain.RunKindTest
	}
	if req.RepeatCount == 0 {
		req.RepeatCount = 1
	}
	return req, nil
}

func admitToMsg(res *domain.AdmitResult) *AdmitReplyMsg {
	msg := &AdmitReplyMsg{
		Status:   string(res.Outcome),
		Message:  res.Message,
		EntryIds: res.EntryIds,
	}
	if msg.EntryIds == nil {
		msg.EntryIds = []string{}
	}
	if res.Split != nil {
		msg.Split = &SplitMsg{
			ImmediateDeviceIds: res.Split.ImmediateDeviceIds,
			QueuedDeviceIds:    res.Split.QueuedDeviceIds,
		}
	}
	return msg
}

func schedulerStatusToMsg(st domain.SchedulerStatus) SchedulerStatusMsg {
	return SchedulerStatusMsg{
		Paused:            st.Paused,
		MaxRunningEntries: st.MaxRunningEntries,
		NumRunningEntries: st.NumRunningEntries,
		NumPendingEntries: st.NumPendingEntries,
	}
}

func entryToMsg(e domain.QueueEntry) EntryMsg {
	msg := EntryMsg{
		EntryId:            e.EntryId,
		SiblingId:          e.SiblingId,
		RequesterName:      e.Request.Requester,
		DisplayName:        e.Request.DisplayName,
		Kind:               string(e.Request.Kind),
		ScenarioIds:        e.Request.ScenarioIds,
		DeviceIds:          e.DeviceIds,
		RepeatCount:        e.Request.RepeatCount,
		ScenarioIntervalMs: e.Request.ScenarioInterval.Milliseconds(),
		Status:             string(e.Status),
		CreatedAt:          e.CreatedAt,
	}
	if !e.StartedAt.IsZero() {
		t := e.StartedAt
		msg.StartedAt = &t
	}
	for _, b := range e.BlockedBy {
		msg.BlockedBy = append(msg.BlockedBy, BlockedDeviceMsg{DeviceId: b.DeviceId, HeldBy: b.HeldBy})
	}
	return msg
}

func recordToMsg(r domain.CompletedRecord) RecordMsg {
	msg := RecordMsg{
		EntryId:       r.EntryId,
		Kind:          string(r.Kind),
		DisplayName:   r.DisplayName,
		RequesterName: r.Requester,
		Status:        string(r.Status),
		Devices:       []DeviceResultMsg{},
		DurationMs:    r.Duration.Milliseconds(),
		CompletedAt:   r.CompletedAt,
		ReportRef:     r.ReportRef,
	}
	for _, d := range r.Devices {
		msg.Devices = append(msg.Devices, DeviceResultMsg{
			DeviceId:  d.DeviceId,
			Status:    string(d.Status),
			Succeeded: d.Succeeded,
			Failed:    d.Failed,
			Total:     d.Total,
		})
	}
	return msg
}

func deviceLockToMsg(d domain.DeviceLockView) DeviceLockMsg {
	return DeviceLockMsg{
		DeviceId: d.DeviceId,
		Status:   string(d.Status),
		HeldBy:   d.HeldBy,
		Offline:  d.Offline,
	}
}

// Translates a farm snapshot to its wire form. Slices are always present on
// the wire, empty rather than null, so dashboard consumers can range freely.
func statusToMsg(st *domain.FarmStatus) *FarmStatusMsg {
	msg := &FarmStatusMsg{
		SchedulerStatus:    schedulerStatusToMsg(st.Scheduler),
		PendingEntries:     []EntryMsg{},
		RunningEntries:     []EntryMsg{},
		CompletedEntries:   []RecordMsg{},
		DeviceLockStatuses: []DeviceLockMsg{},
	}
	for _, e := range st.Pending {
		msg.PendingEntries = append(msg.PendingEntries, entryToMsg(e))
	}
	for _, e := range st.Running {
		msg.RunningEntries = append(msg.RunningEntries, entryToMsg(e))
	}
	for _, r := range st.Completed {
		msg.CompletedEntries = append(msg.CompletedEntries, recordToMsg(r))
	}
	for _, d := range st.Devices {
		msg.DeviceLockStatuses = append(msg.DeviceLockStatuses, deviceLockToMsg(d))
	}
	return msg
}

func progressToMsg(p *domain.RunProgress) *RunProgressMsg {
	msg := &RunProgressMsg{
		EntryId:        p.EntryId,
		Completed:      p.Completed,
		Failed:         p.Failed,
		Total:          p.Total,
		Percent:        p.Percent,
		EstRemainingMs: p.EstRemaining.Milliseconds(),
		Devices:        []DeviceProgressMsg{},
	}
	for _, d := range p.Devices {
		msg.Devices = append(msg.Devices, DeviceProgressMsg{
			DeviceId:     d.DeviceId,
			Status:       string(d.Status),
			ScenarioId:   d.ScenarioId,
			ScenarioName: d.ScenarioName,
			Completed:    d.Completed,
			Failed:       d.Failed,
			Total:        d.Total,
		})
	}
	return msg
}

func eventToMsg(ev domain.Event) *EventMsg {
	msg := &EventMsg{
		Type:          string(ev.Type),
		EntryId:       ev.EntryId,
		RequesterName: ev.Requester,
		DeviceId:      ev.DeviceId,
		ScenarioId:    ev.ScenarioId,
		ScenarioName:  ev.ScenarioName,
		Attempt:       ev.Attempt,
		DeviceStatus:  string(ev.DeviceStatus),
		Step:          ev.Step,
		Detail:        ev.Detail,
		Time:          ev.Time,
	}
	if ev.Type == domain.EventScenarioCompleted {
		passed := ev.Passed
		msg.Passed = &passed
	}
	if ev.Progress != nil {
		msg.Progress = progressToMsg(ev.Progress)
	}
	if ev.Record != nil {
		rec := recordToMsg(*ev.Record)
		msg.Record = &rec
	}
	return msg
}
