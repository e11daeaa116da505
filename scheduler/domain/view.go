package domain

// SchedulerStatus reports the admission controls and current load. Paused
// stops new submissions; already admitted entries keep draining.
// MaxRunningEntries of 0 means unlimited.
type SchedulerStatus struct {
	Paused            bool
	MaxRunningEntries int
	NumRunningEntries int
	NumPendingEntries int
}

// DeviceLockView is one device's row in a status snapshot: its lock state
// relative to the viewing requester, who holds it if busy, and whether an
// admin took it offline.
type DeviceLockView struct {
	DeviceId string
	Status   DeviceLockStatus
	HeldBy   string
	Offline  bool
}

// FarmStatus is the full snapshot served to dashboards: scheduler controls,
// live entries, recent history, and the per-device lock projection.
type FarmStatus struct {
	Scheduler SchedulerStatus
	Pending   []QueueEntry
	Running   []QueueEntry
	Completed []CompletedRecord
	Devices   []DeviceLockView
}

// DeviceAdminReq identifies a device for an admin action and who is asking.
type DeviceAdminReq struct {
	ID        string
	Requester string
}
