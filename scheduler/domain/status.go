package domain

// EntryStatus tracks a queue entry through its lifecycle.
type EntryStatus string

const (
	// Waiting in the queue for its full device set to free up
	EntryPending EntryStatus = "pending"

	// Holding all of its device locks, executors running
	EntryRunning EntryStatus = "running"

	// All executors finished their plans (individual devices may have failed)
	EntryCompleted EntryStatus = "completed"

	// Cancelled while pending, or stopped cooperatively while running
	EntryCancelled EntryStatus = "cancelled"
)

// Terminal reports whether the entry reached a final state. Terminal entries
// are never mutated again.
func (s EntryStatus) Terminal() bool {
	return s == EntryCompleted || s == EntryCancelled
}

// DeviceStatus tracks one device's walk through its scenario plan within an
// active entry.
type DeviceStatus string

const (
	DeviceIdle      DeviceStatus = "idle"
	DeviceRunning   DeviceStatus = "running"
	DeviceCompleted DeviceStatus = "completed"
	DeviceFailed    DeviceStatus = "failed"
	DeviceStopped   DeviceStatus = "stopped"
)

// Done reports whether the device finished its plan, by any means.
func (s DeviceStatus) Done() bool {
	switch s {
	case DeviceCompleted, DeviceFailed, DeviceStopped:
		return true
	}
	return false
}

// DeviceLockStatus is the viewer-relative projection of a device lock used by
// admission UIs: free, held by the viewer, or held by someone else. Display
// metadata; admission always re-checks the authoritative lock table.
type DeviceLockStatus string

const (
	LockFree      DeviceLockStatus = "free"
	LockBusySelf  DeviceLockStatus = "busy_self"
	LockBusyOther DeviceLockStatus = "busy_other"
)
