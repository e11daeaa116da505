package server

import (
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/scheduler/domain"
)

const noEntry = ""

// offlineHolder is what status views show as the holder of a device an
// admin has taken out of rotation.
const offlineHolder = "(offline)"

var nilTime = time.Time{}

// deviceState tracks one pool device: which entry holds it, whether an admin
// took it offline, and whether the pool detached it while a run was still
// using it.
type deviceState struct {
	device       devices.Device
	holdingEntry string
	requester    string
	offline      bool
	detached     bool
	timeClaimed  time.Time
}

func newDeviceState(device devices.Device) *deviceState {
	return &deviceState{
		device:       device,
		holdingEntry: noEntry,
		timeClaimed:  nilTime,
	}
}

func (ds *deviceState) String() string {
	return fmt.Sprintf("deviceState{device:%s, holdingEntry:%s, requester:%s, offline:%t, detached:%t, timeClaimed:%v}",
		ds.device.Id(), ds.holdingEntry, ds.requester, ds.offline, ds.detached, ds.timeClaimed)
}

func (ds *deviceState) busy() bool {
	return ds.holdingEntry != noEntry
}

// grantable reports whether the device can be handed to a new entry.
func (ds *deviceState) grantable() bool {
	return !ds.busy() && !ds.offline && !ds.detached
}

// deviceLockTable is the authoritative device to holder map. Only the
// scheduler loop touches it, which is what stands in for locking here.
type deviceLockTable struct {
	states map[devices.DeviceId]*deviceState
}

func newDeviceLockTable() *deviceLockTable {
	return &deviceLockTable{states: make(map[devices.DeviceId]*deviceState)}
}

// addDevice makes a device grantable. Re-adding a known device refreshes its
// Device value and clears a detach, but never clobbers a live claim.
func (t *deviceLockTable) addDevice(device devices.Device) {
	id := device.Id()
	if ds, ok := t.states[id]; ok {
		ds.device = device
		ds.detached = false
		return
	}
	t.states[id] = newDeviceState(device)
}

// removeDevice drops a device from the table. A busy device is only marked
// detached; its claim stays intact until the executor finishes, and release
// reaps it then.
func (t *deviceLockTable) removeDevice(id devices.DeviceId) {
	ds, ok := t.states[id]
	if !ok {
		return
	}
	if ds.busy() {
		log.Infof("Device %s detached while held by entry %s, reaping deferred", id, ds.holdingEntry)
		ds.detached = true
		return
	}
	delete(t.states, id)
}

// tryAcquireAll claims every listed device for entryId, or none of them.
// The all-or-nothing rule means a waiting entry never holds a partial set,
// which is what keeps multi-device scheduling deadlock free.
func (t *deviceLockTable) tryAcquireAll(deviceIds []string, entryId string, requester string) bool {
	for _, id := range deviceIds {
		ds, ok := t.states[devices.DeviceId(id)]
		if !ok || !ds.grantable() {
			return false
		}
	}
	now := time.Now()
	for _, id := range deviceIds {
		ds := t.states[devices.DeviceId(id)]
		ds.holdingEntry = entryId
		ds.requester = requester
		ds.timeClaimed = now
	}
	return true
}

// release frees the listed devices. Unknown ids are tolerated since a
// detached device may already have been reaped.
func (t *deviceLockTable) release(deviceIds []string) {
	for _, id := range deviceIds {
		ds, ok := t.states[devices.DeviceId(id)]
		if !ok {
			log.Infof("Released device %s is no longer in the table", id)
			continue
		}
		ds.holdingEntry = noEntry
		ds.requester = ""
		ds.timeClaimed = nilTime
		if ds.detached {
			delete(t.states, devices.DeviceId(id))
		}
	}
}

// holderOf returns the claim on a device, if any.
func (t *deviceLockTable) holderOf(id devices.DeviceId) (entryId string, requester string, held bool) {
	ds, ok := t.states[id]
	if !ok || !ds.busy() {
		return noEntry, "", false
	}
	return ds.holdingEntry, ds.requester, true
}

// hasDevice reports whether a device is present and still attached.
func (t *deviceLockTable) hasDevice(id devices.DeviceId) bool {
	ds, ok := t.states[id]
	return ok && !ds.detached
}

// device returns the pool device by id, nil if unknown.
func (t *deviceLockTable) device(id devices.DeviceId) devices.Device {
	ds, ok := t.states[id]
	if !ok {
		return nil
	}
	return ds.device
}

// setOffline marks a device out of (or back into) rotation. A busy device
// can be offlined; its current entry keeps it but it will not be granted
// again until reinstated. Returns false for devices not in the table.
func (t *deviceLockTable) setOffline(id devices.DeviceId, offline bool) bool {
	ds, ok := t.states[id]
	if !ok || ds.detached {
		return false
	}
	ds.offline = offline
	return true
}

func (t *deviceLockTable) isOffline(id devices.DeviceId) bool {
	ds, ok := t.states[id]
	return ok && ds.offline
}

func (t *deviceLockTable) numDevices() int {
	return len(t.states)
}

func (t *deviceLockTable) numLocked() int {
	n := 0
	for _, ds := range t.states {
		if ds.busy() {
			n++
		}
	}
	return n
}

func (t *deviceLockTable) numOffline() int {
	n := 0
	for _, ds := range t.states {
		if ds.offline {
			n++
		}
	}
	return n
}

func (t *deviceLockTable) numFree() int {
	n := 0
	for _, ds := range t.states {
		if ds.grantable() {
			n++
		}
	}
	return n
}

// views projects the table relative to a viewer for status displays: a busy
// device shows busy_self when the viewer's own run holds it. Views are for
// display only, admission always re-reads the table itself.
func (t *deviceLockTable) views(viewer string) []domain.DeviceLockView {
	views := []domain.DeviceLockView{}
	for id, ds := range t.states {
		v := domain.DeviceLockView{
			DeviceId: string(id),
			Status:   domain.LockFree,
			Offline:  ds.offline,
		}
		if ds.busy() {
			v.HeldBy = ds.requester
			if ds.requester == viewer && viewer != "" {
				v.Status = domain.LockBusySelf
			} else {
				v.Status = domain.LockBusyOther
			}
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].DeviceId < views[j].DeviceId })
	return views
}
