package server

import (
	"strings"
	"time"

	"github.com/testfarm/testfarm/common"
	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/scheduler/domain"
)

// devicePartition is the free/busy split of one submission's device set
// against the lock table at a moment in time.
type devicePartition struct {
	free    []string
	busy    []string
	blocked []domain.BlockedDevice
	unknown []string
}

// partitionDevices classifies each requested device: free and grantable,
// busy (held by another entry, or offlined by an admin), or not in the pool
// at all. Offline devices count as busy so the request waits for them rather
// than failing; their blocked row names the offline state as the holder.
func partitionDevices(table *deviceLockTable, deviceIds []string) devicePartition {
	part := devicePartition{}
	for _, id := range deviceIds {
		did := devices.DeviceId(id)
		if !table.hasDevice(did) {
			part.unknown = append(part.unknown, id)
			continue
		}
		if _, requester, held := table.holderOf(did); held {
			part.busy = append(part.busy, id)
			part.blocked = append(part.blocked, domain.BlockedDevice{DeviceId: id, HeldBy: requester})
			continue
		}
		if table.isOffline(did) {
			part.busy = append(part.busy, id)
			part.blocked = append(part.blocked, domain.BlockedDevice{DeviceId: id, HeldBy: offlineHolder})
			continue
		}
		part.free = append(part.free, id)
	}
	return part
}

// admissionPlan is what to do with one submission: an entry that can start
// now, an entry that must wait, or a sibling pair covering both halves.
type admissionPlan struct {
	immediate *domain.QueueEntry
	queued    *domain.QueueEntry
}

func (p *admissionPlan) entries() []*domain.QueueEntry {
	var out []*domain.QueueEntry
	if p.immediate != nil {
		out = append(out, p.immediate)
	}
	if p.queued != nil {
		out = append(out, p.queued)
	}
	return out
}

// planAdmission partitions a request's devices and builds its queue entries.
// A split produces two sibling entries that cover the requested device set
// exactly, with no overlap. Unknown devices reject the whole request; waiting
// for a device that may never exist helps nobody. When mayStart is false
// (running entry cap reached) the whole request queues as one entry; splitting
// would be pointless since neither half could start.
func planAdmission(table *deviceLockTable, req *domain.RunRequest, mayStart bool) (*admissionPlan, error) {
	part := partitionDevices(table, req.DeviceIds)
	if len(part.unknown) > 0 {
		return nil, domain.NewInvalidRequest("unknown devices: %s", strings.Join(part.unknown, ", "))
	}

	plan := &admissionPlan{}
	if !mayStart {
		plan.queued = newQueueEntry(req, req.DeviceIds)
		plan.queued.BlockedBy = part.blocked
		return plan, nil
	}
	if len(part.busy) == 0 {
		plan.immediate = newQueueEntry(req, part.free)
		return plan, nil
	}
	if len(part.free) == 0 {
		plan.queued = newQueueEntry(req, part.busy)
		plan.queued.BlockedBy = part.blocked
		return plan, nil
	}
	plan.immediate = newQueueEntry(req, part.free)
	plan.queued = newQueueEntry(req, part.busy)
	plan.immediate.SiblingId = plan.queued.EntryId
	plan.queued.SiblingId = plan.immediate.EntryId
	plan.queued.BlockedBy = part.blocked
	return plan, nil
}

// newQueueEntry binds a request to a subset of its devices.
func newQueueEntry(req *domain.RunRequest, deviceIds []string) *domain.QueueEntry {
	return &domain.QueueEntry{
		EntryId:   common.GenUUID(),
		Request:   req,
		DeviceIds: append([]string(nil), deviceIds...),
		Status:    domain.EntryPending,
		CreatedAt: time.Now(),
	}
}
