package server

import (
	"testing"

	"github.com/testfarm/testfarm/scheduler/domain"
)

func queuedEntry(entryId string, deviceIds ...string) *entryState {
	return newEntryState(&domain.QueueEntry{
		EntryId:   entryId,
		Request:   &domain.RunRequest{Requester: "tester", ScenarioIds: []string{"boot"}, RepeatCount: 1},
		DeviceIds: deviceIds,
		Status:    domain.EntryPending,
	})
}

func Test_WaitQueue_ArrivalOrder(t *testing.T) {
	q := newWaitQueue()
	q.insert(queuedEntry("entry1", "device1"))
	q.insert(queuedEntry("entry2", "device2"))
	q.insert(queuedEntry("entry3", "device1"))

	if q.len() != 3 {
		t.Fatalf("expected queue length 3, got %d", q.len())
	}
	ordered := q.oldestFirst()
	for i, expected := range []string{"entry1", "entry2", "entry3"} {
		if ordered[i].entry.EntryId != expected {
			t.Errorf("expected position %d to be %s, got %s", i, expected, ordered[i].entry.EntryId)
		}
	}
}

func Test_WaitQueue_Remove(t *testing.T) {
	q := newWaitQueue()
	q.insert(queuedEntry("entry1", "device1"))
	q.insert(queuedEntry("entry2", "device2"))
	q.insert(queuedEntry("entry3", "device3"))

	removed := q.remove("entry2")
	if removed == nil || removed.entry.EntryId != "entry2" {
		t.Fatalf("expected to remove entry2, got %v", removed)
	}
	if q.len() != 2 {
		t.Errorf("expected queue length 2, got %d", q.len())
	}
	ordered := q.oldestFirst()
	if ordered[0].entry.EntryId != "entry1" || ordered[1].entry.EntryId != "entry3" {
		t.Errorf("expected remaining order entry1, entry3")
	}

	if q.remove("entry2") != nil {
		t.Errorf("expected removing a missing entry to return nil")
	}
}

// removing while iterating a snapshot must not disturb the snapshot
func Test_WaitQueue_RemoveDuringScan(t *testing.T) {
	q := newWaitQueue()
	q.insert(queuedEntry("entry1", "device1"))
	q.insert(queuedEntry("entry2", "device2"))
	q.insert(queuedEntry("entry3", "device3"))

	seen := []string{}
	for _, es := range q.oldestFirst() {
		seen = append(seen, es.entry.EntryId)
		q.remove(es.entry.EntryId)
	}
	if len(seen) != 3 {
		t.Errorf("expected to visit all 3 entries, visited %v", seen)
	}
	if q.len() != 0 {
		t.Errorf("expected empty queue, got %d", q.len())
	}
}

func Test_WaitQueue_WaitingOn(t *testing.T) {
	q := newWaitQueue()
	q.insert(queuedEntry("entry1", "device1", "device2"))
	q.insert(queuedEntry("entry2", "device3"))
	q.insert(queuedEntry("entry3", "device2"))

	waiting := q.waitingOn("device2")
	if len(waiting) != 2 {
		t.Fatalf("expected 2 entries waiting on device2, got %d", len(waiting))
	}
	if waiting[0].entry.EntryId != "entry1" || waiting[1].entry.EntryId != "entry3" {
		t.Errorf("expected oldest-first order entry1, entry3")
	}
	if len(q.waitingOn("device4")) != 0 {
		t.Errorf("expected nobody waiting on device4")
	}
}
