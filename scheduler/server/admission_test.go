package server

import (
	"sort"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/testfarm/testfarm/common"
	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/scheduler/domain"
)

func admissionRequest(deviceIds ...string) *domain.RunRequest {
	return &domain.RunRequest{
		Requester:   "tester",
		Kind:        domain.RunKindTest,
		ScenarioIds: []string{"boot"},
		DeviceIds:   deviceIds,
		RepeatCount: 1,
	}
}

func Test_Admission_AllFree(t *testing.T) {
	table := setupTestLockTable("device1", "device2")

	plan, err := planAdmission(table, admissionRequest("device1", "device2"), true)
	if err != nil {
		t.Fatalf("expected plan, got error %v", err)
	}
	if plan.immediate == nil || plan.queued != nil {
		t.Fatalf("expected immediate-only plan, got %v", spew.Sdump(plan))
	}
	if len(plan.immediate.DeviceIds) != 2 {
		t.Errorf("expected immediate entry to cover both devices")
	}
	if plan.immediate.SiblingId != "" {
		t.Errorf("expected no sibling for an unsplit plan")
	}
	if plan.immediate.Status != domain.EntryPending {
		t.Errorf("expected new entry to start pending, got %s", plan.immediate.Status)
	}
}

func Test_Admission_AllBusy(t *testing.T) {
	table := setupTestLockTable("device1", "device2")
	table.tryAcquireAll([]string{"device1", "device2"}, "entry0", "alice")

	plan, err := planAdmission(table, admissionRequest("device1", "device2"), true)
	if err != nil {
		t.Fatalf("expected plan, got error %v", err)
	}
	if plan.immediate != nil || plan.queued == nil {
		t.Fatalf("expected queued-only plan, got %v", spew.Sdump(plan))
	}
	if len(plan.queued.BlockedBy) != 2 {
		t.Fatalf("expected 2 blocked devices, got %d", len(plan.queued.BlockedBy))
	}
	for _, b := range plan.queued.BlockedBy {
		if b.HeldBy != "alice" {
			t.Errorf("expected blocked device %s to name alice as holder, got %s", b.DeviceId, b.HeldBy)
		}
	}
}

func Test_Admission_Split(t *testing.T) {
	table := setupTestLockTable("device1", "device2", "device3")
	table.tryAcquireAll([]string{"device2"}, "entry0", "alice")

	plan, err := planAdmission(table, admissionRequest("device1", "device2", "device3"), true)
	if err != nil {
		t.Fatalf("expected plan, got error %v", err)
	}
	if plan.immediate == nil || plan.queued == nil {
		t.Fatalf("expected a split plan, got %v", spew.Sdump(plan))
	}
	if plan.immediate.SiblingId != plan.queued.EntryId || plan.queued.SiblingId != plan.immediate.EntryId {
		t.Errorf("expected siblings to link to each other")
	}
	if plan.immediate.EntryId == plan.queued.EntryId {
		t.Errorf("expected siblings to have distinct ids")
	}

	immediate := append([]string(nil), plan.immediate.DeviceIds...)
	queued := append([]string(nil), plan.queued.DeviceIds...)
	sort.Strings(immediate)
	if immediate[0] != "device1" || immediate[1] != "device3" {
		t.Errorf("expected immediate half to be the free devices, got %v", immediate)
	}
	if len(queued) != 1 || queued[0] != "device2" {
		t.Errorf("expected queued half to be the busy device, got %v", queued)
	}
	if len(plan.queued.BlockedBy) != 1 || plan.queued.BlockedBy[0].HeldBy != "alice" {
		t.Errorf("expected queued half blocked by alice, got %v", plan.queued.BlockedBy)
	}

	// both halves share the one request
	if plan.immediate.Request != plan.queued.Request {
		t.Errorf("expected siblings to share the request")
	}
}

func Test_Admission_OfflineDeviceBlocks(t *testing.T) {
	table := setupTestLockTable("device1", "device2")
	table.setOffline("device2", true)

	plan, err := planAdmission(table, admissionRequest("device1", "device2"), true)
	if err != nil {
		t.Fatalf("expected plan, got error %v", err)
	}
	if plan.immediate == nil || plan.queued == nil {
		t.Fatalf("expected a split plan around the offline device, got %v", spew.Sdump(plan))
	}
	if len(plan.queued.BlockedBy) != 1 || plan.queued.BlockedBy[0].HeldBy != offlineHolder {
		t.Errorf("expected blocked entry naming the offline holder, got %v", plan.queued.BlockedBy)
	}
}

func Test_Admission_UnknownDeviceRejected(t *testing.T) {
	table := setupTestLockTable("device1")

	_, err := planAdmission(table, admissionRequest("device1", "ghost"), true)
	if err == nil {
		t.Fatalf("expected error for unknown device")
	}
	if _, ok := err.(*domain.InvalidRequest); !ok {
		t.Errorf("expected InvalidRequest, got %T: %v", err, err)
	}
	if table.numLocked() != 0 {
		t.Errorf("expected no locks after rejected plan")
	}
}

// when the running entry cap is hit the request queues whole; splitting off
// an immediate half that cannot start would only fragment the run
func Test_Admission_CapReachedQueuesWhole(t *testing.T) {
	table := setupTestLockTable("device1", "device2")
	table.tryAcquireAll([]string{"device2"}, "entry0", "alice")

	plan, err := planAdmission(table, admissionRequest("device1", "device2"), false)
	if err != nil {
		t.Fatalf("expected plan, got error %v", err)
	}
	if plan.immediate != nil || plan.queued == nil {
		t.Fatalf("expected queued-only plan under cap, got %v", spew.Sdump(plan))
	}
	if len(plan.queued.DeviceIds) != 2 {
		t.Errorf("expected the whole device set queued, got %v", plan.queued.DeviceIds)
	}
	if len(plan.queued.BlockedBy) != 1 || plan.queued.BlockedBy[0].DeviceId != "device2" {
		t.Errorf("expected BlockedBy to still name the busy device, got %v", plan.queued.BlockedBy)
	}
}

func Test_Admission_GenerateEntryId(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := common.GenUUID()
		if id == "" {
			t.Fatalf("expected non-empty entry id")
		}
		if seen[id] {
			t.Fatalf("expected unique entry ids, got duplicate %s", id)
		}
		seen[id] = true
	}
}

// a split plan's halves partition the requested device set exactly
func Test_Admission_SplitConservation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("split conserves the device set", prop.ForAll(
		func(poolSize, takeMask int) bool {
			table, pool, _ := buildMaskedTable(poolSize, takeMask)

			plan, err := planAdmission(table, admissionRequest(pool...), true)
			if err != nil {
				return false
			}

			covered := map[string]int{}
			for _, entry := range plan.entries() {
				for _, id := range entry.DeviceIds {
					covered[id]++
				}
			}
			if len(covered) != len(pool) {
				return false
			}
			for _, id := range pool {
				if covered[id] != 1 {
					return false
				}
			}

			// the immediate half must be startable right now
			if plan.immediate != nil {
				for _, id := range plan.immediate.DeviceIds {
					if _, _, held := table.holderOf(devices.DeviceId(id)); held {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 1023),
	))

	properties.TestingRun(t)
}
