package client

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/scheduler/api"
	"github.com/testfarm/testfarm/scheduler/domain"
	"github.com/testfarm/testfarm/scheduler/server"
)

// Spins up the real API handler around a mock scheduler and points a
// FarmClient at it, so these tests cover the full wire round trip.
func makeClientFixture(t *testing.T) (*FarmClient, *server.MockScheduler, *gomock.Controller, func()) {
	mockCtrl := gomock.NewController(t)
	s := server.NewMockScheduler(mockCtrl)
	srv := httptest.NewServer(api.NewHandler(s, stats.NilStatsReceiver()).Router())
	cl := NewFarmClient(FarmClientConfig{Addr: strings.TrimPrefix(srv.URL, "http://")})
	return cl, s, mockCtrl, srv.Close
}

func Test_FarmClient_SubmitRun(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	s.EXPECT().Submit(gomock.Any()).DoAndReturn(func(req *domain.RunRequest) (*domain.AdmitResult, error) {
		if req.Requester != "alice" || len(req.DeviceIds) != 2 || req.RepeatCount != 3 {
			t.Errorf("unexpected request on the server side: %v", req)
		}
		return &domain.AdmitResult{
			Outcome:  domain.OutcomeQueued,
			Message:  "run queued, waiting for: device1 (held by bob)",
			EntryIds: []string{"entry-1"},
		}, nil
	})

	reply, err := cl.SubmitRun(&api.RunRequestMsg{
		RequesterName: "alice",
		ScenarioIds:   []string{"boot"},
		DeviceIds:     []string{"device1", "device2"},
		RepeatCount:   3,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if reply.Status != "queued" || len(reply.EntryIds) != 1 || reply.EntryIds[0] != "entry-1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func Test_FarmClient_ErrorMapping(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	req := &api.RunRequestMsg{RequesterName: "alice", ScenarioIds: []string{"ghost"}, DeviceIds: []string{"device1"}}

	s.EXPECT().Submit(gomock.Any()).Return(nil, domain.NewInvalidRequest("unknown scenario ghost"))
	_, err := cl.SubmitRun(req)
	reply, ok := err.(*ReplyError)
	if !ok {
		t.Fatalf("expected a ReplyError, got %T: %v", err, err)
	}
	if reply.StatusCode != 400 || reply.Temporary() {
		t.Fatalf("invalid requests should be permanent 400s, got %+v", reply)
	}
	if !strings.Contains(reply.Message, "unknown scenario ghost") {
		t.Fatalf("expected the server message to come through, got %q", reply.Message)
	}

	s.EXPECT().Submit(gomock.Any()).Return(nil, server.ErrSchedulerPaused)
	_, err = cl.SubmitRun(req)
	reply, ok = err.(*ReplyError)
	if !ok {
		t.Fatalf("expected a ReplyError, got %T: %v", err, err)
	}
	if reply.StatusCode != 503 || !reply.Temporary() {
		t.Fatalf("a paused scheduler should be a retryable 503, got %+v", reply)
	}
}

func Test_FarmClient_CancelRun(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	s.EXPECT().Cancel("entry-1").Return(nil)
	if err := cl.CancelRun("entry-1"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
}

func Test_FarmClient_StatusAndDevices(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	s.EXPECT().Status("alice").Times(2).Return(&domain.FarmStatus{
		Scheduler: domain.SchedulerStatus{NumRunningEntries: 1},
		Devices: []domain.DeviceLockView{
			{DeviceId: "device1", Status: domain.LockBusySelf, HeldBy: "alice"},
			{DeviceId: "device2", Status: domain.LockFree},
		},
	})

	status, err := cl.GetStatus("alice")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status.SchedulerStatus.NumRunningEntries != 1 || len(status.DeviceLockStatuses) != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.DeviceLockStatuses[0].Status != "busy_self" {
		t.Fatalf("expected alice to see her own hold as busy_self, got %+v", status.DeviceLockStatuses[0])
	}

	list, err := cl.GetDevices("alice")
	if err != nil {
		t.Fatalf("get devices failed: %v", err)
	}
	if len(list.Devices) != 2 || list.Devices[1].Status != "free" {
		t.Fatalf("unexpected device list: %+v", list)
	}
}

func Test_FarmClient_DeviceAdmin(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	s.EXPECT().OfflineDevice(domain.DeviceAdminReq{ID: "device1", Requester: "admin"}).Return(nil)
	if err := cl.OfflineDevice("device1", "admin"); err != nil {
		t.Fatalf("offline failed: %v", err)
	}

	s.EXPECT().ReinstateDevice(domain.DeviceAdminReq{ID: "device1", Requester: "admin"}).Return(nil)
	if err := cl.ReinstateDevice("device1", "admin"); err != nil {
		t.Fatalf("reinstate failed: %v", err)
	}

	s.EXPECT().OfflineDevice(gomock.Any()).
		Return(domain.NewUnauthorized("requester mallory unauthorized to offline device"))
	err := cl.OfflineDevice("device1", "mallory")
	reply, ok := err.(*ReplyError)
	if !ok || reply.StatusCode != 403 {
		t.Fatalf("expected a 403 ReplyError, got %v", err)
	}
}

func Test_FarmClient_SchedulerStatus(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	s.EXPECT().GetSchedulerStatus().Return(domain.SchedulerStatus{Paused: true, NumPendingEntries: 4})
	status, err := cl.GetSchedulerStatus()
	if err != nil {
		t.Fatalf("get scheduler status failed: %v", err)
	}
	if !status.Paused || status.NumPendingEntries != 4 {
		t.Fatalf("unexpected scheduler status: %+v", status)
	}

	s.EXPECT().SetSchedulerStatus(true, 5).Return(nil)
	if err := cl.SetSchedulerStatus(true, 5); err != nil {
		t.Fatalf("set scheduler status failed: %v", err)
	}
}

func Test_FarmClient_WatchRun(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	b := server.NewBroadcaster(stats.NilStatsReceiver())
	s.EXPECT().Subscribe().DoAndReturn(func() *server.Subscription { return b.Subscribe() })

	req := &domain.RunRequest{
		Requester: "alice", Kind: domain.RunKindTest,
		ScenarioIds: []string{"boot"}, DeviceIds: []string{"device1"}, RepeatCount: 1,
	}
	s.EXPECT().Status("").Return(&domain.FarmStatus{
		Running: []domain.QueueEntry{{
			EntryId: "entry-1", Request: req, DeviceIds: []string{"device1"},
			Status: domain.EntryRunning, CreatedAt: time.Now(), StartedAt: time.Now(),
		}},
	})

	type watchResult struct {
		record *api.RecordMsg
		err    error
	}
	resultCh := make(chan watchResult, 1)
	var seen []string
	go func() {
		rec, err := cl.WatchRun("entry-1", func(ev *api.EventMsg) {
			seen = append(seen, ev.Type)
		})
		resultCh <- watchResult{rec, err}
	}()

	// wait for the stream's subscription before publishing
	deadline := time.Now().Add(5 * time.Second)
	for b.NumSubscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the watch subscription")
		}
		time.Sleep(time.Millisecond)
	}

	b.Publish(domain.Event{Type: domain.EventScenarioStarted, EntryId: "entry-1", DeviceId: "device1", ScenarioId: "boot", Attempt: 1})
	b.Publish(domain.Event{Type: domain.EventScenarioCompleted, EntryId: "entry-1", DeviceId: "device1", ScenarioId: "boot", Attempt: 1, Passed: true})
	// other entries' events must not leak into this watch
	b.Publish(domain.Event{Type: domain.EventRunAdmitted, EntryId: "other"})
	b.Publish(domain.Event{
		Type:    domain.EventRunCompleted,
		EntryId: "entry-1",
		Record:  &domain.CompletedRecord{EntryId: "entry-1", Status: domain.EntryCompleted, Requester: "alice"},
	})

	var res watchResult
	select {
	case res = <-resultCh:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the watch to finish")
	}
	if res.err != nil {
		t.Fatalf("watch failed: %v", res.err)
	}
	if res.record == nil || res.record.EntryId != "entry-1" || res.record.Status != "completed" {
		t.Fatalf("unexpected completion record: %+v", res.record)
	}
	want := []string{"scenario-started", "scenario-completed", "run-completed"}
	if len(seen) != len(want) {
		t.Fatalf("expected events %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, seen)
		}
	}
}

func Test_FarmClient_WatchRun_AlreadyCompleted(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	b := server.NewBroadcaster(stats.NilStatsReceiver())
	s.EXPECT().Subscribe().DoAndReturn(func() *server.Subscription { return b.Subscribe() })
	s.EXPECT().Status("").Return(&domain.FarmStatus{
		Completed: []domain.CompletedRecord{{EntryId: "entry-1", Status: domain.EntryCompleted}},
	})

	rec, err := cl.WatchRun("entry-1", nil)
	if err != nil {
		t.Fatalf("watch of a finished run should answer from the snapshot: %v", err)
	}
	if rec.EntryId != "entry-1" || rec.Status != "completed" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func Test_FarmClient_WatchRun_Unknown(t *testing.T) {
	cl, s, mockCtrl, closer := makeClientFixture(t)
	defer closer()
	defer mockCtrl.Finish()

	b := server.NewBroadcaster(stats.NilStatsReceiver())
	s.EXPECT().Subscribe().DoAndReturn(func() *server.Subscription { return b.Subscribe() })
	s.EXPECT().Status("").Return(&domain.FarmStatus{})

	_, err := cl.WatchRun("ghost", nil)
	if err == nil || !strings.Contains(err.Error(), "not known to the scheduler") {
		t.Fatalf("expected an unknown-run error, got %v", err)
	}
}
