package server

import (
	"testing"
	"time"

	"github.com/testfarm/testfarm/scenarios"
	"github.com/testfarm/testfarm/scheduler/domain"
)

func progressEntry(entryId string, scenarioIds []string, repeat int, interval time.Duration, deviceIds ...string) *domain.QueueEntry {
	return &domain.QueueEntry{
		EntryId: entryId,
		Request: &domain.RunRequest{
			Requester:        "tester",
			Kind:             domain.RunKindTest,
			ScenarioIds:      scenarioIds,
			DeviceIds:        deviceIds,
			RepeatCount:      repeat,
			ScenarioInterval: interval,
		},
		DeviceIds: deviceIds,
		Status:    domain.EntryRunning,
	}
}

func Test_Progress_StartEntry(t *testing.T) {
	p := NewProgressAggregator(NewBroadcaster(nil), time.Millisecond)
	p.StartEntry(progressEntry("entry1", []string{"boot", "wifi"}, 2, 0, "device1", "device2"))

	rp, ok := p.Progress("entry1")
	if !ok {
		t.Fatalf("expected progress for entry1")
	}
	if rp.Total != 8 || rp.Completed != 0 || rp.Failed != 0 {
		t.Errorf("expected 8 total slots across 2 devices, got %+v", rp)
	}
	if rp.Percent != 0 {
		t.Errorf("expected 0 percent before any scenario, got %f", rp.Percent)
	}
	if len(rp.Devices) != 2 {
		t.Fatalf("expected 2 device rows, got %d", len(rp.Devices))
	}
	for _, dp := range rp.Devices {
		if dp.Status != domain.DeviceIdle || dp.Total != 4 {
			t.Errorf("expected idle device with 4 slots, got %+v", dp)
		}
	}
}

func Test_Progress_PercentCountsFailures(t *testing.T) {
	p := NewProgressAggregator(NewBroadcaster(nil), time.Millisecond)
	p.StartEntry(progressEntry("entry1", []string{"boot", "wifi"}, 1, 0, "device1"))

	boot := scenarios.Scenario{Id: "boot", Name: "Boot"}
	wifi := scenarios.Scenario{Id: "wifi", Name: "Wifi"}

	p.DeviceStarted("entry1", "device1")
	p.ScenarioCompleted("entry1", "device1", boot, 1, true, 10*time.Millisecond)

	rp, _ := p.Progress("entry1")
	if rp.Percent != 50 {
		t.Errorf("expected 50 percent after 1 of 2, got %f", rp.Percent)
	}

	// a failed scenario still advances the walk
	p.ScenarioCompleted("entry1", "device1", wifi, 1, false, 10*time.Millisecond)
	rp, _ = p.Progress("entry1")
	if rp.Percent != 100 || rp.Completed != 1 || rp.Failed != 1 {
		t.Errorf("expected 100 percent with 1 pass 1 fail, got %+v", rp)
	}
}

// percent never goes backwards as scenarios complete
func Test_Progress_MonotonicPercent(t *testing.T) {
	p := NewProgressAggregator(NewBroadcaster(nil), time.Millisecond)
	p.StartEntry(progressEntry("entry1", []string{"boot"}, 10, 0, "device1", "device2"))

	boot := scenarios.Scenario{Id: "boot", Name: "Boot"}
	last := float64(0)
	for i := 0; i < 10; i++ {
		p.ScenarioCompleted("entry1", "device1", boot, i+1, i%3 != 0, time.Millisecond)
		p.ScenarioCompleted("entry1", "device2", boot, i+1, true, time.Millisecond)
		rp, _ := p.Progress("entry1")
		if rp.Percent < last {
			t.Fatalf("expected monotonic percent, went from %f to %f", last, rp.Percent)
		}
		last = rp.Percent
	}
	if last != 100 {
		t.Errorf("expected 100 percent at the end, got %f", last)
	}
}

// the estimate stays zero until some scenario duration has been observed,
// then reflects the slowest device's remaining slots
func Test_Progress_Estimate(t *testing.T) {
	p := NewProgressAggregator(NewBroadcaster(nil), time.Millisecond)
	p.StartEntry(progressEntry("entry1", []string{"boot"}, 4, 0, "device1", "device2"))

	rp, _ := p.Progress("entry1")
	if rp.EstRemaining != 0 {
		t.Errorf("expected zero estimate with no duration data, got %s", rp.EstRemaining)
	}

	boot := scenarios.Scenario{Id: "boot", Name: "Boot"}
	p.ScenarioCompleted("entry1", "device1", boot, 1, true, 10*time.Second)

	// device1 has 3 slots left, device2 all 4; the average is 10s per slot
	rp, _ = p.Progress("entry1")
	if rp.EstRemaining != 40*time.Second {
		t.Errorf("expected 40s estimate from the slowest device, got %s", rp.EstRemaining)
	}

	// a finished device contributes nothing
	p.DeviceDone("entry1", "device2", domain.DeviceFailed)
	rp, _ = p.Progress("entry1")
	if rp.EstRemaining != 30*time.Second {
		t.Errorf("expected 30s estimate after device2 dropped out, got %s", rp.EstRemaining)
	}
}

// the estimate accounts for the configured pause between scenarios
func Test_Progress_EstimateIncludesInterval(t *testing.T) {
	p := NewProgressAggregator(NewBroadcaster(nil), time.Millisecond)
	p.StartEntry(progressEntry("entry1", []string{"boot"}, 3, 2*time.Second, "device1"))

	boot := scenarios.Scenario{Id: "boot", Name: "Boot"}
	p.ScenarioCompleted("entry1", "device1", boot, 1, true, 10*time.Second)

	// 2 slots left at 10s each plus one 2s gap between them
	rp, _ := p.Progress("entry1")
	if rp.EstRemaining != 22*time.Second {
		t.Errorf("expected 22s estimate, got %s", rp.EstRemaining)
	}
}

func Test_Progress_DurationAverages(t *testing.T) {
	p := NewProgressAggregator(NewBroadcaster(nil), time.Millisecond)

	addOrUpdateScenarioDuration(p.durations, "boot", 10*time.Second)
	addOrUpdateScenarioDuration(p.durations, "boot", 20*time.Second)

	iface, ok := p.durations.Get("boot")
	if !ok {
		t.Fatalf("expected boot duration to be cached")
	}
	ad := iface.(*averageDuration)
	if ad.count != 2 || ad.duration != 15*time.Second {
		t.Errorf("expected average of 15s over 2 samples, got %v over %d", ad.duration, ad.count)
	}
}

func Test_Progress_EventFlow(t *testing.T) {
	b := NewBroadcaster(nil)
	sub := b.Subscribe()
	defer sub.Close()

	p := NewProgressAggregator(b, time.Hour) // throttle run-progress hard
	p.StartEntry(progressEntry("entry1", []string{"boot"}, 1, 0, "device1"))

	boot := scenarios.Scenario{Id: "boot", Name: "Boot"}
	p.DeviceStarted("entry1", "device1")
	p.ScenarioStarted("entry1", "device1", boot, 1)
	p.ScenarioCompleted("entry1", "device1", boot, 1, true, time.Millisecond)
	p.DeviceDone("entry1", "device1", domain.DeviceCompleted)

	expected := []domain.EventType{
		domain.EventDeviceStarted,
		domain.EventScenarioStarted,
		domain.EventScenarioCompleted,
		domain.EventRunProgress, // limiter's initial token
		domain.EventDeviceCompleted,
		domain.EventRunProgress, // forced by DeviceDone
	}
	for i, want := range expected {
		select {
		case ev := <-sub.Events():
			if ev.Type != want {
				t.Fatalf("expected event %d to be %s, got %s", i, want, ev.Type)
			}
			if ev.Type == domain.EventRunProgress && ev.Progress == nil {
				t.Errorf("expected run progress events to carry a snapshot")
			}
		case <-time.After(time.Second):
			t.Fatalf("expected event %d (%s) to be delivered", i, want)
		}
	}

	// the forced final snapshot shows the device done
	p.RemoveEntry("entry1")
	if _, ok := p.Progress("entry1"); ok {
		t.Errorf("expected progress to be forgotten after RemoveEntry")
	}
}
