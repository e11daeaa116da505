package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *RunRequest {
	return &RunRequest{
		Requester:        "alice",
		Kind:             RunKindSuite,
		ScenarioIds:      []string{"s1", "s2"},
		DeviceIds:        []string{"d1", "d2"},
		RepeatCount:      2,
		ScenarioInterval: 100 * time.Millisecond,
		CreatedAt:        time.Now(),
	}
}

func TestValidateRequest(t *testing.T) {
	require.NoError(t, ValidateRequest(validRequest()))

	tests := []struct {
		name   string
		mutate func(r *RunRequest)
	}{
		{"empty requester", func(r *RunRequest) { r.Requester = "" }},
		{"no scenarios", func(r *RunRequest) { r.ScenarioIds = nil }},
		{"no devices", func(r *RunRequest) { r.DeviceIds = []string{} }},
		{"empty device id", func(r *RunRequest) { r.DeviceIds = []string{"d1", ""} }},
		{"duplicate device", func(r *RunRequest) { r.DeviceIds = []string{"d1", "d1"} }},
		{"zero repeat", func(r *RunRequest) { r.RepeatCount = 0 }},
		{"negative interval", func(r *RunRequest) { r.ScenarioInterval = -time.Second }},
		{"bad kind", func(r *RunRequest) { r.Kind = "benchmark" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(r)
			err := ValidateRequest(r)
			require.Error(t, err)
			assert.IsType(t, &InvalidRequest{}, err)
		})
	}
}

func TestTotalScenarios(t *testing.T) {
	r := validRequest()
	assert.Equal(t, 4, r.TotalScenarios())
	r.RepeatCount = 1
	assert.Equal(t, 2, r.TotalScenarios())
}

func TestEntryCopyIsDetached(t *testing.T) {
	e := &QueueEntry{
		EntryId:   "e1",
		Request:   validRequest(),
		DeviceIds: []string{"d1", "d2"},
		Status:    EntryPending,
		BlockedBy: []BlockedDevice{{DeviceId: "d1", HeldBy: "bob"}},
	}
	cp := e.Copy()
	cp.DeviceIds[0] = "changed"
	cp.BlockedBy[0].HeldBy = "changed"
	assert.Equal(t, "d1", e.DeviceIds[0])
	assert.Equal(t, "bob", e.BlockedBy[0].HeldBy)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, EntryPending.Terminal())
	assert.False(t, EntryRunning.Terminal())
	assert.True(t, EntryCompleted.Terminal())
	assert.True(t, EntryCancelled.Terminal())

	assert.False(t, DeviceIdle.Done())
	assert.False(t, DeviceRunning.Done())
	assert.True(t, DeviceCompleted.Done())
	assert.True(t, DeviceFailed.Done())
	assert.True(t, DeviceStopped.Done())
}
