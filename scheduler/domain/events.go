package domain

import "time"

// EventType names the stream topics observers can subscribe to.
type EventType string

const (
	EventRunAdmitted       EventType = "run-admitted"
	EventDeviceStarted     EventType = "device-started"
	EventScenarioStarted   EventType = "scenario-started"
	EventScenarioCompleted EventType = "scenario-completed"
	EventStepFailed        EventType = "step-failed"
	EventDeviceCompleted   EventType = "device-completed"
	EventRunProgress       EventType = "run-progress"
	EventRunCompleted      EventType = "run-completed"
	EventRunStopping       EventType = "run-stopping"
)

// Event is one item on the live stream. Fields beyond Type/EntryId are filled
// per topic. Events from a single device arrive in emission order; there is no
// ordering across devices.
type Event struct {
	Type      EventType
	EntryId   string
	Requester string
	DeviceId  string

	ScenarioId   string
	ScenarioName string
	Attempt      int // 1-based repeat iteration for scenario events

	Passed       bool         // scenario-completed
	DeviceStatus DeviceStatus // device-completed

	Step   string // step-failed: step identifier, forwarded verbatim
	Detail string // step-failed: runner-provided failure detail

	Progress *RunProgress     // run-progress
	Record   *CompletedRecord // run-completed

	Time time.Time
}
