package domain

import "time"

// DeviceProgress is one device's live counters within an active entry.
// Mutated only by that device's executor, via the progress aggregator.
type DeviceProgress struct {
	DeviceId     string
	EntryId      string
	Status       DeviceStatus
	ScenarioId   string // currently executing, if any
	ScenarioName string
	Completed    int
	Failed       int
	Total        int
}

// RunProgress is the view folded across an entry's devices. Percent is
// (Completed+Failed)/Total and never decreases before the entry goes terminal.
type RunProgress struct {
	EntryId      string
	Completed    int
	Failed       int
	Total        int
	Percent      float64
	EstRemaining time.Duration // zero until duration data accumulates
	Devices      []DeviceProgress
}
