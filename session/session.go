// Package session manages connections to device agents and drives scenario
// execution over them.
package session

import (
	"context"

	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/scenarios"
)

// StepEvent reports the outcome of a single scenario step as it happens.
type StepEvent struct {
	ScenarioId string
	Step       string
	Passed     bool
	Detail     string
}

// Result is the outcome of one scenario execution.
type Result struct {
	Passed     bool
	FailedStep string
	Detail     string
}

// Session is a live connection to one device. Run drives a single scenario to
// completion, emitting step events as it goes. A returned error means the
// session itself broke and no further scenarios can run on the device.
type Session interface {
	Run(ctx context.Context, sc scenarios.Scenario, emit func(StepEvent)) (Result, error)
	Close() error
}

// Dialer establishes sessions to devices.
type Dialer interface {
	Dial(ctx context.Context, device devices.Device) (Session, error)
}
