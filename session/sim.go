package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/testfarm/testfarm/devices"
	"github.com/testfarm/testfarm/scenarios"
)

func NewSimDialer() *SimDialer {
	return &SimDialer{
		resumeCh: make(chan struct{}),
		scripts:  make(map[devices.DeviceId][]string),
		refused:  make(map[devices.DeviceId]bool),
	}
}

// SimDialer runs scenarios by simulating a device agent.
// Program() queues per-scenario instructions for a device and each Run
// consumes one, so a queue of n instructions scripts the next n scenario
// executions on that device. Valid instructions are:
// pass
//   scenario passes
// fail <step>
//   emit a failed step event for <step> and fail the scenario
// pause
//   block until SimDialer.Resume() is called, then pass
// sleep <millis>
//   sleep for millis milliseconds, then pass
// crash
//   break the session; the device can run nothing further
// Devices with an empty queue pass everything.
type SimDialer struct {
	mu       sync.Mutex
	scripts  map[devices.DeviceId][]string
	refused  map[devices.DeviceId]bool
	closed   int
	resumeCh chan struct{}
}

func (d *SimDialer) Program(id devices.DeviceId, instructions ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[id] = append(d.scripts[id], instructions...)
}

// Refuse makes Dial fail for the given device.
func (d *SimDialer) Refuse(id devices.DeviceId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refused[id] = true
}

// Resume unblocks one session waiting on a "pause" instruction.
func (d *SimDialer) Resume() {
	d.resumeCh <- struct{}{}
}

// Closed reports how many sessions have been closed.
func (d *SimDialer) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *SimDialer) Dial(ctx context.Context, device devices.Device) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refused[device.Id()] {
		return nil, fmt.Errorf("sim: device %v refused the session", device.Id())
	}
	return &simSession{dialer: d, id: device.Id()}, nil
}

func (d *SimDialer) next(id devices.DeviceId) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.scripts[id]
	if len(q) == 0 {
		return "pass"
	}
	instr := q[0]
	d.scripts[id] = q[1:]
	return instr
}

func (d *SimDialer) noteClose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
}

type simSession struct {
	dialer *SimDialer
	id     devices.DeviceId
}

func (s *simSession) Run(ctx context.Context, sc scenarios.Scenario, emit func(StepEvent)) (Result, error) {
	instr := s.dialer.next(s.id)
	splits := strings.SplitN(instr, " ", 2)
	opcode, rest := splits[0], ""
	if len(splits) == 2 {
		rest = splits[1]
	}
	switch opcode {
	case "pass":
		return Result{Passed: true}, nil
	case "fail":
		emit(StepEvent{ScenarioId: sc.Id, Step: rest, Passed: false, Detail: "simulated failure"})
		return Result{Passed: false, FailedStep: rest, Detail: "simulated failure"}, nil
	case "pause":
		select {
		case <-s.dialer.resumeCh:
			return Result{Passed: true}, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	case "sleep":
		i, err := strconv.Atoi(rest)
		if err != nil {
			return Result{}, fmt.Errorf("sim: error parsing <n> in sleep <n>: %s", err)
		}
		time.Sleep(time.Duration(i) * time.Millisecond)
		return Result{Passed: true}, nil
	case "crash":
		return Result{}, fmt.Errorf("sim: session to %v crashed", s.id)
	}
	return Result{}, fmt.Errorf("sim: can't simulate instruction: %v", instr)
}

func (s *simSession) Close() error {
	s.dialer.noteClose()
	return nil
}
