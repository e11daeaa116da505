// Package async runs functions on goroutines and delivers their results as
// callbacks invoked from the owning goroutine.
//
// An event loop often wants to hand slow work to a goroutine and act on the
// result later without locking any of its own state. Runner supports that:
// the loop calls RunAsync to spawn the work and periodically calls
// ProcessMessages, which invokes the callbacks of whatever finished, on the
// loop's own goroutine. Callbacks may therefore read and mutate loop state
// freely; the spawned functions must not.
package async

// pendingErr is the eventual error result of a spawned function. The value is
// set exactly once; polling never blocks.
type pendingErr struct {
	errCh     chan error
	val       error
	completed bool
}

func newPendingErr() *pendingErr {
	return &pendingErr{errCh: make(chan error, 1)}
}

// set completes the result. Calling it twice panics on the closed channel.
func (p *pendingErr) set(err error) {
	p.errCh <- err
	close(p.errCh)
}

// poll reports whether the result arrived, and if so what it was.
func (p *pendingErr) poll() (bool, error) {
	if p.completed {
		return true, p.val
	}
	select {
	case err := <-p.errCh:
		p.val = err
		p.completed = true
		return true, err
	default:
		return false, nil
	}
}

// ErrorHandler is invoked with a finished function's error result.
type ErrorHandler func(error)

type pendingCall struct {
	result   *pendingErr
	callback ErrorHandler
}

// inbox collects pending calls. Not safe for concurrent use; only the
// goroutine owning the Runner touches it.
type inbox struct {
	calls []*pendingCall
}

// Runner spawns goroutines for functions and queues their completion
// callbacks until ProcessMessages drains them. Exactly one goroutine should
// call RunAsync and ProcessMessages.
type Runner struct {
	bx *inbox
}

func NewRunner() Runner {
	return Runner{bx: &inbox{}}
}

// NumRunning returns the count of spawned functions whose callbacks have not
// fired yet.
func (r *Runner) NumRunning() int {
	return len(r.bx.calls)
}

// RunAsync runs f on a new goroutine. cb fires with f's return value during a
// later ProcessMessages call.
func (r *Runner) RunAsync(f func() error, cb ErrorHandler) {
	call := &pendingCall{result: newPendingErr(), callback: cb}
	r.bx.calls = append(r.bx.calls, call)
	go func() {
		call.result.set(f())
	}()
}

// ProcessMessages invokes the callback of every completed function on the
// calling goroutine and retains the rest. Callbacks may themselves call
// RunAsync; those functions are picked up by a later ProcessMessages.
func (r *Runner) ProcessMessages() {
	calls := r.bx.calls
	r.bx.calls = nil
	for _, call := range calls {
		if done, err := call.result.poll(); done {
			call.callback(err)
		} else {
			r.bx.calls = append(r.bx.calls, call)
		}
	}
}
