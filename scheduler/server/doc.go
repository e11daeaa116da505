/*
package server provides StatefulScheduler which runs test scenarios across a pool of devices.

* Concepts *
Entry:
  One schedulable unit: a set of devices that must all be held together, plus the scenario
  plan (scenarioIds x repeatCount) to run on each of them. A submission produces one entry,
  or two sibling entries when its devices are split between free and busy.

Device Lock:
  A device is held by at most one entry at a time. Grants are all-or-nothing: an entry
  either receives every device it asked for or none of them, so a waiting entry never
  pins devices it cannot use.

Wait Queue:
  Entries whose devices were not all free wait here in arrival order. Whenever devices
  free up the queue is rescanned from the front, so the oldest satisfiable entry always
  starts first. Ordering is by admission time, not by how many devices an entry wants.

MaxEntriesPerRequester, MaxRequesters:
  These limits are somewhat arbitrary and are only meant to prevent spamming, not to ensure
  fairness. Scheduler will apply backpressure if we hit these limits.

MaxRunningEntries:
  Optional cap on concurrently running entries, 0 means unlimited. When the cap is reached
  new submissions queue instead of starting, even if their devices are free.

* Logic *
Schedule Loop:
A single goroutine owns all scheduling state. Submissions, cancellations, device pool
changes, executor completions and status queries are all folded into the loop through
channels, so no component below it needs locks.

Each pass the loop:
  applies device pool updates to the lock table
  admits new submissions, splitting them into immediate and queued sibling entries
  processes executor completions, releasing each finished entry's devices
  finalizes entries whose devices have all reported, journaling a RunEnded record
  rescans the wait queue oldest-first and starts every entry whose devices are now free

Execution:
Each running entry gets one deviceExecutor per device. Executors dial a session on their
device and walk the scenario plan, pausing scenarioInterval between scenarios. A scenario
failure is recorded and the plan continues; a session error fails the device immediately.
Cancellation is cooperative: executors observe a stop signal between scenarios and report
Stopped, they never abort a scenario midway.
*/
package server
