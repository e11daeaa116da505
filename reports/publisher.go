// Package reports delivers finished run records to an external report
// service. The scheduler publishes asynchronously after a run's completion is
// journaled; a publish failure never blocks or fails the run itself.
package reports

import (
	"github.com/testfarm/testfarm/scheduler/domain"
)

// Publisher sends one completed run record to the report sink and returns the
// sink's reference for it (a report id or URL). Implementations must be safe
// for concurrent use.
type Publisher interface {
	Publish(rec domain.CompletedRecord) (ref string, err error)
}
