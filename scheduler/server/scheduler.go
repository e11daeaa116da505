package server

//go:generate mockgen -source=scheduler.go -package=server -destination=scheduler_mock.go

import (
	"github.com/testfarm/testfarm/scheduler/domain"
)

// Scheduler is the admission and control surface the API serves.
type Scheduler interface {
	// Submit admits a run request, answering how it landed: started, queued,
	// or split across both. InvalidRequest errors are permanent, anything
	// else may be retried.
	Submit(req *domain.RunRequest) (*domain.AdmitResult, error)

	// Cancel asks an entry to stop. Cancelling an entry that already reached
	// a terminal state, or was never known, succeeds without effect.
	Cancel(entryId string) error

	// Status snapshots the farm relative to a viewing requester. An empty
	// viewer sees every busy device as busy_other.
	Status(viewer string) *domain.FarmStatus

	// Subscribe taps the live event stream.
	Subscribe() *Subscription

	OfflineDevice(req domain.DeviceAdminReq) error

	ReinstateDevice(req domain.DeviceAdminReq) error

	GetSchedulerStatus() domain.SchedulerStatus

	SetSchedulerStatus(paused bool, maxRunningEntries int) error
}
