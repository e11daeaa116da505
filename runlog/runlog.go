// Package runlog provides the journal of run activity. The scheduler writes
// a message for every run state change so that, after a restart, it can tell
// which runs were waiting, which were cut off mid-flight, and which had
// already finished.
package runlog

import (
	"fmt"
)

//go:generate mockgen -source=runlog.go -package=runlog -destination=mock_runlog.go

type RunMessageType int

const (
	RunAdmitted RunMessageType = iota
	DeviceStarted
	DeviceFinished
	RunEnded
)

func (t RunMessageType) String() string {
	switch t {
	case RunAdmitted:
		return "RunAdmitted"
	case DeviceStarted:
		return "DeviceStarted"
	case DeviceFinished:
		return "DeviceFinished"
	case RunEnded:
		return "RunEnded"
	default:
		return "unknown"
	}
}

// RunMessage is one entry in the run log. Different message types use
// different fields; use the factory functions rather than filling the struct
// directly.
type RunMessage struct {
	EntryId  string
	MsgType  RunMessageType
	DeviceId string
	Data     []byte
}

func (m RunMessage) String() string {
	return fmt.Sprintf("Message %s: Entry %s, Device %s", m.MsgType, m.EntryId, m.DeviceId)
}

// RunAdmitted records that an entry entered the scheduler, with the marshaled
// entry as data.
func MakeRunAdmittedMessage(entryId string, entry []byte) RunMessage {
	return RunMessage{
		EntryId: entryId,
		MsgType: RunAdmitted,
		Data:    entry,
	}
}

// DeviceStarted records that execution began on one of the entry's devices.
func MakeDeviceStartedMessage(entryId string, deviceId string) RunMessage {
	return RunMessage{
		EntryId:  entryId,
		MsgType:  DeviceStarted,
		DeviceId: deviceId,
	}
}

// DeviceFinished records that execution ended on a device, with the marshaled
// device result as data.
func MakeDeviceFinishedMessage(entryId string, deviceId string, result []byte) RunMessage {
	return RunMessage{
		EntryId:  entryId,
		MsgType:  DeviceFinished,
		DeviceId: deviceId,
		Data:     result,
	}
}

// RunEnded records that the entry reached a terminal state, with the marshaled
// completion record as data.
func MakeRunEndedMessage(entryId string, result []byte) RunMessage {
	return RunMessage{
		EntryId: entryId,
		MsgType: RunEnded,
		Data:    result,
	}
}

// RunLog persists run messages. Implementations must return messages for a
// run in the order they were logged.
type RunLog interface {
	// Create a run in the log and record its RunAdmitted message.
	StartRun(entryId string, entry []byte) error

	// Append a message to an existing run. Errors if the run was never
	// started.
	LogMessage(msg RunMessage) error

	// All messages logged for the run so far, nil if the run is unknown.
	GetMessages(entryId string) ([]RunMessage, error)

	// Ids of all runs in the log, in no particular order. Must include every
	// run that has not ended; may include ended ones.
	GetActiveRuns() ([]string, error)
}

// CorruptedLogError means a run's log exists but cannot be parsed.
type CorruptedLogError struct {
	EntryId string
	Msg     string
}

func (e CorruptedLogError) Error() string {
	return fmt.Sprintf("corrupted run log for entry %s: %s", e.EntryId, e.Msg)
}

func NewCorruptedLogError(entryId string, msg string) CorruptedLogError {
	return CorruptedLogError{EntryId: entryId, Msg: msg}
}
