package runlog

import (
	"errors"
	"reflect"
	"testing"

	"github.com/golang/mock/gomock"
)

func TestRecoverRuns(t *testing.T) {
	rlog := MakeInMemoryRunLogNoGC()
	if err := rlog.StartRun("waiting", []byte("w")); err != nil {
		t.Fatalf("Unexpected error starting run: %v", err)
	}
	if err := rlog.StartRun("running", []byte("r")); err != nil {
		t.Fatalf("Unexpected error starting run: %v", err)
	}
	if err := rlog.LogMessage(MakeDeviceStartedMessage("running", "D1")); err != nil {
		t.Fatalf("Unexpected error logging message: %v", err)
	}
	logTestRun(t, rlog, testMessages("ended"))

	runs, err := RecoverRuns(rlog)
	if err != nil {
		t.Fatalf("Unexpected error recovering runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 recovered runs, got %v", runs)
	}
	byId := make(map[string]RecoveredRun)
	for _, run := range runs {
		byId[run.EntryId] = run
	}

	waiting := byId["waiting"]
	if waiting.WasRunning() || waiting.Ended || string(waiting.Entry) != "w" {
		t.Errorf("Expected waiting run to be admitted only, got %+v", waiting)
	}

	running := byId["running"]
	if !running.WasRunning() || running.Ended {
		t.Errorf("Expected running run to be cut off mid flight, got %+v", running)
	}
	if !reflect.DeepEqual(running.Started, []string{"D1"}) || len(running.Finished) != 0 {
		t.Errorf("Expected running run with D1 started and nothing finished, got %+v", running)
	}

	ended := byId["ended"]
	if !ended.Ended || string(ended.EndData) != "final" {
		t.Errorf("Expected ended run with final payload, got %+v", ended)
	}
	if string(ended.Finished["D1"]) != "result-D1" {
		t.Errorf("Expected D1 result to be recovered, got %+v", ended)
	}
}

func TestRecoverRuns_SkipsBadRuns(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rlog := NewMockRunLog(mockCtrl)
	rlog.EXPECT().GetActiveRuns().Return([]string{"corrupt", "headless", "good"}, nil)
	rlog.EXPECT().GetMessages("corrupt").Return(nil, NewCorruptedLogError("corrupt", "unrecognized message type"))
	rlog.EXPECT().GetMessages("headless").Return([]RunMessage{MakeDeviceStartedMessage("headless", "D1")}, nil)
	rlog.EXPECT().GetMessages("good").Return(testMessages("good"), nil)

	runs, err := RecoverRuns(rlog)
	if err != nil {
		t.Fatalf("Unexpected error recovering runs: %v", err)
	}
	if len(runs) != 1 || runs[0].EntryId != "good" {
		t.Errorf("Expected only the good run to be recovered, got %v", runs)
	}
}

func TestRecoverRuns_GetActiveRunsError(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rlog := NewMockRunLog(mockCtrl)
	rlog.EXPECT().GetActiveRuns().Return(nil, errors.New("test error"))

	if _, err := RecoverRuns(rlog); err == nil {
		t.Error("Expected error when the log cannot list runs")
	}
}

func TestRecoverRuns_GetMessagesError(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rlog := NewMockRunLog(mockCtrl)
	rlog.EXPECT().GetActiveRuns().Return([]string{"entry1"}, nil)
	rlog.EXPECT().GetMessages("entry1").Return(nil, errors.New("test error"))

	if _, err := RecoverRuns(rlog); err == nil {
		t.Error("Expected io errors reading a run to fail recovery")
	}
}
