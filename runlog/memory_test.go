package runlog

import (
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/luci/go-render/render"
)

func testMessages(entryId string) []RunMessage {
	return []RunMessage{
		MakeRunAdmittedMessage(entryId, []byte("entry-payload")),
		MakeDeviceStartedMessage(entryId, "D1"),
		MakeDeviceFinishedMessage(entryId, "D1", []byte("result-D1")),
		MakeRunEndedMessage(entryId, []byte("final")),
	}
}

func logTestRun(t *testing.T, rlog RunLog, msgs []RunMessage) {
	t.Helper()
	if err := rlog.StartRun(msgs[0].EntryId, msgs[0].Data); err != nil {
		t.Fatalf("Unexpected error starting run: %v", err)
	}
	for _, msg := range msgs[1:] {
		if err := rlog.LogMessage(msg); err != nil {
			t.Fatalf("Unexpected error logging %v: %v", msg, err)
		}
	}
}

func TestMemoryLogRoundTrip(t *testing.T) {
	rlog := MakeInMemoryRunLogNoGC()
	msgs := testMessages("entry1")
	logTestRun(t, rlog, msgs)

	got, err := rlog.GetMessages("entry1")
	if err != nil {
		t.Fatalf("Unexpected error getting messages: %v", err)
	}
	if !reflect.DeepEqual(got, msgs) {
		t.Errorf("Expected: %v\nGot: %v", render.Render(msgs), render.Render(got))
	}
}

func TestMemoryLogUnknownRun(t *testing.T) {
	rlog := MakeInMemoryRunLogNoGC()

	msgs, err := rlog.GetMessages("missing")
	if err != nil {
		t.Errorf("Unexpected error getting messages for unknown run: %v", err)
	}
	if msgs != nil {
		t.Errorf("Expected nil messages for unknown run, got %v", msgs)
	}

	if err := rlog.LogMessage(MakeDeviceStartedMessage("missing", "D1")); err == nil {
		t.Error("Expected error logging to a run that was never started")
	}
}

func TestMemoryLogGetActiveRuns(t *testing.T) {
	rlog := MakeInMemoryRunLogNoGC()
	logTestRun(t, rlog, testMessages("entry1"))
	logTestRun(t, rlog, testMessages("entry2"))

	ids, err := rlog.GetActiveRuns()
	if err != nil {
		t.Fatalf("Unexpected error getting active runs: %v", err)
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"entry1", "entry2"}) {
		t.Errorf("Expected active runs [entry1 entry2], got %v", ids)
	}
}

func TestMemoryLogGC(t *testing.T) {
	rlog := MakeInMemoryRunLog(time.Minute, time.Hour).(*inMemoryRunLog)
	logTestRun(t, rlog, testMessages("stale"))
	logTestRun(t, rlog, testMessages("fresh"))
	rlog.setRunCreatedTime("stale", time.Now().Add(-2*time.Minute))

	if err := rlog.gcRuns(); err != nil {
		t.Fatalf("Unexpected error collecting runs: %v", err)
	}

	ids, err := rlog.GetActiveRuns()
	if err != nil {
		t.Fatalf("Unexpected error getting active runs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"fresh"}) {
		t.Errorf("Expected only the fresh run to survive gc, got %v", ids)
	}

	msgs, err := rlog.GetMessages("stale")
	if err != nil || msgs != nil {
		t.Errorf("Expected collected run to be gone, got %v, %v", msgs, err)
	}
}
