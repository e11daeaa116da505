package server

import (
	"sync"

	"github.com/testfarm/testfarm/scheduler/domain"
)

// DefaultMaxHistory bounds how many finished runs the scheduler remembers.
const DefaultMaxHistory = 50

// History is the bounded most-recent-first ledger of finished runs. Once the
// cap is reached the oldest record is evicted; the run log remains the
// durable record.
type History struct {
	mu   sync.Mutex
	max  int
	recs []domain.CompletedRecord
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{max: max}
}

// Add prepends a record, evicting the oldest once the cap is reached.
func (h *History) Add(rec domain.CompletedRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append([]domain.CompletedRecord{rec}, h.recs...)
	if len(h.recs) > h.max {
		h.recs = h.recs[:h.max]
	}
}

// Records returns a most-recent-first copy of the ledger.
func (h *History) Records() []domain.CompletedRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.CompletedRecord(nil), h.recs...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recs)
}

// Get returns the record for an entry if it is still retained.
func (h *History) Get(entryId string) (domain.CompletedRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.recs {
		if rec.EntryId == entryId {
			return rec, true
		}
	}
	return domain.CompletedRecord{}, false
}

// SetReportRef fills in the report reference once the external report service
// acknowledges the run. Returns false if the record was already evicted.
func (h *History) SetReportRef(entryId string, ref string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.recs {
		if h.recs[i].EntryId == entryId {
			h.recs[i].ReportRef = ref
			return true
		}
	}
	return false
}
