package reports

import (
	"fmt"
	"sync"

	"github.com/testfarm/testfarm/scheduler/domain"
)

// InMemPublisher keeps published records in memory, for tests and local
// setups without a report service.
type InMemPublisher struct {
	mu   sync.Mutex
	recs []domain.CompletedRecord
	err  error
}

func MakeInMemPublisher() *InMemPublisher {
	return &InMemPublisher{}
}

// SetErr makes subsequent Publish calls fail, nil restores them.
func (p *InMemPublisher) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *InMemPublisher) Publish(rec domain.CompletedRecord) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.recs = append(p.recs, rec)
	return fmt.Sprintf("report-%d", len(p.recs)), nil
}

// Records returns the published records in publish order.
func (p *InMemPublisher) Records() []domain.CompletedRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.CompletedRecord(nil), p.recs...)
}

var _ Publisher = (*InMemPublisher)(nil)
