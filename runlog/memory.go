package runlog

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// In memory RunLog. Runs are kept until they expire, so restarts lose
// everything; use the file backed log when recovery matters.
type inMemoryRunLog struct {
	runs         map[string]*runData
	mutex        sync.RWMutex
	gcExpiration time.Duration
}

type runData struct {
	msgs    []RunMessage
	created time.Time
}

// MakeInMemoryRunLog creates an in memory RunLog that drops runs created more
// than gcExpiration ago, sweeping every gcInterval.
func MakeInMemoryRunLog(gcExpiration time.Duration, gcInterval time.Duration) RunLog {
	rlog := &inMemoryRunLog{
		runs:         make(map[string]*runData),
		gcExpiration: gcExpiration,
	}
	go func() {
		for range time.Tick(gcInterval) {
			if err := rlog.gcRuns(); err != nil {
				log.Errorf("Error garbage collecting runs: %s", err)
			}
		}
	}()
	return rlog
}

// MakeInMemoryRunLogNoGC creates an in memory RunLog that never evicts.
// Unbounded, so only suitable for tests and short lived tools.
func MakeInMemoryRunLogNoGC() RunLog {
	return &inMemoryRunLog{runs: make(map[string]*runData)}
}

func (rl *inMemoryRunLog) StartRun(entryId string, entry []byte) error {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	startMsg := MakeRunAdmittedMessage(entryId, entry)
	rl.runs[entryId] = &runData{
		msgs:    []RunMessage{startMsg},
		created: time.Now(),
	}
	return nil
}

func (rl *inMemoryRunLog) LogMessage(msg RunMessage) error {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	data, ok := rl.runs[msg.EntryId]
	if !ok {
		return fmt.Errorf("run %s is not started yet", msg.EntryId)
	}
	data.msgs = append(data.msgs, msg)
	return nil
}

func (rl *inMemoryRunLog) GetMessages(entryId string) ([]RunMessage, error) {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	data, ok := rl.runs[entryId]
	if !ok {
		return nil, nil
	}
	return data.msgs, nil
}

func (rl *inMemoryRunLog) GetActiveRuns() ([]string, error) {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	ids := make([]string, 0, len(rl.runs))
	for id := range rl.runs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (rl *inMemoryRunLog) gcRuns() error {
	expired := rl.getExpiredRunIds()
	if len(expired) == 0 {
		return nil
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	for _, id := range expired {
		delete(rl.runs, id)
	}
	log.Infof("Garbage collected %d expired runs", len(expired))
	return nil
}

func (rl *inMemoryRunLog) getExpiredRunIds() []string {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	var expired []string
	for id, data := range rl.runs {
		if time.Since(data.created) >= rl.gcExpiration {
			expired = append(expired, id)
		}
	}
	return expired
}

// test hook, backdates a run so gc tests don't have to sleep
func (rl *inMemoryRunLog) setRunCreatedTime(entryId string, created time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if data, ok := rl.runs[entryId]; ok {
		data.created = created
	}
}
