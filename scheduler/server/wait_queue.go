package server

// waitQueue holds entries whose full device set is not yet free, in arrival
// order. Fairness comes from the scan discipline rather than anything stored
// here: the loop rescans oldest-first whenever devices free up, so the
// earliest satisfiable entry always wins.
type waitQueue struct {
	entries []*entryState
}

func newWaitQueue() *waitQueue {
	return &waitQueue{}
}

func (q *waitQueue) len() int {
	return len(q.entries)
}

func (q *waitQueue) insert(es *entryState) {
	q.entries = append(q.entries, es)
}

// remove takes an entry out of the queue, returning nil if it is not queued.
func (q *waitQueue) remove(entryId string) *entryState {
	for i, es := range q.entries {
		if es.entry.EntryId == entryId {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return es
		}
	}
	return nil
}

// oldestFirst returns the queued entries in arrival order. The slice is a
// copy so callers may remove entries while iterating.
func (q *waitQueue) oldestFirst() []*entryState {
	return append([]*entryState(nil), q.entries...)
}

// waitingOn returns the queued entries whose device set includes the given
// device, oldest first.
func (q *waitQueue) waitingOn(deviceId string) []*entryState {
	var out []*entryState
	for _, es := range q.entries {
		for _, id := range es.entry.DeviceIds {
			if id == deviceId {
				out = append(out, es)
				break
			}
		}
	}
	return out
}
