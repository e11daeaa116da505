package server

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/common/stats"
	"github.com/testfarm/testfarm/scheduler/domain"
)

// DefaultSubscriberBuffer is how many events a subscriber may lag before the
// broadcaster starts dropping its events.
const DefaultSubscriberBuffer = 100

// Broadcaster fans scheduler and executor events out to subscribers. A
// subscriber that falls behind loses events rather than slowing anyone else
// down; the live stream is advisory and the status query stays authoritative.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]*Subscription
	nextId int
	buffer int
	stat   stats.StatsReceiver
}

// Subscription is one subscriber's handle on the event stream. Close it when
// done or the broadcaster will keep filling its buffer forever.
type Subscription struct {
	id int
	b  *Broadcaster
	ch chan domain.Event
}

// Events is the subscriber's receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.b.unsubscribe(s.id)
}

func NewBroadcaster(stat stats.StatsReceiver) *Broadcaster {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Broadcaster{
		subs:   make(map[int]*Subscription),
		buffer: DefaultSubscriberBuffer,
		stat:   stat,
	}
}

// Subscribe registers a new subscriber. It sees only events published after
// this call; callers wanting current state should pair it with a status
// snapshot.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{
		id: b.nextId,
		b:  b,
		ch: make(chan domain.Event, b.buffer),
	}
	b.nextId++
	b.subs[sub.id] = sub
	b.stat.Gauge(stats.EventSubscribersGauge).Update(int64(len(b.subs)))
	return sub
}

func (b *Broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	b.stat.Gauge(stats.EventSubscribersGauge).Update(int64(len(b.subs)))
}

func (b *Broadcaster) NumSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers an event to every subscriber that has room for it. Safe to
// call from any goroutine.
func (b *Broadcaster) Publish(ev domain.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stat.Counter(stats.EventsPublishedCounter).Inc(1)
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.stat.Counter(stats.EventsDroppedCounter).Inc(1)
			log.Debugf("Dropping %s event for slow subscriber %d", ev.Type, sub.id)
		}
	}
}
