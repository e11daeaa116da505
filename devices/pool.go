package devices

import (
	"sort"
)

// Buffer for the updates channel the scheduler drains each step.
const DefaultUpdateChanSize = 100

// Pool tracks the devices attached to this farm and publishes membership
// changes. The scheduler is the single consumer of Updates; initial members
// are delivered as adds so consumers start from an empty view.
type Pool interface {
	// Members returns the devices currently attached.
	Members() []Device
	// Updates is the channel carrying membership changes.
	Updates() chan []Update
	// Attach adds a device to the pool.
	Attach(device Device)
	// Detach removes a device. A run in flight on it is left to finish or
	// fail on its own; the device just stops being grantable.
	Detach(id DeviceId)
	// Close stops the pool.
	Close() error
}

type memberReq chan []Device
type attachReq struct{ device Device }
type detachReq struct{ id DeviceId }

// simplePool serializes all membership reads and writes through one loop.
type simplePool struct {
	reqCh    chan interface{}
	updateCh chan []Update
	members  map[DeviceId]Device
}

func NewSimplePool(initial []Device) *simplePool {
	p := &simplePool{
		reqCh:    make(chan interface{}),
		updateCh: make(chan []Update, DefaultUpdateChanSize),
		members:  map[DeviceId]Device{},
	}
	adds := []Update{}
	for _, d := range initial {
		p.members[d.Id()] = d
		adds = append(adds, NewAdd(d))
	}
	if len(adds) > 0 {
		p.updateCh <- adds
	}
	go p.loop()
	return p
}

func (p *simplePool) Members() []Device {
	ch := make(memberReq)
	p.reqCh <- ch
	return <-ch
}

func (p *simplePool) Updates() chan []Update {
	return p.updateCh
}

func (p *simplePool) Attach(device Device) {
	p.reqCh <- attachReq{device: device}
}

func (p *simplePool) Detach(id DeviceId) {
	p.reqCh <- detachReq{id: id}
}

func (p *simplePool) Close() error {
	close(p.reqCh)
	return nil
}

func (p *simplePool) loop() {
	for req := range p.reqCh {
		switch req := req.(type) {
		case memberReq:
			req <- p.current()
		case attachReq:
			if _, ok := p.members[req.device.Id()]; ok {
				continue
			}
			p.members[req.device.Id()] = req.device
			p.updateCh <- []Update{NewAdd(req.device)}
		case detachReq:
			if _, ok := p.members[req.id]; !ok {
				continue
			}
			delete(p.members, req.id)
			p.updateCh <- []Update{NewRemove(req.id)}
		}
	}
}

func (p *simplePool) current() []Device {
	var r []Device
	for _, d := range p.members {
		r = append(r, d)
	}
	sort.Sort(DeviceSorter(r))
	return r
}

var _ Pool = (*simplePool)(nil)
