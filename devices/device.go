// Package devices models the pool of test devices the scheduler drives runs on.
package devices

import (
	"fmt"
)

type DeviceId string

// Device is one attachable test target in the pool.
type Device interface {
	// A unique device identifier, like 'pixel7-lab2' or a serial number.
	Id() DeviceId

	// Locator for the device's session endpoint, like 'host:port', depending
	// on the concrete device type.
	Addr() string
}

type idDevice struct {
	id   DeviceId
	addr string
}

func (d *idDevice) String() string {
	return string(d.id)
}

func NewIdDevice(id string) Device {
	return &idDevice{id: DeviceId(id), addr: ""}
}

func NewAddrDevice(id, addr string) Device {
	return &idDevice{id: DeviceId(id), addr: addr}
}

// NewIdDevices makes count devices named device1..deviceN, for tests and local
// setups.
func NewIdDevices(count int) []Device {
	r := []Device{}
	for i := 0; i < count; i++ {
		r = append(r, NewIdDevice(fmt.Sprintf("device%d", i+1)))
	}
	return r
}

func (d *idDevice) Id() DeviceId {
	return d.id
}

func (d *idDevice) Addr() string {
	return d.addr
}

var _ Device = (*idDevice)(nil)

type DeviceSorter []Device

func (d DeviceSorter) Len() int           { return len(d) }
func (d DeviceSorter) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }
func (d DeviceSorter) Less(i, j int) bool { return d[i].Id() < d[j].Id() }
