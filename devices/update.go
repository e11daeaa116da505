package devices

import (
	"fmt"
)

type UpdateType int

const (
	DeviceAdded UpdateType = iota
	DeviceRemoved
)

// Update represents one membership change in the pool.
type Update struct {
	UpdateType UpdateType
	Id         DeviceId
	Device     Device // only set for adds
}

func (u *Update) String() string {
	return fmt.Sprintf("%v %v %v", u.UpdateType, u.Id, u.Device)
}

func NewAdd(device Device) Update {
	return Update{
		UpdateType: DeviceAdded,
		Id:         device.Id(),
		Device:     device,
	}
}

func NewRemove(id DeviceId) Update {
	return Update{
		UpdateType: DeviceRemoved,
		Id:         id,
	}
}
