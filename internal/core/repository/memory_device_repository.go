package repository

import (
	"context"
	"sort"
	"sync"

	"gpsgateway/internal/core/model"
)

type inMemoryDeviceRepository struct {
	devices map[string]*model.Device
	mutex   sync.RWMutex
}

func NewInMemoryDeviceRepository() DeviceRepository {
	return &inMemoryDeviceRepository{
		devices: make(map[string]*model.Device),
	}
}

func (r *inMemoryDeviceRepository) Touch(_ context.Context, report *model.LocationReport) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	device, exists := r.devices[report.DeviceID]
	if !exists {
		device = model.NewDevice(report.DeviceID)
		if !report.ServerTime.IsZero() {
			device.CreatedAt = report.ServerTime
		}
		r.devices[report.DeviceID] = device
	}
	device.Touch(report)
	return nil
}

func (r *inMemoryDeviceRepository) FindByID(_ context.Context, id string) (*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if device, exists := r.devices[id]; exists {
		d := *device
		return &d, nil
	}
	return nil, nil
}

func (r *inMemoryDeviceRepository) FindAll(_ context.Context) ([]*model.Device, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	devices := make([]*model.Device, 0, len(r.devices))
	for _, device := range r.devices {
		d := *device
		devices = append(devices, &d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}
