package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gpsgateway/internal/core/model"
)

type inMemoryReportRepository struct {
	reports map[string][]*model.LocationReport // by device id
	ids     map[string]struct{}
	mutex   sync.RWMutex
}

func NewInMemoryReportRepository() ReportRepository {
	return &inMemoryReportRepository{
		reports: make(map[string][]*model.LocationReport),
		ids:     make(map[string]struct{}),
	}
}

func (r *inMemoryReportRepository) Create(_ context.Context, report *model.LocationReport) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.ids[report.ID]; exists {
		return fmt.Errorf("report with ID %s already exists", report.ID)
	}
	stored := *report
	r.ids[report.ID] = struct{}{}
	r.reports[report.DeviceID] = append(r.reports[report.DeviceID], &stored)
	return nil
}

func (r *inMemoryReportRepository) FindByDeviceID(_ context.Context, deviceID string, from, to time.Time) ([]*model.LocationReport, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.LocationReport
	for _, report := range r.reports[deviceID] {
		if !from.IsZero() && report.DeviceTime.Before(from) {
			continue
		}
		if !to.IsZero() && !report.DeviceTime.Before(to) {
			continue
		}
		rep := *report
		result = append(result, &rep)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DeviceTime.Before(result[j].DeviceTime)
	})
	return result, nil
}

func (r *inMemoryReportRepository) FindLatestByDeviceID(_ context.Context, deviceID string) (*model.LocationReport, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var latest *model.LocationReport
	for _, report := range r.reports[deviceID] {
		if latest == nil || !report.DeviceTime.Before(latest.DeviceTime) {
			latest = report
		}
	}
	if latest == nil {
		return nil, nil
	}
	rep := *latest
	return &rep, nil
}
