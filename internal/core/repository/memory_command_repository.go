package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gpsgateway/internal/core/model"
)

type inMemoryCommandRepository struct {
	commands map[string]*model.Command
	mutex    sync.RWMutex
}

func NewInMemoryCommandRepository() CommandRepository {
	return &inMemoryCommandRepository{
		commands: make(map[string]*model.Command),
	}
}

func (r *inMemoryCommandRepository) Create(_ context.Context, cmd *model.Command) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.commands[cmd.ID]; exists {
		return fmt.Errorf("command with ID %s already exists", cmd.ID)
	}
	stored := *cmd
	r.commands[cmd.ID] = &stored
	return nil
}

func (r *inMemoryCommandRepository) FindPendingByDeviceID(_ context.Context, deviceID string) ([]*model.Command, error) {
	return r.collect(func(c *model.Command) bool {
		return c.DeviceID == deviceID && c.Status == model.CommandPending
	}), nil
}

func (r *inMemoryCommandRepository) FindByDeviceID(_ context.Context, deviceID string) ([]*model.Command, error) {
	return r.collect(func(c *model.Command) bool {
		return c.DeviceID == deviceID
	}), nil
}

func (r *inMemoryCommandRepository) collect(match func(*model.Command) bool) []*model.Command {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var result []*model.Command
	for _, cmd := range r.commands {
		if match(cmd) {
			c := *cmd
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result
}

func (r *inMemoryCommandRepository) MarkSent(_ context.Context, id string, at time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cmd, exists := r.commands[id]
	if !exists || cmd.Status != model.CommandPending {
		return ErrNotPending
	}
	cmd.Status = model.CommandSent
	cmd.SentAt = &at
	return nil
}
