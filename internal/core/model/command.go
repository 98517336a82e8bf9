package model

import (
	"time"

	"gpsgateway/internal/core/util"
)

// CommandStatus is the delivery state of a queued command.
type CommandStatus string

const (
	CommandPending CommandStatus = "Pending"
	CommandSent    CommandStatus = "Sent"
	// CommandAcknowledged is reserved for firmware that confirms commands.
	// The current protocol has no ack frame, so Sent is terminal.
	CommandAcknowledged CommandStatus = "Acknowledged"
)

type Command struct {
	ID        string        `json:"id" bson:"_id"`
	DeviceID  string        `json:"deviceId" bson:"deviceId"`
	Text      string        `json:"command" bson:"text"`
	Status    CommandStatus `json:"status" bson:"status"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
	SentAt    *time.Time    `json:"sentAt,omitempty" bson:"sentAt,omitempty"`
}

func NewCommand(deviceID, text string) *Command {
	return &Command{
		ID:        util.GenerateID(),
		DeviceID:  deviceID,
		Text:      text,
		Status:    CommandPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Before reports whether c was enqueued before other (FIFO order).
func (c *Command) Before(other *Command) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.ID < other.ID
	}
	return c.CreatedAt.Before(other.CreatedAt)
}
