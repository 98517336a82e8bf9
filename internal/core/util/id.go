package util

import (
	"github.com/google/uuid"
)

// GenerateID returns a time-ordered unique identifier (UUIDv7), so ids sort
// in creation order within a process.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
