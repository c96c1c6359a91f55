package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// IsValidID reports whether id parses as a UUID
func IsValidID(id string) bool {
	return uuid.Validate(id) == nil
}
