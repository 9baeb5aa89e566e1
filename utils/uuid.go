package utils

import (
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request correlation ID
const RequestIDKey = "request_id"

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// IsValidID reports whether id has the shape GenerateID produces
func IsValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}
