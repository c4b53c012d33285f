package database

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrMalformedId = errors.New("malformed id")
)

// parseId validates that id is a UUID, the format used for every chat and user id.
func parseId(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w %q: %v", ErrMalformedId, id, err)
	}

	return parsed, nil
}

// normalizeId returns the canonical lowercase form of a UUID id. Ids that
// are not UUIDs are returned unchanged.
func normalizeId(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}
