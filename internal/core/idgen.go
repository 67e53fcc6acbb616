package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/valter-silva-au/flow/pkg/models"
)

// DefaultIDLength is the number of hex characters after the kind prefix.
const DefaultIDLength = 8

const maxIDAttempts = 16

// IDGenerator produces new entity IDs of the form <prefix>-<hex>.
type IDGenerator interface {
	NewID(kind models.Kind) (string, error)
}

// uuidIDGenerator draws the hex suffix from a random UUID and retries when the
// suffix collides with an ID already in the store.
type uuidIDGenerator struct {
	store  Store
	length int
}

// NewIDGenerator creates an IDGenerator whose suffixes are length hex
// characters long. Lengths outside 4..32 fall back to DefaultIDLength.
func NewIDGenerator(store Store, length int) IDGenerator {
	if length < 4 || length > 32 {
		length = DefaultIDLength
	}
	return &uuidIDGenerator{store: store, length: length}
}

func (g *uuidIDGenerator) NewID(kind models.Kind) (string, error) {
	prefix := kind.Prefix()
	if prefix == "" {
		return "", fmt.Errorf("generating id: unknown entity kind %q", kind)
	}

	existing, err := listIDs(g.store, kind)
	if err != nil {
		return "", fmt.Errorf("generating %s id: %w", kind, err)
	}
	taken := make(map[string]bool, len(existing))
	for _, id := range existing {
		taken[id] = true
	}

	for range maxIDAttempts {
		hex := strings.ReplaceAll(uuid.NewString(), "-", "")
		id := prefix + "-" + hex[:g.length]
		if !taken[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("generating %s id: no free id after %d attempts", kind, maxIDAttempts)
}
