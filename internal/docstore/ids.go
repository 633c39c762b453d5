package docstore

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
