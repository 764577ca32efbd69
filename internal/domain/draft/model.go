package draft

import (
	"encoding/json"
	"time"
)

// Snapshot is one staged form section, held outside the record store until
// the user commits or discards it. The payload is opaque: it round-trips
// byte-for-byte.
type Snapshot struct {
	Scope   string          `json:"scope"`
	Section string          `json:"section"`
	Payload json.RawMessage `json:"payload"`
	SavedAt time.Time       `json:"saved_at"`
}
