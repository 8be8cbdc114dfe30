package storage

import (
	"encoding/json"
	"time"
)

// HistoryEntry is one tracked snapshot kept in the rolling per-user window.
type HistoryEntry struct {
	UserID    string
	Module    string
	Timestamp time.Time
	Data      json.RawMessage
}
