package domain

import "time"

// Usage operations.
const (
	UsageOperationIngest   = "ingest"
	UsageOperationRetrieve = "retrieve"
	UsageOperationBackfill = "backfill"
)

// UsageRecord is the aggregated embedding usage of one actor for one
// operation and model over a flush window.
type UsageRecord struct {
	ActorID   string
	Operation string
	Model     string
	Requests  int64
	Tokens    int64
	WindowEnd time.Time
}
