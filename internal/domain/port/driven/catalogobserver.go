package driven

import "time"

// CatalogObserver receives telemetry for catalog refreshes. Implementations
// must tolerate concurrent calls.
type CatalogObserver interface {
	RecordRefresh(duration time.Duration, err error)
	RecordCancelled()
	RecordCacheHit()
}
