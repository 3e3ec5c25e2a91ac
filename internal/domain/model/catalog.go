package model

import "time"

// ModelRecord is one identifier advertised by the provider's model listing.
type ModelRecord struct {
	ID string
}

// CatalogState is a point-in-time snapshot of the model catalog cache.
type CatalogState struct {
	Models     []ModelRecord
	FetchedAt  time.Time
	TTL        time.Duration
	LastError  string
	Refreshing bool
}

// IsFresh reports whether the catalog is non-empty and younger than the TTL
// at time now.
func (s CatalogState) IsFresh(now time.Time) bool {
	return len(s.Models) > 0 && !s.FetchedAt.IsZero() && now.Sub(s.FetchedAt) < s.TTL
}

// ModelIDs extracts the identifiers from records, preserving order.
func ModelIDs(records []ModelRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
