package domain

import "fmt"

// Report summarizes one propagation batch.
type Report struct {
	// Layouts counts published layouts whose localizations were refreshed.
	Layouts       int
	SkippedDrafts int
	Upserts       int
	Reindexed     int
	Failures      []error
}

// String renders a one-line summary for logs.
func (r Report) String() string {
	return fmt.Sprintf("layouts=%d drafts=%d upserts=%d reindexed=%d failures=%d",
		r.Layouts, r.SkippedDrafts, r.Upserts, r.Reindexed, len(r.Failures))
}
