package search

// Freshness buckets understood by the search collaborator.
const (
	FreshnessDay   = "day"
	FreshnessWeek  = "week"
	FreshnessMonth = "month"
	FreshnessAny   = "any"
)

// FreshnessBucket maps a query's recency window in days to the search
// collaborator's freshness vocabulary. The mapping is fixed: every query in
// every plan resolves the same way.
func FreshnessBucket(recencyDays int) string {
	switch {
	case recencyDays <= 0:
		return FreshnessAny
	case recencyDays <= 1:
		return FreshnessDay
	case recencyDays <= 7:
		return FreshnessWeek
	case recencyDays <= 30:
		return FreshnessMonth
	default:
		return FreshnessAny
	}
}
