package merge

import "github.com/iudanet/extsync/internal/models"

// MergeCounters combines usage counters additively: counters are
// monotonic accumulations, so each source contributes the delta it has
// accumulated over the last common synced baseline, and the merged value
// is the baseline plus the sum of those deltas. Latest-wins would lose
// concurrent increments; max would lose nothing but also count nothing
// twice only by accident.
//
// A source reporting less than the baseline contributes zero: counters
// never move backwards.
func MergeCounters(baseline map[string]int64, sources []*models.SyncSnapshot) map[string]int64 {
	out := make(map[string]int64, len(baseline))
	for k, v := range baseline {
		out[k] = v
	}

	for _, snap := range sources {
		for name, value := range snap.UsageCounters {
			delta := value - baseline[name]
			if delta <= 0 {
				continue
			}
			out[name] = out[name] + delta
		}
	}

	return out
}
