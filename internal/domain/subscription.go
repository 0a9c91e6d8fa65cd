package domain

// FeatureSet is the current user's subscription plan and feature gates.
// It is cached process-wide without a TTL; only an explicit invalidation
// (billing webhook, session teardown) refreshes it.
type FeatureSet struct {
	Plan     string          `json:"plan"`
	Features map[string]bool `json:"features"`
	Limits   map[string]int  `json:"limits"`
}

// Has reports whether the named feature is enabled on the current plan.
func (f *FeatureSet) Has(name string) bool {
	if f == nil || f.Features == nil {
		return false
	}
	return f.Features[name]
}
