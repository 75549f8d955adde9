// Package allocation implements the batch room assignment engine and
// the priority classifier that orders its candidates.  Everything in
// this package is pure: the engine mutates only the snapshot it is
// given, so a batch run is deterministic and independently testable.
package allocation

import (
	"sort"

	"github.com/iliyamo/dorm-residency/internal/model"
)

// Priority weights.  Higher is served first.  Renewals outrank normal
// applications so existing residents keep continuity; disability cases
// outrank poor-household cases per dormitory policy.
const (
	weightNormal        = 0
	weightRenewal       = 10
	weightPriorityOther = 5
	weightPoorHousehold = 20
	weightDisability    = 30
)

// Weight maps a registration's declared intent to its priority weight.
// It never consults room state and has no side effects.
func Weight(t model.RegistrationType, cat model.PriorityCategory) int {
	switch t {
	case model.TypeRenewal:
		return weightRenewal
	case model.TypePriority:
		switch cat {
		case model.CategoryDisability:
			return weightDisability
		case model.CategoryPoorHousehold:
			return weightPoorHousehold
		default:
			return weightPriorityOther
		}
	default:
		return weightNormal
	}
}

// SortCandidates orders candidates for a batch run: weight descending,
// then created_at ascending (first come, first served), then
// registration id ascending so the order is total and reruns are
// byte-for-byte reproducible.
func SortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		wi, wj := Weight(cs[i].Type, cs[i].PriorityCategory), Weight(cs[j].Type, cs[j].PriorityCategory)
		if wi != wj {
			return wi > wj
		}
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].RegistrationID < cs[j].RegistrationID
	})
}
