package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/dorm-residency/internal/model"
)

func TestWeight(t *testing.T) {
	cases := []struct {
		typ  model.RegistrationType
		cat  model.PriorityCategory
		want int
	}{
		{model.TypeNormal, model.CategoryNone, 0},
		{model.TypeRenewal, model.CategoryNone, 10},
		{model.TypePriority, model.CategoryOther, 5},
		{model.TypePriority, model.CategoryPoorHousehold, 20},
		{model.TypePriority, model.CategoryDisability, 30},
		// category is ignored unless the type is PRIORITY
		{model.TypeNormal, model.CategoryDisability, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Weight(tc.typ, tc.cat), "%s/%s", tc.typ, tc.cat)
	}
}

func TestSortCandidatesOrdering(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	cs := []Candidate{
		{RegistrationID: 1, Type: model.TypeNormal, CreatedAt: base},
		{RegistrationID: 2, Type: model.TypePriority, PriorityCategory: model.CategoryDisability, CreatedAt: base.Add(time.Hour)},
		{RegistrationID: 3, Type: model.TypeRenewal, CreatedAt: base.Add(2 * time.Hour)},
		{RegistrationID: 4, Type: model.TypeNormal, CreatedAt: base.Add(-time.Hour)},
	}
	SortCandidates(cs)

	got := []uint64{cs[0].RegistrationID, cs[1].RegistrationID, cs[2].RegistrationID, cs[3].RegistrationID}
	// disability first despite being created last, then renewal, then
	// the two normals in creation order
	assert.Equal(t, []uint64{2, 3, 4, 1}, got)
}

func TestSortCandidatesTieBreakByID(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	cs := []Candidate{
		{RegistrationID: 9, Type: model.TypeNormal, CreatedAt: at},
		{RegistrationID: 3, Type: model.TypeNormal, CreatedAt: at},
	}
	SortCandidates(cs)
	assert.Equal(t, uint64(3), cs[0].RegistrationID)
}
