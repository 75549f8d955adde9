package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusPending, StatusReturn, StatusAwaitingPayment, StatusApproved,
	StatusCompleted, StatusRejected, StatusCancelled,
}

var allActions = []Action{
	ActionApprove, ActionReject, ActionReturn,
	ActionResubmit, ActionComplete, ActionCancel,
}

func TestNextStatusLegalEdges(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		to     Status
	}{
		{StatusPending, ActionApprove, StatusAwaitingPayment},
		{StatusPending, ActionReject, StatusRejected},
		{StatusPending, ActionReturn, StatusReturn},
		{StatusPending, ActionCancel, StatusCancelled},
		{StatusReturn, ActionResubmit, StatusPending},
		{StatusReturn, ActionReject, StatusRejected},
		{StatusAwaitingPayment, ActionComplete, StatusCompleted},
		{StatusAwaitingPayment, ActionCancel, StatusCancelled},
	}
	for _, tc := range cases {
		got, err := NextStatus(tc.from, tc.action)
		require.NoError(t, err, "%s + %s", tc.from, tc.action)
		assert.Equal(t, tc.to, got)
	}
}

// Every edge not in the table above must fail with ErrInvalidTransition.
func TestNextStatusRejectsEverythingElse(t *testing.T) {
	legal := map[Status]map[Action]bool{
		StatusPending:         {ActionApprove: true, ActionReject: true, ActionReturn: true, ActionCancel: true},
		StatusReturn:          {ActionResubmit: true, ActionReject: true},
		StatusAwaitingPayment: {ActionComplete: true, ActionCancel: true},
	}
	for _, from := range allStatuses {
		for _, action := range allActions {
			if legal[from][action] {
				continue
			}
			_, err := NextStatus(from, action)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s + %s must be illegal", from, action)
		}
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusRejected, StatusCancelled} {
		require.True(t, s.Terminal())
		for _, action := range allActions {
			_, err := NextStatus(s, action)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAwaitingPayment.Terminal())
}

func TestValidateIntent(t *testing.T) {
	ok := Registration{Type: TypePriority, PriorityCategory: CategoryDisability}
	require.NoError(t, ok.ValidateIntent())

	missing := Registration{Type: TypePriority, PriorityCategory: CategoryNone}
	require.Error(t, missing.ValidateIntent())

	normal := Registration{Type: TypeNormal, PriorityCategory: CategoryNone}
	require.NoError(t, normal.ValidateIntent())

	smuggled := Registration{Type: TypeRenewal, PriorityCategory: CategoryPoorHousehold}
	require.Error(t, smuggled.ValidateIntent())
}
