package order

import (
	"testing"

	"gotest.tools/assert"
)

func TestPhases(t *testing.T) {
	assert.Equal(t, StatusWaitToNew.Phase(), PhasePending)
	assert.Equal(t, StatusPendingCancel.Phase(), PhaseActive)
	assert.Equal(t, StatusPartialWithdrawal.Phase(), PhaseTerminal)
	assert.Equal(t, Status("Bogus").Phase(), PhaseUnknown)
	assert.Equal(t, StatusUnknown.String(), "Unknown")
	assert.Equal(t, PhaseTerminal.String(), "terminal")
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusUnknown, StatusFilled, true},
		{StatusNotReported, StatusWaitToNew, true},
		{StatusWaitToNew, StatusNew, true},
		{StatusNew, StatusPartialFilled, true},
		{StatusPartialFilled, StatusFilled, true},
		{StatusNew, StatusWaitToCancel, true},
		{StatusPendingCancel, StatusNew, true},
		{StatusFilled, StatusFilled, true},
		{StatusFilled, StatusNew, false},
		{StatusCanceled, StatusPartialFilled, false},
		{StatusRejected, StatusNotReported, false},
		{StatusNew, StatusNotReported, false},
		{StatusPartialFilled, StatusWaitToNew, false},
		{StatusNew, Status("Bogus"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, CanTransition(tt.from, tt.to), tt.want)
		})
	}
}
