package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_HappyPath(t *testing.T) {
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, CanTransition(order[i], order[i+1]), "%s -> %s", order[i], order[i+1])
	}
}

func TestCanTransition_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		from, to Status
	}{
		{"skip compliant", StatusDrafted, StatusSequenced},
		{"skip to handoff", StatusDrafted, StatusReadyForHandoff},
		{"backwards", StatusScored, StatusEnriched},
		{"self", StatusScored, StatusScored},
		{"drop from drafted", StatusDrafted, StatusDropped},
		{"block from new", StatusNew, StatusBlocked},
		{"out of dropped", StatusDropped, StatusScored},
		{"out of blocked", StatusBlocked, StatusSequenced},
		{"out of handoff", StatusReadyForHandoff, StatusDropped},
		{"unknown", StatusNew, Status("bogus")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransition_EarlyExits(t *testing.T) {
	assert.True(t, CanTransition(StatusEnriched, StatusDropped))
	assert.True(t, CanTransition(StatusContacted, StatusDropped))
	assert.True(t, CanTransition(StatusDrafted, StatusBlocked))
	assert.True(t, CanTransition(StatusCompliant, StatusBlocked))
}

func TestRecordAdvanceAndExit(t *testing.T) {
	r := NewRecord("r1", Company{ID: "c"})
	require.NoError(t, r.Advance(StatusEnriched))
	require.NoError(t, r.Exit(StatusDropped, "Domain suppressed: c.com"))
	assert.True(t, r.Terminal())
	assert.Equal(t, "Domain suppressed: c.com", r.Reason)

	err := r.Advance(StatusContacted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal")
	assert.Equal(t, StatusDropped, r.Status)
}
