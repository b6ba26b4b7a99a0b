package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartyStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    PartyStatus
		to      PartyStatus
		allowed bool
	}{
		{"waiting to called", PartyStatusWaiting, PartyStatusCalled, true},
		{"waiting to left", PartyStatusWaiting, PartyStatusLeft, true},
		{"waiting to kicked", PartyStatusWaiting, PartyStatusKicked, true},
		{"waiting to served skips called", PartyStatusWaiting, PartyStatusServed, false},
		{"waiting to no_show skips called", PartyStatusWaiting, PartyStatusNoShow, false},
		{"called to served", PartyStatusCalled, PartyStatusServed, true},
		{"called to no_show", PartyStatusCalled, PartyStatusNoShow, true},
		{"called to left", PartyStatusCalled, PartyStatusLeft, true},
		{"called to kicked", PartyStatusCalled, PartyStatusKicked, true},
		{"called back to waiting", PartyStatusCalled, PartyStatusWaiting, false},
		{"served is terminal", PartyStatusServed, PartyStatusCalled, false},
		{"left is terminal", PartyStatusLeft, PartyStatusWaiting, false},
		{"no_show is terminal", PartyStatusNoShow, PartyStatusCalled, false},
		{"kicked is terminal", PartyStatusKicked, PartyStatusWaiting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPartyStatusLiveAndTerminal(t *testing.T) {
	live := []PartyStatus{PartyStatusWaiting, PartyStatusCalled}
	terminal := []PartyStatus{PartyStatusServed, PartyStatusLeft, PartyStatusNoShow, PartyStatusKicked}

	for _, s := range live {
		assert.True(t, s.Live(), "%s should be live", s)
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
	for _, s := range terminal {
		assert.False(t, s.Live(), "%s should not be live", s)
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
}

func TestValidateClockTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty allowed", "", false},
		{"valid morning", "09:30", false},
		{"valid midnight", "00:00", false},
		{"valid last minute", "23:59", false},
		{"missing leading zero", "9:30", true},
		{"out of range hour", "24:00", true},
		{"out of range minute", "12:60", true},
		{"garbage", "noonish", true},
		{"seconds not allowed", "12:30:45", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClockTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
