package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusBacklog, StatusInProgress, StatusUnderReview, StatusDone}
	allowed := map[[2]Status]bool{
		{StatusBacklog, StatusInProgress}:     true,
		{StatusInProgress, StatusUnderReview}: true,
		{StatusUnderReview, StatusDone}:       true,
		{StatusUnderReview, StatusBacklog}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			t.Run(from.String()+"->"+to.String(), func(t *testing.T) {
				assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to))
			})
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"Backlog", StatusBacklog, true},
		{"In progress", StatusInProgress, true},
		{"InProgress", StatusInProgress, true},
		{"under review", StatusUnderReview, true},
		{"Done", StatusDone, true},
		{"Shipped", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
