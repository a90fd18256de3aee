package podcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusPending.Active())
	assert.True(t, StatusRunning.Active())
	assert.False(t, StatusCompleted.Active())
	assert.False(t, StatusFailed.Active())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{200 * time.Millisecond, "00:00"},
		{59*time.Second + 900*time.Millisecond, "00:59"},
		{61 * time.Second, "01:01"},
		{12*time.Minute + 5*time.Second, "12:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), "duration %s", tt.in)
	}
}
