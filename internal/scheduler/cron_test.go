package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(h, m, s, ns int) time.Time {
	return time.Date(2026, 3, 10, h, m, s, ns, time.UTC)
}

func TestNextOccurrence_StrictlyAfter(t *testing.T) {
	next, err := NextOccurrence("0 2 * * *", utc(2, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), next)

	next, err = NextOccurrence("0 2 * * *", utc(1, 59, 59, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2, 0, 0, 0), next)
}

func TestNextOccurrence_EvaluatesInUTC(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	ref := time.Date(2026, 3, 10, 4, 0, 0, 0, moscow) // 01:00 UTC

	next, err := NextOccurrence("0 2 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, utc(2, 0, 0, 0), next)
	assert.Equal(t, time.UTC, next.Location())
}

func TestNextOccurrence_SixFieldsAndDescriptors(t *testing.T) {
	next, err := NextOccurrence("30 * * * * *", utc(2, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, utc(2, 0, 30, 0), next)

	next, err = NextOccurrence("@daily", utc(2, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), next)
}

func TestValidateExpression(t *testing.T) {
	tests := []struct {
		expr  string
		valid bool
	}{
		{"0 2 * * *", true},
		{"*/5 * * * *", true},
		{"30 * * * * *", true},
		{"@hourly", true},
		{"not-a-cron", false},
		{"", false},
		{"61 * * * *", false},
		{"@every 5m", false},
		{"CRON_TZ=Europe/Moscow 0 2 * * *", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateExpression(tt.expr)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidExpression)
			}
		})
	}
}

func TestOccurrencesInWindow(t *testing.T) {
	// окно включает обе границы
	got, err := OccurrencesInWindow("*/5 * * * * *", utc(2, 0, 0, 0), utc(2, 0, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{utc(2, 0, 0, 0), utc(2, 0, 5, 0), utc(2, 0, 10, 0)}, got)
}

func TestOccurrencesInWindow_FromAfterOccurrence(t *testing.T) {
	got, err := OccurrencesInWindow("0 2 * * *", utc(2, 0, 0, 1), utc(2, 0, 10, 1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOccurrencesInWindow_Invalid(t *testing.T) {
	_, err := OccurrencesInWindow("not-a-cron", utc(2, 0, 0, 0), utc(2, 0, 10, 0))
	assert.ErrorIs(t, err, ErrInvalidExpression)
}
