package accounts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	fresh, err := IsWithinThresholdPeriod(time.Now().Add(-1*time.Hour), ActionCodeTTL)
	require.NoError(t, err)
	assert.True(t, fresh)

	stale, err := IsWithinThresholdPeriod(time.Now().Add(-25*time.Hour), ActionCodeTTL)
	require.NoError(t, err)
	assert.False(t, stale)

	_, err = IsWithinThresholdPeriod(time.Now(), "one day")
	require.Error(t, err)
}

func TestIsOutsideThresholdPeriod(t *testing.T) {
	outside, err := IsOutsideThresholdPeriod(time.Now().Add(-25*time.Hour), ActionCodeTTL)
	require.NoError(t, err)
	assert.True(t, outside)

	inside, err := IsOutsideThresholdPeriod(time.Now().Add(-time.Minute), ActionCodeTTL)
	require.NoError(t, err)
	assert.False(t, inside)

	_, err = IsOutsideThresholdPeriod(time.Now(), "soon")
	require.Error(t, err)
}
