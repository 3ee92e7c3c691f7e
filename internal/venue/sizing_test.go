package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionSizeFromRisk(t *testing.T) {
	// 1% of 10000 risked over a 5-point stop distance.
	qty, err := PositionSizeFromRisk(10000, 1, 100, 95)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, qty, 1e-9)
}

func TestPositionSizeFromRisk_ShortDirection(t *testing.T) {
	// Stop above entry; distance is absolute.
	qty, err := PositionSizeFromRisk(10000, 1, 100, 105)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, qty, 1e-9)
}

func TestPositionSizeFromRisk_ZeroStopDistance(t *testing.T) {
	_, err := PositionSizeFromRisk(10000, 1, 100, 100)
	assert.Error(t, err)
}
