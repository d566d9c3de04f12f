package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardImplLocation(t *testing.T) {
	clock, err := NewStandardImpl("Europe/Stockholm")
	require.NoError(t, err)
	require.Equal(t, "Europe/Stockholm", clock.Location().String())
	require.Equal(t, clock.Location(), clock.Now().Location())

	_, err = NewStandardImpl("Not/AZone")
	require.Error(t, err)
}

func TestFixedImpl(t *testing.T) {
	start := time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC)
	clock := NewFixedImpl(start)
	require.Equal(t, start, clock.Now())

	clock.Advance(20 * time.Minute)
	require.Equal(t, time.Date(2024, 3, 2, 0, 10, 0, 0, time.UTC), clock.Now())
}
