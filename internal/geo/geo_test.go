package geo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/bancho/internal/geo"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCountryForOffset_Winter(t *testing.T) {
	r, err := geo.NewResolver(fixedClock(time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	assert.Equal(t, "gb", r.CountryForOffset(0))
	assert.Equal(t, "ng", r.CountryForOffset(1))
	assert.Equal(t, "kr", r.CountryForOffset(9))
	assert.Equal(t, "ca", r.CountryForOffset(-4))
	assert.Equal(t, "us", r.CountryForOffset(-5))
	assert.Equal(t, geo.UnknownCountry, r.CountryForOffset(-12))
}

func TestCountryForOffset_SummerShiftsZones(t *testing.T) {
	r, err := geo.NewResolver(fixedClock(time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	// The Azores move to UTC in summer and sort before London.
	assert.Equal(t, "pt", r.CountryForOffset(0))
	assert.Equal(t, "us", r.CountryForOffset(-4))
}

func TestClientCode(t *testing.T) {
	assert.Equal(t, uint8(0), geo.ClientCode("xx"))
	assert.Equal(t, uint8(1), geo.ClientCode("oc"))
	assert.Equal(t, uint8(225), geo.ClientCode("us"))
	assert.Equal(t, uint8(252), geo.ClientCode("mf"))
	assert.Equal(t, uint8(0), geo.ClientCode("zz"))
	assert.True(t, geo.Known("gb"))
	assert.False(t, geo.Known("zz"))
}
