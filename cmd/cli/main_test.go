package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmmstudio/domain/modeling"
)

func TestParseScreenArgs(t *testing.T) {
	req, err := parseScreenArgs([]string{"Search", "TV:30"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Search", "TV"}, req.Variables)
	assert.Equal(t, map[string]int{"TV": 30}, req.AdstockRates)

	_, err = parseScreenArgs([]string{"TV:abc"})
	assert.Error(t, err)
}

func TestParseCoefficients(t *testing.T) {
	got, err := parseCoefficients([]string{"TV=1.5", "Radio=-0.25"})
	require.NoError(t, err)
	assert.Equal(t, modeling.FixedCoefficientMap{"TV": 1.5, "Radio": -0.25}, got)

	got, err = parseCoefficients(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseCoefficients([]string{"TV"})
	assert.Error(t, err)
	_, err = parseCoefficients([]string{"TV=x"})
	assert.Error(t, err)
}
