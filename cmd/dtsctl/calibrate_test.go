package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetFractionsEmptyStringDefersToDefault(t *testing.T) {
	fractions, err := parseTargetFractions("")
	require.NoError(t, err)
	assert.Nil(t, fractions)
}

func TestParseTargetFractionsParsesCommaSeparatedList(t *testing.T) {
	fractions, err := parseTargetFractions("0.1, 0.2,0.7")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.7}, fractions)
}

func TestParseTargetFractionsRejectsInvalidNumber(t *testing.T) {
	_, err := parseTargetFractions("0.1,not-a-number")
	assert.Error(t, err)
}
