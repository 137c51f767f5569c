package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/nextlesson/internal/apperr"
)

func TestParseScores(t *testing.T) {
	got, err := parseScores([]string{"variables=0.8", "linear-equations=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"variables": 0.8, "linear-equations": 1}, got)
}

func TestParseScores_Rejects(t *testing.T) {
	for _, in := range []string{"variables", "=0.5", "variables=high"} {
		_, err := parseScores([]string{in})
		assert.True(t, apperr.IsValidation(err), "input %q", in)
	}
}

func TestParseScores_DuplicateOutcome(t *testing.T) {
	_, err := parseScores([]string{"variables=0.8", "linear-equations=1", "variables=0.2"})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Contains(t, err.Error(), "duplicate outcome variables")
}
