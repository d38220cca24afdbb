package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		err      *Error
		sentinel error
	}{
		{Format("a", "x", "date", ""), ErrFormat},
		{Structure("a", "Unknown resourceType 'X'"), ErrFormat},
		{Required("a.b"), ErrRequired},
		{InvalidFields("a", []string{"x"}), ErrInvalidField},
		{Enum("a", "x", []string{"y"}), ErrEnum},
		{ArrayCardinality("a"), ErrArrayCardinality},
		{ScalarCardinality("a"), ErrArrayCardinality},
		{MalformedReference("a", "x"), ErrReference},
		{DisallowedReference("a", "X", []string{"Y"}), ErrReference},
		{Constraint("a", "per-1", "bad"), ErrConstraint},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))

			fe, ok := As(wrapped)
			require.True(t, ok)
			assert.Same(t, tt.err, fe)
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Missing required field: Patient.link[0].other", Required("Patient.link[0].other").Error())
	assert.Equal(t, "[Period] If present, start SHALL have a lower value than end",
		Constraint("Period", "per-1", "If present, start SHALL have a lower value than end").Error())

	inv := InvalidFields("Patient", []string{"zeta", "alpha"})
	assert.Equal(t, []string{"alpha", "zeta"}, inv.Fields)
	assert.Equal(t, "Invalid field(s) at Patient: alpha, zeta", inv.Error())

	ref := DisallowedReference("Observation.subject", "Observation", []string{"Patient"})
	assert.Contains(t, ref.Error(), "'Observation'")
	assert.Contains(t, ref.Error(), "Allowed types: Patient")
}

func TestFormatTruncatesLongValues(t *testing.T) {
	long := strings.Repeat("x", 80)
	err := Format("Patient.id", long, "id", "")
	assert.Equal(t, long, err.Value)
	assert.Contains(t, err.Error(), strings.Repeat("x", 47)+"...")
	assert.NotContains(t, err.Error(), long)
}

func TestConfigurationError(t *testing.T) {
	var err error = &ConfigurationError{Tag: "Spaceship", Path: "Patient.ship"}
	assert.True(t, IsConfiguration(fmt.Errorf("build: %w", err)))
	assert.Contains(t, err.Error(), "Spaceship")
	assert.Contains(t, err.Error(), "Patient.ship")

	_, ok := As(err)
	assert.False(t, ok)
	assert.False(t, IsConfiguration(Required("a")))
}
