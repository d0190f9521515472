package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFloat_RoundsHalfUp(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected Cents
	}{
		{"exact", 205.00, 20500},
		{"half rounds up", 0.005, 1},
		{"below half rounds down", 0.004, 0},
		{"negative half away from zero", -0.005, -1},
		{"daily profit example", 5.0, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FromFloat(tt.in))
		})
	}
}

func TestToCents_Coercion(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		expected Cents
	}{
		{"int64 passes through as cents", int64(20500), 20500},
		{"float decimal units", 70.0, 7000},
		{"string decimal units", "100.00", 10000},
		{"string without fraction", "100", 10000},
		{"string single decimal", "2.5", 250},
		{"string rounds half up", "0.005", 1},
		{"json number", json.Number("205.00"), 20500},
		{"negative string", "-30.25", -3025},
		{"empty string", "", 0},
		{"nil", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToCents(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToCents_RejectsUnknownTypes(t *testing.T) {
	_, err := ToCents(struct{}{})
	assert.Error(t, err)

	_, err = ToCents("not-a-number")
	assert.Error(t, err)
}

func TestApplyBasisPoints(t *testing.T) {
	// 2.5% of 200.00 => 5.00
	assert.Equal(t, Cents(500), ApplyBasisPoints(20000, 250))
	// 2.5% of 0.10 => 0.0025 => rounds to 0.00
	assert.Equal(t, Cents(0), ApplyBasisPoints(10, 250))
	// 2.5% of 2.00 => 0.005 => rounds up to 0.01
	assert.Equal(t, Cents(1), ApplyBasisPoints(200, 250))
}

func TestCents_String(t *testing.T) {
	assert.Equal(t, "205.00", Cents(20500).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "-30.25", Cents(-3025).String())
}
