package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsledger/internal/service"
)

func TestGateAmount(t *testing.T) {
	gate := service.Gate{MaxAmount: dec("100")}

	cases := map[string]string{
		"0.5":        "0.5",
		"0.505":      "0.51",
		"100":        "100",
		"-2":         "-2",
		"0.00000001": "0",
		"1.2300":     "1.23",
	}
	for in, want := range cases {
		got, err := gate.Amount(dec(in))
		require.NoError(t, err, in)
		assert.True(t, got.Equal(dec(want)), "%s rounded to %s", in, got)
	}

	for _, in := range []string{"100.01", "-101", "1e16", "1e5000000", "1e-9", "1e-5000000"} {
		_, err := gate.Amount(dec(in))
		assert.ErrorIs(t, err, service.ErrInvalidAmount, in)
	}
}

func TestGateAmountDefaultLimit(t *testing.T) {
	var gate service.Gate

	_, err := gate.Amount(service.DefaultMaxAmount)
	require.NoError(t, err)
	_, err = gate.Amount(service.DefaultMaxAmount.Add(dec("0.01")))
	assert.ErrorIs(t, err, service.ErrInvalidAmount)
}
