package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestApplyRateRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		rate   string
		want   int64
	}{
		{"half cent rounds up", 5, "0.5", 3},
		{"odd half cent rounds up", 3, "0.5", 2},
		{"below half rounds down", 27000, "0.0499", 1347},
		{"hst on discounted order", 27000, "0.13", 3510},
		{"qst component", 27000, "0.09975", 2693},
		{"zero amount", 0, "0.13", 0},
		{"negative amount", -500, "0.13", 0},
		{"zero rate", 1000, "0", 0},
		{"negative rate", 1000, "-0.1", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ApplyRate(tc.amount, decimal.RequireFromString(tc.rate)))
		})
	}
}

func TestApplyPercentage(t *testing.T) {
	assert.Equal(t, int64(3000), ApplyPercentage(30000, decimal.NewFromInt(10)))
	assert.Equal(t, int64(7500), ApplyPercentage(50000, decimal.NewFromInt(15)))
	assert.Equal(t, int64(33), ApplyPercentage(250, decimal.NewFromInt(13)), "32.5 rounds up")
	assert.Equal(t, int64(0), ApplyPercentage(250, decimal.Zero))
}

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"299.99", 29999},
		{" 12 ", 1200},
		{"0.005", 1},
		{"-0.005", -1},
		{"305.104", 30510},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseCents("twelve")
	assert.Error(t, err)
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "305.10", FormatCents(30510))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-1.50", FormatCents(-150))
}

func TestFormatMoney(t *testing.T) {
	cad := FormatMoney(30510, " cad ", language.MustParse("en-CA"))
	assert.Contains(t, cad, "305.10")
	assert.NotEqual(t, "305.10", cad, "known currencies carry a symbol")

	assert.Equal(t, "305.10", FormatMoney(30510, "ZZZ", language.English), "unknown currency falls back to plain decimals")
	assert.Equal(t, "12.00", FormatMoney(1200, "", language.English))
}
