package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCombined(t *testing.T) {
	cases := []struct {
		in      string
		locator string
		dni     string
		ok      bool
	}{
		{"ABC123|12345678Z", "ABC123", "12345678Z", true},
		{"ABC123 - 12345678Z", "ABC123", "12345678Z", true},
		{"  ABC123   12345678Z ", "ABC123", "12345678Z", true},
		{"|ABC123||12345678Z|", "ABC123", "12345678Z", true},
		{"ABC123", "", "", false},
		{"A|B|C", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		l, d, ok := SplitCombined(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.locator, l, tc.in)
		assert.Equal(t, tc.dni, d, tc.in)
	}
}

func TestNormalizeInput(t *testing.T) {
	q, err := NormalizeInput(LocatorInput{Locator: " abc123 ", DNI: "1234 5678 z", ServiceID: "  S1 "})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", q.Locator)
	assert.Equal(t, "12345678Z", q.DNI)
	require.NotNil(t, q.ServiceID)
	assert.Equal(t, "S1", *q.ServiceID)

	q, err = NormalizeInput(LocatorInput{Locator: "ABC123", DNI: "12345678Z", ServiceID: "   "})
	require.NoError(t, err)
	assert.Nil(t, q.ServiceID)
}

func TestNormalizeInputCombined(t *testing.T) {
	q, err := NormalizeInput(LocatorInput{Code: "abc123|12345678z"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", q.Locator)
	assert.Equal(t, "12345678Z", q.DNI)

	// the combined scan may land in the locator field
	q, err = NormalizeInput(LocatorInput{Locator: "abc123-12345678z"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", q.Locator)
	assert.Equal(t, "12345678Z", q.DNI)

	// both fields win over code
	q, err = NormalizeInput(LocatorInput{Locator: "L1", DNI: "12345678Z", Code: "OTHER|99999999R"})
	require.NoError(t, err)
	assert.Equal(t, "L1", q.Locator)
}

func TestNormalizeInputRejects(t *testing.T) {
	for _, in := range []LocatorInput{
		{},
		{Locator: "ABC123"},
		{DNI: "12345678Z"},
		{Code: "ABC123|12345678Z|extra"},
		{Locator: "  ", DNI: "  "},
	} {
		_, err := NormalizeInput(in)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", in)
	}
}

func TestFingerprintIgnoresFormatting(t *testing.T) {
	a, err := NormalizeInput(LocatorInput{Locator: "abc123", DNI: "12345678z"})
	require.NoError(t, err)
	b, err := NormalizeInput(LocatorInput{Code: " ABC123 | 12345678z "})
	require.NoError(t, err)

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	svc := "S1"
	b.ServiceID = &svc
	fc, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}
