package ekd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableUnderCaseWhitespaceAccents(t *testing.T) {
	base, err := Fingerprint("Jane Doe", "Person", "1980-05-01")
	require.NoError(t, err)

	variants := []string{
		"  Jane Doe  ",
		"JANE DOE",
		"Jane   Doe",
		"Jané Döe",
	}
	for _, v := range variants {
		got, err := Fingerprint(v, "Person", "1980-05-01")
		require.NoError(t, err)
		assert.Equal(t, base, got, "variant %q should fingerprint identically", v)
	}
}

func TestFingerprint_DifferentEntityTypeDiffers(t *testing.T) {
	a, err := Fingerprint("Acme Corp", "Organization", "")
	require.NoError(t, err)
	b, err := Fingerprint("Acme Corp", "Person", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFingerprint_EmptyNameIsInvalid(t *testing.T) {
	_, err := Fingerprint("   ", "Person", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Fingerprint("...", "Person", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNormalizeDOB_RecognizedForms(t *testing.T) {
	assert.Equal(t, "1980-05-01", NormalizeDOB("1980-05-01"))
	assert.Equal(t, "1980-05-01", NormalizeDOB("01-05-1980"))
	assert.Equal(t, "", NormalizeDOB("1980"))
	assert.Equal(t, "", NormalizeDOB("not-a-date"))
	assert.Equal(t, "", NormalizeDOB(""))
}

func TestNormalizeDOBYear(t *testing.T) {
	assert.Equal(t, "1980", NormalizeDOBYear("1980-05-01"))
	assert.Equal(t, "1980", NormalizeDOBYear("1980"))
	assert.Equal(t, "", NormalizeDOBYear("garbage"))
}

func TestNormalizeName_PunctuationAndWhitespaceCollapse(t *testing.T) {
	got, err := NormalizeName("O'Brien-Smith,  Jr.")
	require.NoError(t, err)
	assert.Equal(t, "obriensmith jr", got)
}
