package secretbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAndTamper(t *testing.T) {
	box, err := New("MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")
	require.NoError(t, err)

	sealed, err := box.Encrypt("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "JBSWY3DPEHPK3PXP")

	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plain)

	other, err := New("a different development key")
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = box.Decrypt("no-separator")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewRejectsEmptyKey(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
