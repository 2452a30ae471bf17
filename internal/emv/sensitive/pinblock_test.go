package sensitive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestISO0PINBlock(t *testing.T) {
	pan := NewPAN([]byte("43219876543210987"))

	block, err := ISO0PINBlock("1234", pan)
	require.NoError(t, err)

	// PIN field 0412 34FF FFFF FFFF XOR PAN field 0000 9876 5432 1098
	assert.Equal(t, []byte{0x04, 0x12, 0xAC, 0x89, 0xAB, 0xCD, 0xEF, 0x67}, block.Bytes())
}

func TestISO0PINBlockExcludesCheckDigit(t *testing.T) {
	// same PAN body with different check digits yields the same block
	a, err := ISO0PINBlock("1234", NewPAN([]byte("4761740000000012")))
	require.NoError(t, err)
	b, err := ISO0PINBlock("1234", NewPAN([]byte("4761740000000019")))
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestISO0PINBlockValidation(t *testing.T) {
	pan := NewPAN([]byte("4761740000000012"))

	_, err := ISO0PINBlock("123", pan)
	assert.Error(t, err)
	_, err = ISO0PINBlock("1234567890123", pan)
	assert.Error(t, err)
	_, err = ISO0PINBlock("12a4", pan)
	assert.Error(t, err)
	_, err = ISO0PINBlock("1234", NewPAN([]byte("1")))
	assert.Error(t, err)
}
