package sensitive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPANProjections(t *testing.T) {
	pan := NewPAN([]byte("4761740000000012"))

	assert.Equal(t, "4761740000000012", pan.Digits())
	assert.Equal(t, "476174******0012", pan.Masked())
	assert.Equal(t, "0012", pan.LastFour())
	assert.Len(t, pan.Hash(), 64)

	// hashing is deterministic for torn-log matching
	other := NewPAN([]byte("4761740000000012"))
	assert.Equal(t, pan.Hash(), other.Hash())
}

func TestZeroize(t *testing.T) {
	pan := NewPAN([]byte("4761740000000012"))
	assert.False(t, pan.IsZero())

	pan.Zeroize()
	assert.True(t, pan.IsZero())
	assert.Equal(t, make([]byte, 16), pan.Bytes())
}

func TestCryptogramHex(t *testing.T) {
	ac := NewCryptogram([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88})
	assert.Equal(t, "1122334455667788", ac.Hex())

	ac.Zeroize()
	assert.Equal(t, "0000000000000000", ac.Hex())
}

func TestRegistryWipesEverything(t *testing.T) {
	registry := NewRegistry()

	pan := NewPAN([]byte("4761740000000012"))
	track2 := NewTrack2([]byte{0xD2, 0x81, 0x22})
	ac := NewCryptogram([]byte{0x11, 0x22})
	pin := NewPINBlock([]byte{0x04, 0x12, 0x34, 0xFF})

	registry.Track(&pan.Buffer)
	registry.Track(&track2.Buffer)
	registry.Track(&ac.Buffer)
	registry.Track(&pin.Buffer)
	registry.Track(nil)

	assert.False(t, registry.AllZero())
	registry.ZeroizeAll()
	assert.True(t, registry.AllZero())
	assert.True(t, pan.IsZero())
	assert.True(t, track2.IsZero())
	assert.True(t, ac.IsZero())
	assert.True(t, pin.IsZero())

	// idempotent
	registry.ZeroizeAll()
	assert.True(t, registry.AllZero())
}

func TestNilBufferSafe(t *testing.T) {
	var b *Buffer
	assert.True(t, b.IsZero())
	assert.Zero(t, b.Len())
	assert.Nil(t, b.Bytes())
	b.Zeroize()
}
