package bytesutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "plain", input: "9f2608", want: []byte{0x9F, 0x26, 0x08}},
		{name: "grouped with spaces", input: "A0 00 00 00 03", want: []byte{0xA0, 0x00, 0x00, 0x00, 0x03}},
		{name: "empty", input: "", want: []byte{}},
		{name: "odd length", input: "ABC", wantErr: true},
		{name: "non-hex", input: "ZZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromHex(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToHexRoundTrip(t *testing.T) {
	b := []byte{0x00, 0x9F, 0xFF}
	assert.Equal(t, "009FFF", ToHex(b))

	decoded, err := FromHex(ToHex(b))
	require.NoError(t, err)
	assert.Equal(t, b, decoded)
}

func TestSlice(t *testing.T) {
	b := []byte{1, 2, 3, 4}

	got, err := Slice(b, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3}, got)

	// copy, not a view
	got[0] = 0xFF
	assert.Equal(t, byte(2), b[1])

	_, err = Slice(b, 3, 2)
	assert.Error(t, err)

	_, err = Slice(b, -1, 1)
	assert.Error(t, err)
}

func TestXOR(t *testing.T) {
	got, err := XOR([]byte{0xFF, 0x0F}, []byte{0x0F, 0x0F})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x00}, got)

	_, err = XOR([]byte{1}, []byte{1, 2})
	assert.Error(t, err)
}

func TestUintBE(t *testing.T) {
	v, err := UintBE([]byte{0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint64(256), v)

	assert.Equal(t, []byte{0x01, 0x00}, PutUintBE(256, 2))

	_, err = UintBE(make([]byte, 9))
	assert.Error(t, err)
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, []byte{0xAB, 0x00, 0x00}, PadRight([]byte{0xAB}, 3, 0x00))
	assert.Equal(t, []byte{'A', ' ', ' '}, PadRight([]byte{'A'}, 3, 0x20))
	// longer input truncates
	assert.Equal(t, []byte{1, 2}, PadRight([]byte{1, 2, 3}, 2, 0x00))
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3}
	Zeroize(b)
	assert.True(t, IsZero(b))
}

func TestBCD(t *testing.T) {
	tests := []struct {
		name   string
		digits string
		width  int
		want   []byte
	}{
		{name: "amount n12", digits: "2500", width: 6, want: []byte{0x00, 0x00, 0x00, 0x00, 0x25, 0x00}},
		{name: "date YYMMDD", digits: "251119", width: 3, want: []byte{0x25, 0x11, 0x19}},
		{name: "zero", digits: "0", width: 1, want: []byte{0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BCDEncode(tt.digits, tt.width)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			decoded, err := BCDDecode(got)
			require.NoError(t, err)
			assert.Contains(t, decoded, tt.digits)
		})
	}

	_, err := BCDEncode("123", 1)
	assert.Error(t, err)
	_, err = BCDEncode("12a4", 2)
	assert.Error(t, err)

	v, err := BCDDecodeUint([]byte{0x25, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), v)

	_, err = BCDDecodeUint([]byte{0xA0})
	assert.Error(t, err)
}
