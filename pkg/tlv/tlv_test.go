package tlv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/errors"
)

func TestParseSingle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		tag   Tag
		value string
	}{
		{name: "one-byte tag", input: "8A025A31", tag: 0x8A, value: "5A31"},
		{name: "two-byte tag", input: "9F260811223344556677 88", tag: 0x9F26, value: "1122334455667788"},
		{name: "three-byte tag", input: "9F8101021234", tag: 0x9F8101, value: "1234"},
		{name: "empty value", input: "9F2600", tag: 0x9F26, value: ""},
		{name: "long form length", input: "9F2681021234", tag: 0x9F26, value: "1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects, err := Parse(bytesutil.MustHex(tt.input))
			require.NoError(t, err)
			require.Len(t, objects, 1)
			assert.Equal(t, tt.tag, objects[0].Tag)
			assert.Equal(t, bytesutil.MustHex(tt.value), objects[0].Value)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "value truncated", input: "9F2608112233"},
		{name: "tag truncated", input: "9F"},
		{name: "length truncated", input: "9F26"},
		{name: "long form length truncated", input: "9F2682"},
		{name: "indefinite length", input: "70801234"},
		{name: "length of length too large", input: "9F26850000000001"},
		{name: "four-byte tag", input: "9F9F9F9F011234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bytesutil.MustHex(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedTLV))
		})
	}
}

func TestParseSkipsFiller(t *testing.T) {
	objects, err := Parse(bytesutil.MustHex("00008A023030008A023131"))
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, bytesutil.MustHex("3030"), objects[0].Value)
	assert.Equal(t, bytesutil.MustHex("3131"), objects[1].Value)
}

func TestParseRecursive(t *testing.T) {
	// 70 template containing 5A and a nested 61 template containing 5F34
	data := bytesutil.MustHex("70 0D 5A 04 47 61 74 00 61 05 5F 34 01 01 00")
	leaves, err := ParseRecursive(data)
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, Tag(0x5A), leaves[0].Tag)
	assert.Equal(t, Tag(0x5F34), leaves[1].Tag)
	assert.Equal(t, []byte{0x01}, leaves[1].Value)
}

func TestParseRecursiveMatchesLeavesOfParse(t *testing.T) {
	data := bytesutil.MustHex("77 0E 82 02 39 00 9F 36 02 00 01 9F 26 02 00 00")
	top, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.True(t, top[0].Tag.Constructed())

	leaves, err := ParseRecursive(data)
	require.NoError(t, err)

	children, err := top[0].Children()
	require.NoError(t, err)
	assert.Equal(t, children, leaves)
}

func TestFind(t *testing.T) {
	data := bytesutil.MustHex("77 09 82 02 39 00 9F 36 02 00 2A")

	aip, ok := Find(data, 0x82)
	require.True(t, ok)
	assert.Equal(t, bytesutil.MustHex("3900"), aip.Value)

	atc, ok := Find(data, 0x9F36)
	require.True(t, ok)
	assert.Equal(t, bytesutil.MustHex("002A"), atc.Value)

	_, ok = Find(data, 0x9F26)
	assert.False(t, ok)
}

func TestFindFirstInDocumentOrder(t *testing.T) {
	data := bytesutil.MustHex("8A 02 30 30 70 04 8A 02 31 31")
	first, ok := Find(data, 0x8A)
	require.True(t, ok)
	assert.Equal(t, bytesutil.MustHex("3030"), first.Value)
}

func TestBuildRoundTrip(t *testing.T) {
	objects := []TLV{
		{Tag: 0x5A, Value: bytesutil.MustHex("4761740000000012")},
		{Tag: 0x9F26, Value: bytesutil.MustHex("1122334455667788")},
		{Tag: 0x5F34, Value: []byte{0x01}},
	}

	parsed, err := Parse(Build(objects))
	require.NoError(t, err)
	assert.Equal(t, objects, parsed)
}

func TestEncodeLongValues(t *testing.T) {
	long := make([]byte, 200)
	encoded := Encode(0x70, long)
	// 81 C8 long form
	assert.Equal(t, byte(0x81), encoded[1])
	assert.Equal(t, byte(0xC8), encoded[2])

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Len(t, parsed[0].Value, 200)
}

func TestTagConstructed(t *testing.T) {
	assert.True(t, Tag(0x70).Constructed())
	assert.True(t, Tag(0x77).Constructed())
	assert.True(t, Tag(0xBF0C).Constructed())
	assert.False(t, Tag(0x5A).Constructed())
	assert.False(t, Tag(0x9F26).Constructed())
}
