package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveYear(t *testing.T) {
	in2025 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	in2085 := time.Date(2085, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		yy   int
		now  time.Time
		want int
	}{
		{name: "same century", yy: 28, now: in2025, want: 2028},
		{name: "previous century", yy: 99, now: in2025, want: 1999},
		{name: "boundary 80 maps back", yy: 80, now: in2025, want: 1980},
		{name: "79 stays current", yy: 79, now: in2025, want: 2079},
		{name: "next century", yy: 5, now: in2085, want: 2105},
		{name: "high current keeps high yy", yy: 90, now: in2085, want: 2090},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveYear(tt.yy, tt.now))
		})
	}
}

func TestParseCardDate(t *testing.T) {
	now := time.Date(2025, 11, 19, 0, 0, 0, 0, time.UTC)

	date, ok := parseCardDate([]byte{0x28, 0x12, 0x31}, now)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2028, 12, 31, 0, 0, 0, 0, time.UTC), date)

	// sliding window: 99 is the previous century
	date, ok = parseCardDate([]byte{0x99, 0x12, 0x31}, now)
	assert.True(t, ok)
	assert.Equal(t, 1999, date.Year())

	_, ok = parseCardDate([]byte{0x28, 0x13, 0x01}, now)
	assert.False(t, ok)

	_, ok = parseCardDate([]byte{0x28, 0x12}, now)
	assert.False(t, ok)
}

func TestCryptogramTypeFromCID(t *testing.T) {
	assert.Equal(t, CryptogramAAC, CryptogramTypeFromCID(0x00))
	assert.Equal(t, CryptogramTC, CryptogramTypeFromCID(0x40))
	assert.Equal(t, CryptogramARQC, CryptogramTypeFromCID(0x80))
	// low bits carry reason codes and do not change the type
	assert.Equal(t, CryptogramARQC, CryptogramTypeFromCID(0x81))
	assert.Equal(t, CryptogramARQC, CryptogramTypeFromCID(0xC0))
}

func TestParseAFL(t *testing.T) {
	entries, err := ParseAFL([]byte{0x08, 0x01, 0x01, 0x00})
	assert.NoError(t, err)
	assert.Equal(t, []AFLEntry{{SFI: 1, First: 1, Last: 1, ODACount: 0}}, entries)

	entries, err = ParseAFL([]byte{0x10, 0x01, 0x03, 0x02, 0x18, 0x01, 0x02, 0x00})
	assert.NoError(t, err)
	assert.Equal(t, byte(2), entries[0].SFI)
	assert.Equal(t, byte(3), entries[0].Last)
	assert.Equal(t, byte(2), entries[0].ODACount)
	assert.Equal(t, byte(3), entries[1].SFI)

	_, err = ParseAFL([]byte{0x08, 0x01, 0x01})
	assert.Error(t, err)

	_, err = ParseAFL([]byte{0x08, 0x02, 0x01, 0x00})
	assert.Error(t, err)

	_, err = ParseAFL([]byte{0x08, 0x00, 0x01, 0x00})
	assert.Error(t, err)
}

func TestBackwardsCompatibleSFIExtraction(t *testing.T) {
	// the SFI lives in the five high bits: 0xF8 >> 3 == 0x1F
	entries, err := ParseAFL([]byte{0xF8, 0x01, 0x01, 0x00})
	assert.NoError(t, err)
	assert.Equal(t, byte(0x1F), entries[0].SFI)
}
