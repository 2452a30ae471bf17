package dol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgthompo1/tapkernel/internal/emv/datastore"
	"github.com/mgthompo1/tapkernel/internal/emv/tag"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
)

func TestParse(t *testing.T) {
	// CDOL1 of scenario 1: 9F02(6) 9F1A(2) 95(5) 5F2A(2) 9A(3) 9C(1) 9F37(4)
	data := bytesutil.MustHex("9F0206 9F1A02 9505 5F2A02 9A03 9C01 9F3704")

	d, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, d, 7)
	assert.Equal(t, Entry{Tag: tag.AmountAuthorized, Length: 6}, d[0])
	assert.Equal(t, Entry{Tag: tag.TVR, Length: 5}, d[2])
	assert.Equal(t, Entry{Tag: tag.UnpredictableNumber, Length: 4}, d[6])
	assert.Equal(t, 23, d.TotalLength())
}

func TestParseTruncated(t *testing.T) {
	_, err := Parse(bytesutil.MustHex("9F02"))
	assert.Error(t, err)

	_, err = Parse(bytesutil.MustHex("9F"))
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	d, err := Parse(nil)
	require.NoError(t, err)
	assert.Zero(t, d.TotalLength())
	assert.Empty(t, Build(d))
}

func TestBuild(t *testing.T) {
	terminal := datastore.New()
	terminal.Put(tag.AmountAuthorized, bytesutil.MustHex("000000002500"))
	terminal.Put(tag.TerminalCountryCode, bytesutil.MustHex("0840"))

	card := datastore.New()
	card.Put(tag.ATC, bytesutil.MustHex("002A"))

	d := DOL{
		{Tag: tag.AmountAuthorized, Length: 6},
		{Tag: tag.ATC, Length: 2},
		{Tag: tag.UnpredictableNumber, Length: 4}, // missing -> zeros
	}

	out := Build(d, terminal, card)
	assert.Equal(t, bytesutil.MustHex("000000002500 002A 00000000"), out)
	assert.Len(t, out, d.TotalLength())
}

func TestBuildPadding(t *testing.T) {
	terminal := datastore.New()
	terminal.Put(tag.ATC, bytesutil.MustHex("2A"))          // short numeric
	terminal.Put(tag.TVR, bytesutil.MustHex("000000000012")) // long
	terminal.Put(tag.TerminalID, []byte("TERM1"))            // short alphanumeric

	d := DOL{
		{Tag: tag.ATC, Length: 2},
		{Tag: tag.TVR, Length: 5},
		{Tag: tag.TerminalID, Length: 8},
	}

	out := Build(d, terminal)
	require.Len(t, out, 15)
	// short values pad right with zeros, long values keep the left bytes
	assert.Equal(t, bytesutil.MustHex("2A00"), out[:2])
	assert.Equal(t, bytesutil.MustHex("0000000000"), out[2:7])
	// alphanumeric identifiers pad with spaces
	assert.Equal(t, []byte("TERM1   "), out[7:])
}

func TestBuildTerminalTakesPrecedence(t *testing.T) {
	terminal := datastore.New()
	terminal.Put(tag.ATC, bytesutil.MustHex("0001"))
	card := datastore.New()
	card.Put(tag.ATC, bytesutil.MustHex("0002"))

	out := Build(DOL{{Tag: tag.ATC, Length: 2}}, terminal, card)
	assert.Equal(t, bytesutil.MustHex("0001"), out)
}
