package generic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgthompo1/tapkernel/internal/kernel"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/test/mocks"
)

func testParams() kernel.Params {
	return kernel.Params{
		TransactionID:    "txn-amex-1",
		AmountAuthorized: 1500,
		CurrencyCode:     "0840",
		TransactionDate:  time.Date(2025, 11, 19, 12, 0, 0, 0, time.UTC),
		TransactionType:  0x00,
	}
}

const expresspayRecord = "70 39" +
	"5A08 3712340000000125" +
	"5F2403 281231" +
	"5713 3712340000000125D28122010000000000000F" +
	"8C12 9F0206 9F1A02 9505 5F2A02 9A03 9C01 9F3704"

func expresspayCard() *mocks.Card {
	card := mocks.NewCard()
	// format 1 GPO: AIP 1800, AFL 08010100
	card.On(mocks.Header(0x80, 0xA8, 0x00, 0x00),
		bytesutil.MustHex("8006 1800 08010100 9000"))
	card.On(mocks.Header(0x00, 0xB2, 0x01, 0x0C),
		bytesutil.MustHex(expresspayRecord+"9000"))
	card.On(mocks.Header(0x80, 0xAE, 0x80, 0x00),
		bytesutil.MustHex("800B 80 0007 F1F2F3F4F5F6F7F8 9000"))
	return card
}

func TestExpressPayOnlineRequest(t *testing.T) {
	env := mocks.Env(expresspayCard())
	k := New(env, AmexProfile)
	assert.Equal(t, "amex", k.Name())

	app := kernel.SelectedApplication{AID: bytesutil.MustHex("A00000002501")}
	outcome := k.ProcessTransaction(context.Background(), app, testParams())

	require.Equal(t, kernel.OutcomeOnlineRequest, outcome.Type, "reason: %s", outcome.Reason)
	auth := outcome.Authorization
	require.NotNil(t, auth)
	assert.Equal(t, "amex", auth.Scheme)
	assert.Equal(t, "F1F2F3F4F5F6F7F8", auth.Cryptogram)
	assert.Equal(t, "371234******0125", auth.MaskedPAN)
}

func TestDeclineMapsAAC(t *testing.T) {
	card := mocks.NewCard()
	card.On(mocks.Header(0x80, 0xA8, 0x00, 0x00),
		bytesutil.MustHex("8006 1800 08010100 9000"))
	card.On(mocks.Header(0x00, 0xB2, 0x01, 0x0C),
		bytesutil.MustHex(expresspayRecord+"9000"))
	// the card refuses with an AAC even though online was requested
	card.On(mocks.Header(0x80, 0xAE, 0x80, 0x00),
		bytesutil.MustHex("800B 00 0007 A1A2A3A4A5A6A7A8 9000"))

	env := mocks.Env(card)
	k := New(env, JCBProfile)

	app := kernel.SelectedApplication{AID: bytesutil.MustHex("A0000000651010")}
	outcome := k.ProcessTransaction(context.Background(), app, testParams())

	require.Equal(t, kernel.OutcomeDeclined, outcome.Type)
	assert.Equal(t, "AAC", outcome.Authorization.CryptogramType)
}

func TestProfilesCoverAllSchemes(t *testing.T) {
	schemes := []string{
		AmexProfile.Scheme,
		DiscoverProfile.Scheme,
		JCBProfile.Scheme,
		UnionPayProfile.Scheme,
	}
	assert.Equal(t, []string{"amex", "discover", "jcb", "unionpay"}, schemes)
}
