package entrypoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/test/mocks"
)

var (
	visaAID = bytesutil.MustHex("A0000000031010")
	mcAID   = bytesutil.MustHex("A0000000041010")
)

// ppseFCI advertises Mastercard at priority 1 and Visa at priority 2.
func ppseFCI() []byte {
	return bytesutil.MustHex("6F3F" +
		"840E 325041592E5359532E4444463031" +
		"A52D BF0C2A" +
		"610C 4F07 A0000000031010 8701 02" +
		"610C 4F07 A0000000041010 8701 01" +
		"610C 4F07 B0000000099999 8701 03" /* unknown RID */)
}

func visaFCI() []byte {
	return bytesutil.MustHex("6F1D" +
		"8407 A0000000031010" +
		"A512 5004 56495341 9F3809 9F6604 9F0206 9F3704")
}

func mcFCI() []byte {
	return bytesutil.MustHex("6F09 8407 A0000000041010")
}

func TestSelectHonoursPriority(t *testing.T) {
	card := mocks.NewCard()
	card.On(mocks.SelectOf([]byte("2PAY.SYS.DDF01")), append(ppseFCI(), 0x90, 0x00))
	card.On(mocks.SelectOf(mcAID), append(mcFCI(), 0x90, 0x00))
	card.On(mocks.SelectOf(visaAID), append(visaFCI(), 0x90, 0x00))

	ep := New(DefaultRegistry(), zap.NewNop())
	selection, err := ep.Select(context.Background(), apdu.NewExchanger(card))
	require.NoError(t, err)

	// mastercard carries priority 1 and wins
	assert.Equal(t, mcAID, selection.Application.AID)
	k := selection.Factory(mocks.Env(mocks.NewCard()))
	assert.Equal(t, "mastercard", k.Name())
}

func TestSelectFallsBackWhenPreferredFails(t *testing.T) {
	card := mocks.NewCard()
	card.On(mocks.SelectOf([]byte("2PAY.SYS.DDF01")), append(ppseFCI(), 0x90, 0x00))
	// the preferred application refuses selection
	card.On(mocks.SelectOf(mcAID), bytesutil.MustHex("6A82"))
	card.On(mocks.SelectOf(visaAID), append(visaFCI(), 0x90, 0x00))

	ep := New(DefaultRegistry(), zap.NewNop())
	selection, err := ep.Select(context.Background(), apdu.NewExchanger(card))
	require.NoError(t, err)

	assert.Equal(t, visaAID, selection.Application.AID)
	k := selection.Factory(mocks.Env(mocks.NewCard()))
	assert.Equal(t, "visa", k.Name())

	// the PDOL from the FCI was extracted for the kernel
	require.Len(t, selection.Application.PDOL, 3)
	assert.Equal(t, 4, selection.Application.PDOL[0].Length)
	assert.Equal(t, "VISA", selection.Application.Label)
}

func TestSelectNoPPSE(t *testing.T) {
	card := mocks.NewCard()
	card.On(mocks.SelectOf([]byte("2PAY.SYS.DDF01")), bytesutil.MustHex("6A82"))

	ep := New(DefaultRegistry(), zap.NewNop())
	_, err := ep.Select(context.Background(), apdu.NewExchanger(card))
	assert.Error(t, err)
}

func TestSelectNoSupportedApplication(t *testing.T) {
	card := mocks.NewCard()
	// directory only advertises an unregistered scheme
	fci := bytesutil.MustHex("6F13 A511 BF0C0E 610C 4F07 B0000000099999 870101")
	card.On(mocks.SelectOf([]byte("2PAY.SYS.DDF01")), append(fci, 0x90, 0x00))

	ep := New(DefaultRegistry(), zap.NewNop())
	_, err := ep.Select(context.Background(), apdu.NewExchanger(card))
	assert.Error(t, err)
}

func TestRegistryResolve(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		aid    string
		kernel string
	}{
		{aid: "A0000000031010", kernel: "visa"},
		{aid: "A0000000041010", kernel: "mastercard"},
		{aid: "A00000002501", kernel: "amex"},
		{aid: "A0000001523010", kernel: "discover"},
		{aid: "A0000000651010", kernel: "jcb"},
		{aid: "A000000333010101", kernel: "unionpay"},
	}

	for _, tt := range tests {
		factory, ok := r.Resolve(bytesutil.MustHex(tt.aid))
		require.True(t, ok, tt.aid)
		k := factory(mocks.Env(mocks.NewCard()))
		assert.Equal(t, tt.kernel, k.Name())
	}

	_, ok := r.Resolve(bytesutil.MustHex("B000000001"))
	assert.False(t, ok)
	_, ok = r.Resolve(bytesutil.MustHex("A000"))
	assert.False(t, ok)
}
