package torn

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/adapters/persistence/memory"
	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/pkg/bytesutil"
	"github.com/mgthompo1/tapkernel/pkg/crypto"
	"github.com/mgthompo1/tapkernel/test/mocks"
)

func testConfig() config.TornConfig {
	return config.TornConfig{Capacity: 5, MaxRecoveryAttempts: 10, SweepInterval: time.Minute}
}

func newLog(t *testing.T) (*Log, *memory.Store) {
	t.Helper()
	store := memory.New()
	l, err := NewLog(context.Background(), store, testConfig(), zap.NewNop())
	require.NoError(t, err)
	return l, store
}

func tearRecord(last4 string) Record {
	pan := "476174000000" + last4
	return Record{
		TransactionID: "txn-" + last4,
		PANHash:       crypto.HashPAN(pan),
		PANLast4:      last4,
		Amount:        2500,
		Currency:      "0840",
		ATC:           "0001",
		Scheme:        "visa",
		Phase:         PhaseAfterGenerateACSent,
	}
}

func TestAppendAndLookup(t *testing.T) {
	l, _ := newLog(t)

	rec, err := l.Append(context.Background(), tearRecord("0012"))
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RecordID)
	assert.Equal(t, StatusPendingRecovery, rec.Status)

	pending := l.PendingFor(crypto.HashPAN("4761740000000012"))
	require.Len(t, pending, 1)
	assert.Equal(t, rec.RecordID, pending[0].RecordID)

	assert.Empty(t, l.PendingFor(crypto.HashPAN("9999999999999999")))
}

func TestRingEvictsOldestIntoReversal(t *testing.T) {
	l, _ := newLog(t)

	var evicted []Record
	l.OnEvict(func(_ context.Context, rec Record) {
		evicted = append(evicted, rec)
	})

	// six tear-offs with PANs differing only in the last four digits
	for i := 0; i < 6; i++ {
		_, err := l.Append(context.Background(), tearRecord(fmt.Sprintf("%04d", i)))
		require.NoError(t, err)
	}

	snapshot := l.Snapshot()
	require.Len(t, snapshot, 5)
	// the five most recent remain
	assert.Equal(t, "0001", snapshot[0].PANLast4)
	assert.Equal(t, "0005", snapshot[4].PANLast4)

	// exactly one eviction, matching the oldest PAN
	require.Len(t, evicted, 1)
	assert.Equal(t, "0000", evicted[0].PANLast4)
}

func TestEvictionBeforeACDoesNotReverse(t *testing.T) {
	l, _ := newLog(t)

	var evicted []Record
	l.OnEvict(func(_ context.Context, rec Record) {
		evicted = append(evicted, rec)
	})

	first := tearRecord("0000")
	first.Phase = PhaseBeforeGenerateAC
	_, err := l.Append(context.Background(), first)
	require.NoError(t, err)

	for i := 1; i < 6; i++ {
		_, err := l.Append(context.Background(), tearRecord(fmt.Sprintf("%04d", i)))
		require.NoError(t, err)
	}

	assert.Empty(t, evicted)
	assert.Len(t, l.Snapshot(), 5)
}

func TestPersistenceRoundTrip(t *testing.T) {
	l, store := newLog(t)

	_, err := l.Append(context.Background(), tearRecord("0012"))
	require.NoError(t, err)

	reloaded, err := NewLog(context.Background(), store, testConfig(), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, reloaded.Snapshot(), 1)
	assert.Equal(t, "0012", reloaded.Snapshot()[0].PANLast4)
}

func TestMarkRecovered(t *testing.T) {
	l, _ := newLog(t)

	rec, err := l.Append(context.Background(), tearRecord("0012"))
	require.NoError(t, err)

	require.NoError(t, l.MarkRecovered(context.Background(), rec.RecordID, "A1A2A3A4A5A6A7A8"))

	assert.Empty(t, l.PendingFor(rec.PANHash))
	snapshot := l.Snapshot()
	assert.Equal(t, StatusRecovered, snapshot[0].Status)
	assert.Equal(t, "A1A2A3A4A5A6A7A8", snapshot[0].RecoveredCryptogram)

	assert.Error(t, l.MarkRecovered(context.Background(), "missing", ""))
}

func TestRecoveryExhaustionQueuesReversal(t *testing.T) {
	store := memory.New()
	cfg := config.TornConfig{Capacity: 5, MaxRecoveryAttempts: 2}
	l, err := NewLog(context.Background(), store, cfg, zap.NewNop())
	require.NoError(t, err)

	var evicted []Record
	l.OnEvict(func(_ context.Context, rec Record) {
		evicted = append(evicted, rec)
	})

	rec, err := l.Append(context.Background(), tearRecord("0012"))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		exhausted, err := l.RecordAttempt(context.Background(), rec.RecordID)
		require.NoError(t, err)
		assert.False(t, exhausted)
	}
	exhausted, err := l.RecordAttempt(context.Background(), rec.RecordID)
	require.NoError(t, err)
	assert.True(t, exhausted)

	require.Len(t, evicted, 1)
	assert.Equal(t, StatusFailed, l.Snapshot()[0].Status)
}

func TestSweepDropsResolvedRecords(t *testing.T) {
	l, _ := newLog(t)

	rec, err := l.Append(context.Background(), tearRecord("0012"))
	require.NoError(t, err)
	require.NoError(t, l.MarkRecovered(context.Background(), rec.RecordID, ""))

	// young resolved records stay
	require.NoError(t, l.Sweep(context.Background(), time.Hour))
	assert.Len(t, l.Snapshot(), 1)

	// a negative retention drops them
	require.NoError(t, l.Sweep(context.Background(), -time.Second))
	assert.Empty(t, l.Snapshot())
}

func TestProbeVisaMatchesCompletedEntry(t *testing.T) {
	card := mocks.NewCard()
	// torn log template: one completed entry for last4 0012, amount 2500
	entry := "DF812911" + "01" + "0012" + "000000002500" + "A1A2A3A4A5A6A7A8"
	card.On(mocks.Header(0x80, 0xCA, 0x81, 0x28),
		bytesutil.MustHex("DF812815"+entry+"9000"))

	rec := tearRecord("0012")
	result := NewRecoverer(zap.NewNop()).Probe(context.Background(), apdu.NewExchanger(card), "visa", rec)

	assert.Equal(t, CompletedOnCard, result.Outcome)
	assert.Equal(t, "A1A2A3A4A5A6A7A8", result.Cryptogram)
}

func TestProbeVisaNoMatch(t *testing.T) {
	card := mocks.NewCard()
	entry := "DF812911" + "01" + "9999" + "000000002500" + "A1A2A3A4A5A6A7A8"
	card.On(mocks.Header(0x80, 0xCA, 0x81, 0x28),
		bytesutil.MustHex("DF812815"+entry+"9000"))

	result := NewRecoverer(zap.NewNop()).Probe(context.Background(), apdu.NewExchanger(card), "visa", tearRecord("0012"))
	assert.Equal(t, NotFoundOnCard, result.Outcome)
}

func TestProbeVisaQueryFailed(t *testing.T) {
	card := mocks.NewCard()
	card.FailOn(mocks.Header(0x80, 0xCA, 0x81, 0x28))

	result := NewRecoverer(zap.NewNop()).Probe(context.Background(), apdu.NewExchanger(card), "visa", tearRecord("0012"))
	assert.Equal(t, QueryFailed, result.Outcome)
}

func TestProbeMastercardATCComparison(t *testing.T) {
	card := mocks.NewCard()
	// the card's counter moved past the recorded value
	card.On(mocks.Header(0x80, 0xCA, 0x9F, 0x36), bytesutil.MustHex("9F3602 0002 9000"))

	rec := tearRecord("0019")
	rec.Scheme = "mastercard"
	rec.ATC = "0001"

	result := NewRecoverer(zap.NewNop()).Probe(context.Background(), apdu.NewExchanger(card), "mastercard", rec)
	assert.Equal(t, CompletedOnCard, result.Outcome)

	// equal counter means the card rolled back
	card2 := mocks.NewCard()
	card2.On(mocks.Header(0x80, 0xCA, 0x9F, 0x36), bytesutil.MustHex("9F3602 0001 9000"))
	result = NewRecoverer(zap.NewNop()).Probe(context.Background(), apdu.NewExchanger(card2), "mastercard", rec)
	assert.Equal(t, AbortedOnCard, result.Outcome)
}

func TestProbeUnsupportedScheme(t *testing.T) {
	result := NewRecoverer(zap.NewNop()).Probe(context.Background(), apdu.NewExchanger(mocks.NewCard()), "amex", tearRecord("0012"))
	assert.Equal(t, NotFoundOnCard, result.Outcome)
}
