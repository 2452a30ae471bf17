// Package kernel defines the contract every scheme kernel implements and
// the shared EMV engine the kernels drive the card with.
package kernel

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/emv/apdu"
	"github.com/mgthompo1/tapkernel/internal/emv/bits"
	"github.com/mgthompo1/tapkernel/internal/emv/datastore"
	"github.com/mgthompo1/tapkernel/internal/emv/dol"
	"github.com/mgthompo1/tapkernel/internal/emv/sensitive"
)

// Params are the application-layer inputs for one authorization.
// Amounts are minor units of the transaction currency.
type Params struct {
	TransactionID    string
	AmountAuthorized int64
	AmountOther      int64
	CurrencyCode     string // ISO 4217 numeric, e.g. "0840"
	TransactionDate  time.Time
	TransactionType  byte
}

// AmountFromDecimal converts a major-unit decimal amount ("25.00") into
// minor units given the currency exponent.
func AmountFromDecimal(amount decimal.Decimal, exponent int) int64 {
	return amount.Shift(int32(exponent)).IntPart()
}

// SelectedApplication is the outcome of entry-point selection handed to
// the kernel: the chosen AID, its FCI and the card's PDOL if any.
type SelectedApplication struct {
	AID      []byte
	Label    string
	Priority byte
	FCI      []byte
	PDOL     dol.DOL
}

// OutcomeType enumerates the §4.4 kernel outcomes.
type OutcomeType int

const (
	// OutcomeApproved means an offline TC was generated
	OutcomeApproved OutcomeType = iota
	// OutcomeOnlineRequest means an ARQC was generated
	OutcomeOnlineRequest
	// OutcomeDeclined means the card produced an AAC
	OutcomeDeclined
	// OutcomeTryAnotherInterface means the card wants contact or swipe
	OutcomeTryAnotherInterface
	// OutcomeEndApplication is a terminal processing failure
	OutcomeEndApplication
)

func (o OutcomeType) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeOnlineRequest:
		return "online_request"
	case OutcomeDeclined:
		return "declined"
	case OutcomeTryAnotherInterface:
		return "try_another_interface"
	default:
		return "end_application"
	}
}

// Phase marks how far cryptogram generation progressed when an outcome
// was produced. The durability layer keys its decisions on this.
type Phase int

const (
	PhaseBeforeGenerateAC Phase = iota
	PhaseAfterGenerateACSent
	PhaseDuringResponse
)

func (p Phase) String() string {
	switch p {
	case PhaseBeforeGenerateAC:
		return "before_generate_ac"
	case PhaseAfterGenerateACSent:
		return "after_generate_ac_sent"
	default:
		return "during_response"
	}
}

// Outcome is the result of ProcessTransaction.
type Outcome struct {
	Type          OutcomeType
	Reason        string
	Phase         Phase
	Authorization *Authorization
	Err           error
}

// TransactionMode distinguishes full EMV processing from the mag-stripe
// compatibility paths.
const (
	ModeEMV       = "EMV"
	ModeMagstripe = "MAGSTRIPE"
)

// Authorization is the outcome envelope sent to the acquirer. Sensitive
// fields keep their zeroizing types; everything else is plain data.
type Authorization struct {
	Scheme          string
	TransactionMode string

	PAN       *sensitive.PAN
	MaskedPAN string
	PSN       string
	Expiry    string
	Track2    *sensitive.Track2

	CryptogramType string // "TC", "ARQC", "AAC"
	Cryptogram     string // hex
	CID            byte
	ATC            []byte
	IAD            []byte

	TVR        []byte
	CVMResults []byte

	AmountAuthorized int64
	AmountOther      int64
	CountryCode      string
	CurrencyCode     string
	TransactionDate  []byte // BCD YYMMDD
	TransactionType  byte

	UnpredictableNumber []byte
	AIP                 []byte
	AID                 []byte
	CardholderName      string

	// Mag-stripe only
	CVC3Track1 string
	CVC3Track2 string
}

// OnlineResponse carries the acquirer's answer back into a kernel for
// issuer authentication and the second GENERATE AC.
type OnlineResponse struct {
	Approved          bool
	AuthorizationCode []byte   // tag 89
	ResponseCode      []byte   // tag 8A
	IssuerAuthData    []byte   // tag 91: ARPC(8)+ARC(2) or ARPC(4)+CSU(4)+prop
	IssuerScripts     [][]byte // raw 71/72 templates in received order
}

// OnlineResultType enumerates second-AC outcomes.
type OnlineResultType int

const (
	OnlineResultApproved OnlineResultType = iota
	OnlineResultDeclined
	OnlineResultEndApplication
)

// OnlineResult is the result of ProcessOnlineResponse.
type OnlineResult struct {
	Type          OnlineResultType
	Authorization *Authorization
	ScriptResults []byte
	Err           error
}

// Kernel is the per-scheme protocol driver.
type Kernel interface {
	Name() string
	ProcessTransaction(ctx context.Context, app SelectedApplication, params Params) Outcome
}

// OnlineKernel is implemented by kernels that complete transactions with
// issuer authentication and a second GENERATE AC (Mastercard).
type OnlineKernel interface {
	Kernel
	ProcessOnlineResponse(ctx context.Context, resp OnlineResponse, prev *Authorization) OnlineResult
}

// Env bundles the per-transaction collaborators a kernel works with. The
// orchestrator builds one Env per card presentation.
type Env struct {
	Logger *zap.Logger

	Exchanger *apdu.Exchanger
	Terminal  *datastore.Store
	Card      *datastore.Store
	TVR       *bits.TVR
	TSI       *bits.TSI
	Registry  *sensitive.Registry

	Config     config.KernelConfig
	ODA        capability.ODAVerifier
	CAKeys     capability.CAKeyStore
	ScriptAuth capability.ScriptAuthenticator
	Clock      capability.Clock
	RNG        capability.RNG
}
