// Package tag names the EMV data elements the kernels read and write.
package tag

import "github.com/mgthompo1/tapkernel/pkg/tlv"

// Card-sourced data elements
const (
	ADFName                tlv.Tag = 0x4F
	ApplicationLabel       tlv.Tag = 0x50
	Track2Equivalent       tlv.Tag = 0x57
	PAN                    tlv.Tag = 0x5A
	CardholderName         tlv.Tag = 0x5F20
	ExpirationDate         tlv.Tag = 0x5F24
	EffectiveDate          tlv.Tag = 0x5F25
	IssuerCountryCode      tlv.Tag = 0x5F28
	TransactionCurrency    tlv.Tag = 0x5F2A
	PANSequenceNumber      tlv.Tag = 0x5F34
	FCITemplate            tlv.Tag = 0x6F
	RecordTemplate         tlv.Tag = 0x70
	IssuerScript71         tlv.Tag = 0x71
	IssuerScript72         tlv.Tag = 0x72
	ResponseFormat2        tlv.Tag = 0x77
	ResponseFormat1        tlv.Tag = 0x80
	AIP                    tlv.Tag = 0x82
	DFName                 tlv.Tag = 0x84
	ApplicationPriority    tlv.Tag = 0x87
	SFI                    tlv.Tag = 0x88
	AuthorizationCode      tlv.Tag = 0x89
	AuthorizationResponse  tlv.Tag = 0x8A
	CDOL1                  tlv.Tag = 0x8C
	CDOL2                  tlv.Tag = 0x8D
	CVMList                tlv.Tag = 0x8E
	CAPublicKeyIndex       tlv.Tag = 0x8F
	IssuerPublicKeyCert    tlv.Tag = 0x90
	IssuerAuthData         tlv.Tag = 0x91
	IssuerPublicKeyRem     tlv.Tag = 0x92
	SignedStaticAppData    tlv.Tag = 0x93
	AFL                    tlv.Tag = 0x94
	TVR                    tlv.Tag = 0x95
	TransactionDate        tlv.Tag = 0x9A
	TSI                    tlv.Tag = 0x9B
	TransactionType        tlv.Tag = 0x9C
	DDFName                tlv.Tag = 0x9D
	AmountAuthorized       tlv.Tag = 0x9F02
	AmountOther            tlv.Tag = 0x9F03
	TerminalAID            tlv.Tag = 0x9F06
	AUC                    tlv.Tag = 0x9F07
	ApplicationVersion     tlv.Tag = 0x9F08
	TerminalVersion        tlv.Tag = 0x9F09
	IACDefault             tlv.Tag = 0x9F0D
	IACDenial              tlv.Tag = 0x9F0E
	IACOnline              tlv.Tag = 0x9F0F
	IAD                    tlv.Tag = 0x9F10
	MerchantCategoryCode   tlv.Tag = 0x9F15
	MerchantID             tlv.Tag = 0x9F16
	TerminalCountryCode    tlv.Tag = 0x9F1A
	TerminalID             tlv.Tag = 0x9F1C
	IFDSerialNumber        tlv.Tag = 0x9F1E
	TransactionTime        tlv.Tag = 0x9F21
	ApplicationCryptogram  tlv.Tag = 0x9F26
	CID                    tlv.Tag = 0x9F27
	IssuerPublicKeyExp     tlv.Tag = 0x9F32
	TerminalCapabilities   tlv.Tag = 0x9F33
	CVMResults             tlv.Tag = 0x9F34
	TerminalType           tlv.Tag = 0x9F35
	ATC                    tlv.Tag = 0x9F36
	UnpredictableNumber    tlv.Tag = 0x9F37
	PDOL                   tlv.Tag = 0x9F38
	ApplicationCurrency    tlv.Tag = 0x9F42
	ICCPublicKeyCert       tlv.Tag = 0x9F46
	ICCPublicKeyExp        tlv.Tag = 0x9F47
	ICCPublicKeyRem        tlv.Tag = 0x9F48
	DDOL                   tlv.Tag = 0x9F49
	SDATagList             tlv.Tag = 0x9F4A
	SDAD                   tlv.Tag = 0x9F4B
	ICCDynamicNumber       tlv.Tag = 0x9F4C
	LogEntry               tlv.Tag = 0x9F4D
	FCIIssuerDiscretionary tlv.Tag = 0xBF0C
)

// Contactless qualifiers and mag-stripe data elements
const (
	TTQ          tlv.Tag = 0x9F66
	CTQ          tlv.Tag = 0x9F6C
	Track2MSD    tlv.Tag = 0x9F6B
	FormFactor   tlv.Tag = 0x9F6E
	CVC3Track1   tlv.Tag = 0x9F60
	CVC3Track2   tlv.Tag = 0x9F61
	PCVC3Track1  tlv.Tag = 0x9F62
	PUNATCTrack1 tlv.Tag = 0x9F63
	NATCTrack1   tlv.Tag = 0x9F64
	PCVC3Track2  tlv.Tag = 0x9F65
	UDOL         tlv.Tag = 0x9F69
)

// Visa torn-transaction query elements
const (
	VisaTornLog      tlv.Tag = 0xDF8128
	VisaTornLogEntry tlv.Tag = 0xDF8129
)

// alphanumeric data elements are space padded when a DOL asks for more
// bytes than the stored value carries
var alphanumeric = map[tlv.Tag]struct{}{
	ApplicationLabel: {},
	CardholderName:   {},
	MerchantID:       {},
	TerminalID:       {},
	IFDSerialNumber:  {},
}

// IsAlphanumeric reports whether a tag's value is an EMV "an" element.
func IsAlphanumeric(t tlv.Tag) bool {
	_, ok := alphanumeric[t]
	return ok
}
