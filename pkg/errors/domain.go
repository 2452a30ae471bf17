package errors

import "fmt"

// Kernel error taxonomy. Sentinels compare by code via errors.Is; the
// builder helpers attach the structured detail each kind carries.

// Codec errors
var (
	ErrMalformedTLV = &Error{
		Code:    "MALFORMED_TLV",
		Message: "BER-TLV data is malformed",
	}

	ErrDOLLengthMismatch = &Error{
		Code:    "DOL_LENGTH_MISMATCH",
		Message: "DOL assembly produced an unexpected length",
	}
)

// Card protocol errors
var (
	ErrUnexpectedSW = &Error{
		Code:    "UNEXPECTED_SW",
		Message: "Card returned an unclassified status word",
	}

	ErrMissingMandatoryData = &Error{
		Code:    "MISSING_MANDATORY_DATA",
		Message: "Card omitted a mandatory data element",
	}

	ErrODAFailed = &Error{
		Code:    "ODA_FAILED",
		Message: "Offline data authentication failed",
	}

	ErrCVMFailed = &Error{
		Code:    "CVM_FAILED",
		Message: "Cardholder verification failed",
	}

	ErrGenerateACRejected = &Error{
		Code:    "GENERATE_AC_REJECTED",
		Message: "Card declined with an AAC",
	}

	ErrTryAnotherInterface = &Error{
		Code:    "TRY_ANOTHER_INTERFACE",
		Message: "Card requests a different interface",
	}
)

// State machine errors
var (
	ErrInvalidStateTransition = &Error{
		Code:    "INVALID_STATE_TRANSITION",
		Message: "Transaction state transition is not allowed",
	}

	ErrTransactionInProgress = &Error{
		Code:    "TRANSACTION_IN_PROGRESS",
		Message: "Another transaction is already active",
	}
)

// Durability errors. Both are retryable through the recovery / reversal
// machinery rather than by replaying the original call.
var (
	ErrTornTransactionQueued = &Error{
		Code:      "TORN_TRANSACTION_QUEUED",
		Message:   "Transaction was torn; a durable record was taken",
		Retryable: true,
	}

	ErrReversalQueued = &Error{
		Code:      "REVERSAL_QUEUED",
		Message:   "Operation failed after cryptogram; reversal persisted",
		Retryable: true,
	}
)

// Collaborator errors
var (
	ErrCapability = &Error{
		Code:    "CAPABILITY_ERROR",
		Message: "External capability reported a failure",
	}

	ErrCardCommunication = &Error{
		Code:      "CARD_COMMUNICATION",
		Message:   "Card communication failed",
		Retryable: true,
	}
)

// UnexpectedSW builds an ErrUnexpectedSW carrying the status word.
func UnexpectedSW(sw uint16) *Error {
	return ErrUnexpectedSW.
		WithMessage("card returned unexpected status word %04X", sw).
		WithDetails("sw", fmt.Sprintf("%04X", sw))
}

// MissingMandatoryData builds an ErrMissingMandatoryData for a tag.
func MissingMandatoryData(tag uint32) *Error {
	return ErrMissingMandatoryData.
		WithMessage("card omitted mandatory data element %X", tag).
		WithDetails("tag", fmt.Sprintf("%X", tag))
}

// ODAFailed builds an ErrODAFailed with the verifier's reason.
func ODAFailed(reason string) *Error {
	return ErrODAFailed.WithDetails("reason", reason)
}

// CVMFailed builds an ErrCVMFailed with detail about the failing rule.
func CVMFailed(detail string) *Error {
	return ErrCVMFailed.WithDetails("detail", detail)
}

// InvalidStateTransition names the offending edge.
func InvalidStateTransition(from, to string) *Error {
	return ErrInvalidStateTransition.
		WithMessage("invalid transition %s -> %s", from, to).
		WithDetails("from", from).
		WithDetails("to", to)
}

// TornTransactionQueued carries the durable record id.
func TornTransactionQueued(recordID string) *Error {
	return ErrTornTransactionQueued.WithDetails("record_id", recordID)
}

// ReversalQueued carries the persisted reversal id.
func ReversalQueued(reversalID string) *Error {
	return ErrReversalQueued.WithDetails("reversal_id", reversalID)
}

// Capability names the collaborator that failed.
func Capability(which string, err error) *Error {
	return ErrCapability.
		WithMessage("capability %s failed", which).
		WithDetails("which", which).
		Wrap(err)
}
