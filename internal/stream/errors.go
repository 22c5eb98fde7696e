package stream

import (
	"errors"
	"fmt"
)

// Class groups error codes by how a caller should react to them.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassAuthorization Class = "authorization"
	ClassNotFound      Class = "not_found"
	ClassState         Class = "state"
	ClassExternal      Class = "external"
	ClassArithmetic    Class = "arithmetic"
)

// Code identifies a single failure mode.
type Code string

const (
	CodeInvalidTimeRange   Code = "INVALID_TIME_RANGE"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeInvalidCliff       Code = "INVALID_CLIFF"
	CodeInvalidMilestones  Code = "INVALID_MILESTONES"
	CodeInvalidThreshold   Code = "INVALID_APPROVAL_THRESHOLD"
	CodeInvalidBasisPoints Code = "INVALID_BASIS_POINTS"
	CodeInvalidStrategy    Code = "INVALID_INTEREST_STRATEGY"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeInvalidConfig      Code = "INVALID_CONFIG"

	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotReceiptOwner   Code = "NOT_RECEIPT_OWNER"
	CodeNotArbiter        Code = "NOT_ARBITER"
	CodeStreamIsSoulbound Code = "STREAM_IS_SOULBOUND"
	CodeAddressRestricted Code = "ADDRESS_RESTRICTED"
	CodeTokenNotAllowed   Code = "TOKEN_NOT_ALLOWED"
	CodeVaultNotApproved  Code = "VAULT_NOT_APPROVED"

	CodeStreamNotFound   Code = "STREAM_NOT_FOUND"
	CodeProposalNotFound Code = "PROPOSAL_NOT_FOUND"

	CodeAlreadyCancelled        Code = "ALREADY_CANCELLED"
	CodeStreamFrozen            Code = "STREAM_FROZEN"
	CodeStreamPaused            Code = "STREAM_PAUSED"
	CodeNothingToWithdraw       Code = "NOTHING_TO_WITHDRAW"
	CodeStreamEnded             Code = "STREAM_ENDED"
	CodeClawbackDisabled        Code = "CLAWBACK_DISABLED"
	CodeNoArbiter               Code = "NO_ARBITER"
	CodeAlreadyApproved         Code = "ALREADY_APPROVED"
	CodeProposalExpired         Code = "PROPOSAL_EXPIRED"
	CodeProposalAlreadyExecuted Code = "PROPOSAL_ALREADY_EXECUTED"
	CodeServiceHalted           Code = "SERVICE_HALTED"
	CodeReentrant               Code = "REENTRANT_CALL"
	CodeUnsupported             Code = "UNSUPPORTED_OPERATION"

	CodeOracleStalePrice Code = "ORACLE_STALE_PRICE"
	CodeOracleFailed     Code = "ORACLE_FAILED"
	CodePriceOutOfBounds Code = "PRICE_OUT_OF_BOUNDS"
	CodeVaultFailed      Code = "VAULT_FAILED"
	CodeVaultShortfall   Code = "VAULT_SHORTFALL"
	CodeTransferFailed   Code = "TRANSFER_FAILED"
	CodeStorageFailed    Code = "STORAGE_FAILED"

	CodeArithmeticOverflow Code = "ARITHMETIC_OVERFLOW"
)

var codeClass = map[Code]Class{
	CodeInvalidTimeRange:   ClassValidation,
	CodeInvalidAmount:      ClassValidation,
	CodeInvalidCliff:       ClassValidation,
	CodeInvalidMilestones:  ClassValidation,
	CodeInvalidThreshold:   ClassValidation,
	CodeInvalidBasisPoints: ClassValidation,
	CodeInvalidStrategy:    ClassValidation,
	CodeInvalidRequest:     ClassValidation,
	CodeInvalidConfig:      ClassValidation,

	CodeUnauthorized:      ClassAuthorization,
	CodeNotReceiptOwner:   ClassAuthorization,
	CodeNotArbiter:        ClassAuthorization,
	CodeStreamIsSoulbound: ClassAuthorization,
	CodeAddressRestricted: ClassAuthorization,
	CodeTokenNotAllowed:   ClassAuthorization,
	CodeVaultNotApproved:  ClassAuthorization,

	CodeStreamNotFound:   ClassNotFound,
	CodeProposalNotFound: ClassNotFound,

	CodeAlreadyCancelled:        ClassState,
	CodeStreamFrozen:            ClassState,
	CodeStreamPaused:            ClassState,
	CodeNothingToWithdraw:       ClassState,
	CodeStreamEnded:             ClassState,
	CodeClawbackDisabled:        ClassState,
	CodeNoArbiter:               ClassState,
	CodeAlreadyApproved:         ClassState,
	CodeProposalExpired:         ClassState,
	CodeProposalAlreadyExecuted: ClassState,
	CodeServiceHalted:           ClassState,
	CodeReentrant:               ClassState,
	CodeUnsupported:             ClassState,

	CodeOracleStalePrice: ClassExternal,
	CodeOracleFailed:     ClassExternal,
	CodePriceOutOfBounds: ClassExternal,
	CodeVaultFailed:      ClassExternal,
	CodeVaultShortfall:   ClassExternal,
	CodeTransferFailed:   ClassExternal,
	CodeStorageFailed:    ClassExternal,

	CodeArithmeticOverflow: ClassArithmetic,
}

// Error is the typed outcome of a rejected operation. Every abort the engine
// produces is an *Error, possibly wrapping the collaborator error behind it.
type Error struct {
	Code     Code
	Message  string
	StreamID uint64
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.StreamID != 0 {
		msg += fmt.Sprintf(" (stream=%d)", e.StreamID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying collaborator error.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is regardless of message or stream id.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Class reports the category of the error code.
func (e *Error) Class() Class {
	if c, ok := codeClass[e.Code]; ok {
		return c
	}
	return ClassState
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidTimeRange   = &Error{Code: CodeInvalidTimeRange}
	ErrInvalidAmount      = &Error{Code: CodeInvalidAmount}
	ErrInvalidCliff       = &Error{Code: CodeInvalidCliff}
	ErrInvalidMilestones  = &Error{Code: CodeInvalidMilestones}
	ErrInvalidThreshold   = &Error{Code: CodeInvalidThreshold}
	ErrInvalidBasisPoints = &Error{Code: CodeInvalidBasisPoints}
	ErrInvalidStrategy    = &Error{Code: CodeInvalidStrategy}
	ErrInvalidRequest     = &Error{Code: CodeInvalidRequest}
	ErrInvalidConfig      = &Error{Code: CodeInvalidConfig}

	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrNotReceiptOwner   = &Error{Code: CodeNotReceiptOwner}
	ErrNotArbiter        = &Error{Code: CodeNotArbiter}
	ErrStreamIsSoulbound = &Error{Code: CodeStreamIsSoulbound}
	ErrAddressRestricted = &Error{Code: CodeAddressRestricted}
	ErrTokenNotAllowed   = &Error{Code: CodeTokenNotAllowed}
	ErrVaultNotApproved  = &Error{Code: CodeVaultNotApproved}

	ErrStreamNotFound   = &Error{Code: CodeStreamNotFound}
	ErrProposalNotFound = &Error{Code: CodeProposalNotFound}

	ErrAlreadyCancelled        = &Error{Code: CodeAlreadyCancelled}
	ErrStreamFrozen            = &Error{Code: CodeStreamFrozen}
	ErrStreamPaused            = &Error{Code: CodeStreamPaused}
	ErrNothingToWithdraw       = &Error{Code: CodeNothingToWithdraw}
	ErrStreamEnded             = &Error{Code: CodeStreamEnded}
	ErrClawbackDisabled        = &Error{Code: CodeClawbackDisabled}
	ErrNoArbiter               = &Error{Code: CodeNoArbiter}
	ErrAlreadyApproved         = &Error{Code: CodeAlreadyApproved}
	ErrProposalExpired         = &Error{Code: CodeProposalExpired}
	ErrProposalAlreadyExecuted = &Error{Code: CodeProposalAlreadyExecuted}
	ErrServiceHalted           = &Error{Code: CodeServiceHalted}
	ErrReentrant               = &Error{Code: CodeReentrant}
	ErrUnsupported             = &Error{Code: CodeUnsupported}

	ErrOracleStalePrice = &Error{Code: CodeOracleStalePrice}
	ErrOracleFailed     = &Error{Code: CodeOracleFailed}
	ErrPriceOutOfBounds = &Error{Code: CodePriceOutOfBounds}
	ErrVaultFailed      = &Error{Code: CodeVaultFailed}
	ErrVaultShortfall   = &Error{Code: CodeVaultShortfall}
	ErrTransferFailed   = &Error{Code: CodeTransferFailed}
	ErrStorageFailed    = &Error{Code: CodeStorageFailed}

	ErrArithmeticOverflow = &Error{Code: CodeArithmeticOverflow}
)

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a collaborator failure.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// ForStream returns a copy of err annotated with the stream id, if err is an
// *Error. A zero id leaves err untouched.
func ForStream(err error, id uint64) error {
	var se *Error
	if id == 0 || !errors.As(err, &se) {
		return err
	}
	cp := *se
	cp.StreamID = id
	return &cp
}

// ClassOf reports the class of err, or "" when err is not an *Error.
func ClassOf(err error) Class {
	var se *Error
	if errors.As(err, &se) {
		return se.Class()
	}
	return ""
}

// CodeOf reports the code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
