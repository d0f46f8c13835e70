package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Period / interval errors (PERIOD_*)
	ErrorCodeInvalidInterval  ErrorCode = "PERIOD_INVALID_INTERVAL"
	ErrorCodeUnknownFrequency ErrorCode = "PERIOD_UNKNOWN_FREQUENCY"
	ErrorCodePeriodDuplicate  ErrorCode = "PERIOD_DUPLICATE"

	// Batch errors (BATCH_*)
	ErrorCodeBatchNotFound        ErrorCode = "BATCH_NOT_FOUND"
	ErrorCodeBatchPeriodConflicts ErrorCode = "BATCH_PERIOD_CONFLICTS"
	ErrorCodeBatchNotCollectable  ErrorCode = "BATCH_NOT_COLLECTABLE"

	// Matcher errors (MATCH_*)
	ErrorCodeAmbiguousMatch      ErrorCode = "MATCH_AMBIGUOUS"
	ErrorCodeSearchSpaceTooLarge ErrorCode = "MATCH_SEARCH_SPACE_TOO_LARGE"
	ErrorCodeNoMatch             ErrorCode = "MATCH_NONE"

	// Payment posting errors (PAYMENT_*)
	ErrorCodePaymentNotFound    ErrorCode = "PAYMENT_NOT_FOUND"
	ErrorCodeAlreadyFullyPaid   ErrorCode = "PAYMENT_ALREADY_FULLY_PAID"
	ErrorCodeWouldOverpay       ErrorCode = "PAYMENT_WOULD_OVERPAY"
	ErrorCodeDuplicatePayment   ErrorCode = "PAYMENT_DUPLICATE"
	ErrorCodeAlreadyReversed    ErrorCode = "PAYMENT_ALREADY_REVERSED"
	ErrorCodeOriginalNotFound   ErrorCode = "PAYMENT_ORIGINAL_NOT_FOUND"
	ErrorCodeReversalSuperseded ErrorCode = "PAYMENT_REVERSAL_SUPERSEDED"

	// Return file errors (RETURN_*)
	ErrorCodeReturnFileProcessed ErrorCode = "RETURN_FILE_ALREADY_PROCESSED"
	ErrorCodeReturnFileMalformed ErrorCode = "RETURN_FILE_MALFORMED"

	// Lock / idempotency errors (LOCK_*)
	ErrorCodeBusyRetryLater ErrorCode = "LOCK_BUSY_RETRY_LATER"

	// Lookup errors
	ErrorCodeInvoiceNotFound     ErrorCode = "INVOICE_NOT_FOUND"
	ErrorCodeTransactionNotFound ErrorCode = "BANK_TXN_NOT_FOUND"
	ErrorCodeMandateNotActive    ErrorCode = "MANDATE_NOT_ACTIVE"

	// Validation errors (VALIDATION_*)
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of the error carrying one more detail field.
// Copying keeps the package-level sentinels immutable. Duplicate-prevention
// errors carry the conflicting record id here so the operator can navigate
// to it.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{
		Err:     e.Err,
		Details: details,
		Code:    e.Code,
		Message: e.Message,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string
// if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsDuplicatePrevention reports whether the error is one of the
// duplicate-prevention kinds that must never be swallowed or retried
func IsDuplicatePrevention(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeAlreadyFullyPaid,
		ErrorCodeWouldOverpay,
		ErrorCodeDuplicatePayment,
		ErrorCodeAlreadyReversed,
		ErrorCodeOriginalNotFound,
		ErrorCodeReversalSuperseded:
		return true
	}
	return false
}

// IsHumanReview reports whether the error is routed to human review rather
// than retried
func IsHumanReview(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeAmbiguousMatch || code == ErrorCodeSearchSpaceTooLarge
}

// IsTransient reports whether the caller may retry after backoff
func IsTransient(err error) bool {
	return GetErrorCode(err) == ErrorCodeBusyRetryLater
}

// Sentinel instances
var (
	ErrInvalidInterval  = NewDomainError(ErrorCodeInvalidInterval, "period start is after period end")
	ErrUnknownFrequency = NewDomainError(ErrorCodeUnknownFrequency, "unknown billing frequency")
	ErrPeriodDuplicate  = NewDomainError(ErrorCodePeriodDuplicate, "member already invoiced for an overlapping period")

	ErrBatchNotFound        = NewDomainError(ErrorCodeBatchNotFound, "direct debit batch not found")
	ErrBatchPeriodConflicts = NewDomainError(ErrorCodeBatchPeriodConflicts, "batch contains lines with conflicting membership periods")
	ErrBatchNotCollectable  = NewDomainError(ErrorCodeBatchNotCollectable, "batch is not in a collectable status")

	ErrAmbiguousMatch      = NewDomainError(ErrorCodeAmbiguousMatch, "multiple equally plausible matches")
	ErrSearchSpaceTooLarge = NewDomainError(ErrorCodeSearchSpaceTooLarge, "match search space exceeds configured bounds")

	ErrPaymentNotFound    = NewDomainError(ErrorCodePaymentNotFound, "payment not found")
	ErrAlreadyFullyPaid   = NewDomainError(ErrorCodeAlreadyFullyPaid, "invoice is already fully paid")
	ErrWouldOverpay       = NewDomainError(ErrorCodeWouldOverpay, "posting would exceed invoice grand total")
	ErrDuplicatePayment   = NewDomainError(ErrorCodeDuplicatePayment, "payment already posted for this transaction and batch")
	ErrAlreadyReversed    = NewDomainError(ErrorCodeAlreadyReversed, "payment has already been reversed")
	ErrOriginalNotFound   = NewDomainError(ErrorCodeOriginalNotFound, "original payment for reversal not found")
	ErrReversalSuperseded = NewDomainError(ErrorCodeReversalSuperseded, "a fresh successful payment supersedes this reversal")

	ErrReturnFileProcessed = NewDomainError(ErrorCodeReturnFileProcessed, "return file already processed")
	ErrReturnFileMalformed = NewDomainError(ErrorCodeReturnFileMalformed, "return file is malformed")

	ErrBusyRetryLater = NewDomainError(ErrorCodeBusyRetryLater, "resource is locked, retry later")

	ErrInvoiceNotFound     = NewDomainError(ErrorCodeInvoiceNotFound, "invoice not found")
	ErrTransactionNotFound = NewDomainError(ErrorCodeTransactionNotFound, "bank transaction not found")
	ErrMandateNotActive    = NewDomainError(ErrorCodeMandateNotActive, "member has no active mandate")

	ErrValidationFailed = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrInternalError    = NewDomainError(ErrorCodeInternalError, "internal error")
	ErrDatabaseError    = NewDomainError(ErrorCodeDatabaseError, "database error")
)
