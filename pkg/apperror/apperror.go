package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error for transport mapping and caller recovery
type Kind string

const (
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindValidation Kind = "VALIDATION"
	KindFinalized  Kind = "FINALIZED_STATE"
)

// Stable error codes surfaced to API clients
const (
	CodeQuotationNotFound     = "QUOTATION_NOT_FOUND"
	CodeLineItemNotFound      = "LINE_ITEM_NOT_FOUND"
	CodeRoundNotFound         = "ROUND_NOT_FOUND"
	CodeProductDetailNotFound = "PRODUCT_DETAIL_NOT_FOUND"
	CodeParticipantNotFound   = "PARTICIPANT_NOT_FOUND"
	CodeDuplicateLineItem     = "DUPLICATE_LINE_ITEM"
	CodeRoundAlreadyOpen      = "ROUND_ALREADY_OPEN"
	CodeRoundAlreadyClosed    = "ROUND_ALREADY_CLOSED"
	CodeOutOfTurn             = "OUT_OF_TURN"
	CodeUnitMismatch          = "UNIT_MISMATCH"
	CodeStaleQuotation        = "STALE_QUOTATION"
	CodeNotParticipant        = "NOT_PARTICIPANT"
	CodeInvalidProposal       = "INVALID_PROPOSAL"
	CodeEmptyMessage          = "EMPTY_MESSAGE"
	CodeUnpricedLineItem      = "UNPRICED_LINE_ITEM"
	CodeQuotationEmpty        = "QUOTATION_EMPTY"
	CodeQuotationFinalized    = "QUOTATION_FINALIZED"
	CodeInvalidID             = "INVALID_ID"
)

// Error is a typed, recoverable domain error. Context holds enough detail
// (ids, current status, expected vs actual) for the caller to decide whether
// to resubmit.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a typed domain error. Key/value context pairs are optional.
func New(kind Kind, code, message string, kv ...any) *Error {
	e := &Error{Kind: kind, Code: code, Message: message}
	if len(kv) > 0 {
		e.Context = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			e.Context[key] = kv[i+1]
		}
	}
	return e
}

func NotFound(code, message string, kv ...any) *Error {
	return New(KindNotFound, code, message, kv...)
}

func Conflict(code, message string, kv ...any) *Error {
	return New(KindConflict, code, message, kv...)
}

func Validation(code, message string, kv ...any) *Error {
	return New(KindValidation, code, message, kv...)
}

func Finalized(code, message string, kv ...any) *Error {
	return New(KindFinalized, code, message, kv...)
}

// As unwraps err into an *Error if one is present anywhere in the chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given Kind
func IsKind(err error, kind Kind) bool {
	if e, ok := As(err); ok {
		return e.Kind == kind
	}
	return false
}

// IsCode reports whether err carries the given stable code
func IsCode(err error, code string) bool {
	if e, ok := As(err); ok {
		return e.Code == code
	}
	return false
}

// HTTPStatus maps a domain error to its transport status. Unknown errors are
// treated as internal.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindFinalized:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
