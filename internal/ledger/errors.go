// Package ledger implements the campaign ledger: the authoritative
// campaign and user-index state plus the operations that mutate it.
package ledger

import "net/http"

// Code is a machine-readable failure code.
type Code string

const (
	// Lifecycle
	CodeNotInitialized     Code = "NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "ALREADY_INITIALIZED"

	// Validation
	CodeInvalidTitle    Code = "INVALID_TITLE"
	CodeInvalidGoal     Code = "INVALID_GOAL"
	CodeInvalidDuration Code = "INVALID_DURATION"
	CodeInvalidAmount   Code = "INVALID_AMOUNT"

	// Lookup
	CodeCampaignNotFound Code = "CAMPAIGN_NOT_FOUND"
	CodeCampaignExists   Code = "CAMPAIGN_EXISTS"

	// Authorization
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Temporal / business
	CodeCampaignNotActive    Code = "CAMPAIGN_NOT_ACTIVE"
	CodeCampaignNotStarted   Code = "CAMPAIGN_NOT_STARTED"
	CodeCampaignEnded        Code = "CAMPAIGN_ENDED"
	CodeGoalReached          Code = "GOAL_REACHED"
	CodeCampaignStillRunning Code = "CAMPAIGN_STILL_RUNNING"
	CodeAlreadyWithdrawn     Code = "ALREADY_WITHDRAWN"

	// Dependency
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeTransferFailed      Code = "TRANSFER_FAILED"

	// Storage
	CodeStorage Code = "STORAGE"
)

// HTTPStatus maps a failure code to an HTTP status for the transport edge.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidTitle, CodeInvalidGoal, CodeInvalidDuration, CodeInvalidAmount:
		return http.StatusBadRequest
	case CodeCampaignNotFound:
		return http.StatusNotFound
	case CodeCampaignExists, CodeAlreadyInitialized, CodeAlreadyWithdrawn:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeCampaignNotActive, CodeCampaignNotStarted, CodeCampaignEnded,
		CodeGoalReached, CodeCampaignStillRunning, CodeNotInitialized:
		return http.StatusUnprocessableEntity
	case CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the ledger failure type. Operations abort with exactly one
// Error and no partial effects.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// E creates a ledger error with a code and message.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a ledger error carrying an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Failure codes used as errors.Is targets in callers and tests.
var (
	ErrNotInitialized     = E(CodeNotInitialized, "contract not initialized")
	ErrAlreadyInitialized = E(CodeAlreadyInitialized, "already initialized")
	ErrInvalidTitle       = E(CodeInvalidTitle, "campaign title is required")
	ErrInvalidGoal        = E(CodeInvalidGoal, "goal amount must be positive")
	ErrInvalidDuration    = E(CodeInvalidDuration, "campaign duration must be positive")
	ErrInvalidAmount      = E(CodeInvalidAmount, "donation amount must be positive")
	ErrCampaignNotFound   = E(CodeCampaignNotFound, "campaign does not exist")
	ErrCampaignExists     = E(CodeCampaignExists, "campaign id already exists")
	ErrUnauthorized       = E(CodeUnauthorized, "caller is not the campaign creator")
	ErrCampaignNotActive  = E(CodeCampaignNotActive, "campaign is not active")
	ErrCampaignNotStarted = E(CodeCampaignNotStarted, "campaign has not started")
	ErrCampaignEnded      = E(CodeCampaignEnded, "campaign has ended")
	ErrGoalReached        = E(CodeGoalReached, "campaign goal already reached")
	ErrStillRunning       = E(CodeCampaignStillRunning, "campaign is still running")
	ErrAlreadyWithdrawn   = E(CodeAlreadyWithdrawn, "funds already withdrawn")
	ErrInsufficientFunds  = E(CodeInsufficientBalance, "insufficient balance")
)
