package shared

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrNotConnected  = errors.New("not connected")
	ErrCaptureBusy   = errors.New("capture device already in use")
	ErrSessionClosed = errors.New("session closed")
)

type Stage string

const (
	StageCapture     Stage = "capture"
	StageRecognition Stage = "recognition"
	StageTranslation Stage = "translation"
	StageSynthesis   Stage = "synthesis"
	StageNegotiation Stage = "negotiation"
	StageCredential  Stage = "credential"
	StageEvent       Stage = "event"
)

// StageError carries the pipeline or session stage that failed. The
// per-stage types below embed it so callers can match with errors.As on the
// concrete type they care about.
type StageError struct {
	Stage Stage
	Op    string
	Err   error
}

func (e *StageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Op, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type CaptureError struct{ StageError }

type RecognitionError struct{ StageError }

type TranslationError struct{ StageError }

// SynthesisError is never fatal; the result is downgraded to text only.
type SynthesisError struct{ StageError }

type NegotiationError struct{ StageError }

type CredentialError struct{ StageError }

// MalformedEventError is logged and the event dropped.
type MalformedEventError struct {
	StageError
	EventType string
}

func NewCaptureError(op string, err error) error {
	return &CaptureError{StageError{Stage: StageCapture, Op: op, Err: err}}
}

func NewRecognitionError(op string, err error) error {
	var existing *RecognitionError
	if errors.As(err, &existing) {
		return err
	}
	return &RecognitionError{StageError{Stage: StageRecognition, Op: op, Err: err}}
}

func NewTranslationError(op string, err error) error {
	var existing *TranslationError
	if errors.As(err, &existing) {
		return err
	}
	return &TranslationError{StageError{Stage: StageTranslation, Op: op, Err: err}}
}

func NewSynthesisError(op string, err error) error {
	var existing *SynthesisError
	if errors.As(err, &existing) {
		return err
	}
	return &SynthesisError{StageError{Stage: StageSynthesis, Op: op, Err: err}}
}

func NewNegotiationError(op string, err error) error {
	return &NegotiationError{StageError{Stage: StageNegotiation, Op: op, Err: err}}
}

func NewCredentialError(op string, err error) error {
	return &CredentialError{StageError{Stage: StageCredential, Op: op, Err: err}}
}

func NewMalformedEventError(eventType string, err error) error {
	return &MalformedEventError{
		StageError: StageError{Stage: StageEvent, Op: "decode", Err: err},
		EventType:  eventType,
	}
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func BadRequest(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusBadRequest)
}

func NotFound(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusNotFound)
}

func Conflict(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusConflict)
}

func InternalError(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusInternalServerError)
}

func TooManyRequests(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusTooManyRequests)
}

// HTTPFromError maps domain errors to API responses.
func HTTPFromError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFound("not_found", err.Error())
	case errors.Is(err, ErrCaptureBusy), errors.Is(err, ErrConflict):
		return Conflict("conflict", err.Error())
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrSessionClosed):
		return Conflict("not_connected", err.Error())
	}

	var credErr *CredentialError
	if errors.As(err, &credErr) {
		return NewAPIError("credential_failed", err.Error()).ToHTTP(http.StatusBadGateway)
	}
	var negErr *NegotiationError
	if errors.As(err, &negErr) {
		return NewAPIError("negotiation_failed", err.Error()).ToHTTP(http.StatusBadGateway)
	}

	return InternalError("internal_error", err.Error())
}
