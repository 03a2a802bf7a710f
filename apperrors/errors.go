package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an error for propagation: it decides the HTTP status and whether the
// message may be shown to the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindInvalidInput
	KindPaymentProvider
	KindWebhookVerification
	KindLLMUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindPaymentProvider:
		return "payment_provider_error"
	case KindWebhookVerification:
		return "webhook_verification_failed"
	case KindLLMUnavailable:
		return "llm_unavailable"
	default:
		return "internal"
	}
}

// AppError carries a stable Code for clients next to the human message.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so a wrapped copy of a sentinel still satisfies errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

var (
	ErrUnauthenticated   = New(KindUnauthenticated, "UNAUTHENTICATED", "authentication required")
	ErrForbidden         = New(KindForbidden, "FORBIDDEN", "not allowed")
	ErrNotFound          = New(KindNotFound, "NOT_FOUND", "resource not found")
	ErrAlreadySubscribed = New(KindConflict, "ALREADY_SUBSCRIBED", "you already have an active subscription to this creator")
	ErrAlreadyPurchased  = New(KindConflict, "ALREADY_PURCHASED", "you already purchased this post")
	ErrUsernameTaken     = New(KindConflict, "USERNAME_TAKEN", "this username is already taken")
	ErrEmailTaken        = New(KindConflict, "EMAIL_TAKEN", "this email is already used")
	ErrNotPPV            = New(KindInvalidInput, "NOT_PPV", "this post is not a pay-per-view post")
	ErrInvalidAmount     = New(KindInvalidInput, "INVALID_AMOUNT", "amount is below the allowed minimum")
	ErrInvalidPrice      = New(KindInvalidInput, "INVALID_PRICE", "price is below the allowed minimum")
	ErrSelfPurchase      = New(KindInvalidInput, "SELF_PURCHASE", "you cannot pay yourself")
	ErrWebhookSignature  = New(KindWebhookVerification, "WEBHOOK_VERIFICATION_FAILED", "webhook signature verification failed")
	ErrLLMUnavailable    = New(KindLLMUnavailable, "LLM_UNAVAILABLE", "reply generator unavailable")
)

// NotFound returns a NOT_FOUND error naming the missing entity.
func NotFound(entity string) *AppError {
	return New(KindNotFound, "NOT_FOUND", entity+" not found")
}

// Invalid returns an INVALID_INPUT error with the given message.
func Invalid(message string) *AppError {
	return New(KindInvalidInput, "INVALID_INPUT", message)
}

// Provider wraps a payment provider failure. The message stays generic, the cause is kept
// for the logs.
func Provider(err error) *AppError {
	return Wrap(KindPaymentProvider, "PAYMENT_PROVIDER_ERROR", "payment provider error", err)
}

// Internal wraps an unexpected failure.
func Internal(err error) *AppError {
	return Wrap(KindInternal, "INTERNAL", "internal error", err)
}

// KindOf returns the Kind of the first AppError in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code returned to API callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindPaymentProvider:
		return http.StatusBadGateway
	case KindWebhookVerification:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Public returns the code and message safe to send to a client. Internal and provider
// failures never expose their cause.
func Public(err error) (code, message string) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "INTERNAL", "internal error"
	}
	switch appErr.Kind {
	case KindInternal:
		return "INTERNAL", "internal error"
	case KindPaymentProvider:
		return appErr.Code, "payment could not be processed, please try again"
	}
	return appErr.Code, appErr.Message
}
