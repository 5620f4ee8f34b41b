package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"medibook/cmd/internal/domain/entity"

	"github.com/go-playground/validator/v10"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindSlotConflict    Kind = "slot_conflict"
	KindNotFound        Kind = "not_found"
	KindStorage         Kind = "storage_error"
	KindAuthorization   Kind = "authorization_error"
	KindUnauthenticated Kind = "unauthenticated"
	KindStale           Kind = "stale_appointment"
	KindRateLimited     Kind = "rate_limited"
)

// ErrorResponse is what services hand back to the routes. Its JSON form is
// sent to the client as is, so it never carries internal details.
type ErrorResponse interface {
	error
	Code() int
	Kind() Kind
}

type apiError struct {
	Status  int    `json:"-"`
	ErrKind Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Message }
func (e *apiError) Code() int     { return e.Status }
func (e *apiError) Kind() Kind    { return e.ErrKind }

func New(status int, kind Kind, message string) ErrorResponse {
	return &apiError{Status: status, ErrKind: kind, Message: message}
}

// NewSimple builds an error whose kind is derived from the status code.
func NewSimple(status int, message string) ErrorResponse {
	return New(status, kindFor(status), message)
}

func NewValidation(message string) ErrorResponse {
	return New(http.StatusBadRequest, KindValidation, message)
}

func NewMissingParamError(name string) ErrorResponse {
	return NewValidation(fmt.Sprintf("Missing required parameter '%s'", name))
}

func NewInvalidParamTypeError(name, typ string) ErrorResponse {
	return NewValidation(fmt.Sprintf("Parameter '%s' must be of type %s", name, typ))
}

// NewSlotNotAlignedError names the clinic's slot length in its message.
func NewSlotNotAlignedError(step time.Duration) ErrorResponse {
	return NewValidation(fmt.Sprintf("Appointment time must start on a %d minute boundary", int(step.Minutes())))
}

func kindFor(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusForbidden:
		return KindAuthorization
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusConflict:
		return KindStale
	case http.StatusTooManyRequests:
		return KindRateLimited
	}
	if status >= 500 {
		return KindStorage
	}
	return KindValidation
}

// Is reports whether err is an ErrorResponse of the given kind.
func Is(err error, kind Kind) bool {
	var apierr ErrorResponse
	if errors.As(err, &apierr) {
		return apierr.Kind() == kind
	}
	return false
}

var (
	InternalServerError   = New(http.StatusInternalServerError, KindStorage, "Something went wrong, please try again later")
	MalformedBodyError    = NewValidation("Request body is malformed")
	NotFoundError         = New(http.StatusNotFound, KindNotFound, "Resource not found")
	AppointmentNotFound   = New(http.StatusNotFound, KindNotFound, "Appointment not found")
	UserNotFoundError     = New(http.StatusNotFound, KindNotFound, "User not found")
	AccessDeniedError     = New(http.StatusForbidden, KindAuthorization, "Access denied")
	InvalidAuthTokenError = New(http.StatusUnauthorized, KindUnauthenticated, "Missing or invalid authentication token")
	TooManyRequestsError  = New(http.StatusTooManyRequests, KindRateLimited, "Too many requests, slow down")

	SlotTakenError         = New(http.StatusBadRequest, KindSlotConflict, "This time slot is already booked")
	InvalidStatusError     = NewValidation("Invalid status")
	InvalidTransitionError = NewValidation("Appointment cannot move to the requested status")
	RejectNotesError       = NewValidation("Notes are required when rejecting an appointment")
	CancelNotesError       = NewValidation("Notes are required when cancelling an appointment")
	StaleAppointmentError  = New(http.StatusConflict, KindStale, "Appointment was changed by someone else, reload and try again")
	AppointmentInPastError = NewValidation("Appointment time must be in the future")
	OutsideHoursError      = NewValidation("Appointment time must be on a weekday within clinic hours")
	BeyondHorizonError     = NewValidation("Appointment time is too far in the future")

	UserAlreadyExistsError      = NewValidation("User already exists")
	InvalidRoleError            = NewValidation("Invalid role specified")
	PasswordMismatchError       = NewValidation("Current password is incorrect")
	IDPInvalidPasswordError     = NewValidation("Password does not meet the requirements")
	IDPExistingEmailError       = NewValidation("User already exists")
	IDPUserNotFoundError        = New(http.StatusUnauthorized, KindUnauthenticated, "Invalid credentials")
	IDPCredentialsMismatchError = New(http.StatusUnauthorized, KindUnauthenticated, "Invalid credentials")
	IDPUserNotConfirmedError    = New(http.StatusForbidden, KindAuthorization, "Account email is not confirmed yet")
	IDPConfirmCodeMismatchError = NewValidation("Confirmation code does not match")
	IDPConfirmCodeExpiredError  = NewValidation("Confirmation code has expired")
	UserAlreadyConfirmedError   = NewValidation("User is already confirmed")
)

// FromValidationError turns the first failing field of a validator error into
// a message suitable for direct display.
func FromValidationError(err error) ErrorResponse {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return MalformedBodyError
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return NewValidation(fmt.Sprintf("Field '%s' is required", field))
	case "email":
		return NewValidation(fmt.Sprintf("Field '%s' must be a valid email address", field))
	case "min":
		return NewValidation(fmt.Sprintf("Field '%s' must be at least %s characters", field, fe.Param()))
	case "max":
		return NewValidation(fmt.Sprintf("Field '%s' must be at most %s characters", field, fe.Param()))
	case "iso8601":
		return NewValidation(fmt.Sprintf("Field '%s' must be an RFC 3339 timestamp", field))
	case "treatment":
		return NewValidation(fmt.Sprintf("Field '%s' must be one of: %s", field, strings.Join(treatmentNames(), ", ")))
	case "role":
		return InvalidRoleError
	case "notblank":
		return NewValidation(fmt.Sprintf("Field '%s' must not be blank", field))
	}
	return NewValidation(fmt.Sprintf("Field '%s' is invalid", field))
}

func treatmentNames() []string {
	names := make([]string, len(entity.Treatments))
	for i, t := range entity.Treatments {
		names[i] = string(t)
	}
	return names
}
