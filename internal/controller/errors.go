package controller

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/scenesync/server/internal/domain"
	roomrepo "github.com/scenesync/server/internal/repository/room"
	"github.com/scenesync/server/internal/repository/upload"
	"github.com/scenesync/server/internal/service/auth"
	"github.com/scenesync/server/internal/service/room"
	"github.com/scenesync/server/pkg/validator"
	"github.com/scenesync/server/pkg/wsrouter"
)

var (
	ErrRateLimited = errors.New("too many messages")
	ErrBadRequest  = errors.New("bad request")
)

const (
	CodeAuthenticationFailure = "AUTHENTICATION_FAILURE"
	CodeAuthorizationFailure  = "AUTHORIZATION_FAILURE"
	CodeNotFound              = "NOT_FOUND"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	CodeConflict              = "CONFLICT"
	CodeValidationFailure     = "VALIDATION_FAILURE"
	CodeRateLimited           = "RATE_LIMITED"
	CodePersistenceFailure    = "PERSISTENCE_FAILURE"
	CodeInternalFailure       = "INTERNAL_FAILURE"
)

// payloadError carries the field errors of a rejected request body or ws payload.
type payloadError struct {
	errors []validator.ValidationError
}

func (e *payloadError) Error() string {
	msgs := make([]string, 0, len(e.errors))
	for _, fe := range e.errors {
		msgs = append(msgs, fe.Message)
	}
	return "invalid payload: " + strings.Join(msgs, "; ")
}

type errorClass struct {
	code      string
	status    int
	retryable bool
}

var (
	classAuthentication = errorClass{code: CodeAuthenticationFailure, status: http.StatusUnauthorized}
	classAuthorization  = errorClass{code: CodeAuthorizationFailure, status: http.StatusForbidden}
	classNotFound       = errorClass{code: CodeNotFound, status: http.StatusNotFound}
	classCapacity       = errorClass{code: CodeCapacityExceeded, status: http.StatusConflict}
	classConflict       = errorClass{code: CodeConflict, status: http.StatusConflict}
	classValidation     = errorClass{code: CodeValidationFailure, status: http.StatusBadRequest}
	classPersistence    = errorClass{code: CodePersistenceFailure, status: http.StatusServiceUnavailable, retryable: true}
)

var knownErrors = []struct {
	err   error
	class errorClass
}{
	{auth.ErrInvalidToken, classAuthentication},

	{domain.ErrPermissionDenied, classAuthorization},
	{domain.ErrNotParticipant, classAuthorization},
	{domain.ErrChatDisabled, classAuthorization},
	{domain.ErrAnonymousNotAllowed, classAuthorization},
	{room.ErrNotBound, classAuthorization},

	{domain.ErrRoomNotFound, classNotFound},
	{domain.ErrMessageNotFound, classNotFound},

	{domain.ErrRoomFull, classCapacity},

	{domain.ErrAlreadyMember, classConflict},
	{domain.ErrRoomInactive, classConflict},
	{domain.ErrNoVideo, classConflict},
	{roomrepo.ErrConflict, errorClass{code: CodeConflict, status: http.StatusConflict, retryable: true}},

	{domain.ErrInvalidPosition, classValidation},
	{domain.ErrInvalidDuration, classValidation},
	{domain.ErrInvalidCapacity, classValidation},
	{domain.ErrInvalidVideoURL, classValidation},
	{wsrouter.ErrUnknownMessageType, classValidation},
	{wsrouter.ErrMalformedMessage, classValidation},
	{ErrBadRequest, classValidation},
	{upload.ErrEmpty, classValidation},
	{upload.ErrTooLarge, errorClass{code: CodeValidationFailure, status: http.StatusRequestEntityTooLarge}},
	{upload.ErrUnsupportedType, errorClass{code: CodeValidationFailure, status: http.StatusUnsupportedMediaType}},

	{ErrRateLimited, errorClass{code: CodeRateLimited, status: http.StatusTooManyRequests, retryable: true}},
}

// classifyError maps err to the code reported to clients and a message safe to show them.
// Anything unrecognised is treated as a storage failure.
func classifyError(err error) (errorClass, string, any) {
	for _, known := range knownErrors {
		if errors.Is(err, known.err) {
			return known.class, known.err.Error(), nil
		}
	}

	var payloadErr *payloadError
	if errors.As(err, &payloadErr) {
		return classValidation, payloadErr.Error(), payloadErr.errors
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		return classValidation, fieldErrs.Error(), fieldErrs
	}

	var ruleErr validation.Error
	if errors.As(err, &ruleErr) {
		return classValidation, ruleErr.Error(), nil
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errorClass{code: CodeValidationFailure, status: http.StatusRequestEntityTooLarge}, upload.ErrTooLarge.Error(), nil
	}

	return classPersistence, "temporarily unable to process the request", nil
}
