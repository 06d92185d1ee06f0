package domain

import "errors"

var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotReady = errors.New("emsx session not ready")
	ErrRequestRejected = errors.New("request rejected by emsx")
	ErrNoData          = errors.New("update carries no blotter data")
)

// AppError carries the HTTP status for an error returned by a service.
type AppError struct {
	Code    int
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

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: 404, Message: msg, Err: ErrNotFound}
}

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: 400, Message: msg, Err: ErrInvalidInput}
}

func NewInternalError(msg string, err error) *AppError {
	return &AppError{Code: 500, Message: msg, Err: err}
}

func NewUnavailableError(msg string, err error) *AppError {
	return &AppError{Code: 503, Message: msg, Err: err}
}

// NewRejectedError wraps an ErrorInfo answer from EMSX.
func NewRejectedError(err error) *AppError {
	return &AppError{Code: 422, Message: err.Error(), Err: ErrRequestRejected}
}
