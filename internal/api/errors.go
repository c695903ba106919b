package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/observability"
	"github.com/F3-Nation/f3-nation-auth/internal/utilities"
)

type (
	HTTPError  = apierrors.HTTPError
	OAuthError = apierrors.OAuthError
	ErrorCode  = apierrors.ErrorCode
)

func oauthError(err string, description string) *OAuthError {
	return apierrors.NewOAuthError(err, description)
}

func badRequestError(errorCode ErrorCode, fmtString string, args ...any) *HTTPError {
	return apierrors.NewBadRequestError(errorCode, fmtString, args...)
}

func unauthorizedError(errorCode ErrorCode, fmtString string, args ...any) *HTTPError {
	return apierrors.NewUnauthorizedError(errorCode, fmtString, args...)
}

func tooManyRequestsError(errorCode ErrorCode, fmtString string, args ...any) *HTTPError {
	return apierrors.NewTooManyRequestsError(errorCode, fmtString, args...)
}

func internalServerError(fmtString string, args ...any) *HTTPError {
	return apierrors.NewInternalServerError(fmtString, args...)
}

// recoverer is a middleware that recovers from panics, logs the panic (and a
// backtrace), and returns a HTTP 500 (Internal Server Error) status if
// possible. Recoverer prints a request ID if one is provided.
func recoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				logEntry := observability.GetLogEntry(r)
				if logEntry != nil {
					logEntry.WithField("panic", fmt.Sprintf("%+v", rvr)).WithField("stack", string(debug.Stack())).Error("unhandled request panic")
				} else {
					fmt.Fprintf(os.Stderr, "Panic: %+v\n", rvr)
					debug.PrintStack()
				}

				se := &HTTPError{
					HTTPStatus: http.StatusInternalServerError,
					Message:    http.StatusText(http.StatusInternalServerError),
				}
				HandleResponseError(se, w, r)
			}
		}()
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// ErrorCause is an error interface that contains the method Cause() for returning root cause errors
type ErrorCause interface {
	Cause() error
}

func HandleResponseError(err error, w http.ResponseWriter, r *http.Request) {
	log := observability.GetLogEntry(r)
	errorID := utilities.GetRequestID(r.Context())

	switch e := err.(type) {
	case *HTTPError:
		switch {
		case e.HTTPStatus >= http.StatusInternalServerError:
			e.ErrorID = errorID
			// this will get us the stack trace too
			log.WithError(e.Cause()).Error(e.Error())
		case e.HTTPStatus == http.StatusTooManyRequests:
			log.WithError(e.Cause()).Warn(e.Error())
		default:
			log.WithError(e.Cause()).Info(e.Error())
		}

		if e.ErrorCode == "" {
			if e.HTTPStatus == http.StatusInternalServerError {
				e.ErrorCode = apierrors.ErrorCodeUnexpectedFailure
			} else {
				e.ErrorCode = apierrors.ErrorCodeUnknown
			}
		}
		w.Header().Set("x-error-code", e.ErrorCode)

		if jsonErr := sendJSON(w, e.HTTPStatus, e); jsonErr != nil {
			log.WithError(jsonErr).Warn("Failed to send JSON on ResponseWriter")
		}

	case *OAuthError:
		log.WithError(e.Cause()).Info(e.Error())
		status := e.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		if jsonErr := sendJSON(w, status, e); jsonErr != nil {
			log.WithError(jsonErr).Warn("Failed to send JSON on ResponseWriter")
		}

	case ErrorCause:
		HandleResponseError(e.Cause(), w, r)

	default:
		log.WithError(e).Errorf("Unhandled server error: %s", e.Error())

		resp := HTTPError{
			HTTPStatus: http.StatusInternalServerError,
			ErrorCode:  apierrors.ErrorCodeUnexpectedFailure,
			Message:    "Unexpected failure, please check server logs for more information",
		}

		if jsonErr := sendJSON(w, http.StatusInternalServerError, resp); jsonErr != nil {
			log.WithError(jsonErr).Warn("Failed to send JSON on ResponseWriter")
		}
	}
}
