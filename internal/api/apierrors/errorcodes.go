package apierrors

type ErrorCode = string

// OAuth 2.0 error codes used verbatim in the `error` field of OAuth
// responses.
const (
	OAuthErrorInvalidRequest          = "invalid_request"
	OAuthErrorInvalidClient           = "invalid_client"
	OAuthErrorInvalidGrant            = "invalid_grant"
	OAuthErrorInvalidScope            = "invalid_scope"
	OAuthErrorUnsupportedResponseType = "unsupported_response_type"
	OAuthErrorUnsupportedGrantType    = "unsupported_grant_type"
	OAuthErrorAccessDenied            = "access_denied"
	OAuthErrorServerError             = "server_error"
)

// Stable codes carried in the `error` field of verification and email
// change responses. Frontends map them to user facing copy, so they never
// change.
const (
	ErrorCodeInvalidEmail = "INVALID_EMAIL"
	ErrorCodeSameEmail    = "SAME_EMAIL"
	ErrorCodeEmailInUse   = "EMAIL_IN_USE"
	ErrorCodeRateLimited  = "RATE_LIMITED"
	ErrorCodeNotFound     = "NOT_FOUND"
	ErrorCodeExpired      = "EXPIRED"
	ErrorCodeMaxAttempts  = "MAX_ATTEMPTS"
	ErrorCodeInvalidCode  = "INVALID_CODE"
)

// Generic API error codes.
const (
	ErrorCodeUnknown              ErrorCode = "unknown"
	ErrorCodeUnexpectedFailure    ErrorCode = "unexpected_failure"
	ErrorCodeValidationFailed     ErrorCode = "validation_failed"
	ErrorCodeConflict             ErrorCode = "conflict"
	ErrorCodeNoAuthorization      ErrorCode = "no_authorization"
	ErrorCodeBadJWT               ErrorCode = "bad_jwt"
	ErrorCodeUserNotFound         ErrorCode = "user_not_found"
	ErrorCodeOverRequestRateLimit ErrorCode = "over_request_rate_limit"
)
