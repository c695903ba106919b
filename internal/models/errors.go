package models

// IsNotFoundError returns whether an error represents a "not found" error.
func IsNotFoundError(err error) bool {
	switch err.(type) {
	case UserNotFoundError, *UserNotFoundError:
		return true
	case OAuthClientNotFoundError, *OAuthClientNotFoundError:
		return true
	case AuthorizationCodeNotFoundError, *AuthorizationCodeNotFoundError:
		return true
	case AccessTokenNotFoundError, *AccessTokenNotFoundError:
		return true
	case RefreshTokenNotFoundError, *RefreshTokenNotFoundError:
		return true
	case EmailChangeNotFoundError, *EmailChangeNotFoundError:
		return true
	}
	return false
}

// UserNotFoundError represents when a user is not found.
type UserNotFoundError struct{}

func (e UserNotFoundError) Error() string {
	return "User not found"
}

// OAuthClientNotFoundError represents when an OAuth client is not found or
// has been deactivated.
type OAuthClientNotFoundError struct{}

func (e OAuthClientNotFoundError) Error() string {
	return "OAuth client not found"
}

// AuthorizationCodeNotFoundError covers unknown, already redeemed and
// mismatched authorization codes. Callers must not reveal which.
type AuthorizationCodeNotFoundError struct{}

func (e AuthorizationCodeNotFoundError) Error() string {
	return "Authorization code not found"
}

// InvalidCodeVerifierError represents a failed or missing PKCE code
// verifier. The authorization code survives the failed attempt.
type InvalidCodeVerifierError struct {
	Message string
}

func (e InvalidCodeVerifierError) Error() string {
	return e.Message
}

// IsInvalidCodeVerifierError returns whether an error represents a PKCE
// verification failure.
func IsInvalidCodeVerifierError(err error) bool {
	switch err.(type) {
	case InvalidCodeVerifierError, *InvalidCodeVerifierError:
		return true
	}
	return false
}

// AccessTokenNotFoundError represents when an access token is not found.
type AccessTokenNotFoundError struct{}

func (e AccessTokenNotFoundError) Error() string {
	return "Access Token not found"
}

// RefreshTokenNotFoundError represents when a refresh token is not found.
type RefreshTokenNotFoundError struct{}

func (e RefreshTokenNotFoundError) Error() string {
	return "Refresh Token not found"
}

// EmailChangeNotFoundError represents when a user has no pending email
// change request.
type EmailChangeNotFoundError struct{}

func (e EmailChangeNotFoundError) Error() string {
	return "Email change request not found"
}
