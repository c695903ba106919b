package api

import (
	"errors"
	"net/http"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/utilities"
	"github.com/F3-Nation/f3-nation-auth/internal/verification"
)

// VerifyEmailParams is the body of the pre-sign-in code check.
type VerifyEmailParams struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyEmailResponse reports whether the code matched and the caller may
// proceed to sign in.
type VerifyEmailResponse struct {
	Success   bool `json:"success"`
	CanSignIn bool `json:"canSignIn"`
}

// VerifyEmail checks a sign-in code without consuming it. The sign-in flow
// calls this for validation first, then consumes the code when it commits
// to the session.
func (a *API) VerifyEmail(w http.ResponseWriter, r *http.Request) error {
	params := &VerifyEmailParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	if params.Email == "" || params.Code == "" {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Email and verification code are required")
	}

	valid, err := a.verifier.VerifyCode(r.Context(), params.Email, params.Code, false)
	if err != nil {
		return internalServerError("Error verifying code").WithInternalError(err)
	}

	if !valid {
		return badRequestError(apierrors.ErrorCodeInvalidCode, "Invalid verification code")
	}

	return sendJSON(w, http.StatusOK, VerifyEmailResponse{
		Success:   true,
		CanSignIn: true,
	})
}

// SendVerificationCodeParams is the body of the code-sending step.
type SendVerificationCodeParams struct {
	Email       string `json:"email"`
	CallbackURL string `json:"callbackUrl"`
}

// SendVerificationCode issues a fresh sign-in code and mails it, replacing
// any unconsumed code for the address.
func (a *API) SendVerificationCode(w http.ResponseWriter, r *http.Request) error {
	params := &SendVerificationCodeParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	if params.Email == "" {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Email is required")
	}
	if err := a.Mailer().ValidateEmail(params.Email); err != nil {
		return badRequestError(apierrors.ErrorCodeInvalidEmail, "Invalid email address")
	}

	if err := a.verifier.SendCode(r.Context(), params.Email, a.sendCallbackURL(params.CallbackURL)); err != nil {
		if errors.Is(err, verification.ErrSendRateLimited) {
			return tooManyRequestsError(apierrors.ErrorCodeRateLimited, "Too many codes sent to this address. Please try again later.")
		}
		return internalServerError("Error sending verification code").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// sendCallbackURL keeps a caller-supplied callback only when it points at
// the site or an allow-listed target. The endpoint is unauthenticated, so
// anything else falls back to the site URL.
func (a *API) sendCallbackURL(raw string) string {
	if utilities.IsRedirectURLValid(a.config, raw) {
		return raw
	}
	return a.config.SiteURL
}

// ConsumeVerificationCode verifies and consumes a sign-in code, then finds
// or creates the account for the address. The session layer calls this when
// it commits to a sign-in.
func (a *API) ConsumeVerificationCode(w http.ResponseWriter, r *http.Request) error {
	params := &VerifyEmailParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	if params.Email == "" || params.Code == "" {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Email and verification code are required")
	}

	valid, err := a.verifier.VerifyCode(r.Context(), params.Email, params.Code, true)
	if err != nil {
		return internalServerError("Error verifying code").WithInternalError(err)
	}
	if !valid {
		return badRequestError(apierrors.ErrorCodeInvalidCode, "Invalid verification code")
	}

	user, err := models.FindOrCreateUserByEmail(a.db.WithContext(r.Context()), params.Email)
	if err != nil {
		return internalServerError("Database error finding or creating user").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user": map[string]interface{}{
			"id":                  user.ID,
			"email":               user.Email,
			"name":                user.DisplayName(),
			"onboardingCompleted": user.OnboardingCompleted,
		},
	})
}
