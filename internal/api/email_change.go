package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/mailer"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/observability"
)

// emailChangeFailure mirrors models.EmailChangeVerifyResult for the failure
// pre-checks the handlers enforce before touching the workflow.
type emailChangeFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func sendEmailChangeFailure(w http.ResponseWriter, status int, code, message string) error {
	return sendJSON(w, status, emailChangeFailure{Error: code, Message: message})
}

// emailChangeStatus maps the workflow's stable error codes to HTTP statuses.
func emailChangeStatus(code string) int {
	switch code {
	case models.EmailChangeErrorNotFound:
		return http.StatusNotFound
	case models.EmailChangeErrorExpired:
		return http.StatusGone
	case models.EmailChangeErrorEmailInUse:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// InitiateEmailChangeParams is the body of the initiate call.
type InitiateEmailChangeParams struct {
	NewEmail string `json:"newEmail"`
}

// InitiateEmailChange starts a dual-sided email change for the session user
// and mails one code to each address.
func (a *API) InitiateEmailChange(w http.ResponseWriter, r *http.Request) error {
	user := getUser(r.Context())
	db := a.db.WithContext(r.Context())
	config := a.config

	params := &InitiateEmailChangeParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	if params.NewEmail == "" || a.Mailer().ValidateEmail(params.NewEmail) != nil {
		return sendEmailChangeFailure(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidEmail, "Please enter a valid email address")
	}

	newEmail := normalizeEmail(params.NewEmail)
	if newEmail == normalizeEmail(user.Email) {
		return sendEmailChangeFailure(w, http.StatusBadRequest, apierrors.ErrorCodeSameEmail, "New email must be different from your current email")
	}

	taken, err := models.IsEmailTaken(db, newEmail, user.ID)
	if err != nil {
		return internalServerError("Database error checking email availability").WithInternalError(err)
	}
	if taken {
		return sendEmailChangeFailure(w, http.StatusConflict, apierrors.ErrorCodeEmailInUse, "This email address is already associated with another account")
	}

	cutoff := time.Now().Add(-time.Hour)
	recent, err := models.CountRecentEmailChangeRequests(db, user.ID, cutoff)
	if err != nil {
		return internalServerError("Database error checking rate limit").WithInternalError(err)
	}
	if recent >= config.Verification.EmailChangeMaxPerHour {
		return sendEmailChangeFailure(w, http.StatusTooManyRequests, apierrors.ErrorCodeRateLimited, "Too many email change requests. Please try again later.")
	}

	request, codes, err := models.CreateEmailChangeRequest(db, user, newEmail, config.Verification.EmailChangeExp)
	if err != nil {
		return internalServerError("Database error creating email change request").WithInternalError(err)
	}

	a.sendEmailChangeMail(r, request, models.EmailChangeSideOld, codes.OldCode)
	a.sendEmailChangeMail(r, request, models.EmailChangeSideNew, codes.NewCode)

	return sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"requestId": request.ID.String(),
		"message":   "Verification codes sent to both email addresses",
	})
}

// VerifyEmailChangeParams is the body of the verify-old and verify-new calls.
type VerifyEmailChangeParams struct {
	RequestID string `json:"requestId"`
	Code      string `json:"code"`
}

// VerifyOldEmail checks the code sent to the account's current address.
func (a *API) VerifyOldEmail(w http.ResponseWriter, r *http.Request) error {
	return a.verifyEmailChangeSide(w, r, models.EmailChangeSideOld)
}

// VerifyNewEmail checks the code sent to the prospective address.
func (a *API) VerifyNewEmail(w http.ResponseWriter, r *http.Request) error {
	return a.verifyEmailChangeSide(w, r, models.EmailChangeSideNew)
}

func (a *API) verifyEmailChangeSide(w http.ResponseWriter, r *http.Request, side models.EmailChangeSide) error {
	user := getUser(r.Context())
	db := a.db.WithContext(r.Context())

	params := &VerifyEmailChangeParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	requestID, err := uuid.FromString(params.RequestID)
	if err != nil {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Request ID is required")
	}
	if params.Code == "" {
		return sendEmailChangeFailure(w, http.StatusBadRequest, apierrors.ErrorCodeInvalidCode, "Verification code is required")
	}

	result, err := models.VerifyEmailChangeSide(db, requestID, user.ID, side, params.Code, a.config.Verification.MaxAttempts)
	if err != nil {
		return internalServerError("Database error verifying email change code").WithInternalError(err)
	}

	status := http.StatusOK
	if !result.Success {
		status = emailChangeStatus(result.ErrorCode)
	}
	return sendJSON(w, status, result)
}

// ResendEmailChangeParams is the body of the resend call.
type ResendEmailChangeParams struct {
	RequestID string `json:"requestId"`
	Target    string `json:"target"`
}

// ResendEmailChangeCodes remints the codes for the targeted unverified sides
// and mails them again.
func (a *API) ResendEmailChangeCodes(w http.ResponseWriter, r *http.Request) error {
	user := getUser(r.Context())
	db := a.db.WithContext(r.Context())

	params := &ResendEmailChangeParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	requestID, err := uuid.FromString(params.RequestID)
	if err != nil {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Request ID is required")
	}

	if !isStringInSlice(params.Target, []string{"old", "new", "both"}) {
		return badRequestError(apierrors.ErrorCodeValidationFailed, `Target must be "old", "new", or "both"`)
	}

	request, err := models.FindEmailChangeRequest(db, requestID, user.ID)
	if err != nil {
		if models.IsNotFoundError(err) {
			return sendEmailChangeFailure(w, http.StatusNotFound, apierrors.ErrorCodeNotFound, "Email change request not found")
		}
		return internalServerError("Database error finding email change request").WithInternalError(err)
	}
	if request.IsExpired() {
		return sendEmailChangeFailure(w, http.StatusGone, apierrors.ErrorCodeExpired, "Email change request has expired")
	}

	resendOld := params.Target == "old" || params.Target == "both"
	resendNew := params.Target == "new" || params.Target == "both"

	codes, err := models.ResendEmailChangeCodes(db, request, resendOld, resendNew)
	if err != nil {
		return internalServerError("Database error reissuing email change codes").WithInternalError(err)
	}

	if codes.OldCode != "" {
		a.sendEmailChangeMail(r, request, models.EmailChangeSideOld, codes.OldCode)
	}
	if codes.NewCode != "" {
		a.sendEmailChangeMail(r, request, models.EmailChangeSideNew, codes.NewCode)
	}

	return sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CancelEmailChangeParams is the body of the cancel call.
type CancelEmailChangeParams struct {
	RequestID string `json:"requestId"`
}

// CancelEmailChange discards an unfinished request owned by the session
// user.
func (a *API) CancelEmailChange(w http.ResponseWriter, r *http.Request) error {
	user := getUser(r.Context())
	db := a.db.WithContext(r.Context())

	params := &CancelEmailChangeParams{}
	if err := retrieveRequestParams(r, params); err != nil {
		return err
	}

	requestID, err := uuid.FromString(params.RequestID)
	if err != nil {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Request ID is required")
	}

	if err := models.CancelEmailChange(db, requestID, user.ID); err != nil {
		if models.IsNotFoundError(err) {
			return sendEmailChangeFailure(w, http.StatusNotFound, apierrors.ErrorCodeNotFound, "Email change request not found")
		}
		return internalServerError("Database error cancelling email change request").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PendingEmailChangeResponse is the summary of an in-flight request.
type PendingEmailChangeResponse struct {
	RequestID        string    `json:"requestId"`
	NewEmail         string    `json:"newEmail"`
	OldEmailVerified bool      `json:"oldEmailVerified"`
	NewEmailVerified bool      `json:"newEmailVerified"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// PendingEmailChange reports the session user's in-flight request, if any.
func (a *API) PendingEmailChange(w http.ResponseWriter, r *http.Request) error {
	user := getUser(r.Context())
	db := a.db.WithContext(r.Context())

	request, err := models.GetPendingEmailChange(db, user.ID)
	if err != nil {
		if models.IsNotFoundError(err) {
			return sendJSON(w, http.StatusOK, map[string]interface{}{
				"success":       true,
				"pendingChange": nil,
			})
		}
		return internalServerError("Database error finding email change request").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"pendingChange": PendingEmailChangeResponse{
			RequestID:        request.ID.String(),
			NewEmail:         request.NewEmail,
			OldEmailVerified: request.OldEmailVerified,
			NewEmailVerified: request.NewEmailVerified,
			ExpiresAt:        request.ExpiresAt,
		},
	})
}

// sendEmailChangeMail dispatches one side's code. Delivery failures are
// logged, not surfaced; the codes can always be resent.
func (a *API) sendEmailChangeMail(r *http.Request, request *models.EmailChangeRequest, side models.EmailChangeSide, code string) {
	m := a.Mailer()
	link := a.emailChangeLink(request, side, code)

	var err error
	if side == models.EmailChangeSideOld {
		err = m.EmailChangeOldMail(request, code, link)
	} else {
		err = m.EmailChangeNewMail(request, code, link)
	}
	if err != nil {
		observability.GetLogEntry(r).WithError(err).WithField("side", string(side)).Warn("failed to send email change mail")
	}
}

func (a *API) emailChangeLink(request *models.EmailChangeRequest, side models.EmailChangeSide, code string) string {
	path := a.config.Mailer.URLPaths.EmailChangeOld
	if side == models.EmailChangeSideNew {
		path = a.config.Mailer.URLPaths.EmailChangeNew
	}
	if path == "" {
		path = "/profile/email"
	}

	link, err := mailer.BuildLink(a.config.SiteURL, path, map[string]string{
		"requestId": request.ID.String(),
		"side":      string(side),
		"code":      code,
	})
	if err != nil {
		return ""
	}
	return link
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
