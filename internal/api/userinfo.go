package api

import (
	"net/http"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
)

// UserInfoResponse carries the claims the access token's scopes allow.
type UserInfoResponse struct {
	Sub           string  `json:"sub"`
	Name          *string `json:"name,omitempty"`
	Picture       *string `json:"picture,omitempty"`
	Email         string  `json:"email,omitempty"`
	EmailVerified *bool   `json:"email_verified,omitempty"`
}

// UserInfo returns the OIDC claims subset granted by the presented Bearer
// token.
func (a *API) UserInfo(w http.ResponseWriter, r *http.Request) error {
	authHeader := r.Header.Get("Authorization")
	matches := bearerRegexp.FindStringSubmatch(authHeader)
	if len(matches) != 2 {
		return oauthError(apierrors.OAuthErrorInvalidRequest, "Missing or invalid Authorization header").WithStatus(http.StatusUnauthorized)
	}

	db := a.db.WithContext(r.Context())

	token, err := models.FindAccessToken(db, matches[1])
	if err != nil {
		if models.IsNotFoundError(err) {
			return oauthError("invalid_token", "Invalid or expired access token").WithStatus(http.StatusUnauthorized)
		}
		return internalServerError("Database error finding access token").WithInternalError(err)
	}

	user, err := models.FindUserByID(db, token.UserID)
	if err != nil {
		if models.IsNotFoundError(err) {
			return oauthError(apierrors.OAuthErrorServerError, "User not found").WithStatus(http.StatusInternalServerError)
		}
		return internalServerError("Database error finding user").WithInternalError(err)
	}

	resp := UserInfoResponse{Sub: user.ID}

	if token.HasScope("profile") {
		resp.Name = user.F3Name
		resp.Picture = user.Picture
	}

	if token.HasScope("email") {
		resp.Email = user.Email
		verified := user.IsEmailVerified()
		resp.EmailVerified = &verified
	}

	return sendJSON(w, http.StatusOK, resp)
}
